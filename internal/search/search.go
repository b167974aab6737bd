// Package search integrates web search results into chat context via the
// Tavily REST API.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// MaxResults caps how many results feed into the prompt.
	MaxResults = 5

	requestTimeout = 10 * time.Second
)

// ErrUnavailable indicates the search backend could not be used. Chat
// degrades to answering without search context.
var ErrUnavailable = errors.New("web search unavailable")

// Result is a single web search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Client calls the Tavily search API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a search client. An empty API key is allowed; Search
// then always returns ErrUnavailable so chat still works without search.
func NewClient(apiKey, baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}
}

// Enabled reports whether the client is configured with an API key.
func (c *Client) Enabled() bool { return c.apiKey != "" }

type searchRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Search runs a web search for query.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}

	body, err := json.Marshal(searchRequest{
		Query:       query,
		SearchDepth: "basic",
		MaxResults:  MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, snippet)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}

	results := decoded.Results
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	return results, nil
}

// FormatResults renders results as a system prompt section with a citation
// instruction. Returns "" for no results.
func FormatResults(query string, results []Result) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Web Search Results (query: %q)\n", query)
	b.WriteString("Cite sources inline as [title](url) when you use them.\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. [%s](%s)\n%s\n\n", i+1, r.Title, r.URL, strings.TrimSpace(r.Content))
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
