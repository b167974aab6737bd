// Package assistant wraps model generation for chat turns, one-shot calls
// and title generation.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/recall-chat/recall/internal/conversation"
)

const (
	// titleTimeout bounds title generation so it never delays the turn.
	titleTimeout = 5 * time.Second

	// titleInputLimit truncates the opening exchange fed to the title
	// model.
	titleInputLimit = 500

	// titleMaxTokens keeps the title call cheap.
	titleMaxTokens = 20

	// TitleFallback is used when title generation fails or returns junk.
	TitleFallback = conversation.DefaultTitle
)

// StreamFunc receives each text chunk as the model produces it. Returning an
// error aborts generation.
type StreamFunc func(ctx context.Context, chunk string) error

// Config parametrizes an Assistant.
type Config struct {
	// ModelName is the fully qualified genkit model name, for example
	// "googleai/gemini-2.5-flash" or "ollama/llama3.2".
	ModelName string

	Temperature float64
	MaxTokens   int

	// RequestsPerMinute gates outgoing model calls. Zero disables the
	// limiter. Calls wait for a slot rather than retrying on provider
	// rejections.
	RequestsPerMinute int
}

func (c Config) validate() error {
	if c.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %.2f outside [0, 2]", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max tokens must not be negative")
	}
	return nil
}

// Assistant generates model responses.
//
// Assistant is safe for concurrent use by multiple goroutines.
type Assistant struct {
	g       *genkit.Genkit
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates an Assistant.
func New(g *genkit.Genkit, cfg Config, logger *slog.Logger) (*Assistant, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid assistant config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), cfg.RequestsPerMinute)
	}

	return &Assistant{g: g, cfg: cfg, limiter: limiter, logger: logger}, nil
}

// Stream generates a reply to message given the conversation history,
// delivering chunks through stream as they arrive. Returns the complete
// reply text. Errors come back classified.
func (a *Assistant) Stream(ctx context.Context, system string, history []conversation.Message, message string, stream StreamFunc) (string, error) {
	if err := a.wait(ctx); err != nil {
		return "", err
	}

	messages := historyMessages(history)
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(message)))

	opts := []ai.GenerateOption{
		ai.WithModelName(a.cfg.ModelName),
		ai.WithSystem(system),
		ai.WithMessages(messages...),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     a.cfg.Temperature,
			MaxOutputTokens: a.cfg.MaxTokens,
		}),
	}
	if stream != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			if text := chunk.Text(); text != "" {
				return stream(ctx, text)
			}
			return nil
		}))
	}

	resp, err := genkit.Generate(ctx, a.g, opts...)
	if err != nil {
		return "", Classify(fmt.Errorf("generating response: %w", err))
	}
	return resp.Text(), nil
}

// Response runs a one-shot, non-streaming call. Used for memory extraction.
func (a *Assistant) Response(ctx context.Context, system, prompt string) (string, error) {
	if err := a.wait(ctx); err != nil {
		return "", err
	}

	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.cfg.ModelName),
		ai.WithSystem(system),
		ai.WithPrompt(prompt),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     0,
			MaxOutputTokens: a.cfg.MaxTokens,
		}),
	)
	if err != nil {
		return "", Classify(fmt.Errorf("generating one-shot response: %w", err))
	}
	return resp.Text(), nil
}

// GenerateTitle produces a short conversation title from the opening
// exchange. Never returns an error to the caller path that matters: on any
// failure it logs and returns TitleFallback.
func (a *Assistant) GenerateTitle(ctx context.Context, userMessage, assistantReply string) string {
	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	prompt := fmt.Sprintf("User: %s\n\nAssistant: %s",
		truncateRunes(userMessage, titleInputLimit),
		truncateRunes(assistantReply, titleInputLimit))

	if err := a.wait(ctx); err != nil {
		a.logger.Warn("title generation skipped", "error", err)
		return TitleFallback
	}

	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.cfg.ModelName),
		ai.WithSystem(titleSystemPrompt),
		ai.WithPrompt(prompt),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     0.3,
			MaxOutputTokens: titleMaxTokens,
		}),
	)
	if err != nil {
		a.logger.Warn("title generation failed", "error", err)
		return TitleFallback
	}

	title := sanitizeTitle(resp.Text())
	if title == "" {
		return TitleFallback
	}
	return title
}

func (a *Assistant) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return nil
}

func historyMessages(history []conversation.Message) []*ai.Message {
	messages := make([]*ai.Message, 0, len(history)+1)
	for _, m := range history {
		switch m.Role {
		case conversation.RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		case conversation.RoleSystem:
			messages = append(messages, ai.NewSystemMessage(ai.NewTextPart(m.Content)))
		default:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		}
	}
	return messages
}

func sanitizeTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimRight(s, ".!")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
