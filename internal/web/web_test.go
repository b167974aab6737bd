package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/recall-chat/recall/internal/assistant"
	"github.com/recall-chat/recall/internal/conversation"
	"github.com/recall-chat/recall/internal/log"
	"github.com/recall-chat/recall/internal/memory"
	"github.com/recall-chat/recall/internal/preference"
	"github.com/recall-chat/recall/internal/search"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ---- fakes ----

type fakeAssistant struct {
	chunks    []string
	err       error
	errAfter  bool // deliver chunks before failing
	title     string
	gotSystem string
	gotMsg    string
}

func (f *fakeAssistant) Stream(ctx context.Context, system string, _ []conversation.Message, message string, stream assistant.StreamFunc) (string, error) {
	f.gotSystem = system
	f.gotMsg = message
	if f.err != nil && !f.errAfter {
		return "", f.err
	}
	var full strings.Builder
	for _, c := range f.chunks {
		if stream != nil {
			if err := stream(ctx, c); err != nil {
				return "", err
			}
		}
		full.WriteString(c)
	}
	if f.err != nil {
		return "", f.err
	}
	return full.String(), nil
}

func (f *fakeAssistant) GenerateTitle(context.Context, string, string) string {
	if f.title == "" {
		return assistant.TitleFallback
	}
	return f.title
}

type fakeConversations struct {
	mu       sync.Mutex
	convs    map[uuid.UUID]*conversation.Conversation
	messages map[uuid.UUID][]conversation.Message
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{
		convs:    make(map[uuid.UUID]*conversation.Conversation),
		messages: make(map[uuid.UUID][]conversation.Message),
	}
}

func (f *fakeConversations) Create(_ context.Context, userID string) (*conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &conversation.Conversation{
		ID: uuid.New(), UserID: userID, Title: conversation.DefaultTitle,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	f.convs[c.ID] = c
	return c, nil
}

func (f *fakeConversations) Get(_ context.Context, userID string, id uuid.UUID) (*conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok || c.UserID != userID {
		return nil, conversation.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeConversations) List(_ context.Context, userID string) ([]conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []conversation.Conversation
	for _, c := range f.convs {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeConversations) FindNewestEmpty(_ context.Context, userID string) (*conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.UserID == userID && len(f.messages[c.ID]) == 0 {
			copied := *c
			return &copied, nil
		}
	}
	return nil, conversation.ErrNotFound
}

func (f *fakeConversations) Messages(_ context.Context, userID string, id uuid.UUID) ([]conversation.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok || c.UserID != userID {
		return nil, conversation.ErrNotFound
	}
	return append([]conversation.Message(nil), f.messages[id]...), nil
}

func (f *fakeConversations) AppendMessage(_ context.Context, id uuid.UUID, role, content string) (*conversation.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := conversation.Message{ID: uuid.New(), ConversationID: id, Role: role, Content: content, CreatedAt: time.Now()}
	f.messages[id] = append(f.messages[id], m)
	return &m, nil
}

func (f *fakeConversations) UpdateTitle(_ context.Context, userID string, id uuid.UUID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok || c.UserID != userID {
		return conversation.ErrNotFound
	}
	c.Title = title
	return nil
}

func (f *fakeConversations) Delete(_ context.Context, userID string, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok || c.UserID != userID {
		return conversation.ErrNotFound
	}
	delete(f.convs, id)
	delete(f.messages, id)
	return nil
}

func (f *fakeConversations) DeleteMessageSuffix(_ context.Context, userID string, id, messageID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok || c.UserID != userID {
		return conversation.ErrNotFound
	}
	msgs := f.messages[id]
	for i, m := range msgs {
		if m.ID == messageID {
			f.messages[id] = msgs[:i]
			return nil
		}
	}
	return conversation.ErrNotFound
}

type fakeMemories struct {
	mu       sync.Mutex
	memories []memory.Memory
	searchFn func(query string) []memory.Memory
}

func (f *fakeMemories) Create(_ context.Context, userID, content string, tags []string, conversationID *uuid.UUID) (*memory.Memory, error) {
	if len(content) < memory.MinContentLength {
		return nil, memory.ErrInvalidContent
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m := memory.Memory{ID: uuid.New(), UserID: userID, Content: content, Tags: tags, ConversationID: conversationID, CreatedAt: time.Now()}
	f.memories = append(f.memories, m)
	return &m, nil
}

func (f *fakeMemories) Search(_ context.Context, _, query string, _ memory.SearchOptions) ([]memory.Memory, error) {
	if f.searchFn != nil {
		return f.searchFn(query), nil
	}
	return nil, nil
}

func (f *fakeMemories) List(_ context.Context, userID string, _ int) ([]memory.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []memory.Memory
	for _, m := range f.memories {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMemories) Delete(_ context.Context, userID string, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.memories {
		if m.ID == id && m.UserID == userID {
			f.memories = append(f.memories[:i], f.memories[i+1:]...)
			return nil
		}
	}
	return memory.ErrNotFound
}

type fakePreferences struct {
	prefs map[string]preference.Preferences
}

func (f *fakePreferences) Get(_ context.Context, userID string) (preference.Preferences, error) {
	if p, ok := f.prefs[userID]; ok {
		return p, nil
	}
	return preference.Preferences{Style: preference.DefaultStyle}, nil
}

func (f *fakePreferences) Put(_ context.Context, userID string, p preference.Preferences) (preference.Preferences, error) {
	if f.prefs == nil {
		f.prefs = make(map[string]preference.Preferences)
	}
	f.prefs[userID] = p
	return p, nil
}

type fakeEnricher struct {
	gotExplicit bool
	suffix      string
}

func (f *fakeEnricher) EnrichPrompt(_ context.Context, _, basePrompt, _ string, explicit bool) string {
	f.gotExplicit = explicit
	return basePrompt + f.suffix
}

type fakeExtractor struct {
	mu        sync.Mutex
	userMsgs  []string
	assistant []string
}

func (f *fakeExtractor) FromUserMessage(_ context.Context, _ string, _ *uuid.UUID, message string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userMsgs = append(f.userMsgs, message)
	return 1
}

func (f *fakeExtractor) FromAssistantMessage(_ context.Context, _ string, _ *uuid.UUID, reply string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assistant = append(f.assistant, reply)
	return 1
}

type fakeSearcher struct {
	enabled  bool
	results  []search.Result
	searched bool
}

func (f *fakeSearcher) Enabled() bool { return f.enabled }

func (f *fakeSearcher) Search(context.Context, string) ([]search.Result, error) {
	f.searched = true
	return f.results, nil
}

// ---- harness ----

type harness struct {
	server        *Server
	assistant     *fakeAssistant
	conversations *fakeConversations
	memories      *fakeMemories
	preferences   *fakePreferences
	enricher      *fakeEnricher
	extractor     *fakeExtractor
	searcher      *fakeSearcher
	wg            *sync.WaitGroup
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		assistant:     &fakeAssistant{chunks: []string{"Hello", " there"}},
		conversations: newFakeConversations(),
		memories:      &fakeMemories{},
		preferences:   &fakePreferences{},
		enricher:      &fakeEnricher{},
		extractor:     &fakeExtractor{},
		searcher:      &fakeSearcher{},
		wg:            &sync.WaitGroup{},
	}

	srv, err := NewServer(ServerConfig{
		Logger:        log.NewNop(),
		Assistant:     h.assistant,
		Conversations: h.conversations,
		Memories:      h.memories,
		Preferences:   h.preferences,
		Enricher:      h.enricher,
		Extractor:     h.extractor,
		Searcher:      h.searcher,
		BackgroundCtx: context.Background(),
		BackgroundWG:  h.wg,
	})
	if err != nil {
		t.Fatalf("NewServer() unexpected error: %v", err)
	}
	h.server = srv
	return h
}

func (h *harness) do(method, path, userID, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

// ---- tests ----

func TestIdentityRequired(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/conversations", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHealthSkipsIdentity(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestChatStreamsReply(t *testing.T) {
	h := newHarness(t)
	h.assistant.title = "Friendly Greeting"

	rec := h.do(http.MethodPost, "/api/chat", "user-1", `{"message":"say hello"}`)
	h.wg.Wait()

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`"conversationId"`,
		`data: {"content":"Hello"}`,
		`data: {"content":" there"}`,
		`data: {"title":"Friendly Greeting"}`,
		"data: [DONE]\n\n",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q:\n%s", want, body)
		}
	}

	// Both turn messages persisted.
	var convID uuid.UUID
	for id := range h.conversations.convs {
		convID = id
	}
	msgs := h.conversations.messages[convID]
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != conversation.RoleUser || msgs[1].Role != conversation.RoleAssistant {
		t.Errorf("roles = [%s, %s]", msgs[0].Role, msgs[1].Role)
	}

	// Title saved.
	if h.conversations.convs[convID].Title != "Friendly Greeting" {
		t.Errorf("title = %q", h.conversations.convs[convID].Title)
	}

	// Background extraction ran for both sides of the turn.
	if len(h.extractor.userMsgs) != 1 || len(h.extractor.assistant) != 1 {
		t.Errorf("extractor calls = %d user, %d assistant, want 1 each",
			len(h.extractor.userMsgs), len(h.extractor.assistant))
	}
}

func TestChatValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "empty message", body: `{"message":"  "}`, want: http.StatusBadRequest},
		{name: "invalid json", body: `{`, want: http.StatusBadRequest},
		{name: "too long", body: `{"message":"` + strings.Repeat("a", maxMessageLength+1) + `"}`, want: http.StatusBadRequest},
		{name: "unknown conversation", body: `{"conversationId":"` + uuid.NewString() + `","message":"hi"}`, want: http.StatusNotFound},
		{name: "malformed conversation id", body: `{"conversationId":"not-a-uuid","message":"hi"}`, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/api/chat", "user-1", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	h.wg.Wait()
}

func TestChatModelFailureStreamsError(t *testing.T) {
	h := newHarness(t)
	h.assistant.err = assistant.ErrRateLimited

	rec := h.do(http.MethodPost, "/api/chat", "user-1", `{"message":"hello"}`)
	h.wg.Wait()

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (SSE already started)", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, msgRateLimited) {
		t.Errorf("stream missing rate limit message:\n%s", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("stream not terminated:\n%s", body)
	}
	// The user's message is kept even when the model call fails; no
	// assistant reply means no fact extraction.
	if len(h.extractor.userMsgs) != 1 {
		t.Errorf("user extraction calls = %d, want 1", len(h.extractor.userMsgs))
	}
	if len(h.extractor.assistant) != 0 {
		t.Error("fact extraction ran without a reply")
	}
}

func TestChatPartialReplyPersisted(t *testing.T) {
	h := newHarness(t)
	h.assistant.chunks = []string{"The capital of France is"}
	h.assistant.err = assistant.ErrUnavailable
	h.assistant.errAfter = true

	rec := h.do(http.MethodPost, "/api/chat", "user-1", `{"message":"tell me about Paris"}`)
	h.wg.Wait()

	body := rec.Body.String()
	if !strings.Contains(body, `data: {"content":"The capital of France is"}`) {
		t.Errorf("stream missing partial content:\n%s", body)
	}
	if !strings.Contains(body, msgUnavailable) {
		t.Errorf("stream missing error event:\n%s", body)
	}

	var convID uuid.UUID
	for id := range h.conversations.convs {
		convID = id
	}
	msgs := h.conversations.messages[convID]
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want user + partial assistant", len(msgs))
	}
	if msgs[1].Content != "The capital of France is" {
		t.Errorf("partial reply = %q", msgs[1].Content)
	}
	if h.conversations.convs[convID].Title != conversation.DefaultTitle {
		t.Errorf("title generated for a failed turn: %q", h.conversations.convs[convID].Title)
	}

	// The truncated reply still feeds fact extraction.
	if len(h.extractor.assistant) != 1 {
		t.Errorf("fact extraction calls = %d, want 1", len(h.extractor.assistant))
	}
}

func TestChatMemoryDirective(t *testing.T) {
	h := newHarness(t)

	h.do(http.MethodPost, "/api/chat", "user-1", `{"message":"@memory what do I usually order"}`)
	h.wg.Wait()

	if !h.enricher.gotExplicit {
		t.Error("@memory directive did not trigger explicit retrieval")
	}
	if h.assistant.gotMsg != "what do I usually order" {
		t.Errorf("model message = %q, want directive stripped", h.assistant.gotMsg)
	}
}

func TestChatSearchDirective(t *testing.T) {
	h := newHarness(t)
	h.searcher.enabled = true
	h.searcher.results = []search.Result{{Title: "Go Blog", URL: "https://go.dev/blog", Content: "news"}}

	h.do(http.MethodPost, "/api/chat", "user-1", `{"message":"@search go release notes"}`)
	h.wg.Wait()

	if !h.searcher.searched {
		t.Error("@search directive did not trigger a web search")
	}
	if !strings.Contains(h.assistant.gotSystem, "Web Search Results") {
		t.Errorf("system prompt missing search block:\n%s", h.assistant.gotSystem)
	}
}

func TestChatSearchDisabled(t *testing.T) {
	h := newHarness(t)
	h.searcher.enabled = false

	h.do(http.MethodPost, "/api/chat", "user-1", `{"message":"@search go release notes"}`)
	h.wg.Wait()

	if h.searcher.searched {
		t.Error("web search ran without an API key")
	}
}

func TestChatPreferencesInPrompt(t *testing.T) {
	h := newHarness(t)
	h.preferences.prefs = map[string]preference.Preferences{
		"user-1": {Nickname: "Sam"},
	}

	h.do(http.MethodPost, "/api/chat", "user-1", `{"message":"hello there friend"}`)
	h.wg.Wait()

	if !strings.Contains(h.assistant.gotSystem, "Call them Sam.") {
		t.Errorf("system prompt missing personalization:\n%s", h.assistant.gotSystem)
	}
}

func TestChatDeepThinking(t *testing.T) {
	h := newHarness(t)

	h.do(http.MethodPost, "/api/chat", "user-1", `{"message":"prove it","deepThinking":true}`)
	h.wg.Wait()

	if !strings.Contains(h.assistant.gotSystem, "step by step") {
		t.Errorf("deep thinking prompt not used:\n%s", h.assistant.gotSystem)
	}
}

func TestChatReusesConversation(t *testing.T) {
	h := newHarness(t)

	h.do(http.MethodPost, "/api/chat", "user-1", `{"message":"first"}`)
	h.wg.Wait()
	if len(h.conversations.convs) != 1 {
		t.Fatalf("conversations = %d, want 1", len(h.conversations.convs))
	}
	var convID uuid.UUID
	for id := range h.conversations.convs {
		convID = id
	}

	h.do(http.MethodPost, "/api/chat", "user-1", `{"conversationId":"`+convID.String()+`","message":"second"}`)
	h.wg.Wait()

	if len(h.conversations.convs) != 1 {
		t.Errorf("follow-up turn created a new conversation")
	}
	if got := len(h.conversations.messages[convID]); got != 4 {
		t.Errorf("messages = %d, want 4", got)
	}
}

func TestMemoryEndpoints(t *testing.T) {
	h := newHarness(t)

	t.Run("create", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/memories", "user-1",
			`{"content":"The user prefers aisle seats on trains","tags":["travel"]}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201, body: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("create rejects short content", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/memories", "user-1", `{"content":"short"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("list", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/api/memories", "user-1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "aisle seats") {
			t.Errorf("list missing created memory: %s", rec.Body.String())
		}
	})

	t.Run("search requires query", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/memories/search", "user-1", `{"query":""}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("delete", func(t *testing.T) {
		id := h.memories.memories[0].ID
		rec := h.do(http.MethodDelete, "/api/memories/"+id.String(), "user-1", "")
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}

		rec = h.do(http.MethodDelete, "/api/memories/"+id.String(), "user-1", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("repeat delete status = %d, want 404", rec.Code)
		}
	})
}

func TestConversationEndpoints(t *testing.T) {
	h := newHarness(t)

	conv, _ := h.conversations.Create(context.Background(), "user-1")
	h.conversations.AppendMessage(context.Background(), conv.ID, conversation.RoleUser, "hi")

	t.Run("list", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/api/conversations", "user-1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), conv.ID.String()) {
			t.Errorf("list missing conversation: %s", rec.Body.String())
		}
	})

	t.Run("messages", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/api/conversations/"+conv.ID.String()+"/messages", "user-1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"content":"hi"`) {
			t.Errorf("messages body: %s", rec.Body.String())
		}
	})

	t.Run("foreign user cannot read", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/api/conversations/"+conv.ID.String(), "user-2", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("create", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/api/conversations", "user-1", "")
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201, body: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"title":"New Chat"`) {
			t.Errorf("create body: %s", rec.Body.String())
		}
	})

	t.Run("rename", func(t *testing.T) {
		rec := h.do(http.MethodPatch, "/api/conversations/"+conv.ID.String(), "user-1", `{"title":"Trip Planning"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
		}
		if h.conversations.convs[conv.ID].Title != "Trip Planning" {
			t.Errorf("title = %q", h.conversations.convs[conv.ID].Title)
		}
	})

	t.Run("rename rejects blank title", func(t *testing.T) {
		rec := h.do(http.MethodPatch, "/api/conversations/"+conv.ID.String(), "user-1", `{"title":"  "}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("delete", func(t *testing.T) {
		rec := h.do(http.MethodDelete, "/api/conversations/"+conv.ID.String(), "user-1", "")
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
	})
}

func TestPreferenceEndpoints(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPut, "/api/preferences", "user-1",
		`{"nickname":"Sam","occupation":"nurse","style":"Concise","customInstructions":"","moreInfo":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(http.MethodGet, "/api/preferences", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"nickname":"Sam"`) {
		t.Errorf("preferences body: %s", rec.Body.String())
	}
}
