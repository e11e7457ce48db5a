package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"parley/internal/domain"
	"parley/internal/infra/config"
	"parley/internal/usecase"
)

// --- stubs behind the real usecases ---

type stubProvider struct {
	reply string
	err   error
}

func (p *stubProvider) Chat(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, Content: p.reply},
		Usage:   domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (p *stubProvider) Name() string { return "stub" }

type emptyExecutor struct{}

func (emptyExecutor) Get(name string) (domain.Tool, error) {
	return nil, domain.NewDomainError("emptyExecutor.Get", domain.ErrToolNotFound, name)
}
func (emptyExecutor) Schemas() []domain.ToolSchema { return nil }

type stubStore struct {
	messages      map[string][]domain.StoredMessage
	conversations []string
	daily         []domain.UsageSummary
}

func newStubStore() *stubStore {
	return &stubStore{messages: make(map[string][]domain.StoredMessage)}
}

func (s *stubStore) Append(_ context.Context, conversationID, role, content string) error {
	s.messages[conversationID] = append(s.messages[conversationID], domain.StoredMessage{
		ConversationID: conversationID, Role: role, Content: content, CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *stubStore) Recent(_ context.Context, conversationID string, _ int) ([]domain.StoredMessage, error) {
	return s.messages[conversationID], nil
}

func (s *stubStore) Messages(_ context.Context, conversationID string) ([]domain.StoredMessage, error) {
	return s.messages[conversationID], nil
}

func (s *stubStore) ListConversations(_ context.Context) ([]string, error) {
	return s.conversations, nil
}

func (s *stubStore) Delete(_ context.Context, conversationID string) (int64, error) {
	n := int64(len(s.messages[conversationID]))
	delete(s.messages, conversationID)
	return n, nil
}

func (s *stubStore) RecordUsage(_ context.Context, _ domain.UsageRecord) error { return nil }

func (s *stubStore) DailyUsage(_ context.Context) ([]domain.UsageSummary, error) {
	return s.daily, nil
}

func (s *stubStore) MonthlyUsage(_ context.Context) ([]domain.UsageSummary, error) {
	return s.daily, nil
}

func (s *stubStore) Close() error { return nil }

// --- fixture ---

func newTestServer(t *testing.T, provider domain.LLMProvider, store domain.HistoryStore, serverCfg config.ServerConfig) *httptest.Server {
	t.Helper()
	log := slog.Default()
	pricing := config.PricingConfig{InputPerMillion: 0.100, OutputPerMillion: 0.400}
	chat := config.ChatConfig{
		SystemPrompt:      "You are a helpful assistant.",
		HistoryLimit:      10,
		EmptyMessageReply: "Please enter a message.",
	}

	usage := usecase.NewUsageRecorder(store, pricing, log)
	turns := usecase.NewOrchestrator(provider, emptyExecutor{}, store, usage, chat, config.ProviderConfig{Model: "gpt-4.1-nano"}, log)
	sessions := usecase.NewSessionService(store, log)

	srv := httptest.NewServer(NewServer(turns, sessions, usage, serverCfg, log).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func postChat(t *testing.T, srv *httptest.Server, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/chat: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

// --- tests ---

func TestChatEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubProvider{reply: "hi there"}, newStubStore(), config.ServerConfig{})

	resp, body := postChat(t, srv, `{"conversation_id": "conv-1", "message": "hello"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	var out ChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ConversationID != "conv-1" || out.Response != "hi there" {
		t.Errorf("response: %+v", out)
	}
	if out.InputTokens != 10 || out.OutputTokens != 5 {
		t.Errorf("tokens: %+v", out)
	}
}

func TestChatMintsConversationID(t *testing.T) {
	srv := newTestServer(t, &stubProvider{reply: "hi"}, newStubStore(), config.ServerConfig{})

	_, body := postChat(t, srv, `{"message": "hello"}`)
	var out ChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.ConversationID) != 26 {
		t.Errorf("expected a ULID conversation id, got %q", out.ConversationID)
	}
}

func TestChatEmptyMessageFastPath(t *testing.T) {
	provider := &stubProvider{err: fmt.Errorf("must not be called")}
	srv := newTestServer(t, provider, newStubStore(), config.ServerConfig{})

	resp, body := postChat(t, srv, `{"conversation_id": "conv-1", "message": ""}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var out ChatResponse
	json.Unmarshal(body, &out)
	if out.Response != "Please enter a message." {
		t.Errorf("response: %q", out.Response)
	}
	if out.InputTokens != 0 || out.OutputTokens != 0 {
		t.Errorf("tokens: %+v", out)
	}
}

func TestChatUpstreamFailureMapsTo503(t *testing.T) {
	provider := &stubProvider{err: fmt.Errorf("%w: connection reset", domain.ErrUpstream)}
	srv := newTestServer(t, provider, newStubStore(), config.ServerConfig{})

	resp, body := postChat(t, srv, `{"conversation_id": "conv-1", "message": "hello"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", resp.StatusCode)
	}
	if strings.Contains(string(body), "connection reset") {
		t.Error("upstream detail must not leak to the client")
	}
	if !strings.Contains(string(body), "error communicating") {
		t.Errorf("body: %s", body)
	}
}

func TestChatInvalidBody(t *testing.T) {
	srv := newTestServer(t, &stubProvider{reply: "hi"}, newStubStore(), config.ServerConfig{})
	resp, _ := postChat(t, srv, `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %d, want 400", resp.StatusCode)
	}
}

func TestChatRateLimit(t *testing.T) {
	srv := newTestServer(t, &stubProvider{reply: "hi"}, newStubStore(), config.ServerConfig{
		RateLimitPerMin: 1,
		RateLimitBurst:  1,
	})

	resp, _ := postChat(t, srv, `{"conversation_id": "conv-1", "message": "hello"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request: status %d", resp.StatusCode)
	}
	resp, _ = postChat(t, srv, `{"conversation_id": "conv-1", "message": "hello again"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second request: status %d, want 429", resp.StatusCode)
	}

	// A different conversation has its own budget.
	resp, _ = postChat(t, srv, `{"conversation_id": "conv-2", "message": "hello"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("other conversation: status %d", resp.StatusCode)
	}
}

func TestListSessions(t *testing.T) {
	store := newStubStore()
	store.conversations = []string{"conv-new", "conv-old"}
	srv := newTestServer(t, &stubProvider{}, store, config.ServerConfig{})

	resp, err := http.Get(srv.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var out SessionListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Sessions) != 2 || out.Sessions[0] != "conv-new" {
		t.Errorf("sessions: %v", out.Sessions)
	}
}

func TestSessionMessages(t *testing.T) {
	store := newStubStore()
	store.Append(context.Background(), "conv-1", domain.RoleUser, "hello")
	store.Append(context.Background(), "conv-1", domain.RoleAssistant, "hi")
	srv := newTestServer(t, &stubProvider{}, store, config.ServerConfig{})

	resp, err := http.Get(srv.URL + "/api/sessions/conv-1/messages")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var msgs []domain.StoredMessage
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "hello" {
		t.Errorf("messages: %+v", msgs)
	}
}

func TestDeleteSession(t *testing.T) {
	store := newStubStore()
	store.Append(context.Background(), "conv-1", domain.RoleUser, "hello")
	srv := newTestServer(t, &stubProvider{}, store, config.ServerConfig{})

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/conv-1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()

	var out DeleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Deleted != 1 {
		t.Errorf("deleted: %d", out.Deleted)
	}
}

func TestDeleteSessionNotFound(t *testing.T) {
	srv := newTestServer(t, &stubProvider{}, newStubStore(), config.ServerConfig{})

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/nope", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d, want 404", resp.StatusCode)
	}
}

func TestDailyUsageEndpoint(t *testing.T) {
	store := newStubStore()
	store.daily = []domain.UsageSummary{
		{Period: "2025-03-01", InputTokens: 1_000_000, OutputTokens: 1_000_000, TotalTokens: 2_000_000},
	}
	srv := newTestServer(t, &stubProvider{}, store, config.ServerConfig{})

	resp, err := http.Get(srv.URL + "/api/admin/usage/daily")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var sums []domain.UsageSummary
	if err := json.NewDecoder(resp.Body).Decode(&sums); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sums) != 1 || sums[0].Cost != 0.5 {
		t.Errorf("summaries: %+v", sums)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &stubProvider{}, newStubStore(), config.ServerConfig{})
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status %d", resp.StatusCode)
	}
}
