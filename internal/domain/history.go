package domain

import (
	"context"
	"time"
)

// StoredMessage is one persisted history row. Messages within a conversation
// are totally ordered by insertion and replayed to the model oldest first.
type StoredMessage struct {
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// UsageRecord is a persisted token-count snapshot for one completed turn.
// Created once after the turn's model calls finish, immutable thereafter.
type UsageRecord struct {
	ConversationID string    `json:"conversation_id"`
	ModelName      string    `json:"model_name"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	TotalTokens    int       `json:"total_tokens"`
	CreatedAt      time.Time `json:"created_at"`
}

// UsageSummary is one row of an aggregate usage report.
type UsageSummary struct {
	Period       string  `json:"period"` // "2006-01-02" for daily, "2006-01" for monthly
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	Cost         float64 `json:"cost"`
}

// HistoryStore is the append-only conversation log plus usage bookkeeping.
// All rows are partitioned by conversation ID; concurrent turns on different
// conversations must not observe each other's writes.
type HistoryStore interface {
	// Append adds one message to a conversation's log.
	Append(ctx context.Context, conversationID, role, content string) error
	// Recent returns at most limit messages for the conversation,
	// oldest first, matching append order.
	Recent(ctx context.Context, conversationID string, limit int) ([]StoredMessage, error)
	// Messages returns the full ordered log for a conversation.
	Messages(ctx context.Context, conversationID string) ([]StoredMessage, error)
	// ListConversations returns conversation IDs, most recently active first.
	ListConversations(ctx context.Context) ([]string, error)
	// Delete removes a conversation's messages and returns the count removed.
	Delete(ctx context.Context, conversationID string) (int64, error)

	// RecordUsage persists one turn's token counts.
	RecordUsage(ctx context.Context, rec UsageRecord) error
	// DailyUsage aggregates usage per calendar day, most recent first.
	DailyUsage(ctx context.Context) ([]UsageSummary, error)
	// MonthlyUsage aggregates usage per calendar month, most recent first.
	MonthlyUsage(ctx context.Context) ([]UsageSummary, error)

	Close() error
}
