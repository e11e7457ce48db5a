package usecase

import (
	"context"
	"log/slog"

	"parley/internal/domain"
)

// SessionService exposes conversation-level queries over the history store.
type SessionService struct {
	store  domain.HistoryStore
	logger *slog.Logger
}

// NewSessionService creates the service.
func NewSessionService(store domain.HistoryStore, logger *slog.Logger) *SessionService {
	return &SessionService{store: store, logger: logger}
}

// List returns conversation IDs, most recently active first.
func (s *SessionService) List(ctx context.Context) ([]string, error) {
	ids, err := s.store.ListConversations(ctx)
	return ids, domain.WrapOp("SessionService.List", err)
}

// History returns a conversation's full message log in order.
func (s *SessionService) History(ctx context.Context, conversationID string) ([]domain.StoredMessage, error) {
	if conversationID == "" {
		return nil, domain.NewDomainError("SessionService.History", domain.ErrInvalidInput, "empty conversation id")
	}
	msgs, err := s.store.Messages(ctx, conversationID)
	return msgs, domain.WrapOp("SessionService.History", err)
}

// Delete removes a conversation and returns how many messages were removed.
// Returns ErrConversationNotFound when no messages existed for the ID.
func (s *SessionService) Delete(ctx context.Context, conversationID string) (int64, error) {
	if conversationID == "" {
		return 0, domain.NewDomainError("SessionService.Delete", domain.ErrInvalidInput, "empty conversation id")
	}
	n, err := s.store.Delete(ctx, conversationID)
	if err != nil {
		return 0, domain.WrapOp("SessionService.Delete", err)
	}
	if n == 0 {
		return 0, domain.NewDomainError("SessionService.Delete", domain.ErrConversationNotFound, conversationID)
	}
	s.logger.Info("conversation deleted", "conversation_id", conversationID, "messages", n)
	return n, nil
}
