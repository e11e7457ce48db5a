package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"parley/internal/domain"
)

// SQLiteStore implements domain.HistoryStore using SQLite. Messages are
// append-only; usage rows are written once per turn. Both tables are keyed by
// conversation ID so concurrent turns on different conversations never touch
// each other's rows.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			created_at      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_time
			ON messages (conversation_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS token_usage (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			model_name      TEXT NOT NULL,
			input_tokens    INTEGER NOT NULL,
			output_tokens   INTEGER NOT NULL,
			total_tokens    INTEGER NOT NULL,
			created_at      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_conv ON token_usage (conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_time ON token_usage (created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append implements domain.HistoryStore.
func (s *SQLiteStore) Append(ctx context.Context, conversationID, role, content string) error {
	if conversationID == "" {
		return domain.NewDomainError("SQLiteStore.Append", domain.ErrInvalidInput, "empty conversation id")
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)",
		conversationID, role, content, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return domain.WrapOp("SQLiteStore.Append", err)
}

// Recent implements domain.HistoryStore. The most recent limit rows are
// selected newest-first and then reversed so the caller always sees append
// order, oldest first.
func (s *SQLiteStore) Recent(ctx context.Context, conversationID string, limit int) ([]domain.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY id DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, domain.WrapOp("SQLiteStore.Recent", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, domain.WrapOp("SQLiteStore.Recent", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Messages implements domain.HistoryStore.
func (s *SQLiteStore) Messages(ctx context.Context, conversationID string) ([]domain.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY id`,
		conversationID,
	)
	if err != nil {
		return nil, domain.WrapOp("SQLiteStore.Messages", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	return msgs, domain.WrapOp("SQLiteStore.Messages", err)
}

// ListConversations implements domain.HistoryStore. Ordering follows each
// conversation's most recent message, newest conversation first.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id
		 FROM messages
		 GROUP BY conversation_id
		 ORDER BY MAX(id) DESC`,
	)
	if err != nil {
		return nil, domain.WrapOp("SQLiteStore.ListConversations", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.WrapOp("SQLiteStore.ListConversations", err)
		}
		ids = append(ids, id)
	}
	return ids, domain.WrapOp("SQLiteStore.ListConversations", rows.Err())
}

// Delete implements domain.HistoryStore.
func (s *SQLiteStore) Delete(ctx context.Context, conversationID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM messages WHERE conversation_id = ?", conversationID,
	)
	if err != nil {
		return 0, domain.WrapOp("SQLiteStore.Delete", err)
	}
	n, err := res.RowsAffected()
	return n, domain.WrapOp("SQLiteStore.Delete", err)
}

// RecordUsage implements domain.HistoryStore.
func (s *SQLiteStore) RecordUsage(ctx context.Context, rec domain.UsageRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO token_usage
		 (conversation_id, model_name, input_tokens, output_tokens, total_tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ConversationID, rec.ModelName,
		rec.InputTokens, rec.OutputTokens, rec.TotalTokens,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	return domain.WrapOp("SQLiteStore.RecordUsage", err)
}

// DailyUsage implements domain.HistoryStore. Cost is filled in by the caller;
// the store only aggregates token counts.
func (s *SQLiteStore) DailyUsage(ctx context.Context) ([]domain.UsageSummary, error) {
	return s.usageByPeriod(ctx, "SQLiteStore.DailyUsage", `substr(created_at, 1, 10)`)
}

// MonthlyUsage implements domain.HistoryStore.
func (s *SQLiteStore) MonthlyUsage(ctx context.Context) ([]domain.UsageSummary, error) {
	return s.usageByPeriod(ctx, "SQLiteStore.MonthlyUsage", `substr(created_at, 1, 7)`)
}

// usageByPeriod groups usage rows by a prefix of the RFC 3339 timestamp:
// the first 10 characters give the day, the first 7 the month.
func (s *SQLiteStore) usageByPeriod(ctx context.Context, op, periodExpr string) ([]domain.UsageSummary, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s AS period,
		        SUM(input_tokens), SUM(output_tokens), SUM(total_tokens)
		 FROM token_usage
		 GROUP BY period
		 ORDER BY period DESC`, periodExpr,
	))
	if err != nil {
		return nil, domain.WrapOp(op, err)
	}
	defer rows.Close()

	var out []domain.UsageSummary
	for rows.Next() {
		var sum domain.UsageSummary
		if err := rows.Scan(&sum.Period, &sum.InputTokens, &sum.OutputTokens, &sum.TotalTokens); err != nil {
			return nil, domain.WrapOp(op, err)
		}
		out = append(out, sum)
	}
	return out, domain.WrapOp(op, rows.Err())
}

func scanMessages(rows *sql.Rows) ([]domain.StoredMessage, error) {
	var msgs []domain.StoredMessage
	for rows.Next() {
		var m domain.StoredMessage
		var createdStr string
		if err := rows.Scan(&m.ConversationID, &m.Role, &m.Content, &createdStr); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdStr)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		m.CreatedAt = t
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
