package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"parley/internal/domain"
)

// DateTool reports the current calendar date in a fixed timezone.
type DateTool struct {
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// NewDateTool creates the date tool for the given IANA zone name. If the zone
// cannot be loaded the tool still constructs and degrades at execution time,
// matching the rule that tools never fail a turn.
func NewDateTool(zone string, logger *slog.Logger) *DateTool {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		logger.Error("timezone unavailable, date tool will degrade", "zone", zone, "error", err)
		loc = nil
	}
	return &DateTool{loc: loc, now: time.Now, logger: logger}
}

func (t *DateTool) Name() string { return "get_current_date" }

func (t *DateTool) Description() string {
	return "Get today's date in YYYY-MM-DD format"
}

func (t *DateTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
	}
}

type dateParams struct{}

type datePayload struct {
	CurrentDate string `json:"current_date"`
}

func (t *DateTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_current_date", t.logger, params,
		func(_ context.Context, _ trace.Span, _ dateParams) (any, error) {
			if t.loc == nil {
				return Errorf("timezone data is unavailable"), nil
			}
			return datePayload{CurrentDate: t.now().In(t.loc).Format("2006-01-02")}, nil
		},
	)
}
