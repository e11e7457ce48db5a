package usecase

import (
	"context"
	"log/slog"

	"parley/internal/domain"
	"parley/internal/infra/config"
)

// UsageRecorder persists per-turn token counts and prices aggregate reports.
// Recording is best-effort: a failed write is logged and never fails the turn
// that produced it.
type UsageRecorder struct {
	store   domain.HistoryStore
	pricing config.PricingConfig
	logger  *slog.Logger
}

// NewUsageRecorder creates a recorder writing through the given store.
func NewUsageRecorder(store domain.HistoryStore, pricing config.PricingConfig, logger *slog.Logger) *UsageRecorder {
	return &UsageRecorder{store: store, pricing: pricing, logger: logger}
}

// Record persists one turn's usage. Errors are logged, not returned.
func (r *UsageRecorder) Record(ctx context.Context, rec domain.UsageRecord) {
	if err := r.store.RecordUsage(ctx, rec); err != nil {
		r.logger.Error("usage record failed",
			"conversation_id", rec.ConversationID,
			"model", rec.ModelName,
			"error", err,
		)
		return
	}
	r.logger.Debug("usage recorded",
		"conversation_id", rec.ConversationID,
		"input_tokens", rec.InputTokens,
		"output_tokens", rec.OutputTokens,
	)
}

// Cost returns the price in USD for the given token counts. Zero counts cost
// zero regardless of configured rates.
func (r *UsageRecorder) Cost(inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * r.pricing.InputPerMillion
	outputCost := float64(outputTokens) / 1_000_000 * r.pricing.OutputPerMillion
	return inputCost + outputCost
}

// Daily returns per-day usage summaries, most recent first, with cost filled.
func (r *UsageRecorder) Daily(ctx context.Context) ([]domain.UsageSummary, error) {
	sums, err := r.store.DailyUsage(ctx)
	if err != nil {
		return nil, domain.WrapOp("UsageRecorder.Daily", err)
	}
	return r.priced(sums), nil
}

// Monthly returns per-month usage summaries, most recent first, with cost
// filled.
func (r *UsageRecorder) Monthly(ctx context.Context) ([]domain.UsageSummary, error) {
	sums, err := r.store.MonthlyUsage(ctx)
	if err != nil {
		return nil, domain.WrapOp("UsageRecorder.Monthly", err)
	}
	return r.priced(sums), nil
}

func (r *UsageRecorder) priced(sums []domain.UsageSummary) []domain.UsageSummary {
	for i := range sums {
		sums[i].Cost = r.Cost(sums[i].InputTokens, sums[i].OutputTokens)
	}
	return sums
}
