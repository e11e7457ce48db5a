package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"parley/internal/domain"
	"parley/internal/infra/config"
	"parley/internal/infra/tracer"
)

// followUpInstruction is appended as an extra system message after tool
// results, before the second model call. The original system prompt stays in
// place; this one is additive.
const followUpInstruction = "Prioritize the freshly retrieved tool information above over older conversation history when answering the user's latest message."

// Orchestrator runs one conversation turn end to end: history replay, model
// call, at most one round of tool resolution, and persistence of the outcome.
type Orchestrator struct {
	provider domain.LLMProvider
	tools    domain.ToolExecutor
	store    domain.HistoryStore
	usage    *UsageRecorder
	chat     config.ChatConfig
	llm      config.ProviderConfig
	logger   *slog.Logger
}

// NewOrchestrator wires the turn pipeline.
func NewOrchestrator(
	provider domain.LLMProvider,
	tools domain.ToolExecutor,
	store domain.HistoryStore,
	usage *UsageRecorder,
	chat config.ChatConfig,
	llm config.ProviderConfig,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		tools:    tools,
		store:    store,
		usage:    usage,
		chat:     chat,
		llm:      llm,
		logger:   logger,
	}
}

// ProcessTurn handles one user message and returns the assistant's reply with
// the turn's total token counts.
//
// Empty user text is a deliberate fast path: the fixed prompt-for-input reply
// is returned with zero tokens, and neither the model nor the store is
// touched. Tool failures of any kind degrade into error payloads the model
// sees as tool results; only model-service failures fail the turn.
func (o *Orchestrator) ProcessTurn(ctx context.Context, conversationID, userText string) (*domain.TurnResult, error) {
	const op = "Orchestrator.ProcessTurn"

	if conversationID == "" {
		return nil, domain.NewDomainError(op, domain.ErrInvalidInput, "empty conversation id")
	}
	if userText == "" {
		o.logger.Debug("empty user text, returning fixed reply", "conversation_id", conversationID)
		return &domain.TurnResult{FinalText: o.chat.EmptyMessageReply}, nil
	}

	ctx, span := tracer.StartSpan(ctx, "usecase.process_turn")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("conversation.id", conversationID))

	history, err := o.store.Recent(ctx, conversationID, o.chat.HistoryLimit)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.NewDomainError(op, domain.ErrHistoryStore, err.Error())
	}

	msgs := make([]domain.Message, 0, len(history)+2)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: o.chat.SystemPrompt})
	for _, h := range history {
		msgs = append(msgs, domain.Message{Role: h.Role, Content: h.Content})
	}
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: userText})

	// The user message is persisted before the model call so it survives a
	// gateway failure.
	if err := o.store.Append(ctx, conversationID, domain.RoleUser, userText); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.NewDomainError(op, domain.ErrHistoryStore, err.Error())
	}

	o.logger.Info("turn started",
		"conversation_id", conversationID,
		"history_messages", len(history),
	)

	resp, err := o.provider.Chat(ctx, domain.ChatRequest{
		Model:       o.llm.Model,
		Messages:    msgs,
		Tools:       o.tools.Schemas(),
		MaxTokens:   o.llm.MaxTokens,
		Temperature: o.llm.Temperature,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, upstreamError(op, err)
	}

	total := resp.Usage
	finalText := resp.Message.Content

	if len(resp.Message.ToolCalls) > 0 {
		msgs = append(msgs, resp.Message)
		msgs = append(msgs, o.resolveToolCalls(ctx, resp.Message.ToolCalls)...)
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: followUpInstruction})

		// Second call replays the tool results without a manifest; a single
		// resolution round is all the pipeline supports.
		followUp, err := o.provider.Chat(ctx, domain.ChatRequest{
			Model:       o.llm.Model,
			Messages:    msgs,
			MaxTokens:   o.llm.MaxTokens,
			Temperature: o.llm.Temperature,
		})
		if err != nil {
			tracer.RecordError(span, err)
			return nil, upstreamError(op, err)
		}
		total.Add(followUp.Usage)
		finalText = followUp.Message.Content
	}

	if err := o.store.Append(ctx, conversationID, domain.RoleAssistant, finalText); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.NewDomainError(op, domain.ErrHistoryStore, err.Error())
	}

	o.usage.Record(ctx, domain.UsageRecord{
		ConversationID: conversationID,
		ModelName:      o.llm.Model,
		InputTokens:    total.PromptTokens,
		OutputTokens:   total.CompletionTokens,
		TotalTokens:    total.TotalTokens,
		CreatedAt:      time.Now().UTC(),
	})

	span.SetAttributes(
		tracer.IntAttr("turn.input_tokens", total.PromptTokens),
		tracer.IntAttr("turn.output_tokens", total.CompletionTokens),
	)
	tracer.SetOK(span)
	o.logger.Info("turn completed",
		"conversation_id", conversationID,
		"tool_calls", len(resp.Message.ToolCalls),
		"input_tokens", total.PromptTokens,
		"output_tokens", total.CompletionTokens,
	)

	return &domain.TurnResult{
		FinalText:    finalText,
		InputTokens:  total.PromptTokens,
		OutputTokens: total.CompletionTokens,
	}, nil
}

// resolveToolCalls executes the model's tool calls in emission order and
// returns one tool-role message per call. Every failure mode degrades into an
// error payload; nothing here can fail the turn.
func (o *Orchestrator) resolveToolCalls(ctx context.Context, calls []domain.ToolCall) []domain.Message {
	out := make([]domain.Message, 0, len(calls))
	for _, call := range calls {
		content := o.resolveOne(ctx, call)
		out = append(out, domain.Message{
			Role:       domain.RoleTool,
			Name:       call.Name,
			Content:    content,
			ToolCallID: call.ID,
		})
	}
	return out
}

func (o *Orchestrator) resolveOne(ctx context.Context, call domain.ToolCall) string {
	t, err := o.tools.Get(call.Name)
	if err != nil {
		o.logger.Warn("unknown tool requested", "tool", call.Name)
		return toolErrorJSON(fmt.Sprintf("Function '%s' not found.", call.Name))
	}

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		o.logger.Warn("malformed tool arguments", "tool", call.Name)
		return toolErrorJSON("Invalid function arguments.")
	}

	result, err := t.Execute(ctx, args)
	if err != nil {
		o.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		return toolErrorJSON("Error executing function.")
	}
	if result.IsError {
		o.logger.Debug("tool returned degraded result", "tool", call.Name)
	}
	return result.Content
}

// toolErrorJSON renders a synthesized tool failure as the JSON payload the
// model sees in place of a real result.
func toolErrorJSON(msg string) string {
	b, _ := json.Marshal(struct {
		Error string `json:"error"`
	}{Error: msg})
	return string(b)
}

// upstreamError normalizes a gateway failure. Errors already carrying a
// domain sentinel keep it; anything else becomes ErrUpstream so the HTTP
// layer maps the turn to a 503.
func upstreamError(op string, err error) error {
	if domain.ErrorCodeOf(err) != domain.CodeUnknown {
		return domain.WrapOp(op, err)
	}
	return domain.NewDomainError(op, domain.ErrUpstream, err.Error())
}
