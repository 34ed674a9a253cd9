package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/antoniostano/linerelay/internal/llm"
	"github.com/antoniostano/linerelay/internal/policy"
)

// runAgent calls the model, executing requested tools and feeding their
// results back, for at most MaxToolRounds rounds. The final round is sent
// without tools so the model has to answer in text.
func (r *Relay) runAgent(ctx context.Context, logger *slog.Logger, req llm.ChatRequest) (string, error) {
	messages := append([]llm.Message(nil), req.Messages...)
	for round := 0; ; round++ {
		if round >= r.cfg.MaxToolRounds {
			req.Tools = nil
		}
		req.Messages = messages
		resp, err := r.llm.Chat(ctx, req)
		if err != nil {
			return "", err
		}
		if len(resp.ToolCalls) == 0 || len(req.Tools) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    r.executeTool(ctx, logger, call),
			})
		}
	}
}

// executeTool runs one call. Failures become the tool result so the model
// can recover or explain.
func (r *Relay) executeTool(ctx context.Context, logger *slog.Logger, call llm.ToolCall) string {
	if r.tools == nil {
		r.metrics.ObserveToolCall(call.Name, "unknown")
		return fmt.Sprintf("error: tool %q is not available", call.Name)
	}
	out, err := r.tools.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.metrics.ObserveToolCall(call.Name, "timeout")
		} else {
			r.metrics.ObserveToolCall(call.Name, "error")
		}
		logger.Warn("tool call failed", "tool", call.Name, "args", policy.Preview(string(call.Arguments), 0), "error", err)
		return "error: " + err.Error()
	}
	r.metrics.ObserveToolCall(call.Name, "ok")
	logger.Debug("tool call", "tool", call.Name, "args", policy.Preview(string(call.Arguments), 0))
	return out
}
