package relay

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/antoniostano/linerelay/internal/history"
	"github.com/antoniostano/linerelay/internal/line"
	"github.com/antoniostano/linerelay/internal/llm"
	"github.com/antoniostano/linerelay/internal/policy"
	"github.com/antoniostano/linerelay/internal/reliability"
)

func (r *Relay) processText(ctx context.Context, logger *slog.Logger, ev line.Event) string {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		logger.Debug("ignoring empty text message")
		return outcomeIgnored
	}
	logger.Info("text message", "preview", policy.Preview(text, 0))

	// The inbound turn is recorded before the model call, so it stays in
	// context even when the call fails.
	r.history.Append(ctx, ev.UserID, history.Turn{Role: history.RoleUser, Content: text})
	messages := historyMessages(r.history.Get(ctx, ev.UserID))

	start := time.Now()
	reply, err := r.runAgent(ctx, logger, llm.ChatRequest{
		Model:     r.cfg.TextModel,
		System:    r.prompts.Current().TextSystem,
		Messages:  messages,
		Tools:     r.tools.Definitions(),
		MaxTokens: r.cfg.MaxTokens,
	})
	class := reliability.Classify(err)
	r.metrics.ObserveLLM("text", class, time.Since(start))
	if err != nil {
		logger.Error("text model call failed", "class", class, "error", err)
		r.reply(ctx, logger, ev, TextApology)
		return outcomeFailed
	}

	if strings.TrimSpace(reply) == "" {
		reply = EmptyReply
	}
	r.history.Append(ctx, ev.UserID, history.Turn{Role: history.RoleAssistant, Content: reply})
	r.reply(ctx, logger, ev, reply)
	return outcomeReplied
}
