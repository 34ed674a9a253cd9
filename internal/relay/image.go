package relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/antoniostano/linerelay/internal/history"
	"github.com/antoniostano/linerelay/internal/imaging"
	"github.com/antoniostano/linerelay/internal/line"
	"github.com/antoniostano/linerelay/internal/llm"
	"github.com/antoniostano/linerelay/internal/reliability"
)

var errEmptyVisionReply = errors.New("vision model returned no text")

func (r *Relay) processImage(ctx context.Context, logger *slog.Logger, ev line.Event) string {
	start := time.Now()
	reply, err := r.describeImage(ctx, logger, ev)
	class := reliability.Classify(err)
	r.metrics.ObserveLLM("vision", class, time.Since(start))
	if err != nil {
		logger.Error("image processing failed", "class", class, "message_id", ev.MessageID, "error", err)
		r.reply(ctx, logger, ev, ImageApology)
		return outcomeFailed
	}

	r.history.Append(ctx, ev.UserID, history.Turn{Role: history.RoleAssistant, Content: reply})
	r.reply(ctx, logger, ev, reply)
	return outcomeReplied
}

func (r *Relay) describeImage(ctx context.Context, logger *slog.Logger, ev line.Event) (string, error) {
	raw, err := r.messenger.FetchContent(ctx, ev.MessageID)
	if err != nil {
		return "", err
	}
	img, err := imaging.Normalize(raw, r.cfg.ImageMaxDimension, r.cfg.ImageMaxPixels)
	if err != nil {
		return "", err
	}
	logger.Info("image message",
		"format", img.SourceFormat,
		"original", []int{img.OriginalWidth, img.OriginalHeight},
		"scaled", []int{img.Width, img.Height},
	)

	// The placeholder stands in for the image in later context.
	r.history.Append(ctx, ev.UserID, history.Turn{Role: history.RoleUser, Content: history.ImagePlaceholder})

	p := r.prompts.Current()
	messages := historyMessages(r.history.Get(ctx, ev.UserID))
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: p.ImageInstruction,
		Image:   &llm.Image{MIMEType: img.MIMEType, Data: img.Data},
	})
	resp, err := r.llm.Chat(ctx, llm.ChatRequest{
		Model:     r.cfg.VisionModel,
		System:    p.VisionSystem,
		Messages:  messages,
		MaxTokens: r.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", errEmptyVisionReply
	}
	return resp.Content, nil
}
