// Package relay turns platform events into model calls and replies.
package relay

import (
	"context"
	"log/slog"

	"github.com/antoniostano/linerelay/internal/history"
	"github.com/antoniostano/linerelay/internal/line"
	"github.com/antoniostano/linerelay/internal/llm"
	"github.com/antoniostano/linerelay/internal/observability"
	"github.com/antoniostano/linerelay/internal/prompt"
	"github.com/antoniostano/linerelay/internal/tools"
)

const (
	TextApology  = "An error occurred while processing your request."
	ImageApology = "Sorry, I encountered an error while processing your image. Please try again."
	EmptyReply   = "Sorry, the response was too long or could not be generated. Please try a shorter or simpler request."
)

// Event outcomes used as metric labels.
const (
	outcomeReplied = "replied"
	outcomeFailed  = "failed"
	outcomeIgnored = "ignored"
)

// Messenger is the outbound side of the messaging platform.
type Messenger interface {
	ReplyText(ctx context.Context, replyToken, text string) error
	FetchContent(ctx context.Context, messageID string) ([]byte, error)
}

type PromptSource interface {
	Current() prompt.Prompts
}

type Config struct {
	TextModel         string
	VisionModel       string
	MaxTokens         int
	MaxToolRounds     int
	ImageMaxDimension int
	ImageMaxPixels    int
}

type Deps struct {
	History   *history.Store
	LLM       llm.Client
	Tools     *tools.Registry
	Prompts   PromptSource
	Messenger Messenger
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// Relay processes one platform event at a time; it is safe for concurrent use.
type Relay struct {
	cfg       Config
	history   *history.Store
	llm       llm.Client
	tools     *tools.Registry
	prompts   PromptSource
	messenger Messenger
	logger    *slog.Logger
	metrics   *observability.Metrics
}

func New(cfg Config, deps Deps) *Relay {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.MaxToolRounds < 0 {
		cfg.MaxToolRounds = 0
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prompts := deps.Prompts
	if prompts == nil {
		prompts = staticPrompts(prompt.Defaults())
	}
	return &Relay{
		cfg:       cfg,
		history:   deps.History,
		llm:       deps.LLM,
		tools:     deps.Tools,
		prompts:   prompts,
		messenger: deps.Messenger,
		logger:    logger,
		metrics:   deps.Metrics,
	}
}

type staticPrompts prompt.Prompts

func (p staticPrompts) Current() prompt.Prompts { return prompt.Prompts(p) }

// HandleEvent routes ev to the text or image path. Events without a user id
// and unsupported message kinds are ignored.
func (r *Relay) HandleEvent(ctx context.Context, ev line.Event) {
	logger := observability.EventLogger(ctx, r.logger, ev.UserID)
	var outcome string
	switch {
	case ev.UserID == "" || ev.ReplyToken == "":
		logger.Debug("ignoring event without user or reply token", "kind", ev.Kind)
		outcome = outcomeIgnored
	case ev.Kind == line.KindText:
		outcome = r.processText(ctx, logger, ev)
	case ev.Kind == line.KindImage:
		outcome = r.processImage(ctx, logger, ev)
	default:
		logger.Debug("ignoring unsupported event", "kind", ev.Kind)
		outcome = outcomeIgnored
	}
	r.metrics.ObserveEvent(string(ev.Kind), outcome)
}

func (r *Relay) reply(ctx context.Context, logger *slog.Logger, ev line.Event, text string) {
	if err := r.messenger.ReplyText(ctx, ev.ReplyToken, line.FormatReply(text)); err != nil {
		logger.Warn("reply failed", "error", err)
	}
}

// historyMessages converts stored turns into model messages.
func historyMessages(turns []history.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns)+1)
	for _, t := range turns {
		role := llm.RoleUser
		if t.Role == history.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: t.Content})
	}
	return out
}
