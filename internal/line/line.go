// Package line adapts the LINE Messaging API SDK to the relay's needs.
package line

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

var (
	ErrInvalidSignature = errors.New("line: invalid signature")
	ErrContentTooLarge  = errors.New("line: message content too large")
)

type Kind string

const (
	KindText        Kind = "text"
	KindImage       Kind = "image"
	KindUnsupported Kind = "unsupported"
)

// Event is the subset of a webhook event the relay acts on.
type Event struct {
	ID         string
	Kind       Kind
	UserID     string
	ReplyToken string
	MessageID  string
	Text       string
}

type Config struct {
	ChannelSecret      string
	ChannelAccessToken string
	MaxContentBytes    int64
	HTTPClient         *http.Client
	// Endpoint and DataEndpoint override the messaging and content API base
	// URLs; empty uses the SDK defaults.
	Endpoint     string
	DataEndpoint string
}

// Client verifies webhooks, replies, and downloads message content.
type Client struct {
	secret   string
	maxBytes int64
	api      *messaging_api.MessagingApiAPI
	fetch    func(ctx context.Context, messageID string) (*http.Response, error)
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.ChannelSecret == "" || cfg.ChannelAccessToken == "" {
		return nil, errors.New("line channel secret and access token are required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	var (
		api *messaging_api.MessagingApiAPI
		err error
	)
	if cfg.Endpoint != "" {
		api, err = messaging_api.NewMessagingApiAPI(cfg.ChannelAccessToken,
			messaging_api.WithHTTPClient(httpClient),
			messaging_api.WithEndpoint(cfg.Endpoint))
	} else {
		api, err = messaging_api.NewMessagingApiAPI(cfg.ChannelAccessToken,
			messaging_api.WithHTTPClient(httpClient))
	}
	if err != nil {
		return nil, fmt.Errorf("create messaging api client: %w", err)
	}
	var blob *messaging_api.MessagingApiBlobAPI
	if cfg.DataEndpoint != "" {
		blob, err = messaging_api.NewMessagingApiBlobAPI(cfg.ChannelAccessToken,
			messaging_api.WithBlobHTTPClient(httpClient),
			messaging_api.WithBlobEndpoint(cfg.DataEndpoint))
	} else {
		blob, err = messaging_api.NewMessagingApiBlobAPI(cfg.ChannelAccessToken,
			messaging_api.WithBlobHTTPClient(httpClient))
	}
	if err != nil {
		return nil, fmt.Errorf("create blob api client: %w", err)
	}

	maxBytes := cfg.MaxContentBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Client{
		secret:   cfg.ChannelSecret,
		maxBytes: maxBytes,
		api:      api,
		fetch: func(ctx context.Context, messageID string) (*http.Response, error) {
			return blob.WithContext(ctx).GetMessageContent(messageID)
		},
	}, nil
}

// ParseRequest verifies the signature and flattens the events in r.
func (c *Client) ParseRequest(r *http.Request) ([]Event, error) {
	cb, err := webhook.ParseRequest(c.secret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			return nil, ErrInvalidSignature
		}
		return nil, fmt.Errorf("parse webhook: %w", err)
	}
	events := make([]Event, 0, len(cb.Events))
	for _, raw := range cb.Events {
		events = append(events, convertEvent(raw))
	}
	return events, nil
}

func convertEvent(raw webhook.EventInterface) Event {
	e, ok := raw.(webhook.MessageEvent)
	if !ok {
		return Event{Kind: KindUnsupported}
	}
	ev := Event{
		ID:         e.WebhookEventId,
		Kind:       KindUnsupported,
		UserID:     sourceUserID(e.Source),
		ReplyToken: e.ReplyToken,
	}
	switch m := e.Message.(type) {
	case webhook.TextMessageContent:
		ev.Kind = KindText
		ev.MessageID = m.Id
		ev.Text = m.Text
	case webhook.ImageMessageContent:
		ev.Kind = KindImage
		ev.MessageID = m.Id
	}
	return ev
}

func sourceUserID(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	default:
		return ""
	}
}

// ReplyText sends one text message using the event's reply token.
func (c *Client) ReplyText(ctx context.Context, replyToken, text string) error {
	_, err := c.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: text},
		},
	})
	if err != nil {
		return fmt.Errorf("reply message: %w", err)
	}
	return nil
}

// FetchContent downloads the binary content of a message, capped at the
// configured size.
func (c *Client) FetchContent(ctx context.Context, messageID string) ([]byte, error) {
	resp, err := c.fetch(ctx, messageID)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("get message content %s: %w", messageID, err)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read message content %s: %w", messageID, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, ErrContentTooLarge
	}
	return data, nil
}
