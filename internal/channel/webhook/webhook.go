// Package webhook is the generic channel backend: outbound messages are
// POSTed to a per-channel bot endpoint, inbound events arrive on the shared
// HTTP route and are fed to the dispatcher. One Backend instance serves one
// channel kind; the platform-specific bot process (Discord, Telegram, VK)
// lives outside this service and speaks this JSON contract.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avdeyev/socialguard/internal/channel"
	"github.com/avdeyev/socialguard/internal/config"
	"github.com/avdeyev/socialguard/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const secretHeader = "X-Webhook-Secret"

// Backend sends messages to one channel's bot endpoint.
type Backend struct {
	kind   string
	cfg    config.ChannelConfig
	client *http.Client
	logger *slog.Logger
}

func NewBackend(kind string, cfg config.ChannelConfig, logger *slog.Logger) *Backend {
	return &Backend{
		kind:   kind,
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (b *Backend) Kind() string  { return b.kind }
func (b *Backend) Enabled() bool { return b.cfg.Enabled }

// Start is a no-op: inbound events are pushed to us over HTTP, there is no
// long-lived connection to open.
func (b *Backend) Start(ctx context.Context) error { return nil }

func (b *Backend) Stop(ctx context.Context) error { return nil }

func (b *Backend) CanSend(link *models.AccountLink) bool {
	return link.ChannelID(b.kind) != nil
}

type outboundMessage struct {
	UserID     int64            `json:"user_id"`
	Text       string           `json:"text"`
	Keyboard   channel.Keyboard `json:"keyboard,omitempty"`
	Visibility string           `json:"visibility,omitempty"`
}

func (b *Backend) Send(ctx context.Context, userID int64, text string, opts channel.SendOptions) error {
	visibility := opts.Visibility
	if visibility == channel.VisibilityDefault || visibility == "" {
		if b.cfg.PreferInline {
			visibility = channel.PreferInline
		} else {
			visibility = channel.PreferKeyboard
		}
	}

	body, err := json.Marshal(outboundMessage{
		UserID:     userID,
		Text:       text,
		Keyboard:   opts.Keyboard,
		Visibility: string(visibility),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.OutboundURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(secretHeader, b.cfg.InboundSecret)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("webhook send returned status %d", resp.StatusCode)
	}
	return nil
}

func (b *Backend) OnLinked(ctx context.Context, userID int64) {
	b.logger.Debug("channel identity linked",
		slog.String("kind", b.kind),
		slog.Int64("user_id", userID))
}

func (b *Backend) OnUnlinked(ctx context.Context, link *models.AccountLink) {
	b.logger.Debug("channel identity unlinked",
		slog.String("kind", b.kind),
		slog.String("nickname", link.Nickname))
}

var _ channel.Backend = (*Backend)(nil)

// Event types accepted on the inbound route.
const (
	eventMessage = "message"
	eventButton  = "button"
)

type inboundEvent struct {
	Type     string `json:"type" validate:"required,oneof=message button"`
	UserID   int64  `json:"user_id" validate:"required"`
	Text     string `json:"text" validate:"required_if=Type message"`
	ButtonID string `json:"button_id" validate:"required_if=Type button"`
}

// InboundHandler accepts bot events on POST /v1/channels/{kind}/events and
// feeds them to the sink. Each channel authenticates with its own shared
// secret; events for unconfigured kinds are rejected.
func InboundHandler(sink channel.Sink, channels map[string]config.ChannelConfig, logger *slog.Logger) http.HandlerFunc {
	validate := validator.New()

	return func(w http.ResponseWriter, r *http.Request) {
		kind := chi.URLParam(r, "kind")

		cfg, ok := channels[kind]
		if !ok || !cfg.Enabled {
			http.Error(w, "unknown channel", http.StatusNotFound)
			return
		}

		if cfg.InboundSecret == "" || r.Header.Get(secretHeader) != cfg.InboundSecret {
			http.Error(w, "invalid secret", http.StatusUnauthorized)
			return
		}

		var ev inboundEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(&ev); err != nil {
			http.Error(w, "invalid event", http.StatusBadRequest)
			return
		}

		logger.Debug("inbound channel event",
			slog.String("kind", kind),
			slog.String("type", ev.Type),
			slog.Int64("user_id", ev.UserID))

		switch ev.Type {
		case eventMessage:
			sink.ReportMessage(kind, ev.UserID, ev.Text)
		case eventButton:
			sink.ReportButton(kind, ev.UserID, ev.ButtonID)
		}

		w.WriteHeader(http.StatusAccepted)
	}
}
