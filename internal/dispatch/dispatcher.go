// Package dispatch owns the set of active channel backends and routes events
// between them and the application: inbound messages and button clicks fan
// out to registered handlers, outbound sends fan out to the channels an
// account has linked.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/avdeyev/socialguard/internal/channel"
	"github.com/avdeyev/socialguard/internal/models"
	"github.com/google/uuid"
)

// MessageEvent is an inbound chat message from a channel backend.
type MessageEvent struct {
	RequestID string
	Kind      string
	UserID    int64
	Text      string
}

// ButtonEvent is an inbound button click from a channel backend.
type ButtonEvent struct {
	RequestID string
	Kind      string
	UserID    int64
	ButtonID  string
}

// MessageHandler processes one inbound message. A returned error is treated
// as an internal failure: the user gets a generic error reply and the error
// is logged at debug level; subsequent handlers still run.
type MessageHandler func(ctx context.Context, ev MessageEvent) error

// ButtonHandler processes one inbound button click.
type ButtonHandler func(ctx context.Context, ev ButtonEvent) error

// Dispatcher is the channel registry. Safe for concurrent use from multiple
// backend event loops.
type Dispatcher struct {
	logger *slog.Logger

	mu              sync.RWMutex
	backends        []channel.Backend
	messageHandlers []MessageHandler
	buttonHandlers  map[string]ButtonHandler
	labelToButton   map[string]string
	genericErrReply string
}

// New creates a dispatcher with no active backends.
func New(logger *slog.Logger, genericErrReply string) *Dispatcher {
	return &Dispatcher{
		logger:          logger,
		buttonHandlers:  make(map[string]ButtonHandler),
		labelToButton:   make(map[string]string),
		genericErrReply: genericErrReply,
	}
}

// Register starts a backend and adds it to the active set. A backend that is
// disabled is skipped silently; one that fails to start is excluded and
// logged, but never fatal to startup.
func (d *Dispatcher) Register(ctx context.Context, backend channel.Backend) {
	if !backend.Enabled() {
		return
	}

	if err := backend.Start(ctx); err != nil {
		d.logger.Error("channel backend failed to start, excluding it",
			slog.String("kind", backend.Kind()),
			slog.Any("error", err))
		return
	}

	d.mu.Lock()
	d.backends = append(d.backends, backend)
	d.mu.Unlock()

	d.logger.Info("channel backend started", slog.String("kind", backend.Kind()))
}

// Stop stops every active backend and clears the active set.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	backends := d.backends
	d.backends = nil
	d.mu.Unlock()

	for _, b := range backends {
		if err := b.Stop(ctx); err != nil {
			d.logger.Debug("channel backend stop failed",
				slog.String("kind", b.Kind()),
				slog.Any("error", err))
		}
	}
}

// ActiveKinds returns the kinds of the currently active backends.
func (d *Dispatcher) ActiveKinds() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	kinds := make([]string, 0, len(d.backends))
	for _, b := range d.backends {
		kinds = append(kinds, b.Kind())
	}
	return kinds
}

// OnMessage registers a message handler. Handlers run in registration order.
func (d *Dispatcher) OnMessage(h MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messageHandlers = append(d.messageHandlers, h)
}

// OnButton registers the handler for one button ID, replacing any previous
// handler for that ID.
func (d *Dispatcher) OnButton(buttonID string, h ButtonHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buttonHandlers[buttonID] = h
}

// RegisterKeyboard adds the keyboard's labels to the label-to-button table so
// that backends without interactive buttons still work: an inbound message
// whose text exactly matches a label is treated as a click on that button.
func (d *Dispatcher) RegisterKeyboard(kb channel.Keyboard) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, btn := range kb.Buttons() {
		d.labelToButton[strings.ToLower(btn.Label)] = btn.ID
	}
}

// ReportMessage implements channel.Sink. If the raw text matches a known
// button label a button event is synthesized instead of running the message
// handlers.
func (d *Dispatcher) ReportMessage(kind string, userID int64, text string) {
	d.mu.RLock()
	buttonID, isLabel := d.labelToButton[strings.ToLower(strings.TrimSpace(text))]
	handlers := d.messageHandlers
	d.mu.RUnlock()

	if isLabel {
		d.ReportButton(kind, userID, buttonID)
		return
	}

	ev := MessageEvent{
		RequestID: uuid.New().String(),
		Kind:      kind,
		UserID:    userID,
		Text:      text,
	}

	ctx := context.Background()
	for _, h := range handlers {
		d.runHandler(ctx, ev.RequestID, kind, userID, func() error { return h(ctx, ev) })
	}
}

// ReportButton implements channel.Sink. Clicks on unknown button IDs are
// silently ignored.
func (d *Dispatcher) ReportButton(kind string, userID int64, buttonID string) {
	d.mu.RLock()
	h, ok := d.buttonHandlers[buttonID]
	d.mu.RUnlock()

	if !ok {
		return
	}

	ev := ButtonEvent{
		RequestID: uuid.New().String(),
		Kind:      kind,
		UserID:    userID,
		ButtonID:  buttonID,
	}

	ctx := context.Background()
	d.runHandler(ctx, ev.RequestID, kind, userID, func() error { return h(ctx, ev) })
}

// runHandler isolates one handler invocation: a panic or error must never
// take down the backend's event loop or stop the remaining handlers. The
// originating user gets a generic error reply; details stay at debug level.
func (d *Dispatcher) runHandler(ctx context.Context, requestID, kind string, userID int64, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return fn()
	}()

	if err != nil {
		d.logger.Debug("event handler failed",
			slog.String("request_id", requestID),
			slog.String("kind", kind),
			slog.Int64("user_id", userID),
			slog.Any("error", err))
		d.SendTo(ctx, kind, userID, d.genericErrReply, channel.SendOptions{})
	}
}

// SendTo delivers a message to one external identity on every active backend
// of the given kind. Transport failures are swallowed here and logged at
// debug level only; they never propagate to callers.
func (d *Dispatcher) SendTo(ctx context.Context, kind string, userID int64, text string, opts channel.SendOptions) {
	d.mu.RLock()
	backends := d.backends
	d.mu.RUnlock()

	for _, b := range backends {
		if b.Kind() != kind {
			continue
		}
		if err := b.Send(ctx, userID, text, opts); err != nil {
			d.logger.Debug("channel send failed",
				slog.String("kind", kind),
				slog.Int64("user_id", userID),
				slog.Any("error", err))
		}
	}
}

// Broadcast delivers a message to every channel the account has linked.
func (d *Dispatcher) Broadcast(ctx context.Context, link *models.AccountLink, text string, opts channel.SendOptions) {
	d.mu.RLock()
	backends := d.backends
	d.mu.RUnlock()

	for _, b := range backends {
		if !b.CanSend(link) {
			continue
		}
		id := link.ChannelID(b.Kind())
		if id == nil {
			continue
		}
		if err := b.Send(ctx, *id, text, opts); err != nil {
			d.logger.Debug("channel send failed",
				slog.String("kind", b.Kind()),
				slog.String("nickname", link.Nickname),
				slog.Any("error", err))
		}
	}
}

// OnLinked runs the post-link hooks of every backend of the given kind.
func (d *Dispatcher) OnLinked(ctx context.Context, kind string, userID int64) {
	d.mu.RLock()
	backends := d.backends
	d.mu.RUnlock()

	for _, b := range backends {
		if b.Kind() == kind {
			b.OnLinked(ctx, userID)
		}
	}
}

// OnUnlinked runs the unregister hooks on every backend that could reach the
// account. When kind is non-empty only backends of that kind run.
func (d *Dispatcher) OnUnlinked(ctx context.Context, kind string, link *models.AccountLink) {
	d.mu.RLock()
	backends := d.backends
	d.mu.RUnlock()

	for _, b := range backends {
		if !b.CanSend(link) {
			continue
		}
		if kind != "" && b.Kind() != kind {
			continue
		}
		b.OnUnlinked(ctx, link)
	}
}
