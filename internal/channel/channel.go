// Package channel defines the contract every messaging-platform backend
// implements. Backends own their inbound event loops and report messages and
// button clicks to a Sink; they carry no business logic.
package channel

import (
	"context"

	"github.com/avdeyev/socialguard/internal/models"
)

// ButtonColor is a rendering hint for interactive buttons.
type ButtonColor string

const (
	ColorGreen     ButtonColor = "green"
	ColorRed       ButtonColor = "red"
	ColorPrimary   ButtonColor = "primary"
	ColorSecondary ButtonColor = "secondary"
	ColorLink      ButtonColor = "link"
)

// Button is a declarative button descriptor. Backends that cannot render
// interactive buttons fall back to matching free text against Label.
type Button struct {
	ID    string      `json:"id"`
	Label string      `json:"label"`
	Color ButtonColor `json:"color"`
}

// Keyboard is a button layout, one slice per row.
type Keyboard [][]Button

// Buttons flattens the keyboard into a single slice.
func (k Keyboard) Buttons() []Button {
	var out []Button
	for _, row := range k {
		out = append(out, row...)
	}
	return out
}

// Visibility hints how a backend should present buttons.
type Visibility string

const (
	VisibilityDefault Visibility = "default"
	PreferInline      Visibility = "inline"
	PreferKeyboard    Visibility = "keyboard"
)

// SendOptions carries the optional parts of an outbound message.
type SendOptions struct {
	Keyboard   Keyboard
	Visibility Visibility
}

// Sink receives inbound events from backends. Implemented by the dispatcher.
type Sink interface {
	ReportMessage(kind string, userID int64, text string)
	ReportButton(kind string, userID int64, buttonID string)
}

// Backend is one messaging-platform integration.
type Backend interface {
	// Kind returns the stable identifier used as the AccountLink field
	// selector, e.g. "discord".
	Kind() string

	// Enabled reports whether this backend is configured to run.
	Enabled() bool

	// Start begins delivering inbound events to the sink. Idempotent.
	Start(ctx context.Context) error

	// Stop halts the backend. Idempotent, safe to call across reloads.
	Stop(ctx context.Context) error

	// CanSend reports whether the account has this backend's channel linked.
	CanSend(link *models.AccountLink) bool

	// Send delivers a message to an external user on this platform.
	Send(ctx context.Context, userID int64, text string, opts SendOptions) error

	// OnLinked runs platform side effects after an identity is linked.
	OnLinked(ctx context.Context, userID int64)

	// OnUnlinked runs platform side effects after an identity is unlinked.
	OnUnlinked(ctx context.Context, link *models.AccountLink)
}
