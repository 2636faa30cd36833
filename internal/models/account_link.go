package models

import "time"

// Channel kinds supported by the link store. Each kind maps to one nullable
// column on the account_links table.
const (
	KindDiscord  = "discord"
	KindTelegram = "telegram"
	KindVK       = "vk"
)

// ChannelKinds lists every supported channel kind in a stable order.
var ChannelKinds = []string{KindDiscord, KindTelegram, KindVK}

// AccountLink binds a primary account (by lowercased nickname) to zero or
// more external channel identities plus its security flags.
type AccountLink struct {
	Nickname      string // lowercased, primary key
	DiscordID     *int64
	TelegramID    *int64
	VKID          *int64
	Blocked       bool
	TOTPEnabled   bool
	NotifyEnabled bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChannelID returns the external identity for the given kind, or nil when the
// kind is not linked or unknown.
func (l *AccountLink) ChannelID(kind string) *int64 {
	switch kind {
	case KindDiscord:
		return l.DiscordID
	case KindTelegram:
		return l.TelegramID
	case KindVK:
		return l.VKID
	}
	return nil
}

// SetChannelID sets or clears the external identity for the given kind.
// Unknown kinds are ignored.
func (l *AccountLink) SetChannelID(kind string, id *int64) {
	switch kind {
	case KindDiscord:
		l.DiscordID = id
	case KindTelegram:
		l.TelegramID = id
	case KindVK:
		l.VKID = id
	}
}

// LinkedKinds returns the kinds that currently have an external identity.
func (l *AccountLink) LinkedKinds() []string {
	kinds := make([]string, 0, len(ChannelKinds))
	for _, kind := range ChannelKinds {
		if l.ChannelID(kind) != nil {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// TwoFactorActive reports whether login confirmation is effectively enabled.
// The flag alone is not enough: an account with no linked channel cannot
// receive a confirmation prompt, so it must not be asked for one.
func (l *AccountLink) TwoFactorActive() bool {
	return l.TOTPEnabled && len(l.LinkedKinds()) > 0
}
