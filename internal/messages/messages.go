// Package messages holds every user-facing reply string. Defaults are built
// in; operators can override any of them with a YAML catalog file.
// Placeholders use the {NAME} form and are filled with Render.
package messages

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the full set of reply strings.
type Catalog struct {
	StartReply       string `yaml:"start_reply"`
	GenericError     string `yaml:"generic_error"`
	KeyboardRestored string `yaml:"keyboard_restored"`

	// Linking
	RegisterUsage       string `yaml:"register_usage"`
	RegisterLimit       string `yaml:"register_limit"`
	RegisterBadNickname string `yaml:"register_bad_nickname"`
	RegisterTaken       string `yaml:"register_taken"`
	RegisterPremium     string `yaml:"register_premium"`
	RegisterSuccess     string `yaml:"register_success"` // {PASSWORD}
	LinkUsage           string `yaml:"link_usage"`
	LinkUnknownAccount  string `yaml:"link_unknown_account"`
	LinkAlready         string `yaml:"link_already"`
	LinkCode            string `yaml:"link_code"` // {CODE}
	LinkWrongPassword   string `yaml:"link_wrong_password"`
	LinkWrongCode       string `yaml:"link_wrong_code"` // {NICKNAME}
	LinkSuccess         string `yaml:"link_success"`
	LinkSuccessGame     string `yaml:"link_success_game"`
	LinkAnnouncement    string `yaml:"link_announcement"`

	// Unlink
	UnlinkDisabled      string `yaml:"unlink_disabled"`
	UnlinkBlockConflict string `yaml:"unlink_block_conflict"`
	Unlink2FAConflict   string `yaml:"unlink_2fa_conflict"`
	UnlinkSuccess       string `yaml:"unlink_success"`
	UnlinkSuccessGame   string `yaml:"unlink_success_game"`

	// Login confirmation
	ConfirmAsk         string `yaml:"confirm_ask"` // {IP} {LOCATION}
	ConfirmAskGame     string `yaml:"confirm_ask_game"`
	ConfirmYes         string `yaml:"confirm_yes"`
	ConfirmNo          string `yaml:"confirm_no"`
	ConfirmThanks      string `yaml:"confirm_thanks"`
	ConfirmWarn        string `yaml:"confirm_warn"`
	ConfirmKickMessage string `yaml:"confirm_kick_message"`
	BlockKickMessage   string `yaml:"block_kick_message"`

	// Notifications
	NotifyJoin  string `yaml:"notify_join"` // {IP} {LOCATION}
	NotifyLeave string `yaml:"notify_leave"`

	// Panel
	InfoButton           string `yaml:"info_button"`
	InfoMessage          string `yaml:"info_message"` // {NICKNAME} {SERVER} {IP} {LOCATION} {NOTIFY_STATUS} {BLOCK_STATUS} {TOTP_STATUS}
	StatusOffline        string `yaml:"status_offline"`
	StatusEnabled        string `yaml:"status_enabled"`
	StatusDisabled       string `yaml:"status_disabled"`
	StatusYes            string `yaml:"status_yes"`
	StatusNo             string `yaml:"status_no"`
	BlockButton          string `yaml:"block_button"`
	BlockSuccess         string `yaml:"block_success"`   // {NICKNAME}
	UnblockSuccess       string `yaml:"unblock_success"` // {NICKNAME}
	TOTPButton           string `yaml:"totp_button"`
	TOTPEnableSuccess    string `yaml:"totp_enable_success"`  // {NICKNAME}
	TOTPDisableSuccess   string `yaml:"totp_disable_success"` // {NICKNAME}
	NotifyButton         string `yaml:"notify_button"`
	NotifyEnableSuccess  string `yaml:"notify_enable_success"`  // {NICKNAME}
	NotifyDisableSuccess string `yaml:"notify_disable_success"` // {NICKNAME}
	KickButton           string `yaml:"kick_button"`
	KickSuccess          string `yaml:"kick_success"` // {NICKNAME}
	KickOffline          string `yaml:"kick_offline"` // {NICKNAME}
	KickGameMessage      string `yaml:"kick_game_message"`
	RestoreButton        string `yaml:"restore_button"`
	RestoreSuccess       string `yaml:"restore_success"` // {NICKNAME} {PASSWORD}
	RestorePremium       string `yaml:"restore_premium"` // {NICKNAME}
	UnlinkButton         string `yaml:"unlink_button"`
}

// Defaults returns the built-in catalog.
func Defaults() *Catalog {
	return &Catalog{
		StartReply:       "Send '!account link <nickname>' to link your account",
		GenericError:     "An error occurred while processing your request",
		KeyboardRestored: "Keyboard was restored",

		RegisterUsage:       "You didn't specify a nickname. Enter '!account register <nickname>'",
		RegisterLimit:       "You've tried to register too many times, try again later",
		RegisterBadNickname: "Nickname contains forbidden characters",
		RegisterTaken:       "This nickname is already taken",
		RegisterPremium:     "This nickname belongs to a premium player",
		RegisterSuccess:     "Account was successfully registered. Your password: {PASSWORD}",
		LinkUsage:           "You didn't specify a nickname. Enter '!account link <nickname>'",
		LinkUnknownAccount:  "There is no account with this nickname",
		LinkAlready:         "Account is already linked",
		LinkCode:            "Enter '/addsocial {CODE}' in game to complete account linking",
		LinkWrongPassword:   "Wrong password",
		LinkWrongCode:       "Wrong code, run '!account link {NICKNAME}' again",
		LinkSuccess:         "Social was successfully linked. Use '!keyboard' to show keyboard",
		LinkSuccessGame:     "Social was successfully linked",
		LinkAnnouncement:    "We recommend you to link a social account using /addsocial to secure your account",

		UnlinkDisabled:      "Unlinking disabled",
		UnlinkBlockConflict: "You cannot unlink the social while your account is blocked. Unblock it first",
		Unlink2FAConflict:   "You cannot unlink the social while 2FA is enabled. Disable it first",
		UnlinkSuccess:       "Unlink successful",
		UnlinkSuccessGame:   "Unlink successful",

		ConfirmAsk:         "Someone tries to join the server. IP: {IP} {LOCATION}. Is it you?",
		ConfirmAskGame:     "You have 2FA enabled, check your social and validate your login!",
		ConfirmYes:         "It's me",
		ConfirmNo:          "It's not me",
		ConfirmThanks:      "Thanks for verifying your login",
		ConfirmWarn:        "You can always change your password using the 'Restore' button",
		ConfirmKickMessage: "You were kicked by the social bot",
		BlockKickMessage:   "Your account was blocked by the social bot",

		NotifyJoin:  "You've joined the server. IP: {IP} {LOCATION}. You can block your account if that is not you",
		NotifyLeave: "You've left the server",

		InfoButton:           "Info",
		InfoMessage:          "IGN: {NICKNAME}. Status: {SERVER}. IP: {IP} {LOCATION}. Notifications: {NOTIFY_STATUS}. Blocked: {BLOCK_STATUS}. 2FA: {TOTP_STATUS}",
		StatusOffline:        "OFFLINE",
		StatusEnabled:        "Enabled",
		StatusDisabled:       "Disabled",
		StatusYes:            "Yes",
		StatusNo:             "No",
		BlockButton:          "Toggle block",
		BlockSuccess:         "Account {NICKNAME} was successfully blocked",
		UnblockSuccess:       "Account {NICKNAME} was successfully unblocked",
		TOTPButton:           "Toggle 2FA",
		TOTPEnableSuccess:    "Account {NICKNAME} now uses 2FA",
		TOTPDisableSuccess:   "Account {NICKNAME} doesn't use 2FA anymore",
		NotifyButton:         "Toggle notifications",
		NotifyEnableSuccess:  "Account {NICKNAME} now receives notifications",
		NotifyDisableSuccess: "Account {NICKNAME} doesn't receive notifications anymore",
		KickButton:           "Kick",
		KickSuccess:          "Player {NICKNAME} was successfully kicked",
		KickOffline:          "Cannot kick {NICKNAME} - player is offline",
		KickGameMessage:      "You were kicked by the social bot",
		RestoreButton:        "Restore",
		RestoreSuccess:       "The new password for {NICKNAME} is: {PASSWORD}",
		RestorePremium:       "We can't change your password, {NICKNAME}, perhaps you are a premium player",
		UnlinkButton:         "Unlink social",
	}
}

// Load returns the defaults overlaid with the YAML catalog at path. An empty
// path returns the defaults unchanged; a missing field keeps its default.
func Load(path string) (*Catalog, error) {
	catalog := Defaults()
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading messages catalog: %w", err)
	}

	if err := yaml.Unmarshal(data, catalog); err != nil {
		return nil, fmt.Errorf("parsing messages catalog: %w", err)
	}

	return catalog, nil
}

// Render replaces {NAME} placeholders in the template. Pairs alternate
// name, value: Render(tpl, "NICKNAME", "bob", "CODE", "123").
func Render(template string, pairs ...string) string {
	if len(pairs) == 0 {
		return template
	}

	oldnew := make([]string, 0, len(pairs))
	for i := 0; i+1 < len(pairs); i += 2 {
		oldnew = append(oldnew, "{"+pairs[i]+"}", pairs[i+1])
	}
	return strings.NewReplacer(oldnew...).Replace(template)
}
