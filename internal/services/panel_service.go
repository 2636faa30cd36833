package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/avdeyev/socialguard/internal/channel"
	"github.com/avdeyev/socialguard/internal/config"
	"github.com/avdeyev/socialguard/internal/dispatch"
	"github.com/avdeyev/socialguard/internal/game"
	"github.com/avdeyev/socialguard/internal/geo"
	"github.com/avdeyev/socialguard/internal/identity"
	"github.com/avdeyev/socialguard/internal/messages"
	"github.com/avdeyev/socialguard/internal/models"
	"github.com/avdeyev/socialguard/internal/repositories"
)

// Button IDs of the account control panel.
const (
	buttonInfo    = "panel_info"
	buttonBlock   = "panel_block"
	buttonTOTP    = "panel_totp"
	buttonNotify  = "panel_notify"
	buttonKick    = "panel_kick"
	buttonRestore = "panel_restore"
	buttonUnlink  = "panel_unlink"
)

// PanelService implements the account control panel: the keyboard a linked
// user gets after linking, and the handlers behind its buttons. Every handler
// resolves the clicker's account through the channel identity; clicks from
// unlinked identities are ignored.
type PanelService struct {
	dispatcher *dispatch.Dispatcher
	links      repositories.LinkStore
	identity   identity.Store
	linking    *LinkingService
	game       game.Server
	geo        geo.Resolver
	msgs       *messages.Catalog
	cfg        config.LinkingConfig
	logger     *slog.Logger
}

func NewPanelService(
	dispatcher *dispatch.Dispatcher,
	links repositories.LinkStore,
	identityStore identity.Store,
	linking *LinkingService,
	gameServer game.Server,
	geoResolver geo.Resolver,
	msgs *messages.Catalog,
	cfg config.LinkingConfig,
	logger *slog.Logger,
) *PanelService {
	return &PanelService{
		dispatcher: dispatcher,
		links:      links,
		identity:   identityStore,
		linking:    linking,
		game:       gameServer,
		geo:        geoResolver,
		msgs:       msgs,
		cfg:        cfg,
		logger:     logger,
	}
}

// Keyboard returns the control panel layout.
func (s *PanelService) Keyboard() channel.Keyboard {
	return channel.Keyboard{
		{
			{ID: buttonInfo, Label: s.msgs.InfoButton, Color: channel.ColorPrimary},
			{ID: buttonNotify, Label: s.msgs.NotifyButton, Color: channel.ColorSecondary},
		},
		{
			{ID: buttonBlock, Label: s.msgs.BlockButton, Color: channel.ColorRed},
			{ID: buttonTOTP, Label: s.msgs.TOTPButton, Color: channel.ColorPrimary},
		},
		{
			{ID: buttonKick, Label: s.msgs.KickButton, Color: channel.ColorRed},
			{ID: buttonRestore, Label: s.msgs.RestoreButton, Color: channel.ColorSecondary},
		},
		{
			{ID: buttonUnlink, Label: s.msgs.UnlinkButton, Color: channel.ColorRed},
		},
	}
}

// RegisterHandlers wires the panel buttons and their text labels into the
// dispatcher.
func (s *PanelService) RegisterHandlers() {
	s.dispatcher.OnButton(buttonInfo, s.withLink(s.handleInfo))
	s.dispatcher.OnButton(buttonBlock, s.withLink(s.handleBlock))
	s.dispatcher.OnButton(buttonTOTP, s.withLink(s.handleTOTP))
	s.dispatcher.OnButton(buttonNotify, s.withLink(s.handleNotify))
	s.dispatcher.OnButton(buttonKick, s.withLink(s.handleKick))
	s.dispatcher.OnButton(buttonRestore, s.withLink(s.handleRestore))
	s.dispatcher.OnButton(buttonUnlink, s.handleUnlink)
	s.dispatcher.RegisterKeyboard(s.Keyboard())
}

type panelHandler func(ctx context.Context, ev dispatch.ButtonEvent, link *models.AccountLink) error

// withLink resolves the clicker's account link and drops clicks from unlinked
// identities.
func (s *PanelService) withLink(h panelHandler) dispatch.ButtonHandler {
	return func(ctx context.Context, ev dispatch.ButtonEvent) error {
		link, err := s.links.GetByChannel(ctx, ev.Kind, ev.UserID)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return h(ctx, ev, link)
	}
}

func (s *PanelService) reply(ctx context.Context, ev dispatch.ButtonEvent, text string) {
	s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, text, channel.SendOptions{
		Keyboard:   s.Keyboard(),
		Visibility: channel.PreferKeyboard,
	})
}

func (s *PanelService) handleInfo(ctx context.Context, ev dispatch.ButtonEvent, link *models.AccountLink) error {
	status, err := s.game.Status(ctx, link.Nickname)
	if err != nil {
		s.logger.Debug("failed to query player status", slog.Any("error", err))
	}

	server := s.msgs.StatusOffline
	ip := "-"
	location := ""
	if status.Online {
		server = status.Server
		ip = status.IP
		location = s.geo.Locate(ctx, status.IP)
	}

	onOff := func(enabled bool) string {
		if enabled {
			return s.msgs.StatusEnabled
		}
		return s.msgs.StatusDisabled
	}
	yesNo := func(v bool) string {
		if v {
			return s.msgs.StatusYes
		}
		return s.msgs.StatusNo
	}

	s.reply(ctx, ev, messages.Render(s.msgs.InfoMessage,
		"NICKNAME", link.Nickname,
		"SERVER", server,
		"IP", ip,
		"LOCATION", location,
		"NOTIFY_STATUS", onOff(link.NotifyEnabled),
		"BLOCK_STATUS", yesNo(link.Blocked),
		"TOTP_STATUS", onOff(link.TOTPEnabled),
	))
	return nil
}

// handleBlock toggles the block flag. Blocking an online player also kicks
// them immediately.
func (s *PanelService) handleBlock(ctx context.Context, ev dispatch.ButtonEvent, link *models.AccountLink) error {
	link.Blocked = !link.Blocked
	if err := s.links.Update(ctx, link); err != nil {
		return fmt.Errorf("updating link: %w", err)
	}

	if link.Blocked {
		if _, err := s.game.Kick(ctx, link.Nickname, s.msgs.BlockKickMessage); err != nil {
			s.logger.Debug("failed to kick blocked player", slog.Any("error", err))
		}
		s.reply(ctx, ev, messages.Render(s.msgs.BlockSuccess, "NICKNAME", link.Nickname))
	} else {
		s.reply(ctx, ev, messages.Render(s.msgs.UnblockSuccess, "NICKNAME", link.Nickname))
	}

	s.logger.Info("block flag toggled",
		slog.String("nickname", link.Nickname),
		slog.Bool("blocked", link.Blocked))
	return nil
}

func (s *PanelService) handleTOTP(ctx context.Context, ev dispatch.ButtonEvent, link *models.AccountLink) error {
	link.TOTPEnabled = !link.TOTPEnabled
	if err := s.links.Update(ctx, link); err != nil {
		return fmt.Errorf("updating link: %w", err)
	}

	if link.TOTPEnabled {
		s.reply(ctx, ev, messages.Render(s.msgs.TOTPEnableSuccess, "NICKNAME", link.Nickname))
	} else {
		s.reply(ctx, ev, messages.Render(s.msgs.TOTPDisableSuccess, "NICKNAME", link.Nickname))
	}
	return nil
}

func (s *PanelService) handleNotify(ctx context.Context, ev dispatch.ButtonEvent, link *models.AccountLink) error {
	link.NotifyEnabled = !link.NotifyEnabled
	if err := s.links.Update(ctx, link); err != nil {
		return fmt.Errorf("updating link: %w", err)
	}

	if link.NotifyEnabled {
		s.reply(ctx, ev, messages.Render(s.msgs.NotifyEnableSuccess, "NICKNAME", link.Nickname))
	} else {
		s.reply(ctx, ev, messages.Render(s.msgs.NotifyDisableSuccess, "NICKNAME", link.Nickname))
	}
	return nil
}

func (s *PanelService) handleKick(ctx context.Context, ev dispatch.ButtonEvent, link *models.AccountLink) error {
	online, err := s.game.Kick(ctx, link.Nickname, s.msgs.KickGameMessage)
	if err != nil {
		return fmt.Errorf("kicking player: %w", err)
	}

	if online {
		s.reply(ctx, ev, messages.Render(s.msgs.KickSuccess, "NICKNAME", link.Nickname))
	} else {
		s.reply(ctx, ev, messages.Render(s.msgs.KickOffline, "NICKNAME", link.Nickname))
	}
	return nil
}

// handleRestore generates a new password and applies it to the account.
// Premium accounts can be excluded: their password lives outside this system.
func (s *PanelService) handleRestore(ctx context.Context, ev dispatch.ButtonEvent, link *models.AccountLink) error {
	if s.cfg.ProhibitPremiumRestore {
		premium, err := s.identity.IsPremium(ctx, link.Nickname)
		if err != nil {
			return fmt.Errorf("checking premium status: %w", err)
		}
		if premium {
			s.reply(ctx, ev, messages.Render(s.msgs.RestorePremium, "NICKNAME", link.Nickname))
			return nil
		}
	}

	password, err := identity.GeneratePassword()
	if err != nil {
		return err
	}
	if err := s.identity.SetPassword(ctx, link.Nickname, password); err != nil {
		return fmt.Errorf("setting password: %w", err)
	}

	s.logger.Info("password restored", slog.String("nickname", link.Nickname))

	s.reply(ctx, ev, messages.Render(s.msgs.RestoreSuccess,
		"NICKNAME", link.Nickname,
		"PASSWORD", password))
	return nil
}

// handleUnlink runs the guarded unlink for the clicker's channel.
func (s *PanelService) handleUnlink(ctx context.Context, ev dispatch.ButtonEvent) error {
	err := s.linking.Unlink(ctx, ev.Kind, ev.UserID)
	switch {
	case err == nil:
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.UnlinkSuccess, channel.SendOptions{})
	case errors.Is(err, models.ErrNotFound):
		return nil
	case errors.Is(err, models.ErrUnlinkDisabled):
		s.reply(ctx, ev, s.msgs.UnlinkDisabled)
	case errors.Is(err, models.ErrBlockedConflict):
		s.reply(ctx, ev, s.msgs.UnlinkBlockConflict)
	case errors.Is(err, models.ErrTwoFactorConflict):
		s.reply(ctx, ev, s.msgs.Unlink2FAConflict)
	default:
		return err
	}
	return nil
}
