package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/avdeyev/socialguard/internal/channel"
	"github.com/avdeyev/socialguard/internal/config"
	"github.com/avdeyev/socialguard/internal/dispatch"
	"github.com/avdeyev/socialguard/internal/game"
	"github.com/avdeyev/socialguard/internal/identity"
	"github.com/avdeyev/socialguard/internal/messages"
	"github.com/avdeyev/socialguard/internal/models"
	"github.com/avdeyev/socialguard/internal/repositories"
)

// LinkingService owns the link lifecycle: registration through a channel,
// the two-step passwordless link with an in-game code, the direct link with
// a password, and unlinking with its guard chain. Pending codes and
// registration counters are process-local caches swept by the purge manager.
type LinkingService struct {
	dispatcher *dispatch.Dispatcher
	links      repositories.LinkStore
	identity   identity.Store
	game       game.Server
	msgs       *messages.Catalog
	cfg        config.LinkingConfig
	logger     *slog.Logger

	nicknameRe *regexp.Regexp
	keyboard   channel.Keyboard

	mu          sync.Mutex
	pending     map[string]*models.PendingLink
	regCounters map[string]*models.RegistrationCounter
}

func NewLinkingService(
	dispatcher *dispatch.Dispatcher,
	links repositories.LinkStore,
	identityStore identity.Store,
	gameServer game.Server,
	msgs *messages.Catalog,
	cfg config.LinkingConfig,
	logger *slog.Logger,
) (*LinkingService, error) {
	nicknameRe, err := regexp.Compile(cfg.NicknamePattern)
	if err != nil {
		return nil, fmt.Errorf("compiling nickname pattern: %w", err)
	}

	return &LinkingService{
		dispatcher:  dispatcher,
		links:       links,
		identity:    identityStore,
		game:        gameServer,
		msgs:        msgs,
		cfg:         cfg,
		logger:      logger,
		nicknameRe:  nicknameRe,
		pending:     make(map[string]*models.PendingLink),
		regCounters: make(map[string]*models.RegistrationCounter),
	}, nil
}

// SetKeyboard sets the control keyboard attached to link-success replies.
func (s *LinkingService) SetKeyboard(kb channel.Keyboard) {
	s.keyboard = kb
}

// HandleMessage is the command grammar entry point, registered as a message
// handler on the dispatcher. Replies it sends itself are final; it returns an
// error only for internal failures.
func (s *LinkingService) HandleMessage(ctx context.Context, ev dispatch.MessageEvent) error {
	text := strings.TrimSpace(ev.Text)

	if args, ok := matchCommand(text, s.cfg.LinkCommands); ok {
		return s.handleLink(ctx, ev, args)
	}
	if _, ok := matchCommand(text, s.cfg.UnlinkCommands); ok {
		return s.handleUnlink(ctx, ev)
	}
	if args, ok := matchCommand(text, s.cfg.RegisterCommands); ok {
		return s.handleRegister(ctx, ev, args)
	}
	if _, ok := matchCommand(text, s.cfg.KeyboardCommands); ok {
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.KeyboardRestored, channel.SendOptions{
			Keyboard:   s.keyboard,
			Visibility: channel.PreferKeyboard,
		})
		return nil
	}

	s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.StartReply, channel.SendOptions{})
	return nil
}

// matchCommand checks text against a list of command prefixes and returns the
// remaining arguments. "!account link bob" matches the prefix "!account link"
// with args ["bob"].
func matchCommand(text string, commands []string) ([]string, bool) {
	lower := strings.ToLower(text)
	for _, cmd := range commands {
		if lower == cmd {
			return nil, true
		}
		if strings.HasPrefix(lower, cmd+" ") {
			return strings.Fields(text[len(cmd):]), true
		}
	}
	return nil, false
}

func (s *LinkingService) handleRegister(ctx context.Context, ev dispatch.MessageEvent, args []string) error {
	if s.cfg.DisableRegistration {
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.StartReply, channel.SendOptions{})
		return nil
	}

	if len(args) == 0 {
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.RegisterUsage, channel.SendOptions{})
		return nil
	}
	nickname := strings.ToLower(args[0])

	if !s.registrationAllowed(ev.Kind, ev.UserID) {
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.RegisterLimit, channel.SendOptions{})
		return nil
	}
	s.countRegistration(ev.Kind, ev.UserID)

	linked, err := s.identityLinked(ctx, ev.Kind, ev.UserID)
	if err != nil {
		return err
	}
	if linked {
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.LinkAlready, channel.SendOptions{})
		return nil
	}

	if !s.nicknameRe.MatchString(nickname) {
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.RegisterBadNickname, channel.SendOptions{})
		return nil
	}

	exists, err := s.identity.Exists(ctx, nickname)
	if err != nil {
		return fmt.Errorf("checking account existence: %w", err)
	}
	if exists {
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.RegisterTaken, channel.SendOptions{})
		return nil
	}

	if !s.cfg.AllowPremiumRegistration {
		premium, err := s.identity.IsPremium(ctx, nickname)
		if err != nil {
			return fmt.Errorf("checking premium status: %w", err)
		}
		if premium {
			s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.RegisterPremium, channel.SendOptions{})
			return nil
		}
	}

	password, err := identity.GeneratePassword()
	if err != nil {
		return err
	}
	if err := s.identity.CreateAccount(ctx, nickname, password); err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.RegisterTaken, channel.SendOptions{})
			return nil
		}
		return fmt.Errorf("creating account: %w", err)
	}

	// A channel-registered account is linked to its creator right away.
	if err := s.linkAccount(ctx, ev.Kind, ev.UserID, nickname); err != nil {
		s.logger.Error("failed to link freshly registered account",
			slog.String("nickname", nickname),
			slog.Any("error", err))
	}

	s.logger.Info("account registered via channel",
		slog.String("nickname", nickname),
		slog.String("kind", ev.Kind))

	s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID,
		messages.Render(s.msgs.RegisterSuccess, "PASSWORD", password),
		channel.SendOptions{Keyboard: s.keyboard, Visibility: channel.PreferKeyboard})
	return nil
}

// registrationAllowed checks the per-identity registration budget.
func (s *LinkingService) registrationAllowed(kind string, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.regCounters[models.ChannelKey(kind, userID)]
	if !ok {
		return true
	}
	return counter.Count < s.cfg.MaxRegistrationsPerWindow
}

// countRegistration burns one unit of the budget. Every attempt past the
// limit check counts, so probing taken or premium nicknames is rate limited
// like everything else.
func (s *LinkingService) countRegistration(kind string, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.ChannelKey(kind, userID)
	counter, ok := s.regCounters[key]
	if !ok {
		counter = &models.RegistrationCounter{CreatedAt: time.Now()}
		s.regCounters[key] = counter
	}
	counter.Count++
}

func (s *LinkingService) handleLink(ctx context.Context, ev dispatch.MessageEvent, args []string) error {
	if len(args) == 0 {
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.LinkUsage, channel.SendOptions{})
		return nil
	}
	nickname := strings.ToLower(args[0])

	linked, err := s.identityLinked(ctx, ev.Kind, ev.UserID)
	if err != nil {
		return err
	}
	if linked {
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.LinkAlready, channel.SendOptions{})
		return nil
	}

	link, err := s.links.GetByName(ctx, nickname)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("loading link: %w", err)
	}
	if link != nil && link.ChannelID(ev.Kind) != nil && !s.cfg.AllowRelink {
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.LinkAlready, channel.SendOptions{})
		return nil
	}

	if len(args) >= 2 {
		return s.linkWithPassword(ctx, ev, nickname, args[1])
	}
	return s.linkWithCode(ctx, ev, nickname)
}

// identityLinked reports whether this channel identity already holds a link.
// One external identity never links more than one account: GetByChannel must
// stay unambiguous for the panel and confirmation handlers.
func (s *LinkingService) identityLinked(ctx context.Context, kind string, userID int64) (bool, error) {
	_, err := s.links.GetByChannel(ctx, kind, userID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading link: %w", err)
	}
	return true, nil
}

// linkWithPassword links immediately after verifying the account password.
func (s *LinkingService) linkWithPassword(ctx context.Context, ev dispatch.MessageEvent, nickname, password string) error {
	if s.cfg.DisableLinkWithPass {
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.LinkUsage, channel.SendOptions{})
		return nil
	}

	ok, err := s.identity.VerifyPassword(ctx, nickname, password)
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.LinkWrongPassword, channel.SendOptions{})
		return nil
	}

	if err := s.linkAccount(ctx, ev.Kind, ev.UserID, nickname); err != nil {
		if errors.Is(err, models.ErrAlreadyLinked) {
			s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.LinkAlready, channel.SendOptions{})
			return nil
		}
		return err
	}

	s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.LinkSuccess, channel.SendOptions{
		Keyboard:   s.keyboard,
		Visibility: channel.PreferKeyboard,
	})
	return nil
}

// linkWithCode issues a verification code the player completes in game. A
// repeated request for the same nickname replaces the previous entry.
func (s *LinkingService) linkWithCode(ctx context.Context, ev dispatch.MessageEvent, nickname string) error {
	if s.cfg.DisableLinkWithoutPass {
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.LinkUsage, channel.SendOptions{})
		return nil
	}

	exists, err := s.identity.Exists(ctx, nickname)
	if err != nil {
		return fmt.Errorf("checking account existence: %w", err)
	}
	if !exists {
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.LinkUnknownAccount, channel.SendOptions{})
		return nil
	}

	code, err := s.generateCode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pending[nickname] = &models.PendingLink{
		Kind:      ev.Kind,
		UserID:    ev.UserID,
		Code:      code,
		CreatedAt: time.Now(),
	}
	s.mu.Unlock()

	s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID,
		messages.Render(s.msgs.LinkCode, "CODE", fmt.Sprintf("%d", code)),
		channel.SendOptions{})
	return nil
}

func (s *LinkingService) generateCode() (int, error) {
	span := big.NewInt(s.cfg.CodeMax - s.cfg.CodeMin + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return 0, fmt.Errorf("generating link code: %w", err)
	}
	return int(n.Int64() + s.cfg.CodeMin), nil
}

// ConfirmCode completes a pending link from the game side. The pending entry
// is consumed whether or not the code matches: a wrong code invalidates the
// attempt and the requester must start over.
func (s *LinkingService) ConfirmCode(ctx context.Context, nickname string, code int) error {
	nickname = strings.ToLower(nickname)

	s.mu.Lock()
	pending, ok := s.pending[nickname]
	if ok {
		delete(s.pending, nickname)
	}
	s.mu.Unlock()

	if !ok {
		return models.ErrNoPendingLink
	}

	if pending.Code != code {
		s.dispatcher.SendTo(ctx, pending.Kind, pending.UserID,
			messages.Render(s.msgs.LinkWrongCode, "NICKNAME", nickname),
			channel.SendOptions{})
		return models.ErrWrongCode
	}

	if err := s.linkAccount(ctx, pending.Kind, pending.UserID, nickname); err != nil {
		return err
	}

	s.dispatcher.SendTo(ctx, pending.Kind, pending.UserID, s.msgs.LinkSuccess, channel.SendOptions{
		Keyboard:   s.keyboard,
		Visibility: channel.PreferKeyboard,
	})
	return nil
}

// linkAccount writes the channel identity onto the account's link row,
// creating the row on first link, and runs the backend post-link hooks.
func (s *LinkingService) linkAccount(ctx context.Context, kind string, userID int64, nickname string) error {
	link, err := s.links.GetByName(ctx, nickname)
	switch {
	case errors.Is(err, models.ErrNotFound):
		link = &models.AccountLink{
			Nickname:      nickname,
			NotifyEnabled: s.cfg.EnableNotify,
		}
		link.SetChannelID(kind, &userID)
		if err := s.links.Create(ctx, link); err != nil {
			return fmt.Errorf("creating link: %w", err)
		}
	case err != nil:
		return fmt.Errorf("loading link: %w", err)
	default:
		if link.ChannelID(kind) != nil && !s.cfg.AllowRelink {
			return models.ErrAlreadyLinked
		}
		if err := s.links.SetChannelID(ctx, nickname, kind, &userID); err != nil {
			return fmt.Errorf("updating link: %w", err)
		}
	}

	s.logger.Info("channel linked",
		slog.String("nickname", nickname),
		slog.String("kind", kind))

	s.dispatcher.OnLinked(ctx, kind, userID)
	return nil
}

func (s *LinkingService) handleUnlink(ctx context.Context, ev dispatch.MessageEvent) error {
	err := s.Unlink(ctx, ev.Kind, ev.UserID)
	switch {
	case err == nil:
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.UnlinkSuccess, channel.SendOptions{})
	case errors.Is(err, models.ErrNotFound):
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.StartReply, channel.SendOptions{})
	case errors.Is(err, models.ErrUnlinkDisabled):
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.UnlinkDisabled, channel.SendOptions{})
	case errors.Is(err, models.ErrBlockedConflict):
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.UnlinkBlockConflict, channel.SendOptions{})
	case errors.Is(err, models.ErrTwoFactorConflict):
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, s.msgs.Unlink2FAConflict, channel.SendOptions{})
	default:
		return err
	}
	return nil
}

// Unlink removes the calling channel's identity from the account it is linked
// to. Guards run in order: disabled, blocked, then active 2FA. When the
// unlink-all policy is set, or when the last channel is removed, the whole
// link row is deleted.
func (s *LinkingService) Unlink(ctx context.Context, kind string, userID int64) error {
	link, err := s.links.GetByChannel(ctx, kind, userID)
	if err != nil {
		return err
	}

	if s.cfg.DisableUnlink {
		return models.ErrUnlinkDisabled
	}
	if link.Blocked {
		return models.ErrBlockedConflict
	}
	if link.TwoFactorActive() {
		return models.ErrTwoFactorConflict
	}

	if s.cfg.UnlinkAll {
		if err := s.links.Delete(ctx, link.Nickname); err != nil {
			return fmt.Errorf("deleting link: %w", err)
		}
		s.dispatcher.OnUnlinked(ctx, "", link)
	} else {
		link.SetChannelID(kind, nil)
		if len(link.LinkedKinds()) == 0 {
			if err := s.links.Delete(ctx, link.Nickname); err != nil {
				return fmt.Errorf("deleting link: %w", err)
			}
		} else if err := s.links.SetChannelID(ctx, link.Nickname, kind, nil); err != nil {
			return fmt.Errorf("updating link: %w", err)
		}
		link.SetChannelID(kind, &userID)
		s.dispatcher.OnUnlinked(ctx, kind, link)
	}

	s.logger.Info("channel unlinked",
		slog.String("nickname", link.Nickname),
		slog.String("kind", kind))

	if err := s.game.Tell(ctx, link.Nickname, s.msgs.UnlinkSuccessGame); err != nil {
		s.logger.Debug("failed to notify player in game", slog.Any("error", err))
	}
	return nil
}

// ForceUnlink removes every channel identity of the account, bypassing the
// disabled, blocked and 2FA guards. Used by operators.
func (s *LinkingService) ForceUnlink(ctx context.Context, nickname string) error {
	nickname = strings.ToLower(nickname)

	link, err := s.links.GetByName(ctx, nickname)
	if err != nil {
		return err
	}

	if err := s.links.Delete(ctx, nickname); err != nil {
		return fmt.Errorf("deleting link: %w", err)
	}

	s.logger.Info("link force-removed", slog.String("nickname", nickname))
	s.dispatcher.OnUnlinked(ctx, "", link)
	return nil
}

// Name implements background.Purgeable.
func (s *LinkingService) Name() string { return "linking" }

// PurgeExpired evicts pending codes past the code TTL and registration
// counters past the rate-limit window. Returns the number of evicted entries.
func (s *LinkingService) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for nickname, pending := range s.pending {
		if now.Sub(pending.CreatedAt) >= s.cfg.LinkCodeTTL {
			delete(s.pending, nickname)
			purged++
		}
	}
	for key, counter := range s.regCounters {
		if now.Sub(counter.CreatedAt) >= s.cfg.RegistrationWindow {
			delete(s.regCounters, key)
			purged++
		}
	}
	return purged
}
