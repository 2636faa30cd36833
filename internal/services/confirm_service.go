package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/avdeyev/socialguard/internal/channel"
	"github.com/avdeyev/socialguard/internal/config"
	"github.com/avdeyev/socialguard/internal/dispatch"
	"github.com/avdeyev/socialguard/internal/game"
	"github.com/avdeyev/socialguard/internal/geo"
	"github.com/avdeyev/socialguard/internal/messages"
	"github.com/avdeyev/socialguard/internal/models"
	"github.com/avdeyev/socialguard/internal/repositories"
)

// Outcome is the terminal state of one confirmation session.
type Outcome string

const (
	OutcomeApproved  Outcome = "approved"
	OutcomeDenied    Outcome = "denied"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeAbandoned Outcome = "abandoned"
)

// LoginDecision tells the game server what to do with a pending login.
type LoginDecision string

const (
	DecisionAllow     LoginDecision = "allow"
	DecisionDeny      LoginDecision = "deny"
	DecisionAbandoned LoginDecision = "abandoned"
)

// LoginResult carries the decision plus the kick reason for denials.
type LoginResult struct {
	Decision   LoginDecision
	KickReason string
}

// Button IDs of the yes/no prompt.
const (
	buttonConfirmYes = "confirm_yes"
	buttonConfirmNo  = "confirm_no"
)

// confirmSession is one in-flight login confirmation. The buffered channel
// holds the single outcome; once guarantees exactly one writer even when the
// waiter's timeout races a button click.
type confirmSession struct {
	nickname string
	ch       chan Outcome
	once     sync.Once
}

func (c *confirmSession) deliver(out Outcome) {
	c.once.Do(func() { c.ch <- out })
}

// ConfirmService gates logins of blocked and 2FA-protected accounts and sends
// join/leave notifications. Login blocks the calling goroutine until a channel
// button resolves the session, the wait times out, or the player disconnects.
type ConfirmService struct {
	dispatcher *dispatch.Dispatcher
	links      repositories.LinkStore
	game       game.Server
	geo        geo.Resolver
	msgs       *messages.Catalog
	cfg        config.LinkingConfig
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*confirmSession
}

func NewConfirmService(
	dispatcher *dispatch.Dispatcher,
	links repositories.LinkStore,
	gameServer game.Server,
	geoResolver geo.Resolver,
	msgs *messages.Catalog,
	cfg config.LinkingConfig,
	logger *slog.Logger,
) *ConfirmService {
	return &ConfirmService{
		dispatcher: dispatcher,
		links:      links,
		game:       gameServer,
		geo:        geoResolver,
		msgs:       msgs,
		cfg:        cfg,
		logger:     logger,
		sessions:   make(map[string]*confirmSession),
	}
}

// RegisterHandlers wires the yes/no buttons into the dispatcher and registers
// their labels so text-only channels can answer by typing the label.
func (s *ConfirmService) RegisterHandlers() {
	s.dispatcher.OnButton(buttonConfirmYes, s.handleAnswer(OutcomeApproved))
	s.dispatcher.OnButton(buttonConfirmNo, s.handleAnswer(OutcomeDenied))
	s.dispatcher.RegisterKeyboard(s.askKeyboard())
}

// askKeyboard builds the one-row yes/no prompt. No comes first so a rushed
// click lands on the safe answer; the reverse option puts Yes first.
func (s *ConfirmService) askKeyboard() channel.Keyboard {
	yes := channel.Button{ID: buttonConfirmYes, Label: s.msgs.ConfirmYes, Color: channel.ColorGreen}
	no := channel.Button{ID: buttonConfirmNo, Label: s.msgs.ConfirmNo, Color: channel.ColorRed}

	if s.cfg.ReverseYesNo {
		return channel.Keyboard{{yes, no}}
	}
	return channel.Keyboard{{no, yes}}
}

// Login decides whether a connecting player may proceed. For blocked accounts
// it denies immediately; for 2FA-protected accounts it opens a confirmation
// session and blocks until resolution. Accounts without a link row or without
// active 2FA are allowed straight through.
func (s *ConfirmService) Login(ctx context.Context, nickname, ip string) (LoginResult, error) {
	nickname = strings.ToLower(nickname)

	link, err := s.links.GetByName(ctx, nickname)
	if errors.Is(err, models.ErrNotFound) {
		return LoginResult{Decision: DecisionAllow}, nil
	}
	if err != nil {
		return LoginResult{}, err
	}

	if link.Blocked {
		return LoginResult{Decision: DecisionDeny, KickReason: s.msgs.BlockKickMessage}, nil
	}

	if !link.TwoFactorActive() {
		return LoginResult{Decision: DecisionAllow}, nil
	}

	sess := s.begin(nickname)

	location := s.geo.Locate(ctx, ip)
	s.dispatcher.Broadcast(ctx, link,
		messages.Render(s.msgs.ConfirmAsk, "IP", ip, "LOCATION", location),
		channel.SendOptions{Keyboard: s.askKeyboard(), Visibility: channel.PreferInline})

	if err := s.game.Tell(ctx, nickname, s.msgs.ConfirmAskGame); err != nil {
		s.logger.Debug("failed to notify player in game", slog.Any("error", err))
	}

	timer := time.NewTimer(s.cfg.ConfirmWaitTimeout)
	defer timer.Stop()

	var outcome Outcome
	select {
	case outcome = <-sess.ch:
	case <-timer.C:
		s.resolve(sess, OutcomeTimeout)
		outcome = <-sess.ch
	case <-ctx.Done():
		s.resolve(sess, OutcomeAbandoned)
		outcome = <-sess.ch
	}

	s.logger.Info("login confirmation resolved",
		slog.String("nickname", nickname),
		slog.String("outcome", string(outcome)))

	switch outcome {
	case OutcomeApproved:
		return LoginResult{Decision: DecisionAllow}, nil
	case OutcomeAbandoned:
		return LoginResult{Decision: DecisionAbandoned}, nil
	default:
		return LoginResult{Decision: DecisionDeny, KickReason: s.msgs.ConfirmKickMessage}, nil
	}
}

// begin installs a fresh session for the nickname. An existing session is
// resolved as abandoned first: only the newest login attempt is answerable.
func (s *ConfirmService) begin(nickname string) *confirmSession {
	sess := &confirmSession{nickname: nickname, ch: make(chan Outcome, 1)}

	s.mu.Lock()
	old := s.sessions[nickname]
	s.sessions[nickname] = sess
	s.mu.Unlock()

	if old != nil {
		old.deliver(OutcomeAbandoned)
	}
	return sess
}

// resolve detaches the session and delivers the outcome. Removal from the map
// under the mutex is what makes resolution exactly-once: whichever caller
// detaches the live session wins, everyone else finds it already gone.
func (s *ConfirmService) resolve(sess *confirmSession, out Outcome) {
	s.mu.Lock()
	if s.sessions[sess.nickname] == sess {
		delete(s.sessions, sess.nickname)
	}
	s.mu.Unlock()

	sess.deliver(out)
}

// handleAnswer maps a yes/no button click to the clicker's open session.
// Clicks without a session, or from a channel identity with no link, are
// ignored.
func (s *ConfirmService) handleAnswer(out Outcome) dispatch.ButtonHandler {
	return func(ctx context.Context, ev dispatch.ButtonEvent) error {
		link, err := s.links.GetByChannel(ctx, ev.Kind, ev.UserID)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		s.mu.Lock()
		sess := s.sessions[link.Nickname]
		s.mu.Unlock()

		if sess == nil {
			return nil
		}
		s.resolve(sess, out)

		reply := s.msgs.ConfirmThanks
		if out == OutcomeDenied {
			reply = s.msgs.ConfirmWarn
		}
		s.dispatcher.SendTo(ctx, ev.Kind, ev.UserID, reply, channel.SendOptions{})
		return nil
	}
}

// PlayerJoined sends the join notification to the account's channels. Players
// with no link row get the link recommendation in game instead. 2FA logins
// already received the confirmation prompt, so they are not notified again.
func (s *ConfirmService) PlayerJoined(ctx context.Context, nickname, ip string) error {
	nickname = strings.ToLower(nickname)

	link, err := s.links.GetByName(ctx, nickname)
	if errors.Is(err, models.ErrNotFound) {
		if err := s.game.Tell(ctx, nickname, s.msgs.LinkAnnouncement); err != nil {
			s.logger.Debug("failed to notify player in game", slog.Any("error", err))
		}
		return nil
	}
	if err != nil {
		return err
	}

	if !s.cfg.EnableNotify || !link.NotifyEnabled || link.TwoFactorActive() {
		return nil
	}

	location := s.geo.Locate(ctx, ip)
	s.dispatcher.Broadcast(ctx, link,
		messages.Render(s.msgs.NotifyJoin, "IP", ip, "LOCATION", location),
		channel.SendOptions{})
	return nil
}

// PlayerLeft abandons any open confirmation session and sends the leave
// notification.
func (s *ConfirmService) PlayerLeft(ctx context.Context, nickname string) error {
	nickname = strings.ToLower(nickname)

	s.mu.Lock()
	sess := s.sessions[nickname]
	s.mu.Unlock()
	if sess != nil {
		s.resolve(sess, OutcomeAbandoned)
	}

	link, err := s.links.GetByName(ctx, nickname)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if s.cfg.EnableNotify && link.NotifyEnabled {
		s.dispatcher.Broadcast(ctx, link, s.msgs.NotifyLeave, channel.SendOptions{})
	}
	return nil
}
