package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/avdeyev/socialguard/internal/channel"
	"github.com/avdeyev/socialguard/internal/config"
	"github.com/avdeyev/socialguard/internal/dispatch"
	"github.com/avdeyev/socialguard/internal/game"
	"github.com/avdeyev/socialguard/internal/geo"
	"github.com/avdeyev/socialguard/internal/identity"
	"github.com/avdeyev/socialguard/internal/messages"
	"github.com/avdeyev/socialguard/internal/models"
	"github.com/avdeyev/socialguard/internal/repositories"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	userID int64
	text   string
	opts   channel.SendOptions
}

// recordBackend is an always-enabled backend that records outbound sends.
type recordBackend struct {
	kind string

	mu   sync.Mutex
	sent []sentMessage
}

func newRecordBackend(kind string) *recordBackend {
	return &recordBackend{kind: kind}
}

func (b *recordBackend) Kind() string                    { return b.kind }
func (b *recordBackend) Enabled() bool                   { return true }
func (b *recordBackend) Start(ctx context.Context) error { return nil }
func (b *recordBackend) Stop(ctx context.Context) error  { return nil }

func (b *recordBackend) CanSend(link *models.AccountLink) bool {
	return link.ChannelID(b.kind) != nil
}

func (b *recordBackend) Send(ctx context.Context, userID int64, text string, opts channel.SendOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentMessage{userID: userID, text: text, opts: opts})
	return nil
}

func (b *recordBackend) OnLinked(ctx context.Context, userID int64)               {}
func (b *recordBackend) OnUnlinked(ctx context.Context, link *models.AccountLink) {}

func (b *recordBackend) messages() []sentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]sentMessage, len(b.sent))
	copy(out, b.sent)
	return out
}

func (b *recordBackend) lastMessage(t *testing.T) sentMessage {
	t.Helper()
	msgs := b.messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

type kickRecord struct {
	nickname string
	reason   string
}

// fakeGame records kicks and tells; Status answers from the online map.
type fakeGame struct {
	mu     sync.Mutex
	online map[string]game.PlayerStatus
	tells  []string
	kicks  []kickRecord
}

func newFakeGame() *fakeGame {
	return &fakeGame{online: make(map[string]game.PlayerStatus)}
}

func (g *fakeGame) setOnline(nickname, server, ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.online[nickname] = game.PlayerStatus{Online: true, Server: server, IP: ip}
}

func (g *fakeGame) Tell(ctx context.Context, nickname, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tells = append(g.tells, text)
	return nil
}

func (g *fakeGame) Kick(ctx context.Context, nickname, reason string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.kicks = append(g.kicks, kickRecord{nickname: nickname, reason: reason})
	status, ok := g.online[nickname]
	if ok && status.Online {
		delete(g.online, nickname)
		return true, nil
	}
	return false, nil
}

func (g *fakeGame) Status(ctx context.Context, nickname string) (game.PlayerStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.online[nickname], nil
}

func (g *fakeGame) told() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.tells))
	copy(out, g.tells)
	return out
}

func (g *fakeGame) kicked() []kickRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]kickRecord, len(g.kicks))
	copy(out, g.kicks)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLinkingConfig() config.LinkingConfig {
	return config.LinkingConfig{
		LinkCommands:     []string{"!link", "!account link"},
		UnlinkCommands:   []string{"!unlink"},
		RegisterCommands: []string{"!register"},
		KeyboardCommands: []string{"!keyboard"},

		NicknamePattern: `^[a-z0-9_]{3,16}$`,
		CodeMin:         1000,
		CodeMax:         9999,

		EnableNotify:              true,
		MaxRegistrationsPerWindow: 3,
		RegistrationWindow:        time.Hour,
		LinkCodeTTL:               10 * time.Minute,
		ConfirmWaitTimeout:        2 * time.Minute,
	}
}

// testEnv bundles the collaborators most service tests need.
type testEnv struct {
	dispatcher *dispatch.Dispatcher
	backend    *recordBackend
	links      *repositories.MemoryLinkStore
	identity   *identity.MemoryStore
	game       *fakeGame
	msgs       *messages.Catalog
	cfg        config.LinkingConfig
}

func newTestEnv(t *testing.T, cfg config.LinkingConfig) *testEnv {
	t.Helper()

	msgs := messages.Defaults()
	env := &testEnv{
		dispatcher: dispatch.New(testLogger(), msgs.GenericError),
		backend:    newRecordBackend(models.KindDiscord),
		links:      repositories.NewMemoryLinkStore(),
		identity:   identity.NewMemoryStore(),
		game:       newFakeGame(),
		msgs:       msgs,
		cfg:        cfg,
	}
	env.dispatcher.Register(context.Background(), env.backend)
	return env
}

func (e *testEnv) newLinking(t *testing.T) *LinkingService {
	t.Helper()
	svc, err := NewLinkingService(e.dispatcher, e.links, e.identity, e.game, e.msgs, e.cfg, testLogger())
	require.NoError(t, err)
	return svc
}

func (e *testEnv) newConfirm() *ConfirmService {
	return NewConfirmService(e.dispatcher, e.links, e.game, geo.NoopResolver{}, e.msgs, e.cfg, testLogger())
}

// seedLink stores a link row with the given discord identity.
func (e *testEnv) seedLink(t *testing.T, nickname string, discordID int64, mutate func(*models.AccountLink)) {
	t.Helper()
	link := &models.AccountLink{
		Nickname:      nickname,
		DiscordID:     &discordID,
		NotifyEnabled: true,
	}
	if mutate != nil {
		mutate(link)
	}
	require.NoError(t, e.links.Create(context.Background(), link))
}
