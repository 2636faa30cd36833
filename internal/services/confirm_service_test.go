package services

import (
	"context"
	"testing"
	"time"

	"github.com/avdeyev/socialguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startLogin runs Login in the background and returns the result channel.
func startLogin(ctx context.Context, svc *ConfirmService, nickname, ip string) <-chan LoginResult {
	out := make(chan LoginResult, 1)
	go func() {
		result, _ := svc.Login(ctx, nickname, ip)
		out <- result
	}()
	return out
}

func waitResult(t *testing.T, ch <-chan LoginResult) LoginResult {
	t.Helper()
	select {
	case result := <-ch:
		return result
	case <-time.After(5 * time.Second):
		t.Fatal("login did not resolve")
		return LoginResult{}
	}
}

// waitForPrompt blocks until the backend has sent at least n messages.
func waitForPrompt(t *testing.T, env *testEnv, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(env.backend.messages()) >= n
	}, 5*time.Second, 5*time.Millisecond)
}

func TestLogin_NoLinkAllows(t *testing.T) {
	env := newTestEnv(t, testLinkingConfig())
	svc := env.newConfirm()

	result, err := svc.Login(context.Background(), "stranger", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, result.Decision)
}

func TestLogin_BlockedDenies(t *testing.T) {
	env := newTestEnv(t, testLinkingConfig())
	svc := env.newConfirm()

	env.seedLink(t, "steve", 1, func(l *models.AccountLink) { l.Blocked = true })

	result, err := svc.Login(context.Background(), "Steve", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, result.Decision)
	assert.Equal(t, env.msgs.BlockKickMessage, result.KickReason)
}

func TestLogin_TwoFactorOffAllows(t *testing.T) {
	env := newTestEnv(t, testLinkingConfig())
	svc := env.newConfirm()

	env.seedLink(t, "steve", 1, nil)

	result, err := svc.Login(context.Background(), "steve", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, result.Decision)
	assert.Empty(t, env.backend.messages(), "no prompt expected")
}

func TestLogin_ConfirmYes(t *testing.T) {
	env := newTestEnv(t, testLinkingConfig())
	svc := env.newConfirm()
	svc.RegisterHandlers()

	env.seedLink(t, "steve", 1, func(l *models.AccountLink) { l.TOTPEnabled = true })

	ch := startLogin(context.Background(), svc, "steve", "1.2.3.4")
	waitForPrompt(t, env, 1)

	prompt := env.backend.messages()[0]
	assert.Contains(t, prompt.text, "1.2.3.4")
	assert.NotEmpty(t, prompt.opts.Keyboard)

	env.dispatcher.ReportButton(models.KindDiscord, 1, buttonConfirmYes)

	result := waitResult(t, ch)
	assert.Equal(t, DecisionAllow, result.Decision)
	assert.Equal(t, env.msgs.ConfirmThanks, env.backend.lastMessage(t).text)
}

func TestLogin_ConfirmNo(t *testing.T) {
	env := newTestEnv(t, testLinkingConfig())
	svc := env.newConfirm()
	svc.RegisterHandlers()

	env.seedLink(t, "steve", 1, func(l *models.AccountLink) { l.TOTPEnabled = true })

	ch := startLogin(context.Background(), svc, "steve", "1.2.3.4")
	waitForPrompt(t, env, 1)

	env.dispatcher.ReportButton(models.KindDiscord, 1, buttonConfirmNo)

	result := waitResult(t, ch)
	assert.Equal(t, DecisionDeny, result.Decision)
	assert.Equal(t, env.msgs.ConfirmKickMessage, result.KickReason)
	assert.Equal(t, env.msgs.ConfirmWarn, env.backend.lastMessage(t).text)
}

func TestLogin_AnswerByLabel(t *testing.T) {
	env := newTestEnv(t, testLinkingConfig())
	svc := env.newConfirm()
	svc.RegisterHandlers()

	env.seedLink(t, "steve", 1, func(l *models.AccountLink) { l.TOTPEnabled = true })

	ch := startLogin(context.Background(), svc, "steve", "1.2.3.4")
	waitForPrompt(t, env, 1)

	// Text-only channels answer by typing the button label.
	env.dispatcher.ReportMessage(models.KindDiscord, 1, env.msgs.ConfirmYes)

	result := waitResult(t, ch)
	assert.Equal(t, DecisionAllow, result.Decision)
}

func TestLogin_Timeout(t *testing.T) {
	cfg := testLinkingConfig()
	cfg.ConfirmWaitTimeout = 20 * time.Millisecond
	env := newTestEnv(t, cfg)
	svc := env.newConfirm()

	env.seedLink(t, "steve", 1, func(l *models.AccountLink) { l.TOTPEnabled = true })

	result, err := svc.Login(context.Background(), "steve", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, result.Decision)
	assert.Equal(t, env.msgs.ConfirmKickMessage, result.KickReason)
}

func TestLogin_ContextCancelAbandons(t *testing.T) {
	env := newTestEnv(t, testLinkingConfig())
	svc := env.newConfirm()

	env.seedLink(t, "steve", 1, func(l *models.AccountLink) { l.TOTPEnabled = true })

	ctx, cancel := context.WithCancel(context.Background())
	ch := startLogin(ctx, svc, "steve", "1.2.3.4")
	waitForPrompt(t, env, 1)

	cancel()

	result := waitResult(t, ch)
	assert.Equal(t, DecisionAbandoned, result.Decision)
}

func TestLogin_SecondAttemptAbandonsFirst(t *testing.T) {
	env := newTestEnv(t, testLinkingConfig())
	svc := env.newConfirm()
	svc.RegisterHandlers()

	env.seedLink(t, "steve", 1, func(l *models.AccountLink) { l.TOTPEnabled = true })

	first := startLogin(context.Background(), svc, "steve", "1.2.3.4")
	waitForPrompt(t, env, 1)

	second := startLogin(context.Background(), svc, "steve", "5.6.7.8")

	result := waitResult(t, first)
	assert.Equal(t, DecisionAbandoned, result.Decision)

	waitForPrompt(t, env, 2)
	env.dispatcher.ReportButton(models.KindDiscord, 1, buttonConfirmYes)

	result = waitResult(t, second)
	assert.Equal(t, DecisionAllow, result.Decision)
}

func TestLogin_AnswerWithoutSessionIgnored(t *testing.T) {
	env := newTestEnv(t, testLinkingConfig())
	svc := env.newConfirm()
	svc.RegisterHandlers()

	env.seedLink(t, "steve", 1, nil)

	env.dispatcher.ReportButton(models.KindDiscord, 1, buttonConfirmYes)
	assert.Empty(t, env.backend.messages())
}

func TestAskKeyboard_ReverseYesNo(t *testing.T) {
	cfg := testLinkingConfig()
	env := newTestEnv(t, cfg)
	svc := env.newConfirm()

	// No leads by default: a rushed click is the safe answer.
	kb := svc.askKeyboard()
	require.Len(t, kb, 1)
	require.Len(t, kb[0], 2)
	assert.Equal(t, buttonConfirmNo, kb[0][0].ID)

	cfg.ReverseYesNo = true
	env2 := newTestEnv(t, cfg)
	reversed := env2.newConfirm().askKeyboard()
	assert.Equal(t, buttonConfirmYes, reversed[0][0].ID)
}

func TestPlayerJoined_Notifies(t *testing.T) {
	env := newTestEnv(t, testLinkingConfig())
	svc := env.newConfirm()

	env.seedLink(t, "steve", 1, nil)

	require.NoError(t, svc.PlayerJoined(context.Background(), "steve", "1.2.3.4"))
	assert.Contains(t, env.backend.lastMessage(t).text, "1.2.3.4")
}

func TestPlayerJoined_RecommendsLinkingToUnlinked(t *testing.T) {
	env := newTestEnv(t, testLinkingConfig())
	svc := env.newConfirm()

	require.NoError(t, svc.PlayerJoined(context.Background(), "stranger", "1.2.3.4"))

	assert.Empty(t, env.backend.messages(), "nothing to send on channels yet")
	require.NotEmpty(t, env.game.told())
	assert.Equal(t, env.msgs.LinkAnnouncement, env.game.told()[0])
}

func TestPlayerJoined_SkipsTwoFactorLogins(t *testing.T) {
	env := newTestEnv(t, testLinkingConfig())
	svc := env.newConfirm()

	env.seedLink(t, "steve", 1, func(l *models.AccountLink) { l.TOTPEnabled = true })

	require.NoError(t, svc.PlayerJoined(context.Background(), "steve", "1.2.3.4"))
	assert.Empty(t, env.backend.messages())
}

func TestPlayerJoined_RespectsNotifyFlag(t *testing.T) {
	env := newTestEnv(t, testLinkingConfig())
	svc := env.newConfirm()

	env.seedLink(t, "steve", 1, func(l *models.AccountLink) { l.NotifyEnabled = false })

	require.NoError(t, svc.PlayerJoined(context.Background(), "steve", "1.2.3.4"))
	assert.Empty(t, env.backend.messages())
}

func TestPlayerLeft_AbandonsOpenSession(t *testing.T) {
	env := newTestEnv(t, testLinkingConfig())
	svc := env.newConfirm()

	env.seedLink(t, "steve", 1, func(l *models.AccountLink) { l.TOTPEnabled = true })

	ch := startLogin(context.Background(), svc, "steve", "1.2.3.4")
	waitForPrompt(t, env, 1)

	require.NoError(t, svc.PlayerLeft(context.Background(), "steve"))

	result := waitResult(t, ch)
	assert.Equal(t, DecisionAbandoned, result.Decision)
}

func TestPlayerLeft_Notifies(t *testing.T) {
	env := newTestEnv(t, testLinkingConfig())
	svc := env.newConfirm()

	env.seedLink(t, "steve", 1, nil)

	require.NoError(t, svc.PlayerLeft(context.Background(), "steve"))
	assert.Equal(t, env.msgs.NotifyLeave, env.backend.lastMessage(t).text)
}
