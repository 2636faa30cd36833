package services

import (
	"context"
	"testing"

	"github.com/avdeyev/socialguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPanelEnv(t *testing.T, cfg ...func(*testEnv)) (*testEnv, *PanelService) {
	t.Helper()

	env := newTestEnv(t, testLinkingConfig())
	for _, mutate := range cfg {
		mutate(env)
	}

	linking := env.newLinking(t)
	panel := NewPanelService(env.dispatcher, env.links, env.identity, linking,
		env.game, noopGeo{}, env.msgs, env.cfg, testLogger())
	panel.RegisterHandlers()
	linking.SetKeyboard(panel.Keyboard())
	return env, panel
}

type noopGeo struct{}

func (noopGeo) Locate(ctx context.Context, ip string) string { return "" }

func click(env *testEnv, userID int64, buttonID string) {
	env.dispatcher.ReportButton(models.KindDiscord, userID, buttonID)
}

func TestPanel_UnlinkedClickerIgnored(t *testing.T) {
	env, _ := newPanelEnv(t)

	click(env, 999, buttonInfo)
	assert.Empty(t, env.backend.messages())
}

func TestPanel_Info(t *testing.T) {
	env, _ := newPanelEnv(t)

	env.seedLink(t, "steve", 1, nil)
	env.game.setOnline("steve", "lobby", "1.2.3.4")

	click(env, 1, buttonInfo)

	reply := env.backend.lastMessage(t).text
	assert.Contains(t, reply, "steve")
	assert.Contains(t, reply, "lobby")
	assert.Contains(t, reply, "1.2.3.4")
}

func TestPanel_InfoOffline(t *testing.T) {
	env, _ := newPanelEnv(t)

	env.seedLink(t, "steve", 1, nil)

	click(env, 1, buttonInfo)
	assert.Contains(t, env.backend.lastMessage(t).text, env.msgs.StatusOffline)
}

func TestPanel_BlockToggleKicksPlayer(t *testing.T) {
	env, _ := newPanelEnv(t)

	env.seedLink(t, "steve", 1, nil)
	env.game.setOnline("steve", "lobby", "1.2.3.4")

	click(env, 1, buttonBlock)

	link, err := env.links.GetByName(context.Background(), "steve")
	require.NoError(t, err)
	assert.True(t, link.Blocked)

	kicks := env.game.kicked()
	require.Len(t, kicks, 1)
	assert.Equal(t, "steve", kicks[0].nickname)
	assert.Equal(t, env.msgs.BlockKickMessage, kicks[0].reason)

	// Second click unblocks without kicking again.
	click(env, 1, buttonBlock)

	link, err = env.links.GetByName(context.Background(), "steve")
	require.NoError(t, err)
	assert.False(t, link.Blocked)
	assert.Len(t, env.game.kicked(), 1)
}

func TestPanel_TOTPToggle(t *testing.T) {
	env, _ := newPanelEnv(t)

	env.seedLink(t, "steve", 1, nil)

	click(env, 1, buttonTOTP)
	link, err := env.links.GetByName(context.Background(), "steve")
	require.NoError(t, err)
	assert.True(t, link.TOTPEnabled)

	click(env, 1, buttonTOTP)
	link, err = env.links.GetByName(context.Background(), "steve")
	require.NoError(t, err)
	assert.False(t, link.TOTPEnabled)
}

func TestPanel_NotifyToggle(t *testing.T) {
	env, _ := newPanelEnv(t)

	env.seedLink(t, "steve", 1, nil)

	click(env, 1, buttonNotify)
	link, err := env.links.GetByName(context.Background(), "steve")
	require.NoError(t, err)
	assert.False(t, link.NotifyEnabled)
}

func TestPanel_Kick(t *testing.T) {
	env, _ := newPanelEnv(t)

	env.seedLink(t, "steve", 1, nil)
	env.game.setOnline("steve", "lobby", "1.2.3.4")

	click(env, 1, buttonKick)
	assert.Contains(t, env.backend.lastMessage(t).text, "steve")
	require.Len(t, env.game.kicked(), 1)

	// Player is now offline.
	click(env, 1, buttonKick)
	assert.Contains(t, env.backend.lastMessage(t).text, "offline")
}

func TestPanel_Restore(t *testing.T) {
	env, _ := newPanelEnv(t)

	env.identity.Seed("steve", "oldpw", false)
	env.seedLink(t, "steve", 1, nil)

	click(env, 1, buttonRestore)

	password, ok := env.identity.Password("steve")
	require.True(t, ok)
	assert.NotEqual(t, "oldpw", password)
	assert.Contains(t, env.backend.lastMessage(t).text, password)
}

func TestPanel_RestorePremiumProhibited(t *testing.T) {
	env, _ := newPanelEnv(t, func(e *testEnv) {
		e.cfg.ProhibitPremiumRestore = true
	})

	env.identity.Seed("notch", "oldpw", true)
	env.seedLink(t, "notch", 1, nil)

	click(env, 1, buttonRestore)

	password, _ := env.identity.Password("notch")
	assert.Equal(t, "oldpw", password)
	assert.Contains(t, env.backend.lastMessage(t).text, "notch")
}

func TestPanel_UnlinkGuardOrder(t *testing.T) {
	env, _ := newPanelEnv(t)

	env.seedLink(t, "steve", 1, func(l *models.AccountLink) {
		l.Blocked = true
		l.TOTPEnabled = true
	})

	// Blocked wins over 2FA.
	click(env, 1, buttonUnlink)
	assert.Equal(t, env.msgs.UnlinkBlockConflict, env.backend.lastMessage(t).text)

	link, err := env.links.GetByName(context.Background(), "steve")
	require.NoError(t, err)
	link.Blocked = false
	require.NoError(t, env.links.Update(context.Background(), link))

	click(env, 1, buttonUnlink)
	assert.Equal(t, env.msgs.Unlink2FAConflict, env.backend.lastMessage(t).text)

	link, err = env.links.GetByName(context.Background(), "steve")
	require.NoError(t, err)
	link.TOTPEnabled = false
	require.NoError(t, env.links.Update(context.Background(), link))

	click(env, 1, buttonUnlink)
	assert.Equal(t, env.msgs.UnlinkSuccess, env.backend.lastMessage(t).text)

	_, err = env.links.GetByName(context.Background(), "steve")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPanel_KeyboardLayout(t *testing.T) {
	_, panel := newPanelEnv(t)

	buttons := panel.Keyboard().Buttons()
	ids := make([]string, 0, len(buttons))
	for _, b := range buttons {
		ids = append(ids, b.ID)
	}

	assert.ElementsMatch(t, ids, []string{
		buttonInfo, buttonBlock, buttonTOTP, buttonNotify,
		buttonKick, buttonRestore, buttonUnlink,
	})
}
