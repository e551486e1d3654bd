package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/extracto/internal/auth"
	"github.com/OCAP2/extracto/internal/config"
	"github.com/OCAP2/extracto/internal/dispatcher"
	"github.com/OCAP2/extracto/internal/engine"
	"github.com/OCAP2/extracto/internal/game"
	"github.com/OCAP2/extracto/internal/logging"
	"github.com/OCAP2/extracto/internal/monitor"
	"github.com/OCAP2/extracto/internal/scheduler"
	"github.com/OCAP2/extracto/internal/seed"
	"github.com/OCAP2/extracto/internal/storage/memory"
	"github.com/OCAP2/extracto/pkg/core"
)

func TestParseLine(t *testing.T) {
	e, err := ParseLine(`  :init:player: alice "Alice Smith" `)
	require.NoError(t, err)
	assert.Equal(t, CmdInitPlayer, e.Command)
	assert.Equal(t, []string{"alice", "Alice Smith"}, e.Args)
	assert.Empty(t, e.Signer)

	e, err = ParseLine("@burner :TICK: alice")
	require.NoError(t, err)
	assert.Equal(t, CmdTick, e.Command)
	assert.Equal(t, "burner", e.Signer)
	assert.Equal(t, []string{"alice"}, e.Args)
}

func TestParseLine_Errors(t *testing.T) {
	_, err := ParseLine("   ")
	assert.ErrorIs(t, err, ErrEmptyLine)

	for _, line := range []string{"TICK alice", "@ :TICK: a", "@bob", "::", `:TICK: "open`} {
		_, err := ParseLine(line)
		assert.Error(t, err, line)
	}
}

type harness struct {
	d        *dispatcher.Dispatcher
	sessions *auth.Sessions
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sessions := auth.NewSessions()
	sched := scheduler.NewManager(time.Hour, nil)

	g, err := game.NewService(game.Dependencies{
		Storage:   memory.New(config.MemoryConfig{}),
		Seeds:     seed.NewCounter(0),
		Auth:      sessions,
		Scheduler: sched,
	})
	require.NoError(t, err)
	t.Cleanup(g.Shutdown)

	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(d.Close)

	svc := NewService(Dependencies{
		Game:     g,
		Sessions: sessions,
		Monitor:  monitor.NewService(monitor.Dependencies{ActiveRuns: g.ActiveRuns, Scheduler: sched}),
		Version:  "test",

		SessionTTL: time.Hour,
	})
	require.NoError(t, svc.Register(d))
	return &harness{d: d, sessions: sessions}
}

func (h *harness) run(t *testing.T, line string) (any, error) {
	t.Helper()
	e, err := ParseLine(line)
	require.NoError(t, err)
	return h.d.Dispatch(context.Background(), e)
}

func (h *harness) must(t *testing.T, line string) any {
	t.Helper()
	out, err := h.run(t, line)
	require.NoError(t, err, line)
	return out
}

func TestRegister_Commands(t *testing.T) {
	h := newHarness(t)
	for _, cmd := range []string{
		CmdInitPlayer, CmdStartRun, CmdTick, CmdUpgrade, CmdFinishRun, CmdPause, CmdResume,
		CmdIncrement, CmdReset, CmdSnapshot, CmdStatus, CmdSessionGrant, CmdSessionEnd, CmdVersion,
	} {
		assert.True(t, h.d.HasHandler(cmd), cmd)
	}
	assert.Equal(t, "test", h.must(t, ":VERSION:"))
}

func TestFullRunThroughCommands(t *testing.T) {
	h := newHarness(t)

	p := h.must(t, `:INIT:PLAYER: alice "Alice"`).(core.Player)
	assert.Equal(t, "Alice", p.Name)

	h.must(t, ":START:RUN: alice")
	for i := 0; i < 5; i++ {
		h.must(t, ":TICK: alice")
	}
	r := h.must(t, ":UPGRADE: alice 2 0").(core.Run)
	assert.Equal(t, uint64(5+engine.UpgradeScore), r.Score)

	assert.Equal(t, uint64(106), h.must(t, ":INCREMENT: alice"))
	assert.Equal(t, "paused", h.must(t, ":PAUSE: alice"))
	assert.Equal(t, "resumed", h.must(t, ":RESUME: alice"))

	st := h.must(t, ":STATUS:").(monitor.Status)
	assert.Equal(t, 1, st.ActiveRuns)

	delta := h.must(t, ":FINISH:RUN: alice").(core.ScoreDelta)
	assert.Equal(t, uint64(106), delta.FinalScore)

	snap := h.must(t, ":SNAPSHOT: alice").(SnapshotResult)
	assert.Equal(t, uint64(106), snap.Player.BestScore)
	assert.Zero(t, snap.Run.Score)

	assert.Equal(t, uint64(0), h.must(t, ":RESET: alice"))
}

func TestSignedCommands(t *testing.T) {
	h := newHarness(t)
	h.must(t, ":INIT:PLAYER: alice Alice")
	h.must(t, ":START:RUN: alice")

	_, err := h.run(t, "@burner :TICK: alice")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	// only the owner can delegate
	_, err = h.run(t, "@burner :SESSION:GRANT: alice burner 1h")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	sess := h.must(t, ":SESSION:GRANT: alice burner").(auth.Session)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, time.Minute)
	h.must(t, "@burner :TICK: alice")

	assert.Equal(t, "revoked", h.must(t, "@burner :SESSION:REVOKE: alice burner"))
	_, err = h.run(t, "@burner :TICK: alice")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	// nobody may create a profile for someone else
	_, err = h.run(t, "@mallory :INIT:PLAYER: bob Bob")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestArgumentErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, ":TICK:")
	assert.ErrorIs(t, err, ErrArgs)
	_, err = h.run(t, ":UPGRADE: alice x 0")
	assert.Error(t, err)
	_, err = h.run(t, ":UPGRADE: alice 0")
	assert.ErrorIs(t, err, ErrArgs)
	_, err = h.run(t, ":SESSION:GRANT: alice burner soon")
	assert.Error(t, err)
	_, err = h.run(t, ":NOPE:")
	assert.ErrorIs(t, err, dispatcher.ErrUnknownCommand)
	_, err = h.run(t, ":FINISH:RUN: alice")
	assert.Error(t, err)
}
