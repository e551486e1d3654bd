// Package handlers binds the line commands to the game service.
package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/OCAP2/extracto/internal/auth"
	"github.com/OCAP2/extracto/internal/dispatcher"
	"github.com/OCAP2/extracto/internal/game"
	"github.com/OCAP2/extracto/internal/monitor"
	"github.com/OCAP2/extracto/pkg/core"
)

// Command names.
const (
	CmdInitPlayer   = ":INIT:PLAYER:"
	CmdStartRun     = ":START:RUN:"
	CmdTick         = ":TICK:"
	CmdUpgrade      = ":UPGRADE:"
	CmdFinishRun    = ":FINISH:RUN:"
	CmdPause        = ":PAUSE:"
	CmdResume       = ":RESUME:"
	CmdIncrement    = ":INCREMENT:"
	CmdReset        = ":RESET:"
	CmdSnapshot     = ":SNAPSHOT:"
	CmdStatus       = ":STATUS:"
	CmdSessionGrant = ":SESSION:GRANT:"
	CmdSessionEnd   = ":SESSION:REVOKE:"
	CmdVersion      = ":VERSION:"
)

// Dependencies holds all dependencies needed by handlers. Sessions and
// Monitor are optional; their commands are only registered when set.
type Dependencies struct {
	Game     *game.Service
	Sessions *auth.Sessions
	Monitor  *monitor.Service
	Version  string

	// SessionTTL applies to :SESSION:GRANT: lines that give no duration.
	SessionTTL time.Duration
}

// Service provides one handler per command.
type Service struct {
	deps Dependencies
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	return &Service{deps: deps}
}

// SnapshotResult is returned by :SNAPSHOT:.
type SnapshotResult struct {
	Player core.Player `json:"player"`
	Run    core.Run    `json:"run"`
}

// Register adds every command to d.
func (s *Service) Register(d *dispatcher.Dispatcher) error {
	handlers := map[string]dispatcher.HandlerFunc{
		CmdInitPlayer: s.initPlayer,
		CmdStartRun:   s.startRun,
		CmdTick:       s.tick,
		CmdUpgrade:    s.upgrade,
		CmdFinishRun:  s.finishRun,
		CmdPause:      s.pause,
		CmdResume:     s.resume,
		CmdIncrement:  s.increment,
		CmdReset:      s.reset,
		CmdSnapshot:   s.snapshot,
		CmdVersion: func(context.Context, dispatcher.Event) (any, error) {
			return s.deps.Version, nil
		},
	}
	if s.deps.Monitor != nil {
		handlers[CmdStatus] = s.status
	}
	if s.deps.Sessions != nil {
		handlers[CmdSessionGrant] = s.sessionGrant
		handlers[CmdSessionEnd] = s.sessionRevoke
	}

	for cmd, h := range handlers {
		if err := d.Register(cmd, h, dispatcher.Logged()); err != nil {
			return err
		}
	}
	return nil
}

// identities reads the owner from the first argument. The signer is the
// event's signer, or the owner itself when the line was not signed.
func identities(e dispatcher.Event, want int) (owner, signer core.Owner, err error) {
	if len(e.Args) != want {
		return owner, signer, fmt.Errorf("%w: %s wants %d, got %d", ErrArgs, e.Command, want, len(e.Args))
	}
	if owner, err = core.ParseOwner(e.Args[0]); err != nil {
		return owner, signer, err
	}
	if e.Signer == "" {
		return owner, owner, nil
	}
	signer, err = core.ParseOwner(e.Signer)
	return owner, signer, err
}

func (s *Service) initPlayer(ctx context.Context, e dispatcher.Event) (any, error) {
	owner, signer, err := identities(e, 2)
	if err != nil {
		return nil, err
	}
	// a profile can only be created by its own key
	if owner != signer {
		return nil, fmt.Errorf("init player: %w", auth.ErrUnauthorized)
	}
	return s.deps.Game.InitPlayer(ctx, owner, e.Args[1])
}

func (s *Service) startRun(ctx context.Context, e dispatcher.Event) (any, error) {
	owner, signer, err := identities(e, 1)
	if err != nil {
		return nil, err
	}
	return s.deps.Game.StartRun(ctx, owner, signer)
}

func (s *Service) tick(ctx context.Context, e dispatcher.Event) (any, error) {
	owner, signer, err := identities(e, 1)
	if err != nil {
		return nil, err
	}
	return s.deps.Game.AdvanceTick(ctx, owner, signer)
}

func (s *Service) upgrade(ctx context.Context, e dispatcher.Event) (any, error) {
	owner, signer, err := identities(e, 3)
	if err != nil {
		return nil, err
	}
	offer, err := strconv.Atoi(e.Args[1])
	if err != nil {
		return nil, fmt.Errorf("offer %q: %w", e.Args[1], err)
	}
	slot, err := strconv.Atoi(e.Args[2])
	if err != nil {
		return nil, fmt.Errorf("slot %q: %w", e.Args[2], err)
	}
	return s.deps.Game.ApplyUpgrade(ctx, owner, signer, offer, slot)
}

func (s *Service) finishRun(ctx context.Context, e dispatcher.Event) (any, error) {
	owner, signer, err := identities(e, 1)
	if err != nil {
		return nil, err
	}
	return s.deps.Game.FinishRun(ctx, owner, signer)
}

func (s *Service) pause(ctx context.Context, e dispatcher.Event) (any, error) {
	owner, signer, err := identities(e, 1)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Game.Pause(ctx, owner, signer); err != nil {
		return nil, err
	}
	return "paused", nil
}

func (s *Service) resume(ctx context.Context, e dispatcher.Event) (any, error) {
	owner, signer, err := identities(e, 1)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Game.Resume(ctx, owner, signer); err != nil {
		return nil, err
	}
	return "resumed", nil
}

func (s *Service) increment(ctx context.Context, e dispatcher.Event) (any, error) {
	owner, signer, err := identities(e, 1)
	if err != nil {
		return nil, err
	}
	return s.deps.Game.Increment(ctx, owner, signer)
}

func (s *Service) reset(ctx context.Context, e dispatcher.Event) (any, error) {
	owner, signer, err := identities(e, 1)
	if err != nil {
		return nil, err
	}
	return s.deps.Game.Reset(ctx, owner, signer)
}

func (s *Service) snapshot(_ context.Context, e dispatcher.Event) (any, error) {
	owner, _, err := identities(e, 1)
	if err != nil {
		return nil, err
	}
	p, r, err := s.deps.Game.Snapshot(owner)
	if err != nil {
		return nil, err
	}
	return SnapshotResult{Player: p, Run: r}, nil
}

func (s *Service) status(context.Context, dispatcher.Event) (any, error) {
	st, _ := s.deps.Monitor.GetStatus()
	return st, nil
}

// sessionGrant takes owner, the delegated key and an optional duration such
// as 30m. Only the owner may delegate.
func (s *Service) sessionGrant(_ context.Context, e dispatcher.Event) (any, error) {
	if len(e.Args) != 2 && len(e.Args) != 3 {
		return nil, fmt.Errorf("%w: %s wants 2 or 3, got %d", ErrArgs, e.Command, len(e.Args))
	}
	owner, signer, err := identities(dispatcher.Event{Command: e.Command, Args: e.Args[:1], Signer: e.Signer}, 1)
	if err != nil {
		return nil, err
	}
	if owner != signer {
		return nil, fmt.Errorf("grant session: %w", auth.ErrUnauthorized)
	}
	delegate, err := core.ParseOwner(e.Args[1])
	if err != nil {
		return nil, err
	}
	ttl := s.deps.SessionTTL
	if len(e.Args) == 3 {
		if ttl, err = time.ParseDuration(e.Args[2]); err != nil {
			return nil, fmt.Errorf("session ttl %q: %w", e.Args[2], err)
		}
	}
	return s.deps.Sessions.Grant(owner, delegate, ttl)
}

// sessionRevoke takes the owner and the delegated key.
func (s *Service) sessionRevoke(_ context.Context, e dispatcher.Event) (any, error) {
	if len(e.Args) != 2 {
		return nil, fmt.Errorf("%w: %s wants 2, got %d", ErrArgs, e.Command, len(e.Args))
	}
	owner, signer, err := identities(dispatcher.Event{Command: e.Command, Args: e.Args[:1], Signer: e.Signer}, 1)
	if err != nil {
		return nil, err
	}
	delegate, err := core.ParseOwner(e.Args[1])
	if err != nil {
		return nil, err
	}
	// the owner or the delegate itself may end a session
	if signer != owner && signer != delegate {
		return nil, fmt.Errorf("revoke session: %w", auth.ErrUnauthorized)
	}
	if err := s.deps.Sessions.Authorize(owner, delegate); err != nil {
		return nil, err
	}
	s.deps.Sessions.Revoke(delegate)
	return "revoked", nil
}
