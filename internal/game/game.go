// Package game hosts runs: it loads state from storage, applies one engine
// operation to a copy and persists the result, serializing work per owner.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/OCAP2/extracto/internal/auth"
	"github.com/OCAP2/extracto/internal/engine"
	"github.com/OCAP2/extracto/internal/scheduler"
	"github.com/OCAP2/extracto/internal/seed"
	"github.com/OCAP2/extracto/internal/storage"
	"github.com/OCAP2/extracto/pkg/core"
)

var (
	ErrPlayerExists = errors.New("player already exists")
	ErrRunActive    = errors.New("run already active")
	ErrNoActiveRun  = errors.New("no active run")
	ErrBadName      = errors.New("invalid player name")
)

// MaxNameLength bounds the profile name in bytes.
const MaxNameLength = 32

// Sink receives a copy of every committed tick and finished run, for
// example to forward them to a time-series database.
type Sink interface {
	WriteTick(rec *core.TickRecord) error
	WriteSummary(s *core.RunSummary) error
}

// Sinks fans every record out to each sink in order and joins their errors.
type Sinks []Sink

func (s Sinks) WriteTick(rec *core.TickRecord) error {
	var errs []error
	for _, sink := range s {
		if err := sink.WriteTick(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s Sinks) WriteSummary(sum *core.RunSummary) error {
	var errs []error
	for _, sink := range s {
		if err := sink.WriteSummary(sum); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dependencies holds everything the service needs. Scheduler, Meter, Sink
// and Logger are optional.
type Dependencies struct {
	Storage   storage.Backend
	Auth      auth.Authorizer
	Seeds     seed.Source
	Scheduler *scheduler.Manager
	Meter     metric.Meter
	Sink      Sink
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service is safe for concurrent use. Operations on the same owner run one
// at a time; different owners proceed in parallel.
type Service struct {
	deps Dependencies

	mu    sync.Mutex
	locks map[core.Owner]*sync.Mutex

	metrics metrics
}

type metrics struct {
	ticks    metric.Int64Counter
	kills    metric.Int64Counter
	losses   metric.Int64Counter
	upgrades metric.Int64Counter
	finished metric.Int64Counter
}

func newMetrics(m metric.Meter) (metrics, error) {
	var out metrics
	var err error
	if out.ticks, err = m.Int64Counter("extracto.ticks",
		metric.WithDescription("Committed ticks")); err != nil {
		return out, err
	}
	if out.kills, err = m.Int64Counter("extracto.kills",
		metric.WithDescription("Hostiles killed by friendlies")); err != nil {
		return out, err
	}
	if out.losses, err = m.Int64Counter("extracto.losses",
		metric.WithDescription("Friendlies killed by hostiles")); err != nil {
		return out, err
	}
	if out.upgrades, err = m.Int64Counter("extracto.upgrades",
		metric.WithDescription("Upgrade cards played")); err != nil {
		return out, err
	}
	if out.finished, err = m.Int64Counter("extracto.runs.finished",
		metric.WithDescription("Runs finished")); err != nil {
		return out, err
	}
	return out, nil
}

// NewService validates deps and registers the service's counters.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Storage == nil {
		return nil, errors.New("game: storage is required")
	}
	if deps.Seeds == nil {
		return nil, errors.New("game: seed source is required")
	}
	if deps.Auth == nil {
		deps.Auth = auth.OwnerOnly{}
	}
	if deps.Meter == nil {
		deps.Meter = noop.NewMeterProvider().Meter("extracto/game")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	m, err := newMetrics(deps.Meter)
	if err != nil {
		return nil, fmt.Errorf("game: create metrics: %w", err)
	}

	return &Service{
		deps:    deps,
		locks:   make(map[core.Owner]*sync.Mutex),
		metrics: m,
	}, nil
}

// lock returns with the owner's mutex held.
func (s *Service) lock(owner core.Owner) func() {
	s.mu.Lock()
	l, ok := s.locks[owner]
	if !ok {
		l = &sync.Mutex{}
		s.locks[owner] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Service) authorize(owner, signer core.Owner) error {
	if err := s.deps.Auth.Authorize(owner, signer); err != nil {
		return fmt.Errorf("%s: %w", owner.Short(), err)
	}
	return nil
}

// load reads both records of owner.
func (s *Service) load(owner core.Owner) (core.Player, core.Run, error) {
	p, err := s.deps.Storage.LoadPlayer(owner)
	if err != nil {
		return core.Player{}, core.Run{}, err
	}
	r, err := s.deps.Storage.LoadRun(owner)
	if err != nil {
		return core.Player{}, core.Run{}, err
	}
	return p, r, nil
}

// loadActive is load for operations that need a run in progress.
func (s *Service) loadActive(owner core.Owner) (core.Player, core.Run, error) {
	p, r, err := s.load(owner)
	if err != nil {
		return p, r, err
	}
	if !p.InRun {
		return p, r, fmt.Errorf("%s: %w", owner.Short(), ErrNoActiveRun)
	}
	return p, r, nil
}

// InitPlayer creates the profile of signer and an empty run bound to it.
func (s *Service) InitPlayer(ctx context.Context, signer core.Owner, name string) (core.Player, error) {
	if name == "" || len(name) > MaxNameLength {
		return core.Player{}, fmt.Errorf("%w: %q", ErrBadName, name)
	}

	unlock := s.lock(signer)
	defer unlock()

	if _, err := s.deps.Storage.LoadPlayer(signer); err == nil {
		return core.Player{}, fmt.Errorf("%s: %w", signer.Short(), ErrPlayerExists)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return core.Player{}, err
	}

	p := core.Player{Owner: signer, Name: name}
	r := core.Run{Owner: signer}
	if err := s.deps.Storage.Commit(&p, &r); err != nil {
		return core.Player{}, fmt.Errorf("init player: %w", err)
	}

	s.deps.Logger.InfoContext(ctx, "Player initialized", "owner", signer.Short(), "name", name)
	return p, nil
}

// StartRun lays out the opening battlefield and starts the tick thread.
func (s *Service) StartRun(ctx context.Context, owner, signer core.Owner) (core.Run, error) {
	if err := s.authorize(owner, signer); err != nil {
		return core.Run{}, err
	}

	unlock := s.lock(owner)
	defer unlock()

	p, err := s.deps.Storage.LoadPlayer(owner)
	if err != nil {
		return core.Run{}, err
	}
	if p.InRun {
		return core.Run{}, fmt.Errorf("%s: %w", owner.Short(), ErrRunActive)
	}

	r := engine.StartRun(owner)
	p.InRun = true
	if err := s.deps.Storage.Commit(&p, &r); err != nil {
		return core.Run{}, fmt.Errorf("start run: %w", err)
	}

	if s.deps.Scheduler != nil {
		if err := s.deps.Scheduler.Start(owner, s.threadTick); err != nil {
			s.deps.Logger.WarnContext(ctx, "Tick thread not started", "owner", owner.Short(), "error", err)
		}
	}

	s.deps.Logger.InfoContext(ctx, "Run started", "owner", owner.Short())
	return r, nil
}

// AdvanceTick resolves one tick on behalf of signer.
func (s *Service) AdvanceTick(ctx context.Context, owner, signer core.Owner) (engine.Outcome, error) {
	if err := s.authorize(owner, signer); err != nil {
		return engine.Outcome{}, err
	}
	return s.tick(ctx, owner)
}

// threadTick is the scheduler's TickFunc. The thread was created by an
// authorized StartRun, so it acts with the owner's authority.
func (s *Service) threadTick(ctx context.Context, owner core.Owner) error {
	_, err := s.tick(ctx, owner)
	return err
}

func (s *Service) tick(ctx context.Context, owner core.Owner) (engine.Outcome, error) {
	unlock := s.lock(owner)
	defer unlock()

	// a fire from a thread stopped while it waited on the lock must not
	// tick the run that replaced it
	if err := ctx.Err(); err != nil {
		return engine.Outcome{}, err
	}

	_, r, err := s.loadActive(owner)
	if err != nil {
		return engine.Outcome{}, err
	}

	seedValue := s.deps.Seeds.Next()
	next, out, err := engine.AdvanceTick(r, seedValue)
	if err != nil {
		return engine.Outcome{}, fmt.Errorf("tick %s: %w", owner.Short(), err)
	}
	if err := s.deps.Storage.Commit(nil, &next); err != nil {
		return engine.Outcome{}, fmt.Errorf("tick %s: %w", owner.Short(), err)
	}

	s.metrics.ticks.Add(ctx, 1)
	if out.Kills > 0 {
		s.metrics.kills.Add(ctx, int64(out.Kills))
	}
	if out.Losses > 0 {
		s.metrics.losses.Add(ctx, int64(out.Losses))
	}

	rec := &core.TickRecord{
		Owner:      owner.String(),
		Seed:       seedValue,
		Score:      next.Score,
		Experience: next.Experience,
		Occupants:  next.Occupants(),
		Moves:      out.Moves,
		Attacks:    out.Attacks,
		Kills:      out.Kills,
		Losses:     out.Losses,
		Spawned:    out.Spawned,
		Time:       s.deps.Now(),
	}
	// history is best effort; the tick itself is already committed
	if err := s.deps.Storage.RecordTick(rec); err != nil {
		s.deps.Logger.WarnContext(ctx, "Failed to record tick", "owner", owner.Short(), "error", err)
	}
	if s.deps.Sink != nil {
		if err := s.deps.Sink.WriteTick(rec); err != nil {
			s.deps.Logger.DebugContext(ctx, "Sink rejected tick", "error", err)
		}
	}

	s.deps.Logger.DebugContext(ctx, "Tick committed",
		"owner", owner.Short(),
		"score", next.Score,
		"experience", next.Experience,
		"kills", out.Kills,
		"spawned", out.Spawned,
	)
	return out, nil
}

// ApplyUpgrade plays the card at offer on the combatant at slot.
func (s *Service) ApplyUpgrade(ctx context.Context, owner, signer core.Owner, offer, slot int) (core.Run, error) {
	if err := s.authorize(owner, signer); err != nil {
		return core.Run{}, err
	}

	unlock := s.lock(owner)
	defer unlock()

	_, r, err := s.loadActive(owner)
	if err != nil {
		return core.Run{}, err
	}

	next, err := engine.ApplyUpgrade(r, s.deps.Seeds.Next(), offer, slot)
	if err != nil {
		return core.Run{}, fmt.Errorf("upgrade %s: %w", owner.Short(), err)
	}
	if err := s.deps.Storage.Commit(nil, &next); err != nil {
		return core.Run{}, fmt.Errorf("upgrade %s: %w", owner.Short(), err)
	}

	s.metrics.upgrades.Add(ctx, 1)
	s.deps.Logger.InfoContext(ctx, "Upgrade applied",
		"owner", owner.Short(), "offer", offer, "slot", slot, "experience", next.Experience)
	return next, nil
}

// FinishRun stops the tick thread, folds the score into the profile and
// stores the run summary.
func (s *Service) FinishRun(ctx context.Context, owner, signer core.Owner) (core.ScoreDelta, error) {
	if err := s.authorize(owner, signer); err != nil {
		return core.ScoreDelta{}, err
	}

	unlock := s.lock(owner)
	defer unlock()

	p, r, err := s.loadActive(owner)
	if err != nil {
		return core.ScoreDelta{}, err
	}

	nextRun, nextPlayer, delta, err := engine.FinishRun(r, p)
	if err != nil {
		return core.ScoreDelta{}, fmt.Errorf("finish %s: %w", owner.Short(), err)
	}
	if err := s.deps.Storage.Commit(&nextPlayer, &nextRun); err != nil {
		return core.ScoreDelta{}, fmt.Errorf("finish %s: %w", owner.Short(), err)
	}

	if s.deps.Scheduler != nil {
		if err := s.deps.Scheduler.Stop(owner); err != nil && !errors.Is(err, scheduler.ErrNoThread) {
			s.deps.Logger.WarnContext(ctx, "Failed to stop tick thread", "owner", owner.Short(), "error", err)
		}
	}
	s.metrics.finished.Add(ctx, 1)

	summary := &core.RunSummary{
		Owner:        owner.String(),
		Name:         nextPlayer.Name,
		FinalScore:   delta.FinalScore,
		BestScore:    delta.BestScore,
		NewBest:      delta.NewBest,
		RunsFinished: nextPlayer.RunsFinished,
		EndedAt:      s.deps.Now(),
	}
	if err := s.deps.Storage.EndRun(summary); err != nil {
		s.deps.Logger.ErrorContext(ctx, "Failed to store run summary", "owner", owner.Short(), "error", err)
	}
	if s.deps.Sink != nil {
		if err := s.deps.Sink.WriteSummary(summary); err != nil {
			s.deps.Logger.DebugContext(ctx, "Sink rejected summary", "error", err)
		}
	}

	s.deps.Logger.InfoContext(ctx, "Run finished",
		"owner", owner.Short(),
		"finalScore", delta.FinalScore,
		"bestScore", delta.BestScore,
		"newBest", delta.NewBest,
	)
	return delta, nil
}

// Increment bumps the score by one outside of combat.
func (s *Service) Increment(ctx context.Context, owner, signer core.Owner) (uint64, error) {
	return s.mutateRun(ctx, owner, signer, "increment", engine.Increment)
}

// Reset zeroes the score.
func (s *Service) Reset(ctx context.Context, owner, signer core.Owner) (uint64, error) {
	return s.mutateRun(ctx, owner, signer, "reset", func(r core.Run) (core.Run, error) {
		return engine.Reset(r), nil
	})
}

func (s *Service) mutateRun(ctx context.Context, owner, signer core.Owner, op string, fn func(core.Run) (core.Run, error)) (uint64, error) {
	if err := s.authorize(owner, signer); err != nil {
		return 0, err
	}

	unlock := s.lock(owner)
	defer unlock()

	r, err := s.deps.Storage.LoadRun(owner)
	if err != nil {
		return 0, err
	}
	next, err := fn(r)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", op, owner.Short(), err)
	}
	if err := s.deps.Storage.Commit(nil, &next); err != nil {
		return 0, fmt.Errorf("%s %s: %w", op, owner.Short(), err)
	}

	s.deps.Logger.DebugContext(ctx, "Score changed", "op", op, "owner", owner.Short(), "score", next.Score)
	return next.Score, nil
}

// Pause keeps the run but makes its tick thread skip fires.
func (s *Service) Pause(ctx context.Context, owner, signer core.Owner) error {
	return s.thread(ctx, owner, signer, "paused", func(m *scheduler.Manager) error { return m.Pause(owner) })
}

func (s *Service) Resume(ctx context.Context, owner, signer core.Owner) error {
	return s.thread(ctx, owner, signer, "resumed", func(m *scheduler.Manager) error { return m.Resume(owner) })
}

func (s *Service) thread(ctx context.Context, owner, signer core.Owner, verb string, fn func(*scheduler.Manager) error) error {
	if err := s.authorize(owner, signer); err != nil {
		return err
	}
	if s.deps.Scheduler == nil {
		return fmt.Errorf("%s: %w", owner.Short(), scheduler.ErrNoThread)
	}
	if err := fn(s.deps.Scheduler); err != nil {
		return err
	}
	s.deps.Logger.InfoContext(ctx, "Tick thread "+verb, "owner", owner.Short())
	return nil
}

// Snapshot returns the stored profile and run of owner. It needs no
// authorization.
func (s *Service) Snapshot(owner core.Owner) (core.Player, core.Run, error) {
	return s.load(owner)
}

// ActiveRuns returns the number of live tick threads.
func (s *Service) ActiveRuns() int {
	if s.deps.Scheduler == nil {
		return 0
	}
	return s.deps.Scheduler.Len()
}

// Shutdown stops every tick thread and waits for in-flight ticks.
func (s *Service) Shutdown() {
	if s.deps.Scheduler != nil {
		s.deps.Scheduler.StopAll()
	}
}
