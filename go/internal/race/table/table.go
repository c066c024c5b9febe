package table

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/turfline/derby/go/internal/models"
	"github.com/turfline/derby/go/internal/race/engine"
	"github.com/turfline/derby/go/internal/race/events"
	"github.com/turfline/derby/go/internal/race/replay"
	"github.com/turfline/derby/go/internal/wallet"
)

// Validation errors returned to bettors. None of them mutate state.
var (
	ErrWrongPhase   = errors.New("bets are only accepted during the betting phase")
	ErrUnknownBet   = errors.New("unknown bet type")
	ErrBadSelection = errors.New("invalid horse selection for bet type")
	ErrUnknownHorse = errors.New("horse is not in the current roster")
	ErrBadAmount    = errors.New("bet amount must be positive")
	ErrDuplicateBet = errors.New("identical bet already pending this cycle")
	ErrBetNotFound  = errors.New("bet not found in the current cycle")
	ErrNotYourBet   = errors.New("bet belongs to another user")
	ErrCancelClosed = errors.New("betting window is closed, bet cannot be cancelled")
)

// Broadcaster is the fanout surface the table drives. The gateway
// implements it over websockets; the relay mirrors it onto NATS.
type Broadcaster interface {
	Broadcast(eventType string, payload any)
	SendToUser(userID string, eventType string, payload any)
}

// Metrics collects table counters. A no-op implementation is used when
// metrics are disabled.
type Metrics interface {
	BetPlaced(betType string, amount int64)
	BetRejected(reason string)
	BetCancelled()
	SettlementRan(winners int, totalPaid int64, took time.Duration)
	CycleCompleted()
}

// NoOpMetrics discards all counters.
type NoOpMetrics struct{}

func (NoOpMetrics) BetPlaced(string, int64)                 {}
func (NoOpMetrics) BetRejected(string)                      {}
func (NoOpMetrics) BetCancelled()                           {}
func (NoOpMetrics) SettlementRan(int, int64, time.Duration) {}
func (NoOpMetrics) CycleCompleted()                         {}

// Config bundles the fixed table parameters.
type Config struct {
	Cycle  models.CycleConfig `yaml:"cycle"`
	Engine engine.Config      `yaml:"engine"`
}

// DefaultConfig returns the reference table setup.
func DefaultConfig() Config {
	return Config{Cycle: models.DefaultCycleConfig(), Engine: engine.DefaultConfig()}
}

// Table owns all state of the single race table: the current cycle, the
// horse roster, the bet ledger and the settlement guard. There are no
// package globals; every component reaches the cycle through this struct.
// The scheduler goroutine and the connection handlers share one mutex, and
// the authoritative phase is always re-derived from the clock, never cached
// from the moment a client believed it clicked.
type Table struct {
	cfg     Config
	clock   clockwork.Clock
	wallet  wallet.Store
	bcast   Broadcaster
	metrics Metrics

	mu      sync.Mutex
	cycleID int64 // cycle start in epoch ms; doubles as the race seed
	rng     *rand.Rand
	horses  []*models.Horse
	bets    map[uuid.UUID]*models.Bet
	betKeys map[string]uuid.UUID // duplicate-bet guard, canonical selection key
	result  *models.RaceResult
	settled map[int64]bool
	lastErr error // last settlement error, retried on the next boundary
}

// New creates a race table. The wallet is the external balance store; the
// broadcaster may be nil until the gateway attaches.
func New(cfg Config, clock clockwork.Clock, store wallet.Store, metrics Metrics) *Table {
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	return &Table{
		cfg:     cfg,
		clock:   clock,
		wallet:  store,
		metrics: metrics,
		bets:    make(map[uuid.UUID]*models.Bet),
		betKeys: make(map[string]uuid.UUID),
		settled: make(map[int64]bool),
	}
}

// AttachBroadcaster wires the fanout surface. Must be called before Run.
func (t *Table) AttachBroadcaster(b Broadcaster) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bcast = b
}

// Phase returns the authoritative current phase, derived from wall clock.
func (t *Table) Phase() models.Phase {
	return t.cfg.Cycle.PhaseAt(t.clock.Now())
}

// CycleID returns the id (start epoch ms) of the cycle containing now.
func (t *Table) CycleID() int64 {
	return t.cfg.Cycle.CycleStart(t.clock.Now()).UnixMilli()
}

// rngFor returns the deterministic randomness source for a cycle. Seeding
// with the cycle id makes the roster and the whole race a pure function of
// the wall-clock grid: a restarted instance, or a second instance on the
// same grid, regenerates the identical race.
func rngFor(cycleID int64) *rand.Rand {
	return rand.New(rand.NewSource(cycleID))
}

// ensureCycle regenerates cycle state after a start or restart: the roster
// always, and the race itself when the clock says the cycle is already past
// the preparing boundary. Callers hold t.mu.
func (t *Table) ensureCycle(now time.Time) {
	cycleID := t.cfg.Cycle.CycleStart(now).UnixMilli()
	if cycleID == t.cycleID && t.horses != nil {
		return
	}

	// Last chance for a failed settlement before the old ledger is cleared.
	if t.result != nil && !t.settled[t.cycleID] && len(t.bets) > 0 {
		if err := t.settle(context.Background()); err != nil {
			log.Error().Err(err).Int64("cycle_id", t.cycleID).Msg("final settlement retry failed; abandoning cycle")
		}
	}

	// Guards older than the cycle being closed can never be consulted
	// again; without pruning the map grows for the process lifetime.
	for id := range t.settled {
		if id < t.cycleID {
			delete(t.settled, id)
		}
	}

	t.rng = rngFor(cycleID)
	t.cycleID = cycleID
	t.horses = engine.NewRoster(t.rng, t.cfg.Engine)
	t.bets = make(map[uuid.UUID]*models.Bet)
	t.betKeys = make(map[string]uuid.UUID)
	t.result = nil

	log.Info().
		Int64("cycle_id", cycleID).
		Int("horses", len(t.horses)).
		Msg("cycle state initialized")

	if t.cfg.Cycle.PhaseAt(now) != models.PhaseBetting {
		// Joined mid-cycle (restart): the race must already exist.
		if err := t.generateRace(); err != nil {
			log.Error().Err(err).Int64("cycle_id", cycleID).Msg("failed to regenerate race after restart")
		}
	}
}

// generateRace runs the trajectory engine for the current cycle. The
// cycle's rng sits just past the roster draws, so the frame curves come out
// identical no matter when in the cycle the process started. Callers hold
// t.mu.
func (t *Table) generateRace() error {
	result, err := engine.Generate(t.rng, t.cfg.Engine, t.horses, t.cfg.Cycle.RaceDuration, t.cycleID)
	if err != nil {
		return err
	}
	t.result = result
	return nil
}

// raceWindow returns the absolute race start/end for the cycle containing
// now. Callers hold t.mu.
func (t *Table) raceWindow(now time.Time) (start, end time.Time) {
	start = t.cfg.Cycle.PhaseStart(now, models.PhaseRacing)
	return start, start.Add(t.cfg.Cycle.RaceDuration)
}

// frameData projects the per-horse curves for the wire. Callers hold t.mu.
func (t *Table) frameData() map[int][]float64 {
	if t.result == nil {
		return nil
	}
	data := make(map[int][]float64, len(t.horses))
	for _, h := range t.horses {
		data[h.ID] = h.Frames
	}
	return data
}

// ServerTime answers the clock-sync request. One round trip is enough for
// the short races this table runs; the client halves the measured latency
// and offsets its local clock.
func (t *Table) ServerTime(clientTime int64) events.ServerTimePayload {
	now := t.clock.Now()
	return events.ServerTimePayload{
		ServerTime:      now.UnixMilli(),
		ClientTime:      clientTime,
		CycleStartTime:  t.cfg.Cycle.CycleStart(now).UnixMilli(),
		Phase:           t.cfg.Cycle.PhaseAt(now),
		BettingDuration: t.cfg.Cycle.BettingDuration.Milliseconds(),
		PrepareDuration: t.cfg.Cycle.PrepareDuration.Milliseconds(),
		RaceDuration:    t.cfg.Cycle.RaceDuration.Milliseconds(),
	}
}

// Snapshot builds the full resync payload for a client that just connected
// or reconnected: phase, roster, timestamps, frame curves and the positions
// at this instant. The client jumps straight to the computed frame and then
// free-runs on its own timer.
func (t *Table) Snapshot() events.RaceStatePayload {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.ensureCycle(now)

	phase := t.cfg.Cycle.PhaseAt(now)
	raceStart, raceEnd := t.raceWindow(now)

	state := events.RaceStatePayload{
		Phase:          phase,
		CycleStartTime: t.cycleID,
		RemainingTime:  t.cfg.Cycle.NextBoundary(now).Sub(now).Milliseconds(),
		TrackWidth:     t.cfg.Engine.TrackWidth,
		FPS:            t.cfg.Engine.FPS,
	}
	for _, h := range t.horses {
		state.Horses = append(state.Horses, h.View())
	}

	if phase == models.PhaseBetting {
		return state
	}

	state.RaceStartTime = raceStart.UnixMilli()
	state.RaceEndTime = raceEnd.UnixMilli()
	state.FrameData = t.frameData()
	state.HorsesPositions = replay.Positions(state.FrameData, now, raceStart, t.cfg.Engine.FPS)
	if phase == models.PhaseRacing {
		state.RacingElapsedTime = now.Sub(raceStart).Milliseconds()
	}
	if phase == models.PhaseFinished && t.result != nil {
		state.Results = t.result.Ranking
	}
	return state
}

// broadcast fans an event out to every client; nil-safe before the gateway
// attaches.
func (t *Table) broadcast(eventType string, payload any) {
	if t.bcast != nil {
		t.bcast.Broadcast(eventType, payload)
	}
}

func (t *Table) sendToUser(userID, eventType string, payload any) {
	if t.bcast != nil {
		t.bcast.SendToUser(userID, eventType, payload)
	}
}

// balanceUpdate broadcasts the user's new balance so all open UIs stay in
// sync after any debit or credit.
func (t *Table) balanceUpdate(userID string, balance int64) {
	t.broadcast(events.TypeBalanceUpdate, events.BalanceUpdatePayload{
		UserID:  userID,
		Balance: balance,
	})
}

// Balance proxies the wallet for the gateway.
func (t *Table) Balance(ctx context.Context, userID string) (int64, error) {
	return t.wallet.Balance(ctx, userID)
}
