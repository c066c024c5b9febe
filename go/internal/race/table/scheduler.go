package table

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/turfline/derby/go/internal/models"
	"github.com/turfline/derby/go/internal/race/events"
	"github.com/turfline/derby/go/internal/race/replay"
)

// Run drives the phase state machine. Exactly one timer is armed at a
// time, always recomputed from the absolute wall clock, so there is no
// drift accumulation and a restarted process falls straight back onto the
// shared grid. The loop blocks until ctx is cancelled.
func (t *Table) Run(ctx context.Context) error {
	t.mu.Lock()
	now := t.clock.Now()
	t.ensureCycle(now)
	phase := t.cfg.Cycle.PhaseAt(now)
	t.mu.Unlock()

	log.Info().
		Int64("cycle_id", t.CycleID()).
		Str("phase", string(phase)).
		Dur("cycle_total", t.cfg.Cycle.Total()).
		Msg("race scheduler started")

	timer := t.clock.NewTimer(t.cfg.Cycle.NextBoundary(now).Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("race scheduler shutting down")
			return ctx.Err()
		case <-timer.Chan():
			t.onBoundary(ctx)
		}
		now = t.clock.Now()
		timer.Reset(t.cfg.Cycle.NextBoundary(now).Sub(now))
	}
}

// onBoundary applies the effects of the phase just entered. It must never
// let an error or panic escape into the timer loop: a failed settlement or
// generation is logged and the schedule advances regardless. A stalled
// table is worse than a skipped retry.
func (t *Table) onBoundary(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("phase transition panicked; cycle advances")
		}
	}()

	now := t.clock.Now()
	switch t.cfg.Cycle.PhaseAt(now) {
	case models.PhasePreparing:
		t.enterPreparing(now)
	case models.PhaseRacing:
		t.enterRacing(now)
	case models.PhaseFinished:
		t.enterFinished(ctx, now)
	case models.PhaseBetting:
		t.enterBetting(ctx, now)
	}
}

// enterPreparing pre-computes the entire race and ships the curves to every
// client along with the absolute race window, so clients can animate
// without further server input.
func (t *Table) enterPreparing(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureCycle(now)

	if t.result == nil {
		if err := t.generateRace(); err != nil {
			log.Error().Err(err).Int64("cycle_id", t.cycleID).Msg("trajectory generation failed")
			return
		}
	}

	raceStart, raceEnd := t.raceWindow(now)
	log.Info().
		Int64("cycle_id", t.cycleID).
		Time("race_start", raceStart).
		Msg("entering preparing phase, race pre-computed")

	t.broadcast(events.TypeRacePreparing, events.RacePreparingPayload{
		PreparingStartTime: t.cfg.Cycle.PhaseStart(now, models.PhasePreparing).UnixMilli(),
		RaceStartTime:      raceStart.UnixMilli(),
		RaceEndTime:        raceEnd.UnixMilli(),
		FrameData:          t.frameData(),
		TrackWidth:         t.cfg.Engine.TrackWidth,
		FPS:                t.cfg.Engine.FPS,
	})
}

// enterRacing broadcasts the lightweight go signal. Frame data rides along
// for clients that missed race_preparing by a breath.
func (t *Table) enterRacing(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureCycle(now)

	raceStart, raceEnd := t.raceWindow(now)
	log.Info().Int64("cycle_id", t.cycleID).Msg("entering racing phase")

	t.broadcast(events.TypeRaceStart, events.RaceStartPayload{
		RaceStartTime: raceStart.UnixMilli(),
		RaceEndTime:   raceEnd.UnixMilli(),
		FrameData:     t.frameData(),
	})
}

// enterFinished publishes the final ranking and settles the ledger.
func (t *Table) enterFinished(ctx context.Context, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureCycle(now)

	if t.result == nil {
		log.Error().Int64("cycle_id", t.cycleID).Msg("race finished without a result; nothing to settle")
		return
	}

	finishTimes := make(map[int]float64, len(t.result.Ranking))
	for _, rh := range t.result.Ranking {
		finishTimes[rh.HorseID] = rh.FinishTime
	}
	t.broadcast(events.TypeRaceResult, events.RaceResultPayload{
		Results:     t.result.Ranking,
		FinishTimes: finishTimes,
	})

	if err := t.settle(ctx); err != nil {
		t.lastErr = err
		log.Error().Err(err).Int64("cycle_id", t.cycleID).Msg("settlement failed; will retry at next boundary")
		return
	}
	t.lastErr = nil
}

// enterBetting rolls the table over to the next cycle: one last settlement
// retry for the previous cycle, then a fresh roster and a cleared ledger.
func (t *Table) enterBetting(ctx context.Context, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastErr != nil && t.result != nil && !t.settled[t.cycleID] {
		// One more attempt; if it fails again ensureCycle logs the
		// abandonment rather than stalling the new betting window.
		if err := t.settle(ctx); err != nil {
			log.Warn().Err(err).Int64("cycle_id", t.cycleID).Msg("settlement retry failed")
		}
	}
	t.lastErr = nil

	t.metrics.CycleCompleted()
	t.ensureCycle(now)

	roster := make([]models.RosterView, 0, len(t.horses))
	for _, h := range t.horses {
		roster = append(roster, h.View())
	}
	log.Info().Int64("cycle_id", t.cycleID).Msg("entering betting phase with fresh roster")

	t.broadcast(events.TypeNewRace, events.NewRacePayload{
		Horses:         roster,
		CycleStartTime: t.cycleID,
	})
}

// PositionsNow resolves current horse positions for monitoring endpoints.
func (t *Table) PositionsNow() map[int]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	if t.cfg.Cycle.PhaseAt(now) != models.PhaseRacing || t.result == nil {
		return nil
	}
	raceStart, _ := t.raceWindow(now)
	return replay.Positions(t.frameData(), now, raceStart, t.cfg.Engine.FPS)
}
