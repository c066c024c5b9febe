package models

import "time"

// Phase defines the stage of the race cycle.
type Phase string

const (
	PhaseBetting   Phase = "betting"
	PhasePreparing Phase = "preparing"
	PhaseRacing    Phase = "racing"
	PhaseFinished  Phase = "finished"
)

// CycleConfig holds the fixed timing grid for the race table. All durations
// are constants for the process lifetime; the cycle start is always aligned
// to a multiple of Total() so independent instances agree on the schedule.
type CycleConfig struct {
	BettingDuration time.Duration `yaml:"betting_duration"`
	PrepareDuration time.Duration `yaml:"prepare_duration"`
	RaceDuration    time.Duration `yaml:"race_duration"`
	FinishDuration  time.Duration `yaml:"finish_duration"`
}

// DefaultCycleConfig matches the reference 3-minute table.
func DefaultCycleConfig() CycleConfig {
	return CycleConfig{
		BettingDuration: 120 * time.Second,
		PrepareDuration: 3 * time.Second,
		RaceDuration:    50 * time.Second,
		FinishDuration:  7 * time.Second,
	}
}

// Total returns the full cycle length.
func (c CycleConfig) Total() time.Duration {
	return c.BettingDuration + c.PrepareDuration + c.RaceDuration + c.FinishDuration
}

// CycleStart floors now onto the cycle grid. Any instance, or the same
// instance after a restart, computes the same start for the same wall time.
func (c CycleConfig) CycleStart(now time.Time) time.Time {
	total := c.Total().Milliseconds()
	ms := now.UnixMilli()
	return time.UnixMilli(ms - ms%total)
}

// PhaseAt derives the phase purely from the offset into the current cycle.
func (c CycleConfig) PhaseAt(now time.Time) Phase {
	elapsed := now.Sub(c.CycleStart(now))
	switch {
	case elapsed < c.BettingDuration:
		return PhaseBetting
	case elapsed < c.BettingDuration+c.PrepareDuration:
		return PhasePreparing
	case elapsed < c.BettingDuration+c.PrepareDuration+c.RaceDuration:
		return PhaseRacing
	default:
		return PhaseFinished
	}
}

// PhaseStart returns the absolute start of the given phase within the cycle
// that contains now.
func (c CycleConfig) PhaseStart(now time.Time, phase Phase) time.Time {
	start := c.CycleStart(now)
	switch phase {
	case PhaseBetting:
		return start
	case PhasePreparing:
		return start.Add(c.BettingDuration)
	case PhaseRacing:
		return start.Add(c.BettingDuration + c.PrepareDuration)
	default:
		return start.Add(c.BettingDuration + c.PrepareDuration + c.RaceDuration)
	}
}

// NextBoundary returns when the current phase ends, which is the single
// timer deadline the scheduler arms.
func (c CycleConfig) NextBoundary(now time.Time) time.Time {
	start := c.CycleStart(now)
	boundaries := []time.Duration{
		c.BettingDuration,
		c.BettingDuration + c.PrepareDuration,
		c.BettingDuration + c.PrepareDuration + c.RaceDuration,
		c.Total(),
	}
	elapsed := now.Sub(start)
	for _, b := range boundaries {
		if elapsed < b {
			return start.Add(b)
		}
	}
	return start.Add(c.Total())
}
