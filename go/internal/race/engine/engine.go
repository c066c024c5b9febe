package engine

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/turfline/derby/go/internal/models"
)

// The finish-time window and spacing below reproduce the reference table:
// every horse crosses the line between 45% and 85% of the race window, and
// successive finishers are separated by at least minFinishGap seconds so
// the ranking can never tie.
const (
	minFinishFrac = 0.45
	maxFinishFrac = 0.85
	minFinishGap  = 0.35 // seconds

	noiseAmplitude  = 0.004 // fraction of track width, per frame
	smoothingWindow = 3
)

var horseNames = []string{
	"Thunderbolt", "Silver Arrow", "Midnight Run", "Golden Gale",
	"Iron Hoof", "Comet Tail", "Red Baron", "Night Whisper",
	"Storm Chaser", "Lucky Penny", "Blue Ribbon", "Wild Card",
	"Sea Breeze", "Dust Devil", "Northern Star", "Quick Silver",
}

// Config holds the fixed parameters of the trajectory engine.
type Config struct {
	FPS        int     `yaml:"fps"`
	TrackWidth float64 `yaml:"track_width"`
	HorseCount int     `yaml:"horse_count"`
	MinOdds    float64 `yaml:"min_odds"`
	MaxOdds    float64 `yaml:"max_odds"`
}

// DefaultConfig matches the reference table: 8 horses at 30fps on a
// 1000-unit track with odds between 1.5 and 8.0.
func DefaultConfig() Config {
	return Config{
		FPS:        30,
		TrackWidth: 1000,
		HorseCount: 8,
		MinOdds:    1.5,
		MaxOdds:    8.0,
	}
}

func (c Config) validate(raceDuration time.Duration) error {
	if c.FPS <= 0 || c.TrackWidth <= 0 || c.HorseCount <= 0 {
		return fmt.Errorf("invalid engine config: fps=%d track=%f horses=%d", c.FPS, c.TrackWidth, c.HorseCount)
	}
	window := (maxFinishFrac - minFinishFrac) * raceDuration.Seconds()
	if window/float64(c.HorseCount) <= minFinishGap {
		return fmt.Errorf("race of %s too short to separate %d horses", raceDuration, c.HorseCount)
	}
	return nil
}

// NewRoster builds a fresh horse set with random names and odds. Odds are
// uniform in [MinOdds, MaxOdds), rounded to one decimal.
func NewRoster(rng *rand.Rand, cfg Config) []*models.Horse {
	idx := rng.Perm(len(horseNames))
	horses := make([]*models.Horse, 0, cfg.HorseCount)
	for i := 0; i < cfg.HorseCount; i++ {
		odds := cfg.MinOdds + rng.Float64()*(cfg.MaxOdds-cfg.MinOdds)
		odds = math.Round(odds*10) / 10
		horses = append(horses, &models.Horse{
			ID:   i + 1,
			Name: horseNames[idx[i%len(idx)]],
			Odds: odds,
		})
	}
	return horses
}

// Generate computes the whole race up front: a target finish time and a
// dense per-frame position curve for every horse, and the final ranking.
// It runs once per cycle, before the race starts; every client replays the
// same curves, so the result must be a pure function of rng.
func Generate(rng *rand.Rand, cfg Config, horses []*models.Horse, raceDuration time.Duration, cycleID int64) (*models.RaceResult, error) {
	if err := cfg.validate(raceDuration); err != nil {
		return nil, err
	}
	if len(horses) == 0 {
		return nil, fmt.Errorf("empty roster for cycle %d", cycleID)
	}

	assignTargets(rng, horses, raceDuration)

	frameCount := int(raceDuration.Seconds()) * cfg.FPS
	for _, h := range horses {
		h.Frames = generateFrames(rng, cfg, h, frameCount)
	}

	ranked := make([]*models.Horse, len(horses))
	copy(ranked, horses)
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].TargetFinishTime < ranked[j].TargetFinishTime
	})

	result := &models.RaceResult{CycleID: cycleID}
	for i, h := range ranked {
		h.FinalRank = i + 1
		result.Ranking = append(result.Ranking, models.RankedHorse{
			HorseID:    h.ID,
			Name:       h.Name,
			Odds:       h.Odds,
			Rank:       i + 1,
			FinishTime: h.TargetFinishTime,
		})
	}
	return result, nil
}

// assignTargets spreads finish times across the allowed window, favored
// horses first. Each horse owns one slot of the window; jitter moves it
// inside the slot but never closer than minFinishGap to its neighbor, so
// the targets are strictly increasing by construction.
func assignTargets(rng *rand.Rand, horses []*models.Horse, raceDuration time.Duration) {
	byOdds := make([]*models.Horse, len(horses))
	copy(byOdds, horses)
	sort.Slice(byOdds, func(i, j int) bool { return byOdds[i].Odds < byOdds[j].Odds })

	d := raceDuration.Seconds()
	windowStart := minFinishFrac * d
	slot := (maxFinishFrac - minFinishFrac) * d / float64(len(horses))
	for i, h := range byOdds {
		jitter := rng.Float64() * (slot - minFinishGap)
		h.TargetFinishTime = windowStart + float64(i)*slot + jitter
	}
}

// smoothstep is the cubic S-curve 3t²-2t³: slow out of the gate, close to
// linear mid-race, decelerating into the line.
func smoothstep(t float64) float64 {
	return t * t * (3 - 2*t)
}

// generateFrames produces the horse's per-frame position curve. Positions
// are eased along the S-curve toward the target finish time, shaped by an
// odds-derived pace weight, with bounded per-frame noise smoothed back out.
// Every frame at or past the target pins to the full track width.
func generateFrames(rng *rand.Rand, cfg Config, h *models.Horse, frameCount int) []float64 {
	weight := 1.0
	if cfg.MaxOdds > cfg.MinOdds {
		// Long shots trail early and make up ground late.
		weight += 0.25 * (h.Odds - cfg.MinOdds) / (cfg.MaxOdds - cfg.MinOdds)
	}

	frames := make([]float64, frameCount)
	for i := 0; i < frameCount; i++ {
		elapsed := float64(i) / float64(cfg.FPS)
		t := elapsed / h.TargetFinishTime
		if t >= 1 {
			frames[i] = cfg.TrackWidth
			continue
		}
		frac := math.Pow(smoothstep(t), weight)
		frac += (rng.Float64()*2 - 1) * noiseAmplitude
		frames[i] = frac * cfg.TrackWidth
	}

	clampMonotonic(frames, cfg.TrackWidth)
	smooth(frames, cfg.TrackWidth)
	clampMonotonic(frames, cfg.TrackWidth)
	return frames
}

// clampMonotonic forces every frame into [previous, trackWidth]; a horse
// must never appear to move backward.
func clampMonotonic(frames []float64, trackWidth float64) {
	prev := 0.0
	for i, f := range frames {
		if f < prev {
			f = prev
		}
		if f > trackWidth {
			f = trackWidth
		}
		frames[i] = f
		prev = f
	}
}

// smooth runs a small moving average over the pre-finish section to strip
// the visible jitter injected by the per-frame noise. Frames already at the
// finish line stay pinned there.
func smooth(frames []float64, trackWidth float64) {
	if len(frames) < smoothingWindow {
		return
	}
	half := smoothingWindow / 2
	src := make([]float64, len(frames))
	copy(src, frames)
	for i := half; i < len(frames)-half; i++ {
		if src[i] >= trackWidth {
			continue
		}
		sum := 0.0
		for j := i - half; j <= i+half; j++ {
			sum += src[j]
		}
		frames[i] = sum / float64(smoothingWindow)
	}
}
