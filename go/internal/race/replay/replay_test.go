package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameIndex(t *testing.T) {
	raceStart := time.UnixMilli(1_756_000_203_000)
	fps, frameCount := 30, 1500

	tests := []struct {
		name string
		at   time.Time
		want int
	}{
		{"before race start", raceStart.Add(-5 * time.Second), 0},
		{"at race start", raceStart, 0},
		{"one frame in", raceStart.Add(34 * time.Millisecond), 1},
		{"one second in", raceStart.Add(time.Second), 30},
		{"mid race", raceStart.Add(25 * time.Second), 750},
		{"just before end", raceStart.Add(50*time.Second - time.Millisecond), 1499},
		{"at race end", raceStart.Add(50 * time.Second), 1499},
		{"long after end", raceStart.Add(time.Hour), 1499},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FrameIndex(tc.at, raceStart, fps, frameCount))
		})
	}
}

func TestFrameIndex_EmptyCurve(t *testing.T) {
	assert.Equal(t, 0, FrameIndex(time.Now(), time.Now(), 30, 0))
}

func TestPositionAt(t *testing.T) {
	raceStart := time.UnixMilli(1_756_000_203_000)
	frames := []float64{0, 10, 20, 30}

	assert.Equal(t, 0.0, PositionAt(frames, raceStart.Add(-time.Second), raceStart, 30))
	assert.Equal(t, 20.0, PositionAt(frames, raceStart.Add(67*time.Millisecond), raceStart, 30))
	assert.Equal(t, 30.0, PositionAt(frames, raceStart.Add(time.Minute), raceStart, 30))
	assert.Equal(t, 0.0, PositionAt(nil, raceStart, raceStart, 30))
}

func TestPositions_ReconnectingClientLandsOnSameFrame(t *testing.T) {
	// A late joiner computing positions from the absolute race start must
	// see exactly what a client that watched from the start sees.
	raceStart := time.UnixMilli(1_756_000_203_000)
	frameData := map[int][]float64{
		1: {0, 5, 10, 15, 20},
		2: {0, 8, 16, 24, 32},
	}
	now := raceStart.Add(3 * time.Second / 30)

	got := Positions(frameData, now, raceStart, 30)
	assert.Equal(t, map[int]float64{1: 15, 2: 24}, got)
}
