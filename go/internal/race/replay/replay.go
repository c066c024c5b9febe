// Package replay reconstructs race animation state from pre-computed frame
// curves and an absolute clock reading. The server uses it to answer state
// snapshots for late joiners; clients run the identical computation against
// their offset-corrected "logical now", so a reconnecting client lands on
// the same frame as one that watched from the start.
package replay

import (
	"time"
)

// FrameIndex maps a logical timestamp onto a frame number. Before the race
// starts it is 0; after the last frame it sticks to frameCount-1.
func FrameIndex(logicalNow, raceStart time.Time, fps, frameCount int) int {
	if frameCount <= 0 {
		return 0
	}
	elapsed := logicalNow.Sub(raceStart)
	if elapsed < 0 {
		return 0
	}
	idx := int(elapsed.Milliseconds() * int64(fps) / 1000)
	if idx >= frameCount {
		idx = frameCount - 1
	}
	return idx
}

// PositionAt returns the position of one horse at the given logical time.
func PositionAt(frames []float64, logicalNow, raceStart time.Time, fps int) float64 {
	if len(frames) == 0 {
		return 0
	}
	return frames[FrameIndex(logicalNow, raceStart, fps, len(frames))]
}

// Positions resolves every horse's position at the given logical time,
// keyed by horse id.
func Positions(frameData map[int][]float64, logicalNow, raceStart time.Time, fps int) map[int]float64 {
	out := make(map[int]float64, len(frameData))
	for id, frames := range frameData {
		out[id] = PositionAt(frames, logicalNow, raceStart, fps)
	}
	return out
}
