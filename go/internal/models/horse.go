package models

// Horse represents one runner in the current cycle's roster. Horses are
// recreated every cycle; nothing about them outlives the cycle they ran in.
type Horse struct {
	ID               int       `json:"id"`
	Name             string    `json:"name"`
	Odds             float64   `json:"odds"`
	TargetFinishTime float64   `json:"-"` // seconds; engine-internal
	Frames           []float64 `json:"-"` // per-frame positions in [0, trackWidth]
	FinalRank        int       `json:"-"` // 1..N once the ranking is computed
}

// RosterView is the client-facing projection of a horse (odds and identity
// only; frame data travels separately in race_preparing).
type RosterView struct {
	ID   int     `json:"id"`
	Name string  `json:"name"`
	Odds float64 `json:"odds"`
}

// View returns the roster projection of the horse.
func (h *Horse) View() RosterView {
	return RosterView{ID: h.ID, Name: h.Name, Odds: h.Odds}
}
