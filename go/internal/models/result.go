package models

// RankedHorse is one entry of a final ranking.
type RankedHorse struct {
	HorseID    int     `json:"horse_id"`
	Name       string  `json:"name"`
	Odds       float64 `json:"odds"`
	Rank       int     `json:"rank"`
	FinishTime float64 `json:"finish_time"` // seconds from race start
}

// RaceResult is produced exactly once per cycle by the trajectory engine
// and consumed exactly once by settlement.
type RaceResult struct {
	CycleID int64         `json:"cycle_id"`
	Ranking []RankedHorse `json:"ranking"`
}

// RankOf returns the 1-based rank of a horse, or 0 if it is not in the
// ranking.
func (r *RaceResult) RankOf(horseID int) int {
	for _, rh := range r.Ranking {
		if rh.HorseID == horseID {
			return rh.Rank
		}
	}
	return 0
}

// Top returns the first n ranked horses (fewer if the field is smaller).
func (r *RaceResult) Top(n int) []RankedHorse {
	if n > len(r.Ranking) {
		n = len(r.Ranking)
	}
	return r.Ranking[:n]
}
