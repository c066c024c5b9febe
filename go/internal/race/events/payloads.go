package events

import (
	"github.com/turfline/derby/go/internal/models"
)

// Event payload types shared between the race table, the gateway and the
// relay. All timestamps are absolute epoch milliseconds on the server
// clock; clients convert through their estimated offset.

// ServerTimePayload answers get_server_time.
type ServerTimePayload struct {
	ServerTime      int64        `json:"serverTime"`
	ClientTime      int64        `json:"clientTime"`
	CycleStartTime  int64        `json:"cycleStartTime"`
	Phase           models.Phase `json:"phase"`
	BettingDuration int64        `json:"bettingDuration"`
	PrepareDuration int64        `json:"prepareDuration"`
	RaceDuration    int64        `json:"raceDuration"`
}

// RaceStatePayload is the full resync snapshot answering get_race_state.
type RaceStatePayload struct {
	Phase              models.Phase         `json:"phase"`
	Horses             []models.RosterView  `json:"horses"`
	RemainingTime      int64                `json:"remainingTime"`
	RacingElapsedTime  int64                `json:"racingElapsedTime"`
	Results            []models.RankedHorse `json:"results,omitempty"`
	CycleStartTime     int64                `json:"cycleStartTime"`
	RaceStartTime      int64                `json:"raceStartTime,omitempty"`
	RaceEndTime        int64                `json:"raceEndTime,omitempty"`
	HorsesPositions    map[int]float64      `json:"horsesPositions,omitempty"`
	FrameData          map[int][]float64    `json:"frameData,omitempty"`
	TrackWidth         float64              `json:"trackWidth"`
	FPS                int                  `json:"fps"`
}

// RacePreparingPayload broadcasts the fully pre-computed race.
type RacePreparingPayload struct {
	PreparingStartTime int64             `json:"preparingStartTime"`
	RaceStartTime      int64             `json:"raceStartTime"`
	RaceEndTime        int64             `json:"raceEndTime"`
	FrameData          map[int][]float64 `json:"frameData"`
	TrackWidth         float64           `json:"trackWidth"`
	FPS                int               `json:"fps"`
}

// RaceStartPayload is the lightweight "go" signal; clients already hold the
// curves from race_preparing.
type RaceStartPayload struct {
	RaceStartTime int64             `json:"raceStartTime"`
	RaceEndTime   int64             `json:"raceEndTime"`
	FrameData     map[int][]float64 `json:"frameData"`
}

// RaceResultPayload broadcasts the final ranking.
type RaceResultPayload struct {
	Results     []models.RankedHorse `json:"results"`
	FinishTimes map[int]float64      `json:"finishTimes"`
}

// NewRacePayload opens the next betting window with a fresh roster.
type NewRacePayload struct {
	Horses         []models.RosterView `json:"horses"`
	CycleStartTime int64               `json:"cycleStartTime"`
}

// BetResponsePayload answers place_bet.
type BetResponsePayload struct {
	Success    bool   `json:"success"`
	BetID      string `json:"betId,omitempty"`
	NewBalance int64  `json:"newBalance,omitempty"`
	Message    string `json:"message,omitempty"`
}

// CancelBetResponsePayload answers cancel_bet.
type CancelBetResponsePayload struct {
	Success    bool   `json:"success"`
	NewBalance int64  `json:"newBalance,omitempty"`
	Message    string `json:"message,omitempty"`
}

// WinningsPayload goes to one winning user after settlement.
type WinningsPayload struct {
	WinningBets   []models.Bet `json:"winningBets"`
	TotalWinnings int64        `json:"totalWinnings"`
	NewBalance    int64        `json:"newBalance"`
}

// BalanceUpdatePayload keeps every open UI in sync after a debit/credit.
type BalanceUpdatePayload struct {
	UserID  string `json:"userId"`
	Balance int64  `json:"balance"`
}
