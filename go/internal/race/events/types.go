package events

// Wire event types. Requests arrive from clients; the rest are server
// responses or broadcasts. The payload shapes are the contract.
const (
	// client -> server
	TypeGetServerTime = "get_server_time"
	TypeGetRaceState  = "get_race_state"
	TypePlaceBet      = "place_bet"
	TypeCancelBet     = "cancel_bet"

	// server -> client
	TypeServerTime        = "server_time"
	TypeRaceState         = "race_state"
	TypeRacePreparing     = "race_preparing"
	TypeRaceStart         = "race_start"
	TypeRaceResult        = "race_result"
	TypeNewRace           = "new_race"
	TypeBetResponse       = "bet_response"
	TypeCancelBetResponse = "cancel_bet_response"
	TypeWinnings          = "winnings"
	TypeBalanceUpdate     = "balance_update"
)

// PlaceBetRequest is the client payload for place_bet.
type PlaceBetRequest struct {
	BetType  string `json:"betType"`
	HorseIDs []int  `json:"horseIds"`
	Amount   int64  `json:"amount"`
}

// CancelBetRequest is the client payload for cancel_bet.
type CancelBetRequest struct {
	BetID string `json:"betId"`
}

// ServerTimeRequest is the client payload for get_server_time.
type ServerTimeRequest struct {
	ClientTime int64 `json:"clientTime"`
}
