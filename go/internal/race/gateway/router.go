package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/turfline/derby/go/internal/models"
	"github.com/turfline/derby/go/internal/race/events"
	"github.com/turfline/derby/go/internal/race/table"
	"github.com/turfline/derby/go/internal/wallet"
)

const requestTimeout = 5 * time.Second

// Router dispatches client requests to the race table. All validation and
// phase gating lives in the table; the router only translates between the
// wire envelope and table calls.
type Router struct {
	table *table.Table
}

// NewRouter creates a request router for the table.
func NewRouter(t *table.Table) *Router {
	return &Router{table: t}
}

// HandleMessage parses one inbound envelope and routes it. Unknown types
// are logged and ignored so protocol additions never kill a connection.
func (r *Router) HandleMessage(c *Connection, raw []byte) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("malformed client message")
		return
	}

	switch event.Type {
	case events.TypeGetServerTime:
		r.handleServerTime(c, event.Data)
	case events.TypeGetRaceState:
		c.send(events.TypeRaceState, r.table.Snapshot())
	case events.TypePlaceBet:
		r.handlePlaceBet(c, event.Data)
	case events.TypeCancelBet:
		r.handleCancelBet(c, event.Data)
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("event_type", event.Type).
			Msg("ignoring unknown client event type")
	}
}

func (r *Router) handleServerTime(c *Connection, data json.RawMessage) {
	var req events.ServerTimeRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			log.Warn().Err(err).Str("connection_id", c.ID).Msg("bad get_server_time payload")
			return
		}
	}
	c.send(events.TypeServerTime, r.table.ServerTime(req.ClientTime))
}

func (r *Router) handlePlaceBet(c *Connection, data json.RawMessage) {
	var req events.PlaceBetRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.send(events.TypeBetResponse, events.BetResponsePayload{
			Success: false,
			Message: "malformed bet request",
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	bet, newBalance, err := r.table.PlaceBet(ctx, c.UserID, models.BetType(req.BetType), req.HorseIDs, req.Amount)
	if err != nil {
		c.send(events.TypeBetResponse, events.BetResponsePayload{
			Success:    false,
			NewBalance: newBalance,
			Message:    rejectionMessage(err),
		})
		return
	}
	c.send(events.TypeBetResponse, events.BetResponsePayload{
		Success:    true,
		BetID:      bet.ID.String(),
		NewBalance: newBalance,
	})
}

func (r *Router) handleCancelBet(c *Connection, data json.RawMessage) {
	var req events.CancelBetRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.send(events.TypeCancelBetResponse, events.CancelBetResponsePayload{
			Success: false,
			Message: "malformed cancel request",
		})
		return
	}
	betID, err := uuid.Parse(req.BetID)
	if err != nil {
		c.send(events.TypeCancelBetResponse, events.CancelBetResponsePayload{
			Success: false,
			Message: "invalid bet id",
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	newBalance, err := r.table.CancelBet(ctx, c.UserID, betID)
	if err != nil {
		c.send(events.TypeCancelBetResponse, events.CancelBetResponsePayload{
			Success: false,
			Message: rejectionMessage(err),
		})
		return
	}
	c.send(events.TypeCancelBetResponse, events.CancelBetResponsePayload{
		Success:    true,
		NewBalance: newBalance,
	})
}

// rejectionMessage maps table errors onto user-facing text. Unexpected
// errors stay generic; details go to the log, not the client.
func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, table.ErrWrongPhase):
		return "betting is closed for this race"
	case errors.Is(err, table.ErrCancelClosed):
		return "betting is closed, bet can no longer be cancelled"
	case errors.Is(err, table.ErrUnknownBet):
		return "unknown bet type"
	case errors.Is(err, table.ErrBadSelection):
		return "invalid horse selection for this bet type"
	case errors.Is(err, table.ErrUnknownHorse):
		return "selected horse is not in this race"
	case errors.Is(err, table.ErrBadAmount):
		return "bet amount must be positive"
	case errors.Is(err, table.ErrDuplicateBet):
		return "you already placed this exact bet"
	case errors.Is(err, table.ErrBetNotFound):
		return "bet not found"
	case errors.Is(err, table.ErrNotYourBet):
		return "bet belongs to another user"
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return "insufficient balance"
	default:
		log.Error().Err(err).Msg("bet operation failed")
		return "internal error, please try again"
	}
}
