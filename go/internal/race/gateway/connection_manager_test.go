package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turfline/derby/go/internal/race/events"
)

func newManagedConnection(cm *ConnectionManager, userID string) *Connection {
	conn := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
	cm.registerConnection(conn)
	return conn
}

func TestHandleBroadcast_DeliversToAllConnections(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	alice := newManagedConnection(cm, "alice")
	bob := newManagedConnection(cm, "bob")

	event, err := NewEvent(events.TypeNewRace, nil)
	require.NoError(t, err)
	cm.handleBroadcast(broadcastMessage{event: event})

	assert.Len(t, alice.Send, 1)
	assert.Len(t, bob.Send, 1)
}

func TestHandleBroadcast_UserTargeting(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	alice := newManagedConnection(cm, "alice")
	aliceTab := newManagedConnection(cm, "alice")
	bob := newManagedConnection(cm, "bob")

	event, err := NewEvent(events.TypeWinnings, nil)
	require.NoError(t, err)
	cm.handleBroadcast(broadcastMessage{event: event, userID: "alice"})

	// Every connection of the user, nobody else.
	assert.Len(t, alice.Send, 1)
	assert.Len(t, aliceTab.Send, 1)
	assert.Empty(t, bob.Send)
}

func TestHandleBroadcast_DisconnectDuringBroadcast(t *testing.T) {
	// A client dropping mid-broadcast closes its Send channel from the
	// pump side; the broadcast drain goroutine must survive that in any
	// interleaving.
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	event, err := NewEvent(events.TypeRaceStart, nil)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		conn := newManagedConnection(cm, "alice")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			cm.unregisterConnection(conn)
		}()
		go func() {
			defer wg.Done()
			cm.handleBroadcast(broadcastMessage{event: event})
		}()
		wg.Wait()
	}

	total, _ := cm.Stats()
	assert.Zero(t, total)
}

func TestConnectionSend_DroppedAfterUnregister(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	conn := newManagedConnection(cm, "alice")
	cm.unregisterConnection(conn)

	// Must neither panic nor deliver.
	conn.send(events.TypeBetResponse, events.BetResponsePayload{Success: true})

	_, open := <-conn.Send
	assert.False(t, open)
}

func TestUnregisterConnection_Idempotent(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	conn := newManagedConnection(cm, "alice")

	cm.unregisterConnection(conn)
	cm.unregisterConnection(conn) // second call must not double-close Send

	total, users := cm.Stats()
	assert.Zero(t, total)
	assert.Zero(t, users)
}
