package coordinator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/evenkeel/SatoshiStacks/internal/auth"
	"github.com/evenkeel/SatoshiStacks/internal/poker"
	"github.com/evenkeel/SatoshiStacks/internal/table"
)

type fakeConn struct {
	mu       sync.Mutex
	messages []*ServerMessage
	ip       string
}

func newFakeConn(ip string) *fakeConn {
	return &fakeConn{ip: ip}
}

func (f *fakeConn) Send(msg *ServerMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
}

func (f *fakeConn) Close() {}

func (f *fakeConn) RemoteIP() string { return f.ip }

func (f *fakeConn) byType(msgType string) []*ServerMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]*ServerMessage, 0)
	for _, msg := range f.messages {
		if msg.Type == msgType {
			matched = append(matched, msg)
		}
	}
	return matched
}

func (f *fakeConn) lastState() *table.TableView {
	states := f.byType(Out_GameState)
	if len(states) == 0 {
		return nil
	}
	return states[len(states)-1].State
}

type fakeAuth struct {
	profiles map[string]*auth.Profile
}

func (f *fakeAuth) ValidateSession(_ context.Context, token string) (*auth.Profile, error) {
	profile, ok := f.profiles[token]
	if !ok {
		return nil, auth.ErrSessionInvalid
	}
	return profile, nil
}

func testTableOptions() *table.Options {
	options := table.NewOptions()
	options.HandStartDelayMs = 10
	return options
}

func newTestCoordinator(t *testing.T, tableOptions *table.Options) (*Coordinator, table.TableEngine, *fakeAuth) {
	t.Helper()
	authProvider := &fakeAuth{profiles: map[string]*auth.Profile{
		"tok-a": {Identity: "pk-a", Handle: "alice", Chips: 5000},
		"tok-b": {Identity: "pk-b", Handle: "bob", Chips: 5000},
	}}

	manager := table.NewManager(table.WithManagerRand(poker.NewSeededRand(1)))
	t.Cleanup(manager.Close)
	engine := manager.CreateTable(tableOptions)

	options := NewOptions()
	options.DisconnectGraceMs = 40
	options.ReconnectSwapMs = 20
	coordinator := NewCoordinator(authProvider, NopGuard{}, options, zerolog.Nop())
	t.Cleanup(coordinator.Close)
	coordinator.AttachTable(engine)

	return coordinator, engine, authProvider
}

func TestJoinTable_SeatAssignedAndState(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t, testTableOptions())
	conn := newFakeConn("1.1.1.1")

	coordinator.HandleMessage(conn, &ClientMessage{Type: Msg_JoinTable, SessionToken: "tok-a"})

	assigned := conn.byType(Out_SeatAssigned)
	assert.Len(t, assigned, 1)
	assert.Equal(t, 0, assigned[0].Seat)
	assert.NotNil(t, conn.lastState())
}

func TestJoinTable_InvalidSessionGetsAuthError(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t, testTableOptions())
	conn := newFakeConn("1.1.1.1")

	coordinator.HandleMessage(conn, &ClientMessage{Type: Msg_JoinTable, SessionToken: "bogus"})

	assert.Len(t, conn.byType(Out_AuthError), 1)
	assert.Empty(t, conn.byType(Out_SeatAssigned))
}

func TestJoinTable_ReconnectionSwapsTransport(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t, testTableOptions())
	conn1 := newFakeConn("1.1.1.1")
	conn2 := newFakeConn("1.1.1.2")

	coordinator.HandleMessage(conn1, &ClientMessage{Type: Msg_JoinTable, SessionToken: "tok-a"})
	coordinator.HandleMessage(conn2, &ClientMessage{Type: Msg_JoinTable, SessionToken: "tok-a"})

	assigned := conn2.byType(Out_SeatAssigned)
	assert.Len(t, assigned, 1)
	assert.Equal(t, 0, assigned[0].Seat) // same seat, no side effect

	// the old transport is out of the room: chat no longer reaches it
	before := len(conn1.byType(Out_ChatMessage))
	coordinator.HandleMessage(conn2, &ClientMessage{Type: Msg_ChatMessage, Text: "hello"})
	assert.Eventually(t, func() bool {
		return len(conn2.byType(Out_ChatMessage)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, before, len(conn1.byType(Out_ChatMessage)))
}

func TestBroadcast_HoleCardVisibilityPerViewer(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t, testTableOptions())
	connA := newFakeConn("1.1.1.1")
	connB := newFakeConn("1.1.1.2")
	observer := newFakeConn("1.1.1.3")

	coordinator.HandleMessage(connA, &ClientMessage{Type: Msg_JoinTable, SessionToken: "tok-a"})
	coordinator.HandleMessage(connB, &ClientMessage{Type: Msg_JoinTable, SessionToken: "tok-b"})
	coordinator.HandleMessage(observer, &ClientMessage{Type: Msg_ObserveTable})

	// wait for the debounced hand start to reach every subscriber
	inPreflop := func(conn *fakeConn) bool {
		state := conn.lastState()
		return state != nil && state.Phase == table.Phase_Preflop
	}
	assert.Eventually(t, func() bool {
		return inPreflop(connA) && inPreflop(connB) && inPreflop(observer)
	}, 2*time.Second, 10*time.Millisecond)

	stateA := connA.lastState()
	assert.Len(t, stateA.Seats[0].HoleCards, 2)
	assert.Empty(t, stateA.Seats[1].HoleCards)

	stateB := connB.lastState()
	assert.Empty(t, stateB.Seats[0].HoleCards)
	assert.Len(t, stateB.Seats[1].HoleCards, 2)

	stateObs := observer.lastState()
	assert.Empty(t, stateObs.Seats[0].HoleCards)
	assert.Empty(t, stateObs.Seats[1].HoleCards)
}

func TestBroadcast_PrivateDealtLinesAreDirected(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t, testTableOptions())
	connA := newFakeConn("1.1.1.1")
	connB := newFakeConn("1.1.1.2")

	coordinator.HandleMessage(connA, &ClientMessage{Type: Msg_JoinTable, SessionToken: "tok-a"})
	coordinator.HandleMessage(connB, &ClientMessage{Type: Msg_JoinTable, SessionToken: "tok-b"})

	assert.Eventually(t, func() bool {
		for _, msg := range connA.byType(Out_HandLog) {
			if strings.HasPrefix(msg.Line, "Dealt to alice") {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	for _, msg := range connA.byType(Out_HandLog) {
		assert.False(t, strings.HasPrefix(msg.Line, "Dealt to bob"))
	}
	for _, msg := range connB.byType(Out_HandLog) {
		assert.False(t, strings.HasPrefix(msg.Line, "Dealt to alice"))
	}
}

func TestAction_RequiresSeat(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t, testTableOptions())
	conn := newFakeConn("1.1.1.1")

	coordinator.HandleMessage(conn, &ClientMessage{Type: Msg_Action, Action: "fold"})

	errs := conn.byType(Out_Error)
	assert.Len(t, errs, 1)
	assert.Equal(t, ErrorCode_NotInHand, errs[0].Code)
}

func TestDisconnect_EscalatesToSitOut(t *testing.T) {
	tableOptions := testTableOptions()
	tableOptions.HandStartDelayMs = 3_600_000 // keep the table idle
	coordinator, engine, _ := newTestCoordinator(t, tableOptions)
	conn := newFakeConn("1.1.1.1")

	coordinator.HandleMessage(conn, &ClientMessage{Type: Msg_JoinTable, SessionToken: "tok-a"})
	coordinator.Disconnect(conn)

	view := engine.View("pk-a")
	assert.True(t, view.Seats[0].Disconnected)

	// after the grace the player is sat out automatically
	assert.Eventually(t, func() bool {
		return engine.View("pk-a").Seats[0].SittingOut
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnect_ReconnectWithinGraceKeepsSeat(t *testing.T) {
	tableOptions := testTableOptions()
	tableOptions.HandStartDelayMs = 3_600_000
	coordinator, engine, _ := newTestCoordinator(t, tableOptions)
	conn1 := newFakeConn("1.1.1.1")
	conn2 := newFakeConn("1.1.1.2")

	coordinator.HandleMessage(conn1, &ClientMessage{Type: Msg_JoinTable, SessionToken: "tok-a"})
	coordinator.Disconnect(conn1)

	coordinator.HandleMessage(conn2, &ClientMessage{Type: Msg_JoinTable, SessionToken: "tok-a"})

	assigned := conn2.byType(Out_SeatAssigned)
	assert.Len(t, assigned, 1)
	assert.Equal(t, 0, assigned[0].Seat)
	assert.False(t, engine.View("pk-a").Seats[0].Disconnected)

	// the grace escalation must not fire for a reconnected player
	time.Sleep(100 * time.Millisecond)
	assert.False(t, engine.View("pk-a").Seats[0].SittingOut)
}

func TestChat_ClampsLength(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t, testTableOptions())
	conn := newFakeConn("1.1.1.1")

	coordinator.HandleMessage(conn, &ClientMessage{Type: Msg_ObserveTable})
	coordinator.HandleMessage(conn, &ClientMessage{Type: Msg_ChatMessage, Text: strings.Repeat("x", 5000)})

	chats := conn.byType(Out_ChatMessage)
	assert.Len(t, chats, 1)
	assert.Len(t, chats[0].Text, 280)
	assert.True(t, chats[0].Observer)
	assert.True(t, strings.HasPrefix(chats[0].From, "guest-"))
}

func TestObserver_SeesState(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t, testTableOptions())
	conn := newFakeConn("1.1.1.1")

	coordinator.HandleMessage(conn, &ClientMessage{Type: Msg_ObserveTable})
	assert.NotNil(t, conn.lastState())
}
