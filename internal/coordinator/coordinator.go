// Package coordinator owns the connection lifecycle: it maps
// authenticated identities to seats, fans personalised state out to
// every subscribed transport, and escalates disconnects to sit-outs.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/weedbox/timebank"

	"github.com/evenkeel/SatoshiStacks/internal/auth"
	"github.com/evenkeel/SatoshiStacks/internal/table"
)

// Conn is the transport handle the coordinator writes to. Send must
// never block the caller; slow consumers drop frames in the transport
// layer.
type Conn interface {
	Send(msg *ServerMessage)
	Close()
	RemoteIP() string
}

// AuthProvider resolves session tokens to identities.
type AuthProvider interface {
	ValidateSession(ctx context.Context, token string) (*auth.Profile, error)
}

// Guard is the shared cross-identity state: bans and the abuse log.
type Guard interface {
	IsBanned(ctx context.Context, identity string) (bool, error)
	IsIPBanned(ctx context.Context, ip string) (bool, error)
	RecordAbuse(ctx context.Context, identity, ip, action string) error
	MarkPlayerLeft(ctx context.Context, identity string) error
}

// NopGuard permits everything; used by tests.
type NopGuard struct{}

func (NopGuard) IsBanned(context.Context, string) (bool, error)        { return false, nil }
func (NopGuard) IsIPBanned(context.Context, string) (bool, error)      { return false, nil }
func (NopGuard) RecordAbuse(context.Context, string, string, string) error { return nil }
func (NopGuard) MarkPlayerLeft(context.Context, string) error          { return nil }

type Options struct {
	DisconnectGraceMs int64
	ReconnectSwapMs   int64
	DefaultBuyIn      int64
	ChatMaxLen        int
	JoinRatePerMinute float64
}

func NewOptions() *Options {
	return &Options{
		DisconnectGraceMs: 60000,
		ReconnectSwapMs:   10000,
		DefaultBuyIn:      5000,
		ChatMaxLen:        280,
		JoinRatePerMinute: 10,
	}
}

// Session is one live transport attachment.
type Session struct {
	Conn      Conn
	Identity  string // empty for observers
	Handle    string
	Pseudonym string
	TableID   string
	Seat      int
	Observer  bool
}

// seatRef ties an identity to the transport currently speaking for it.
// Entries survive a disconnect for the swap grace so an in-flight
// reconnection can take the seat over.
type seatRef struct {
	conn    Conn
	tableID string
}

type Coordinator struct {
	mu      sync.Mutex
	logger  zerolog.Logger
	auth    AuthProvider
	guard   Guard
	options *Options

	defaultTableID string
	engines        map[string]table.TableEngine
	sessions       map[Conn]*Session
	byIdentity     map[string]*seatRef
	rooms          map[string]map[Conn]*Session

	swapTB   map[string]*timebank.TimeBank
	graceTB  map[string]*timebank.TimeBank
	limiters map[string]*rateLimiter
}

func NewCoordinator(authProvider AuthProvider, guard Guard, options *Options, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		logger:     logger,
		auth:       authProvider,
		guard:      guard,
		options:    options,
		engines:    make(map[string]table.TableEngine),
		sessions:   make(map[Conn]*Session),
		byIdentity: make(map[string]*seatRef),
		rooms:      make(map[string]map[Conn]*Session),
		swapTB:     make(map[string]*timebank.TimeBank),
		graceTB:    make(map[string]*timebank.TimeBank),
		limiters:   make(map[string]*rateLimiter),
	}
}

/*
AttachTable subscribes the coordinator to a table engine's event
stream. Events are funnelled through a single ordered queue per table
so broadcasts never reorder relative to the inputs that caused them.
*/
func (c *Coordinator) AttachTable(engine table.TableEngine) {
	tableID := engine.GetTable().ID

	c.mu.Lock()
	c.engines[tableID] = engine
	c.rooms[tableID] = make(map[Conn]*Session)
	if c.defaultTableID == "" {
		c.defaultTableID = tableID
	}
	c.mu.Unlock()

	// events are emitted under the engine lock and the dispatcher calls
	// back into the engine for views, so the queue must never block the
	// emitter
	queue := newEventQueue()
	engine.OnEvent(queue.push)
	go c.dispatchLoop(engine, tableID, queue)
}

func (c *Coordinator) dispatchLoop(engine table.TableEngine, tableID string, queue *eventQueue) {
	for {
		event := queue.pop()
		c.handleTableEvent(engine, tableID, event)
	}
}

// eventQueue is an unbounded ordered FIFO for one table's events.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []*table.Event
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *eventQueue) push(event *table.Event) {
	q.mu.Lock()
	q.events = append(q.events, event)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *eventQueue) pop() *table.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.events) == 0 {
		q.cond.Wait()
	}
	event := q.events[0]
	q.events = q.events[1:]
	return event
}

func (c *Coordinator) roomSessions(tableID string) []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	room := c.rooms[tableID]
	sessions := make([]*Session, 0, len(room))
	for _, session := range room {
		sessions = append(sessions, session)
	}
	return sessions
}

func (c *Coordinator) handleTableEvent(engine table.TableEngine, tableID string, event *table.Event) {
	switch event.Type {
	case table.EventType_StateChanged:
		for _, session := range c.roomSessions(tableID) {
			view := engine.View(session.Identity)
			session.Conn.Send(&ServerMessage{Type: Out_GameState, TableID: tableID, State: view})
		}

	case table.EventType_HandLogLine:
		for _, session := range c.roomSessions(tableID) {
			if event.Line.PrivateTo != "" && event.Line.PrivateTo != session.Identity {
				continue
			}
			session.Conn.Send(&ServerMessage{Type: Out_HandLog, TableID: tableID, Line: event.Line.Text})
		}

	case table.EventType_TimerStart:
		for _, session := range c.roomSessions(tableID) {
			session.Conn.Send(&ServerMessage{Type: Out_ActionTimerStart, TableID: tableID, Seat: event.Seat, DurationMs: event.DurationMs})
		}

	case table.EventType_TimeBankStart:
		for _, session := range c.roomSessions(tableID) {
			session.Conn.Send(&ServerMessage{Type: Out_TimeBankStart, TableID: tableID, Seat: event.Seat, DurationMs: event.DurationMs})
		}

	case table.EventType_DealCards:
		// a targeted snapshot so the owner sees their cards immediately
		for _, session := range c.roomSessions(tableID) {
			if session.Identity == event.Identity {
				session.Conn.Send(&ServerMessage{Type: Out_GameState, TableID: tableID, State: engine.View(session.Identity)})
			}
		}

	case table.EventType_HandComplete:
		for _, session := range c.roomSessions(tableID) {
			if session.Identity == event.Identity {
				session.Conn.Send(&ServerMessage{Type: Out_HandComplete, TableID: tableID, HandID: event.HandID, Lines: event.Lines})
			}
		}

	case table.EventType_Rebuy:
		for _, session := range c.roomSessions(tableID) {
			if session.Identity == event.Identity {
				session.Conn.Send(&ServerMessage{Type: Out_ProfileUpdated, TableID: tableID, Profile: &auth.Profile{Identity: event.Identity, Chips: event.Chips}})
			}
		}

	case table.EventType_PlayerLeaving:
		c.mu.Lock()
		if ref, ok := c.byIdentity[event.Identity]; ok && ref.tableID == tableID {
			delete(c.byIdentity, event.Identity)
		}
		var target *Session
		for _, session := range c.rooms[tableID] {
			if session.Identity == event.Identity {
				session.Seat = table.UnsetValue
				target = session
			}
		}
		c.mu.Unlock()

		if err := c.guard.MarkPlayerLeft(context.Background(), event.Identity); err != nil {
			c.logger.Warn().Err(err).Msg("mark player left failed")
		}
		if target != nil {
			target.Conn.Send(&ServerMessage{Type: Out_ProfileUpdated, TableID: tableID, Profile: &auth.Profile{Identity: event.Identity, Chips: event.Chips}})
		}

	case table.EventType_TableMaybeEmpty:
		c.logger.Debug().Str("table_id", tableID).Msg("table empty")
	}
}

// HandleMessage processes one inbound frame. Invalid input produces a
// single error event to the offending transport; game state is never
// touched.
func (c *Coordinator) HandleMessage(conn Conn, msg *ClientMessage) {
	switch msg.Type {
	case Msg_JoinTable:
		c.handleJoinTable(conn, msg)
	case Msg_ObserveTable:
		c.handleObserveTable(conn, msg)
	case Msg_Action:
		c.handleAction(conn, msg)
	case Msg_SitOut:
		c.withSeated(conn, func(engine table.TableEngine, s *Session) error {
			return engine.PlayerSitOut(s.Identity)
		})
	case Msg_SitBackIn:
		c.withSeated(conn, func(engine table.TableEngine, s *Session) error {
			return engine.PlayerSitBackIn(s.Identity)
		})
	case Msg_Rebuy:
		c.withSeated(conn, func(engine table.TableEngine, s *Session) error {
			return engine.PlayerRebuy(s.Identity, msg.BuyIn)
		})
	case Msg_LeaveTable:
		c.withSeated(conn, func(engine table.TableEngine, s *Session) error {
			return engine.PlayerLeave(s.Identity)
		})
	case Msg_ChatMessage:
		c.handleChat(conn, msg)
	default:
		c.sendError(conn, ErrorCode_InvalidArgument, "unknown message type")
	}
}

func (c *Coordinator) handleJoinTable(conn Conn, msg *ClientMessage) {
	ctx := context.Background()

	profile, err := c.auth.ValidateSession(ctx, msg.SessionToken)
	if err != nil {
		conn.Send(&ServerMessage{Type: Out_AuthError, Code: ErrorCode_Unauthenticated, Message: "invalid session"})
		return
	}

	if banned, _ := c.guard.IsBanned(ctx, profile.Identity); banned {
		_ = c.guard.RecordAbuse(ctx, profile.Identity, conn.RemoteIP(), "join-banned")
		c.sendError(conn, ErrorCode_Unauthorized, "account banned")
		return
	}
	if banned, _ := c.guard.IsIPBanned(ctx, conn.RemoteIP()); banned {
		_ = c.guard.RecordAbuse(ctx, profile.Identity, conn.RemoteIP(), "join-ip-banned")
		c.sendError(conn, ErrorCode_Unauthorized, "address banned")
		return
	}

	if !c.allowRate("join:"+profile.Identity, c.options.JoinRatePerMinute) {
		_ = c.guard.RecordAbuse(ctx, profile.Identity, conn.RemoteIP(), "join-rate-limited")
		c.sendError(conn, ErrorCode_RateLimited, "slow down")
		return
	}

	engine, tableID, ok := c.resolveTable(msg.TableID)
	if !ok {
		c.sendError(conn, ErrorCode_TableNotFound, "no such table")
		return
	}

	// reconnection: the identity already holds a seat here
	c.mu.Lock()
	ref, seated := c.byIdentity[profile.Identity]
	if seated && ref.tableID == tableID {
		oldConn := ref.conn
		ref.conn = conn
		if oldConn != conn {
			delete(c.sessions, oldConn)
			delete(c.rooms[tableID], oldConn)
		}
		session := &Session{Conn: conn, Identity: profile.Identity, Handle: profile.Handle, TableID: tableID}
		c.sessions[conn] = session
		c.rooms[tableID][conn] = session
		c.cancelIdentityTimersLocked(profile.Identity)
		c.mu.Unlock()

		_ = engine.SetPlayerDisconnected(profile.Identity, false)
		seat := seatOf(engine.View(profile.Identity), profile.Identity)
		c.mu.Lock()
		if s, ok := c.sessions[conn]; ok {
			s.Seat = seat
		}
		c.mu.Unlock()

		conn.Send(&ServerMessage{Type: Out_SeatAssigned, TableID: tableID, Seat: seat})
		conn.Send(&ServerMessage{Type: Out_GameState, TableID: tableID, State: engine.View(profile.Identity)})
		return
	}
	c.mu.Unlock()

	buyIn := profile.Chips
	if buyIn <= 0 {
		buyIn = c.options.DefaultBuyIn
	}
	preferredSeat := table.UnsetValue
	if msg.Seat != nil {
		preferredSeat = *msg.Seat
	}

	seat, err := engine.PlayerJoin(profile.Identity, profile.Handle, buyIn, preferredSeat)
	if err != nil {
		switch err {
		case table.ErrTableNoEmptySeats:
			c.sendError(conn, ErrorCode_TableFull, "table full")
		case table.ErrInvalidBuyIn:
			c.sendError(conn, ErrorCode_InvalidArgument, "invalid buy-in")
		default:
			c.sendError(conn, ErrorCode_Internal, "join failed")
		}
		return
	}
	_ = engine.SetPlayerDisconnected(profile.Identity, false)

	c.mu.Lock()
	session := &Session{Conn: conn, Identity: profile.Identity, Handle: profile.Handle, TableID: tableID, Seat: seat}
	c.sessions[conn] = session
	c.byIdentity[profile.Identity] = &seatRef{conn: conn, tableID: tableID}
	c.rooms[tableID][conn] = session
	c.cancelIdentityTimersLocked(profile.Identity)
	c.mu.Unlock()

	conn.Send(&ServerMessage{Type: Out_SeatAssigned, TableID: tableID, Seat: seat})
	conn.Send(&ServerMessage{Type: Out_GameState, TableID: tableID, State: engine.View(profile.Identity)})
}

func (c *Coordinator) handleObserveTable(conn Conn, msg *ClientMessage) {
	engine, tableID, ok := c.resolveTable(msg.TableID)
	if !ok {
		c.sendError(conn, ErrorCode_TableNotFound, "no such table")
		return
	}

	c.mu.Lock()
	session := &Session{
		Conn:      conn,
		TableID:   tableID,
		Seat:      table.UnsetValue,
		Observer:  true,
		Pseudonym: "guest-" + uuid.New().String()[:8],
	}
	c.sessions[conn] = session
	c.rooms[tableID][conn] = session
	c.mu.Unlock()

	conn.Send(&ServerMessage{Type: Out_GameState, TableID: tableID, State: engine.View("")})
}

func (c *Coordinator) handleAction(conn Conn, msg *ClientMessage) {
	engine, session, ok := c.seatedSession(conn)
	if !ok {
		c.sendError(conn, ErrorCode_NotInHand, "not seated at a table")
		return
	}

	err := engine.PlayerAction(session.Identity, table.ActionType(msg.Action), msg.Amount)
	if err != nil {
		switch err {
		case table.ErrInvalidRaise:
			c.sendError(conn, ErrorCode_InvalidArgument, "invalid raise size")
		case table.ErrNotPlayersTurn, table.ErrIllegalAction:
			c.sendError(conn, ErrorCode_IllegalAction, err.Error())
		case table.ErrPlayerNotFound:
			c.sendError(conn, ErrorCode_NotInHand, "not in hand")
		default:
			c.sendError(conn, ErrorCode_Internal, "action failed")
		}
	}
}

func (c *Coordinator) handleChat(conn Conn, msg *ClientMessage) {
	c.mu.Lock()
	session, ok := c.sessions[conn]
	c.mu.Unlock()
	if !ok {
		c.sendError(conn, ErrorCode_InvalidArgument, "no active table")
		return
	}

	text := msg.Text
	if text == "" {
		return
	}
	if len(text) > c.options.ChatMaxLen {
		text = text[:c.options.ChatMaxLen]
	}

	from := session.Handle
	if session.Observer {
		from = session.Pseudonym
	}

	for _, target := range c.roomSessions(session.TableID) {
		target.Conn.Send(&ServerMessage{
			Type:     Out_ChatMessage,
			TableID:  session.TableID,
			From:     from,
			Observer: session.Observer,
			Text:     text,
		})
	}
}

/*
Disconnect handles a transport drop. A seated identity keeps its
identity mapping for the swap grace so a reconnect can take over the
seat; after the disconnect grace it is sat out and the kick timer
starts counting.
*/
func (c *Coordinator) Disconnect(conn Conn) {
	c.mu.Lock()
	session, ok := c.sessions[conn]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.sessions, conn)
	if room, ok := c.rooms[session.TableID]; ok {
		delete(room, conn)
	}
	identity := session.Identity
	tableID := session.TableID
	c.mu.Unlock()

	if identity == "" {
		return
	}

	engine, _, ok := c.resolveTable(tableID)
	if !ok {
		return
	}
	_ = engine.SetPlayerDisconnected(identity, true)

	// swap-grace cleanup is idempotent: only remove the mapping if it
	// still points at the dead transport
	c.mu.Lock()
	swap := c.identityTimerLocked(c.swapTB, identity)
	grace := c.identityTimerLocked(c.graceTB, identity)
	c.mu.Unlock()

	swap.Cancel()
	swap.NewTask(time.Duration(c.options.ReconnectSwapMs)*time.Millisecond, func(isCancelled bool) {
		if isCancelled {
			return
		}
		c.mu.Lock()
		if ref, ok := c.byIdentity[identity]; ok && ref.conn == conn {
			delete(c.byIdentity, identity)
		}
		c.mu.Unlock()
	})

	grace.Cancel()
	grace.NewTask(time.Duration(c.options.DisconnectGraceMs)*time.Millisecond, func(isCancelled bool) {
		if isCancelled {
			return
		}
		view := engine.View(identity)
		seat := seatOf(view, identity)
		if seat == table.UnsetValue || !view.Seats[seat].Disconnected {
			return
		}
		if err := engine.AutoSitOut(identity); err != nil {
			c.logger.Warn().Err(err).Str("identity", identity).Msg("auto sit-out failed")
		}
	})
}

// Close cancels the coordinator's pending timers.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tb := range c.swapTB {
		tb.Cancel()
	}
	for _, tb := range c.graceTB {
		tb.Cancel()
	}
}

// ---- helpers ----

func (c *Coordinator) resolveTable(tableID string) (table.TableEngine, string, bool) {
	c.mu.Lock()
	if tableID == "" {
		tableID = c.defaultTableID
	}
	engine, ok := c.engines[tableID]
	c.mu.Unlock()
	return engine, tableID, ok
}

func (c *Coordinator) seatedSession(conn Conn) (table.TableEngine, *Session, bool) {
	c.mu.Lock()
	session, ok := c.sessions[conn]
	c.mu.Unlock()
	if !ok || session.Observer || session.Identity == "" {
		return nil, nil, false
	}
	engine, _, ok := c.resolveTable(session.TableID)
	if !ok {
		return nil, nil, false
	}
	return engine, session, true
}

func (c *Coordinator) withSeated(conn Conn, fn func(table.TableEngine, *Session) error) {
	engine, session, ok := c.seatedSession(conn)
	if !ok {
		c.sendError(conn, ErrorCode_NotInHand, "not seated at a table")
		return
	}
	if err := fn(engine, session); err != nil {
		switch err {
		case table.ErrPlayerNotFound:
			c.sendError(conn, ErrorCode_NotInHand, "not seated")
		case table.ErrRebuyDuringHand:
			c.sendError(conn, ErrorCode_IllegalAction, "cannot rebuy during a hand")
		case table.ErrInvalidBuyIn:
			c.sendError(conn, ErrorCode_InvalidArgument, "invalid buy-in")
		default:
			c.sendError(conn, ErrorCode_Internal, "request failed")
		}
	}
}

func (c *Coordinator) sendError(conn Conn, code ErrorCode, message string) {
	conn.Send(&ServerMessage{Type: Out_Error, Code: code, Message: message})
}

func (c *Coordinator) allowRate(key string, perMinute float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	limiter, ok := c.limiters[key]
	if !ok {
		limiter = newRateLimiter(perMinute, perMinute/60)
		c.limiters[key] = limiter
	}
	return limiter.allow()
}

func (c *Coordinator) identityTimerLocked(m map[string]*timebank.TimeBank, identity string) *timebank.TimeBank {
	tb, ok := m[identity]
	if !ok {
		tb = timebank.NewTimeBank()
		m[identity] = tb
	}
	return tb
}

func (c *Coordinator) cancelIdentityTimersLocked(identity string) {
	if tb, ok := c.swapTB[identity]; ok {
		tb.Cancel()
	}
	if tb, ok := c.graceTB[identity]; ok {
		tb.Cancel()
	}
}

func seatOf(view *table.TableView, identity string) int {
	for seat, sv := range view.Seats {
		if sv != nil && sv.Identity == identity {
			return seat
		}
	}
	return table.UnsetValue
}
