package table

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/weedbox/timebank"

	"github.com/evenkeel/SatoshiStacks/internal/poker"
)

var (
	ErrTableNoEmptySeats = errors.New("table: no empty seats available")
	ErrTableClosed       = errors.New("table: table is closed")
	ErrPlayerNotFound    = errors.New("table: player not found")
	ErrNotPlayersTurn    = errors.New("table: not player's turn")
	ErrIllegalAction     = errors.New("table: illegal action")
	ErrInvalidRaise      = errors.New("table: invalid raise size")
	ErrInvalidBuyIn      = errors.New("table: invalid buy-in")
	ErrRebuyDuringHand   = errors.New("table: rebuy while contesting a hand")
)

type TableEngineOpt func(*tableEngine)

type TableEngine interface {
	// Events
	OnEvent(fn func(*Event)) // single outbound stream; the coordinator is the sole consumer

	// State
	GetTable() *Table
	View(viewer string) *TableView

	// Seating
	PlayerJoin(identity, handle string, buyIn int64, preferredSeat int) (int, error)
	PlayerLeave(identity string) error
	PlayerRebuy(identity string, buyIn int64) error
	PlayerSitOut(identity string) error
	PlayerSitBackIn(identity string) error
	AutoSitOut(identity string) error
	SetPlayerDisconnected(identity string, disconnected bool) error

	// Game actions
	PlayerAction(identity string, action ActionType, amount int64) error

	// Lifecycle
	TryStartHand()
	Close()
}

type tableEngine struct {
	lock     sync.Mutex
	options  *Options
	table    *Table
	rng      poker.Rand
	recorder Recorder
	logger   zerolog.Logger

	deck          *poker.Deck
	currentHandID string

	actionTimer *ActionTimer
	handStartTB *timebank.TimeBank
	runoutTB    *timebank.TimeBank
	kickTB      map[string]*timebank.TimeBank

	departures map[string]departure

	onEvent func(*Event)
	closed  bool
}

// departure remembers a leaver's stack for the anti-ratholing clamp.
type departure struct {
	stack  int64
	leftAt time.Time
}

func NewTableEngine(id string, options *Options, opts ...TableEngineOpt) TableEngine {
	te := &tableEngine{
		options:     options,
		table:       newTable(id, options.NumSeats),
		rng:         poker.CryptoRand{},
		recorder:    NopRecorder{},
		logger:      zerolog.Nop(),
		actionTimer: NewActionTimer(),
		handStartTB: timebank.NewTimeBank(),
		runoutTB:    timebank.NewTimeBank(),
		kickTB:      make(map[string]*timebank.TimeBank),
		departures:  make(map[string]departure),
		onEvent:     func(*Event) {},
	}

	for _, opt := range opts {
		opt(te)
	}

	return te
}

func WithRecorder(recorder Recorder) TableEngineOpt {
	return func(te *tableEngine) {
		te.recorder = recorder
	}
}

func WithRand(rng poker.Rand) TableEngineOpt {
	return func(te *tableEngine) {
		te.rng = rng
	}
}

func WithLogger(logger zerolog.Logger) TableEngineOpt {
	return func(te *tableEngine) {
		te.logger = logger
	}
}

func (te *tableEngine) OnEvent(fn func(*Event)) {
	te.onEvent = fn
}

func (te *tableEngine) GetTable() *Table {
	return te.table
}

func (te *tableEngine) View(viewer string) *TableView {
	te.lock.Lock()
	defer te.lock.Unlock()
	return te.buildView(viewer)
}

/*
PlayerJoin seats a new player. The preferred seat is honoured when
empty, otherwise the lowest-index empty seat is used. Joining again
with a seated identity is a no-op returning the existing seat. The
buy-in is clamped to the configured range, then floored at the
player's prior stack if they left within the rathole window.
*/
func (te *tableEngine) PlayerJoin(identity, handle string, buyIn int64, preferredSeat int) (int, error) {
	te.lock.Lock()
	defer te.lock.Unlock()

	if te.closed {
		return UnsetValue, ErrTableClosed
	}

	if seat := te.table.FindSeat(identity); seat != UnsetValue {
		return seat, nil
	}

	if buyIn <= 0 {
		return UnsetValue, ErrInvalidBuyIn
	}
	buyIn = clamp64(buyIn, te.options.MinBuyIn, te.options.MaxBuyIn)

	// anti-ratholing: a returning player cannot buy in below the stack
	// they left with inside the window
	if dep, ok := te.departures[identity]; ok {
		if time.Since(dep.leftAt).Milliseconds() <= te.options.RatholeWindowMs && dep.stack > buyIn {
			buyIn = dep.stack
		}
		delete(te.departures, identity)
	}

	seat := UnsetValue
	if preferredSeat >= 0 && preferredSeat < len(te.table.Seats) && te.table.Seats[preferredSeat] == nil {
		seat = preferredSeat
	} else {
		for idx, p := range te.table.Seats {
			if p == nil {
				seat = idx
				break
			}
		}
	}
	if seat == UnsetValue {
		return UnsetValue, ErrTableNoEmptySeats
	}

	te.table.Seats[seat] = &SeatPlayer{
		Identity:       identity,
		Handle:         handle,
		Stack:          buyIn,
		PreflopBankMs:  te.options.DefaultTimeBankMs,
		PostflopBankMs: te.options.DefaultTimeBankMs,
	}

	if err := te.recorder.SetPlayerChips(te.ctx(), identity, buyIn); err != nil {
		te.logger.Warn().Err(err).Str("identity", identity).Msg("persist chips on join failed")
	}

	te.emitStateChanged()
	te.scheduleHandStart()
	return seat, nil
}

/*
PlayerLeave removes a player. If a hand is in progress the seat is
folded and flagged pending-removal; the actual removal happens when
the hand ends.
*/
func (te *tableEngine) PlayerLeave(identity string) error {
	te.lock.Lock()
	defer te.lock.Unlock()

	seat := te.table.FindSeat(identity)
	if seat == UnsetValue {
		return ErrPlayerNotFound
	}

	p := te.table.Seats[seat]
	if p.InHand && te.table.Phase != Phase_Idle {
		p.PendingRemoval = true
		te.foldSeatOutOfTurn(seat)
		return nil
	}

	te.removeSeat(seat)
	te.emitStateChanged()
	return nil
}

/*
PlayerRebuy tops a stack back up. Only permitted when the player is
not contesting a live hand. Clears the busted and sitting-out flags
and persists the new total.
*/
func (te *tableEngine) PlayerRebuy(identity string, buyIn int64) error {
	te.lock.Lock()
	defer te.lock.Unlock()

	seat := te.table.FindSeat(identity)
	if seat == UnsetValue {
		return ErrPlayerNotFound
	}

	p := te.table.Seats[seat]
	if p.InHand && !p.Folded && te.table.Phase != Phase_Idle {
		return ErrRebuyDuringHand
	}
	if buyIn <= 0 {
		return ErrInvalidBuyIn
	}

	buyIn = clamp64(buyIn, te.options.MinBuyIn, te.options.MaxBuyIn)
	p.Stack += buyIn
	p.Busted = false
	p.SittingOut = false
	te.cancelKick(identity)

	if err := te.recorder.SetPlayerChips(te.ctx(), identity, p.Stack); err != nil {
		te.logger.Warn().Err(err).Str("identity", identity).Msg("persist chips on rebuy failed")
	}

	te.emitEvent(&Event{Type: EventType_Rebuy, Identity: identity, Chips: buyIn})
	te.emitStateChanged()
	te.scheduleHandStart()
	return nil
}

/*
PlayerSitOut toggles the sit-out-next-hand flag; when the player is
not active in a hand the sit-out is immediate and the kick timer is
armed.
*/
func (te *tableEngine) PlayerSitOut(identity string) error {
	te.lock.Lock()
	defer te.lock.Unlock()

	seat := te.table.FindSeat(identity)
	if seat == UnsetValue {
		return ErrPlayerNotFound
	}

	p := te.table.Seats[seat]
	if p.InHand && !p.Folded && te.table.Phase != Phase_Idle {
		p.SitOutNextHand = !p.SitOutNextHand
	} else {
		p.SittingOut = true
		te.armKick(identity)
	}

	te.emitStateChanged()
	return nil
}

// PlayerSitBackIn clears both sit-out flags, cancels the pending kick
// and schedules a new hand if conditions hold.
func (te *tableEngine) PlayerSitBackIn(identity string) error {
	te.lock.Lock()
	defer te.lock.Unlock()

	seat := te.table.FindSeat(identity)
	if seat == UnsetValue {
		return ErrPlayerNotFound
	}

	p := te.table.Seats[seat]
	p.SittingOut = false
	p.SitOutNextHand = false
	te.cancelKick(identity)

	te.emitStateChanged()
	te.scheduleHandStart()
	return nil
}

// AutoSitOut is the disconnect escalation path: folds the current
// hand if any, sits the player out immediately and arms the kick.
func (te *tableEngine) AutoSitOut(identity string) error {
	te.lock.Lock()
	defer te.lock.Unlock()

	seat := te.table.FindSeat(identity)
	if seat == UnsetValue {
		return ErrPlayerNotFound
	}

	p := te.table.Seats[seat]
	if p.InHand && !p.Folded && te.table.Phase != Phase_Idle {
		te.foldSeatOutOfTurn(seat)
	}
	p.SittingOut = true
	te.armKick(identity)

	te.emitStateChanged()
	return nil
}

func (te *tableEngine) SetPlayerDisconnected(identity string, disconnected bool) error {
	te.lock.Lock()
	defer te.lock.Unlock()

	seat := te.table.FindSeat(identity)
	if seat == UnsetValue {
		return ErrPlayerNotFound
	}

	te.table.Seats[seat].Disconnected = disconnected
	te.emitStateChanged()
	return nil
}

/*
PlayerAction validates and applies one betting action. Validation
happens before any state mutation or timer cancellation so a stream
of invalid actions cannot reset the clock.
*/
func (te *tableEngine) PlayerAction(identity string, action ActionType, amount int64) error {
	te.lock.Lock()
	defer te.lock.Unlock()

	if te.closed {
		return ErrTableClosed
	}

	seat := te.table.FindSeat(identity)
	if seat == UnsetValue {
		return ErrPlayerNotFound
	}
	if te.table.CurrentSeat != seat {
		return ErrNotPlayersTurn
	}

	p := te.table.Seats[seat]
	if !p.InHand || p.Folded || p.AllIn || p.SittingOut {
		return ErrIllegalAction
	}

	maxBet := te.table.MaxBet()
	switch action {
	case Action_Fold:
		// always legal on your turn
	case Action_Check:
		if p.StreetBet != maxBet {
			return ErrIllegalAction
		}
	case Action_Call:
		// always legal; may be an all-in call for less
	case Action_Raise:
		if te.noContestRemains(seat, maxBet) {
			// nobody left who could call: cap to a call
			action = Action_Call
			break
		}
		if te.table.ActedThisRound[seat] {
			// an all-in for less did not reopen the line: call or fold only
			return ErrIllegalAction
		}
		allInTotal := p.StreetBet + p.Stack
		if amount <= maxBet || amount > allInTotal {
			return ErrInvalidRaise
		}
		if amount < te.minRaiseTo() && amount != allInTotal {
			return ErrInvalidRaise
		}
	default:
		return ErrIllegalAction
	}

	// only now touch the clock
	te.consumeTimeBank(seat)
	te.applyAction(seat, action, amount)
	return nil
}

func (te *tableEngine) TryStartHand() {
	te.lock.Lock()
	defer te.lock.Unlock()
	te.scheduleHandStart()
}

// Close cancels every pending scheduled effect. Stale callbacks that
// already fired are defused by their own precondition checks.
func (te *tableEngine) Close() {
	te.lock.Lock()
	defer te.lock.Unlock()

	te.closed = true
	te.actionTimer.Stop()
	te.handStartTB.Cancel()
	te.runoutTB.Cancel()
	for _, tb := range te.kickTB {
		tb.Cancel()
	}
}

func clamp64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
