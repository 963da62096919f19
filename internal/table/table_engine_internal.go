package table

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/weedbox/timebank"

	"github.com/evenkeel/SatoshiStacks/internal/poker"
)

func (te *tableEngine) ctx() context.Context {
	return context.Background()
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// minRaiseTo is the lowest legal raise total: the current max bet plus
// the larger of the big blind and the last raise size.
func (te *tableEngine) minRaiseTo() int64 {
	return te.table.MaxBet() + max64(te.options.BigBlind, te.table.LastRaise)
}

// noContestRemains reports whether every live opponent of seat is
// already all-in for no more than the current max bet, in which case a
// raise could never be called and is capped to a call.
func (te *tableEngine) noContestRemains(seat int, maxBet int64) bool {
	for _, other := range te.table.LiveSeats() {
		if other == seat {
			continue
		}
		p := te.table.Seats[other]
		if !p.AllIn || p.StreetBet > maxBet {
			return false
		}
	}
	return true
}

// commit moves chips from the seat's stack into its street bet.
func (te *tableEngine) commit(seat int, amount int64) {
	p := te.table.Seats[seat]
	if amount > p.Stack {
		amount = p.Stack
	}
	p.Stack -= amount
	p.StreetBet += amount
	p.HandBet += amount
	if p.Stack == 0 {
		p.AllIn = true
	}
}

/*
scheduleHandStart debounces the "enough players" check with a short
one-shot delay so rapid joins coalesce into a single hand start.
*/
func (te *tableEngine) scheduleHandStart() {
	if te.closed || te.table.Phase != Phase_Idle {
		return
	}
	if len(te.table.EligibleSeats()) < 2 {
		return
	}

	te.handStartTB.Cancel()
	te.handStartTB.NewTask(time.Duration(te.options.HandStartDelayMs)*time.Millisecond, func(isCancelled bool) {
		if isCancelled {
			return
		}

		te.lock.Lock()
		defer te.lock.Unlock()

		if te.closed || te.table.Phase != Phase_Idle {
			return
		}

		// apply deferred sit-outs before the eligibility check
		for _, p := range te.table.Seats {
			if p != nil && p.SitOutNextHand {
				p.SitOutNextHand = false
				p.SittingOut = true
				te.armKick(p.Identity)
			}
		}

		if len(te.table.EligibleSeats()) < 2 {
			return
		}
		te.startHand()
	})
}

func (te *tableEngine) startHand() {
	te.table.HandCount++
	te.currentHandID = uuid.New().String()
	te.table.resetForNewHand()

	eligibleKeep := func(p *SeatPlayer) bool {
		return !p.SittingOut && !p.PendingRemoval && p.Stack > 0
	}

	// button starts at seat 0 and advances to the next eligible seat
	if te.table.DealerSeat == UnsetValue {
		te.table.DealerSeat = te.table.NextSeatFrom(len(te.table.Seats)-1, eligibleKeep)
	} else {
		te.table.DealerSeat = te.table.NextSeatFrom(te.table.DealerSeat, eligibleKeep)
	}

	for _, seat := range te.table.EligibleSeats() {
		p := te.table.Seats[seat]
		p.InHand = true
		p.HandsDealt++
		te.growTimeBank(p)
	}

	inHand := func(p *SeatPlayer) bool { return p.InHand }
	players := te.table.InHandSeats()
	if len(players) == 2 {
		// heads-up: the dealer posts the small blind and acts first
		te.table.SBSeat = te.table.DealerSeat
		te.table.BBSeat = te.table.NextSeatFrom(te.table.DealerSeat, inHand)
	} else {
		te.table.SBSeat = te.table.NextSeatFrom(te.table.DealerSeat, inHand)
		te.table.BBSeat = te.table.NextSeatFrom(te.table.SBSeat, inHand)
	}

	te.table.Phase = Phase_Preflop
	te.logHandHeader(te.currentHandID)

	te.postBlind(te.table.SBSeat, te.options.SmallBlind, "small blind")
	te.postBlind(te.table.BBSeat, te.options.BigBlind, "big blind")
	te.table.LastRaise = te.options.BigBlind

	te.dealHoleCards()
	te.logf("*** HOLE CARDS ***")

	if te.roundDone() {
		// both blinds all-in from their posts
		te.endStreet()
		return
	}

	actingKeep := func(p *SeatPlayer) bool {
		return p.InHand && !p.Folded && !p.AllIn && !p.SittingOut
	}
	firstFrom := te.table.BBSeat
	if len(players) == 2 {
		firstFrom = te.table.DealerSeat - 1 // dealer acts first heads-up preflop
		if firstFrom < 0 {
			firstFrom += len(te.table.Seats)
		}
	}
	te.table.CurrentSeat = te.table.NextSeatFrom(firstFrom, actingKeep)
	te.emitStateChanged()
	te.startActionTimer()
}

func (te *tableEngine) growTimeBank(p *SeatPlayer) {
	if te.options.TimeBankGrowthHands <= 0 {
		return
	}
	if p.HandsDealt%te.options.TimeBankGrowthHands != 0 {
		return
	}
	p.PreflopBankMs = clamp64(p.PreflopBankMs+te.options.TimeBankGrowthMs, 0, te.options.TimeBankCapMs)
	p.PostflopBankMs = clamp64(p.PostflopBankMs+te.options.TimeBankGrowthMs, 0, te.options.TimeBankCapMs)
}

func (te *tableEngine) postBlind(seat int, amount int64, name string) {
	if seat == UnsetValue {
		return
	}
	te.commit(seat, amount)
	p := te.table.Seats[seat]
	suffix := ""
	if p.AllIn {
		suffix = " and is all-in"
	}
	te.logf("%s posts %s %d%s", p.Handle, name, p.StreetBet, suffix)
}

func (te *tableEngine) dealHoleCards() {
	deck := poker.NewDeck()
	if err := deck.Shuffle(te.rng); err != nil {
		// refusing to deal without cryptographic entropy is mandatory
		te.logger.Fatal().Err(err).Msg("rng failure, refusing to deal")
	}
	te.deck = deck

	inHand := func(p *SeatPlayer) bool { return p.InHand }
	for round := 0; round < 2; round++ {
		seat := te.table.DealerSeat
		for i := 0; i < len(te.table.InHandSeats()); i++ {
			seat = te.table.NextSeatFrom(seat, inHand)
			p := te.table.Seats[seat]
			p.Hole = append(p.Hole, te.deck.Draw())
		}
	}

	for _, seat := range te.table.InHandSeats() {
		p := te.table.Seats[seat]
		te.logPrivatef(p.Identity, "Dealt to %s [%s]", p.Handle, strings.Join(poker.CardStrings(p.Hole), " "))
		te.emitEvent(&Event{Type: EventType_DealCards, Identity: p.Identity, Cards: append([]poker.Card(nil), p.Hole...)})
	}
}

func (te *tableEngine) applyAction(seat int, action ActionType, amount int64) {
	p := te.table.Seats[seat]
	maxBet := te.table.MaxBet()
	te.table.ActedThisRound[seat] = true

	switch action {
	case Action_Fold:
		p.Folded = true
		p.foldedOn = te.table.Phase
		p.actions = append(p.actions, string(Action_Fold))
		te.logAction(seat, Action_Fold, 0)

	case Action_Check:
		p.actions = append(p.actions, string(Action_Check))
		te.logAction(seat, Action_Check, 0)

	case Action_Call:
		callAmount := maxBet - p.StreetBet
		if callAmount > p.Stack {
			callAmount = p.Stack
		}
		te.commit(seat, callAmount)
		p.actions = append(p.actions, fmt.Sprintf("call %d", callAmount))
		te.logAction(seat, Action_Call, callAmount)

	case Action_Raise:
		legal := amount >= maxBet+max64(te.options.BigBlind, te.table.LastRaise)
		te.commit(seat, amount-p.StreetBet)
		if legal {
			// a full raise reopens the betting line
			te.table.LastRaise = amount - maxBet
			te.table.LastAggressor = seat
			te.table.ActedThisRound = map[int]bool{seat: true}
		}
		p.actions = append(p.actions, fmt.Sprintf("raise %d", amount))
		te.logAction(seat, Action_Raise, amount)
	}

	te.progress(seat)
}

// progress advances the hand after a completed action.
func (te *tableEngine) progress(lastSeat int) {
	live := te.table.LiveSeats()
	if len(live) == 1 {
		te.awardToLastStanding(live[0])
		return
	}

	if te.roundDone() {
		te.endStreet()
		return
	}

	actingKeep := func(p *SeatPlayer) bool {
		return p.InHand && !p.Folded && !p.AllIn && !p.SittingOut
	}
	next := te.table.NextSeatFrom(lastSeat, actingKeep)
	if next == UnsetValue {
		te.endStreet()
		return
	}
	te.table.CurrentSeat = next
	te.emitStateChanged()
	te.startActionTimer()
}

// roundDone holds when every seat that can still act has both acted
// this round and matched the max bet. Vacuously true with no actors.
func (te *tableEngine) roundDone() bool {
	maxBet := te.table.MaxBet()
	for _, seat := range te.table.ActingSeats() {
		p := te.table.Seats[seat]
		if !te.table.ActedThisRound[seat] || p.StreetBet != maxBet {
			return false
		}
	}
	return true
}

// endStreet collects the street bets into the pot and either advances
// to the next street, starts the dramatic run-out, or goes to showdown.
func (te *tableEngine) endStreet() {
	te.collectStreetBets()

	if te.table.Phase == Phase_River {
		te.showdown()
		return
	}

	if len(te.table.ActingSeats()) <= 1 {
		te.beginDramaticRunout()
		return
	}

	te.dealNextStreet()

	actingKeep := func(p *SeatPlayer) bool {
		return p.InHand && !p.Folded && !p.AllIn && !p.SittingOut
	}
	te.table.CurrentSeat = te.table.NextSeatFrom(te.table.DealerSeat, actingKeep)
	te.emitStateChanged()
	te.startActionTimer()
}

// collectStreetBets moves every street bet into the pot and grows the
// visual chip pile by the greedy breakdown of the collection.
func (te *tableEngine) collectStreetBets() {
	var collected int64
	for _, p := range te.table.Seats {
		if p == nil {
			continue
		}
		collected += p.StreetBet
		p.StreetBet = 0
	}
	if collected > 0 {
		te.table.Pot += collected
		te.table.ChipPile = append(te.table.ChipPile, breakIntoChips(collected)...)
	}

	te.table.ActedThisRound = make(map[int]bool)
	te.table.LastRaise = 0
	te.table.LastAggressor = UnsetValue
	te.table.CurrentSeat = UnsetValue
}

// dealNextStreet burns one card and deals the next board cards.
func (te *tableEngine) dealNextStreet() {
	switch te.table.Phase {
	case Phase_Preflop:
		te.deck.Draw() // burn
		te.table.Community = append(te.table.Community, te.deck.Draw(), te.deck.Draw(), te.deck.Draw())
		te.table.Phase = Phase_Flop
		te.logBoard("FLOP")
	case Phase_Flop:
		te.deck.Draw()
		te.table.Community = append(te.table.Community, te.deck.Draw())
		te.table.Phase = Phase_Turn
		te.logBoard("TURN")
	case Phase_Turn:
		te.deck.Draw()
		te.table.Community = append(te.table.Community, te.deck.Draw())
		te.table.Phase = Phase_River
		te.logBoard("RIVER")
	}
}

// foldSeatOutOfTurn folds a seat outside the normal action flow
// (leave, disconnect escalation). When it was the seat's turn the
// action continues to the next player.
func (te *tableEngine) foldSeatOutOfTurn(seat int) {
	p := te.table.Seats[seat]
	if p.Folded || !p.InHand {
		return
	}
	// no action left to fold once the hand is being revealed; the seat
	// stays live for the award
	if te.table.Phase == Phase_Showdown || te.table.Phase == Phase_Idle {
		return
	}

	wasCurrent := te.table.CurrentSeat == seat
	if wasCurrent {
		te.consumeTimeBank(seat)
	}

	p.Folded = true
	p.foldedOn = te.table.Phase
	p.actions = append(p.actions, string(Action_Fold))
	te.logAction(seat, Action_Fold, 0)
	te.table.ActedThisRound[seat] = true

	if wasCurrent {
		te.progress(seat)
		return
	}

	live := te.table.LiveSeats()
	if len(live) == 1 {
		te.awardToLastStanding(live[0])
	}
	te.emitStateChanged()
}

func (te *tableEngine) removeSeat(seat int) {
	p := te.table.Seats[seat]

	te.departures[p.Identity] = departure{stack: p.Stack, leftAt: time.Now()}
	te.cancelKick(p.Identity)

	if err := te.recorder.SetPlayerChips(te.ctx(), p.Identity, p.Stack); err != nil {
		te.logger.Warn().Err(err).Str("identity", p.Identity).Msg("persist chips on leave failed")
	}

	te.emitEvent(&Event{Type: EventType_PlayerLeaving, Identity: p.Identity, Chips: p.Stack})
	te.table.Seats[seat] = nil

	occupied := 0
	for _, sp := range te.table.Seats {
		if sp != nil {
			occupied++
		}
	}
	if occupied == 0 {
		te.emitEvent(&Event{Type: EventType_TableMaybeEmpty})
	}
}

func (te *tableEngine) armKick(identity string) {
	tb, ok := te.kickTB[identity]
	if !ok {
		tb = timebank.NewTimeBank()
		te.kickTB[identity] = tb
	}
	tb.Cancel()
	tb.NewTask(time.Duration(te.options.SitOutKickMs)*time.Millisecond, func(isCancelled bool) {
		if isCancelled {
			return
		}

		te.lock.Lock()
		defer te.lock.Unlock()

		seat := te.table.FindSeat(identity)
		if seat == UnsetValue || !te.table.Seats[seat].SittingOut {
			return
		}

		p := te.table.Seats[seat]
		if p.InHand && te.table.Phase != Phase_Idle {
			p.PendingRemoval = true
			return
		}
		te.removeSeat(seat)
		te.emitStateChanged()
	})
}

func (te *tableEngine) cancelKick(identity string) {
	if tb, ok := te.kickTB[identity]; ok {
		tb.Cancel()
	}
}
