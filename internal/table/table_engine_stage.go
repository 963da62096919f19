package table

import (
	"strings"
	"time"

	"github.com/evenkeel/SatoshiStacks/internal/poker"
)

// ---- action timer ----

// startActionTimer arms the base countdown for the current actor. The
// expiry callbacks carry the (handCount, seat) pair they were armed
// for; a callback whose pair no longer matches is a no-op.
func (te *tableEngine) startActionTimer() {
	seat := te.table.CurrentSeat
	if seat == UnsetValue {
		return
	}
	p := te.table.Seats[seat]
	if p == nil || p.SittingOut {
		return
	}

	te.emitEvent(&Event{Type: EventType_TimerStart, Seat: seat, DurationMs: te.options.BaseActionMs})
	te.actionTimer.StartBase(te.table.HandCount, seat, te.options.BaseActionMs, te.onBaseTimerExpired)
}

func (te *tableEngine) onBaseTimerExpired(handCount, seat int) {
	te.lock.Lock()
	defer te.lock.Unlock()

	if te.staleTimer(handCount, seat) {
		return
	}

	p := te.table.Seats[seat]
	pool := te.timeBankPool(p)

	// the time bank only opens for a player with chips at risk
	if p.HandBet > 0 && pool > 0 {
		te.emitEvent(&Event{Type: EventType_TimeBankStart, Seat: seat, DurationMs: pool})
		te.actionTimer.StartBank(handCount, seat, pool, te.onTimeBankExpired)
		return
	}

	te.autoAct(seat)
}

func (te *tableEngine) onTimeBankExpired(handCount, seat int) {
	te.lock.Lock()
	defer te.lock.Unlock()

	if te.staleTimer(handCount, seat) {
		return
	}

	te.autoAct(seat)
}

// staleTimer is the stale-callback defence: expiry races with action
// arrival are intrinsic, so every expiry re-checks its target.
func (te *tableEngine) staleTimer(handCount, seat int) bool {
	if te.closed {
		return true
	}
	if handCount != te.table.HandCount || te.table.CurrentSeat != seat {
		return true
	}
	p := te.table.Seats[seat]
	return p == nil || !p.InHand || p.Folded || p.AllIn
}

func (te *tableEngine) timeBankPool(p *SeatPlayer) int64 {
	if te.table.Phase == Phase_Preflop {
		return p.PreflopBankMs
	}
	return p.PostflopBankMs
}

// consumeTimeBank stops the timer and deducts any time-bank burn from
// the pool for the current phase.
func (te *tableEngine) consumeTimeBank(seat int) {
	elapsed := te.actionTimer.Stop()
	if elapsed <= 0 {
		return
	}
	p := te.table.Seats[seat]
	if p == nil {
		return
	}
	if te.table.Phase == Phase_Preflop {
		p.PreflopBankMs = max64(0, p.PreflopBankMs-elapsed)
	} else {
		p.PostflopBankMs = max64(0, p.PostflopBankMs-elapsed)
	}
}

// autoAct is the timeout path: check when possible, fold otherwise,
// and a one-hand sit-out penalty either way.
func (te *tableEngine) autoAct(seat int) {
	te.consumeTimeBank(seat)

	p := te.table.Seats[seat]
	p.SitOutNextHand = true

	if p.StreetBet == te.table.MaxBet() {
		te.applyAction(seat, Action_Check, 0)
		return
	}
	te.applyAction(seat, Action_Fold, 0)
}

// ---- hand resolution ----

// awardToLastStanding pays the whole pot to the only seat left without
// consulting the evaluator.
func (te *tableEngine) awardToLastStanding(seat int) {
	te.collectStreetBets()

	p := te.table.Seats[seat]
	amount := te.table.Pot
	p.Stack += amount
	p.wonAmount = amount
	te.logf("%s collected %d from pot", p.Handle, amount)

	te.table.Pot = 0
	te.table.ChipPile = te.table.ChipPile[:0]
	te.endHand()
}

// showdown is the normal river-complete path: reveal every live hand
// and award immediately.
func (te *tableEngine) showdown() {
	te.table.Phase = Phase_Showdown
	te.table.CurrentSeat = UnsetValue

	te.logf("*** SHOW DOWN ***")
	for _, seat := range te.table.LiveSeats() {
		p := te.table.Seats[seat]
		value := poker.Evaluate(append(append([]poker.Card(nil), p.Hole...), te.table.Community...))
		p.finalHand = value.Name
		te.logf("%s shows [%s] (%s)", p.Handle, strings.Join(poker.CardStrings(p.Hole), " "), value.Name)
	}
	te.emitStateChanged()
	te.awardPots()
}

// awardPots runs the pot engine over the hand's commitments and pays
// each tier. The board is complete by the time this runs.
func (te *tableEngine) awardPots() {
	contributions := make([]poker.Contribution, 0, len(te.table.Seats))
	for seat, p := range te.table.Seats {
		if p == nil || !p.InHand {
			continue
		}
		contributions = append(contributions, poker.Contribution{
			Seat:      seat,
			Committed: p.HandBet,
			Folded:    p.Folded,
		})
	}

	hands := make(map[int]poker.HandValue)
	for _, seat := range te.table.LiveSeats() {
		p := te.table.Seats[seat]
		value := poker.Evaluate(append(append([]poker.Card(nil), p.Hole...), te.table.Community...))
		p.finalHand = value.Name
		hands[seat] = value
	}

	pots := poker.BuildPots(contributions)
	for _, pot := range pots {
		won := poker.DistributePots([]poker.Pot{pot}, hands, te.table.DealerSeat, len(te.table.Seats))
		for seat, amount := range won {
			p := te.table.Seats[seat]
			p.Stack += amount
			p.wonAmount += amount
			te.logf("%s collected %d from %s", p.Handle, amount, pot.Name)
		}
	}

	te.table.Pot = 0
	te.table.ChipPile = te.table.ChipPile[:0]
	te.endHand()
}

// ---- dramatic run-out ----

// beginDramaticRunout reveals the live hands immediately and schedules
// the remaining streets on human-perceivable delays. Every step
// re-validates the hand it was scheduled for.
func (te *tableEngine) beginDramaticRunout() {
	te.table.Phase = Phase_Showdown
	te.table.CurrentSeat = UnsetValue

	te.logf("*** SHOW DOWN ***")
	for _, seat := range te.table.LiveSeats() {
		p := te.table.Seats[seat]
		te.logf("%s shows [%s]", p.Handle, strings.Join(poker.CardStrings(p.Hole), " "))
	}
	te.emitStateChanged()

	te.scheduleRunoutStep(te.table.HandCount, te.options.RunoutRevealMs+te.nextRunoutDelay())
}

func (te *tableEngine) nextRunoutDelay() int64 {
	switch len(te.table.Community) {
	case 0:
		return te.options.RunoutFlopMs
	case 3:
		return te.options.RunoutTurnMs
	default:
		return te.options.RunoutRiverMs
	}
}

func (te *tableEngine) scheduleRunoutStep(handCount int, delayMs int64) {
	te.runoutTB.NewTask(time.Duration(delayMs)*time.Millisecond, func(isCancelled bool) {
		if isCancelled {
			return
		}

		te.lock.Lock()
		defer te.lock.Unlock()

		if te.closed || handCount != te.table.HandCount || te.table.Phase != Phase_Showdown {
			return
		}

		te.dealRunoutCards()
		te.emitStateChanged()

		if len(te.table.Community) < 5 {
			te.scheduleRunoutStep(handCount, te.nextRunoutDelay())
			return
		}
		te.awardPots()
	})
}

func (te *tableEngine) dealRunoutCards() {
	switch len(te.table.Community) {
	case 0:
		te.deck.Draw() // burn
		te.table.Community = append(te.table.Community, te.deck.Draw(), te.deck.Draw(), te.deck.Draw())
		te.logBoard("FLOP")
	case 3:
		te.deck.Draw()
		te.table.Community = append(te.table.Community, te.deck.Draw())
		te.logBoard("TURN")
	case 4:
		te.deck.Draw()
		te.table.Community = append(te.table.Community, te.deck.Draw())
		te.logBoard("RIVER")
	}
}

// ---- hand end ----

func (te *tableEngine) endHand() {
	completedAt := time.Now().Unix()

	te.logf("*** SUMMARY ***")
	te.logf("Total pot %d", te.totalCommitted())
	for seat, p := range te.table.Seats {
		if p == nil || !p.InHand {
			continue
		}
		switch {
		case p.Folded:
			te.logf("Seat %d: %s folded %s", seat, p.Handle, foldPhaseNote(p.foldedOn))
		case p.wonAmount > 0:
			te.logf("Seat %d: %s collected %d", seat, p.Handle, p.wonAmount)
		default:
			te.logf("Seat %d: %s mucked", seat, p.Handle)
		}
	}

	te.archiveHand(completedAt)

	for _, seat := range te.table.InHandSeats() {
		p := te.table.Seats[seat]
		te.emitEvent(&Event{
			Type:     EventType_HandComplete,
			Identity: p.Identity,
			HandID:   te.currentHandID,
			Lines:    te.personalisedLog(p.Identity),
		})
	}

	// deferred cleanup now the hand is over
	for seat, p := range te.table.Seats {
		if p == nil {
			continue
		}
		p.InHand = false
		p.Hole = nil
		if p.Stack == 0 {
			p.Busted = true
		}
		if p.PendingRemoval {
			te.removeSeat(seat)
		}
	}

	te.table.Phase = Phase_Idle
	te.table.CurrentSeat = UnsetValue
	te.emitStateChanged()
	te.scheduleHandStart()
}

func (te *tableEngine) totalCommitted() int64 {
	var total int64
	for _, p := range te.table.Seats {
		if p != nil && p.InHand {
			total += p.HandBet
		}
	}
	return total
}

func (te *tableEngine) archiveHand(completedAt int64) {
	record := &HandRecord{
		HandID:      te.currentHandID,
		TableID:     te.table.ID,
		StartedAt:   te.table.HandStartAt,
		CompletedAt: completedAt,
		SmallBlind:  te.options.SmallBlind,
		BigBlind:    te.options.BigBlind,
		ButtonSeat:  te.table.DealerSeat,
		PotTotal:    te.totalCommitted(),
		Community:   poker.CardStrings(te.table.Community),
		HandHistory: te.handHistoryText(),
	}

	for seat, p := range te.table.Seats {
		if p == nil || !p.InHand {
			continue
		}
		record.Players = append(record.Players, HandPlayerRecord{
			Identity:       p.Identity,
			Handle:         p.Handle,
			SeatIndex:      seat,
			StartingStack:  p.startingStack,
			EndingStack:    p.Stack,
			TotalCommitted: p.HandBet,
			HoleCards:      poker.CardStrings(p.Hole),
			FinalHand:      p.finalHand,
			Position:       te.positionTag(seat),
			Actions:        append([]string(nil), p.actions...),
			WonAmount:      p.wonAmount,
		})
	}

	// the live game continues even when archiving fails
	if err := te.recorder.SaveHand(te.ctx(), record); err != nil {
		te.logger.Error().Err(err).Str("hand_id", record.HandID).Msg("hand archive failed")
	}

	for _, row := range record.Players {
		err := te.recorder.UpdatePlayerAfterHand(te.ctx(), row.Identity, row.EndingStack, row.WonAmount > 0, row.EndingStack-row.StartingStack)
		if err != nil {
			te.logger.Error().Err(err).Str("identity", row.Identity).Msg("player totals update failed")
		}
	}
}

func (te *tableEngine) positionTag(seat int) string {
	switch seat {
	case te.table.DealerSeat:
		if seat == te.table.SBSeat {
			return "BTN/SB"
		}
		return "BTN"
	case te.table.SBSeat:
		return "SB"
	case te.table.BBSeat:
		return "BB"
	}

	// name the rest by distance after the big blind
	n := len(te.table.Seats)
	distance := 0
	for offset := 1; offset < n; offset++ {
		idx := (te.table.BBSeat + offset) % n
		if p := te.table.Seats[idx]; p == nil || !p.InHand {
			continue
		}
		distance++
		if idx == seat {
			break
		}
	}
	switch distance {
	case 1:
		return "UTG"
	case 2:
		return "MP"
	default:
		return "CO"
	}
}
