package table

import (
	"time"

	"github.com/weedbox/timebank"
)

// ActionTimer drives the two-phase countdown for the current actor: a
// base timer, then an automatic time-bank burn. The owner is
// responsible for stale-callback defence; the expiry callbacks receive
// the (handCount, seat) the timer was armed for so the owner can verify
// the actor is still current before acting on the expiry.
type ActionTimer struct {
	base *timebank.TimeBank
	bank *timebank.TimeBank

	handCount     int
	seat          int
	bankPhase     bool
	bankStartedAt time.Time
}

func NewActionTimer() *ActionTimer {
	return &ActionTimer{
		base: timebank.NewTimeBank(),
		bank: timebank.NewTimeBank(),
		seat: UnsetValue,
	}
}

// StartBase arms the base countdown for the given actor.
func (at *ActionTimer) StartBase(handCount, seat int, durationMs int64, onExpire func(handCount, seat int)) {
	at.Stop()
	at.handCount = handCount
	at.seat = seat
	at.base.NewTask(time.Duration(durationMs)*time.Millisecond, func(isCancelled bool) {
		if isCancelled {
			return
		}
		onExpire(handCount, seat)
	})
}

// StartBank transitions to the time-bank phase for the pool's remaining
// milliseconds. Elapsed time is measured from this instant.
func (at *ActionTimer) StartBank(handCount, seat int, remainingMs int64, onExpire func(handCount, seat int)) {
	at.bankPhase = true
	at.bankStartedAt = time.Now()
	at.bank.NewTask(time.Duration(remainingMs)*time.Millisecond, func(isCancelled bool) {
		if isCancelled {
			return
		}
		onExpire(handCount, seat)
	})
}

// Stop cancels both phases and returns the milliseconds consumed from
// the time-bank pool, zero when the base phase never expired.
func (at *ActionTimer) Stop() int64 {
	at.base.Cancel()
	at.bank.Cancel()

	var elapsed int64
	if at.bankPhase {
		elapsed = time.Since(at.bankStartedAt).Milliseconds()
	}
	at.bankPhase = false
	at.seat = UnsetValue
	return elapsed
}

// InBankPhase reports whether the time-bank burn is running.
func (at *ActionTimer) InBankPhase() bool {
	return at.bankPhase
}
