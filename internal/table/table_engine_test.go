package table

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/evenkeel/SatoshiStacks/internal/poker"
)

// testOptions disables the automatic hand-start debounce so tests can
// drive startHand deterministically.
func testOptions() *Options {
	options := NewOptions()
	options.HandStartDelayMs = 3_600_000
	return options
}

type eventSink struct {
	mu     sync.Mutex
	events []*Event
}

func (s *eventSink) add(event *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *eventSink) byType(eventType string) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]*Event, 0)
	for _, event := range s.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

type captureRecorder struct {
	mu    sync.Mutex
	hands []*HandRecord
}

func (r *captureRecorder) SaveHand(_ context.Context, record *HandRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hands = append(r.hands, record)
	return nil
}

func (r *captureRecorder) UpdatePlayerAfterHand(context.Context, string, int64, bool, int64) error {
	return nil
}

func (r *captureRecorder) SetPlayerChips(context.Context, string, int64) error { return nil }

func newTestEngine(t *testing.T, options *Options, seed int64) (*tableEngine, *eventSink, *captureRecorder) {
	t.Helper()
	sink := &eventSink{}
	recorder := &captureRecorder{}
	engine := NewTableEngine("test-table", options,
		WithRand(poker.NewSeededRand(seed)),
		WithRecorder(recorder),
	)
	engine.OnEvent(sink.add)
	t.Cleanup(engine.Close)
	return engine.(*tableEngine), sink, recorder
}

func (te *tableEngine) forceStartHand() {
	te.lock.Lock()
	defer te.lock.Unlock()
	te.startHand()
}

func (te *tableEngine) totalChips() int64 {
	te.lock.Lock()
	defer te.lock.Unlock()
	total := te.table.Pot
	for _, p := range te.table.Seats {
		if p != nil {
			total += p.Stack + p.StreetBet
		}
	}
	return total
}

func TestPlayerJoin_SeatAssignment(t *testing.T) {
	te, _, _ := newTestEngine(t, testOptions(), 1)

	seat, err := te.PlayerJoin("id-a", "alice", 5000, 3)
	assert.Nil(t, err)
	assert.Equal(t, 3, seat)

	// preferred seat taken, lowest empty index wins
	seat, err = te.PlayerJoin("id-b", "bob", 5000, 3)
	assert.Nil(t, err)
	assert.Equal(t, 0, seat)

	// joining twice is a no-op returning the existing seat
	seat, err = te.PlayerJoin("id-a", "alice", 5000, 5)
	assert.Nil(t, err)
	assert.Equal(t, 3, seat)

	stack := te.GetTable().Seats[3].Stack
	assert.Equal(t, int64(5000), stack)
}

func TestPlayerJoin_TableFull(t *testing.T) {
	te, _, _ := newTestEngine(t, testOptions(), 1)
	for i := 0; i < 6; i++ {
		_, err := te.PlayerJoin(string(rune('a'+i)), "p", 5000, UnsetValue)
		assert.Nil(t, err)
	}

	_, err := te.PlayerJoin("late", "late", 5000, UnsetValue)
	assert.Equal(t, ErrTableNoEmptySeats, err)
}

func TestPlayerJoin_BuyInClampAndRathole(t *testing.T) {
	te, _, _ := newTestEngine(t, testOptions(), 1)

	seat, err := te.PlayerJoin("id-a", "alice", 100, UnsetValue)
	assert.Nil(t, err)
	assert.Equal(t, te.options.MinBuyIn, te.GetTable().Seats[seat].Stack)

	// leave with a big stack, return with a minimum buy-in
	te.GetTable().Seats[seat].Stack = 9000
	assert.Nil(t, te.PlayerLeave("id-a"))

	seat, err = te.PlayerJoin("id-a", "alice", 2000, UnsetValue)
	assert.Nil(t, err)
	assert.Equal(t, int64(9000), te.GetTable().Seats[seat].Stack)
}

func TestHand_FoldToBlinds(t *testing.T) {
	te, _, _ := newTestEngine(t, testOptions(), 7)
	te.PlayerJoin("id-a", "alice", 5000, 0)
	te.PlayerJoin("id-b", "bob", 5000, 1)

	te.forceStartHand()

	table := te.GetTable()
	assert.Equal(t, 0, table.DealerSeat)
	assert.Equal(t, 0, table.SBSeat) // heads-up: dealer posts the small blind
	assert.Equal(t, 1, table.BBSeat)
	assert.Equal(t, 0, table.CurrentSeat) // dealer acts first preflop
	assert.Equal(t, Phase_Preflop, table.Phase)

	assert.Nil(t, te.PlayerAction("id-a", Action_Fold, 0))

	assert.Equal(t, Phase_Idle, table.Phase)
	assert.Equal(t, int64(4950), table.Seats[0].Stack)
	assert.Equal(t, int64(5050), table.Seats[1].Stack)
	assert.Equal(t, int64(0), table.Pot)
	assert.Empty(t, table.ChipPile)

	// dealer advances for the next hand
	te.forceStartHand()
	assert.Equal(t, 1, table.DealerSeat)
}

func TestHand_ConservationAcrossActions(t *testing.T) {
	te, _, _ := newTestEngine(t, testOptions(), 11)
	te.PlayerJoin("id-a", "alice", 5000, 0)
	te.PlayerJoin("id-b", "bob", 5000, 1)
	te.PlayerJoin("id-c", "carol", 5000, 2)

	te.forceStartHand()
	assert.Equal(t, int64(15000), te.totalChips())

	// dealer 0, sb 1, bb 2, first actor 0
	assert.Nil(t, te.PlayerAction("id-a", Action_Raise, 300))
	assert.Equal(t, int64(15000), te.totalChips())
	assert.Nil(t, te.PlayerAction("id-b", Action_Call, 0))
	assert.Equal(t, int64(15000), te.totalChips())
	assert.Nil(t, te.PlayerAction("id-c", Action_Fold, 0))

	assert.Equal(t, Phase_Flop, te.GetTable().Phase)
	assert.Equal(t, int64(15000), te.totalChips())
	assert.Equal(t, te.GetTable().Pot, te.GetTable().ChipPileSum())
}

func TestHand_AllInRunoutHeadsUp(t *testing.T) {
	options := testOptions()
	options.RunoutRevealMs = 1
	options.RunoutFlopMs = 1
	options.RunoutTurnMs = 1
	options.RunoutRiverMs = 1
	te, sink, recorder := newTestEngine(t, options, 13)
	te.PlayerJoin("id-a", "alice", 2000, 0)
	te.PlayerJoin("id-b", "bob", 2000, 1)

	te.forceStartHand()

	assert.Nil(t, te.PlayerAction("id-a", Action_Raise, 2000))
	assert.Nil(t, te.PlayerAction("id-b", Action_Call, 0))

	// the run-out is scheduled; wait for it to finish
	assert.Eventually(t, func() bool {
		te.lock.Lock()
		defer te.lock.Unlock()
		return te.table.Phase == Phase_Idle
	}, 2*time.Second, 10*time.Millisecond)

	table := te.GetTable()
	assert.Len(t, table.Community, 5)
	assert.Equal(t, int64(0), table.Pot)
	assert.Empty(t, table.ChipPile)
	assert.Equal(t, int64(4000), te.totalChips())

	completes := sink.byType(EventType_HandComplete)
	assert.Len(t, completes, 2)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Len(t, recorder.hands, 1)
	assert.Equal(t, int64(4000), recorder.hands[0].PotTotal)
}

func TestHand_ThreeWaySidePot(t *testing.T) {
	options := testOptions()
	options.MinBuyIn = 500
	options.RunoutRevealMs = 1
	options.RunoutFlopMs = 1
	options.RunoutTurnMs = 1
	options.RunoutRiverMs = 1
	te, _, recorder := newTestEngine(t, options, 17)
	te.PlayerJoin("id-a", "alice", 1000, 0)
	te.PlayerJoin("id-b", "bob", 3000, 1)
	te.PlayerJoin("id-c", "carol", 3000, 2)

	te.forceStartHand()

	// dealer 0, sb 1 (50), bb 2 (100), alice first
	assert.Nil(t, te.PlayerAction("id-a", Action_Raise, 1000))
	assert.Nil(t, te.PlayerAction("id-b", Action_Raise, 3000))
	assert.Nil(t, te.PlayerAction("id-c", Action_Call, 0))

	assert.Eventually(t, func() bool {
		te.lock.Lock()
		defer te.lock.Unlock()
		return te.table.Phase == Phase_Idle
	}, 2*time.Second, 10*time.Millisecond)

	table := te.GetTable()
	assert.Equal(t, int64(7000), te.totalChips())

	// alice is only eligible for the 3000 main pot
	assert.LessOrEqual(t, table.Seats[0].Stack, int64(3000))
	assert.GreaterOrEqual(t, table.Seats[1].Stack+table.Seats[2].Stack, int64(4000))

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Len(t, recorder.hands, 1)
	for _, row := range recorder.hands[0].Players {
		// won_amount must reconcile with the stack delta
		assert.Equal(t, row.WonAmount, row.EndingStack-row.StartingStack+row.TotalCommitted)
	}
}

func TestAction_CheckFacingBetRejected(t *testing.T) {
	te, _, _ := newTestEngine(t, testOptions(), 19)
	te.PlayerJoin("id-a", "alice", 5000, 0)
	te.PlayerJoin("id-b", "bob", 5000, 1)
	te.PlayerJoin("id-c", "carol", 5000, 2)

	te.forceStartHand()

	// alice opens; carol (bb) may not check a raise
	assert.Nil(t, te.PlayerAction("id-a", Action_Raise, 300))
	assert.Nil(t, te.PlayerAction("id-b", Action_Fold, 0))
	assert.Equal(t, ErrIllegalAction, te.PlayerAction("id-c", Action_Check, 0))
	assert.Nil(t, te.PlayerAction("id-c", Action_Call, 0))
}

func TestAction_OutOfTurnRejected(t *testing.T) {
	te, _, _ := newTestEngine(t, testOptions(), 19)
	te.PlayerJoin("id-a", "alice", 5000, 0)
	te.PlayerJoin("id-b", "bob", 5000, 1)
	te.PlayerJoin("id-c", "carol", 5000, 2)

	te.forceStartHand()

	assert.Equal(t, ErrNotPlayersTurn, te.PlayerAction("id-b", Action_Fold, 0))
	assert.Equal(t, ErrPlayerNotFound, te.PlayerAction("stranger", Action_Fold, 0))
}

func TestAction_MinRaiseEnforced(t *testing.T) {
	te, _, _ := newTestEngine(t, testOptions(), 23)
	te.PlayerJoin("id-a", "alice", 5000, 0)
	te.PlayerJoin("id-b", "bob", 5000, 1)
	te.PlayerJoin("id-c", "carol", 5000, 2)

	te.forceStartHand()

	// min open over the 100 blind is 200
	assert.Equal(t, ErrInvalidRaise, te.PlayerAction("id-a", Action_Raise, 150))
	assert.Nil(t, te.PlayerAction("id-a", Action_Raise, 250))

	// re-raise must step by at least the last raise size (150)
	assert.Equal(t, ErrInvalidRaise, te.PlayerAction("id-b", Action_Raise, 300))
	assert.Nil(t, te.PlayerAction("id-b", Action_Raise, 400))
}

func TestAction_AllInForLessDoesNotReopen(t *testing.T) {
	options := testOptions()
	options.MinBuyIn = 200
	te, _, _ := newTestEngine(t, options, 29)
	te.PlayerJoin("id-a", "alice", 5000, 0)
	te.PlayerJoin("id-b", "bob", 5000, 1)
	te.PlayerJoin("id-c", "carol", 230, 2)

	te.forceStartHand()

	// dealer 0, sb 1, bb 2 (carol, 130 behind after posting)
	assert.Nil(t, te.PlayerAction("id-a", Action_Raise, 200))
	assert.Nil(t, te.PlayerAction("id-b", Action_Call, 0))

	// carol shoves 230 total: above the max bet, below a legal raise
	assert.Nil(t, te.PlayerAction("id-c", Action_Raise, 230))
	assert.True(t, te.GetTable().Seats[2].AllIn)

	// alice already acted and the line was not reopened
	assert.Equal(t, ErrIllegalAction, te.PlayerAction("id-a", Action_Raise, 500))
	assert.Nil(t, te.PlayerAction("id-a", Action_Call, 0))
	assert.Nil(t, te.PlayerAction("id-b", Action_Call, 0))

	assert.Equal(t, Phase_Flop, te.GetTable().Phase)
}

func TestAction_BigBlindOption(t *testing.T) {
	te, _, _ := newTestEngine(t, testOptions(), 31)
	te.PlayerJoin("id-a", "alice", 5000, 0)
	te.PlayerJoin("id-b", "bob", 5000, 1)
	te.PlayerJoin("id-c", "carol", 5000, 2)

	te.forceStartHand()

	// everyone limps; the big blind still has the option
	assert.Nil(t, te.PlayerAction("id-a", Action_Call, 0))
	assert.Nil(t, te.PlayerAction("id-b", Action_Call, 0))
	assert.Equal(t, Phase_Preflop, te.GetTable().Phase)

	assert.Nil(t, te.PlayerAction("id-c", Action_Raise, 300))
	assert.Equal(t, Phase_Preflop, te.GetTable().Phase)
	assert.Equal(t, 0, te.GetTable().CurrentSeat)
}

func TestTimeout_NoInvestmentAutoFoldsWithoutTimeBank(t *testing.T) {
	options := testOptions()
	options.BaseActionMs = 30
	te, sink, _ := newTestEngine(t, options, 37)
	te.PlayerJoin("id-a", "alice", 5000, 0)
	te.PlayerJoin("id-b", "bob", 5000, 1)
	te.PlayerJoin("id-c", "carol", 5000, 2)

	te.forceStartHand()
	// alice (dealer, no blind posted) is first to act with nothing invested

	assert.Eventually(t, func() bool {
		te.lock.Lock()
		defer te.lock.Unlock()
		return te.table.Seats[0].Folded
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, te.GetTable().Seats[0].SitOutNextHand)
	for _, event := range sink.byType(EventType_TimeBankStart) {
		assert.NotEqual(t, 0, event.Seat)
	}
	assert.Equal(t, te.options.DefaultTimeBankMs, te.GetTable().Seats[0].PreflopBankMs)
}

func TestTimeout_InvestmentConsumesTimeBank(t *testing.T) {
	options := testOptions()
	options.BaseActionMs = 30
	options.DefaultTimeBankMs = 60
	te, sink, _ := newTestEngine(t, options, 41)
	te.PlayerJoin("id-a", "alice", 5000, 0)
	te.PlayerJoin("id-b", "bob", 5000, 1)

	te.forceStartHand()
	// heads-up: alice posted the small blind, so she has chips at risk

	assert.Eventually(t, func() bool {
		te.lock.Lock()
		defer te.lock.Unlock()
		return te.table.Seats[0].Folded
	}, 2*time.Second, 5*time.Millisecond)

	assert.NotEmpty(t, sink.byType(EventType_TimeBankStart))
	assert.True(t, te.GetTable().Seats[0].SitOutNextHand)
	assert.Equal(t, int64(0), te.GetTable().Seats[0].PreflopBankMs)
}

func TestView_HoleCardVisibility(t *testing.T) {
	te, _, _ := newTestEngine(t, testOptions(), 43)
	te.PlayerJoin("id-a", "alice", 5000, 0)
	te.PlayerJoin("id-b", "bob", 5000, 1)

	te.forceStartHand()

	aliceView := te.View("id-a")
	assert.Len(t, aliceView.Seats[0].HoleCards, 2)
	assert.Empty(t, aliceView.Seats[1].HoleCards)
	assert.True(t, aliceView.Seats[1].HasCards)

	observerView := te.View("")
	assert.Empty(t, observerView.Seats[0].HoleCards)
	assert.Empty(t, observerView.Seats[1].HoleCards)

	// showdown reveals every not-folded hand to everyone
	te.lock.Lock()
	te.table.Phase = Phase_Showdown
	te.lock.Unlock()

	observerView = te.View("")
	assert.Len(t, observerView.Seats[0].HoleCards, 2)
	assert.Len(t, observerView.Seats[1].HoleCards, 2)
}

func TestSitOut_VoluntaryAndBackIn(t *testing.T) {
	te, _, _ := newTestEngine(t, testOptions(), 47)
	te.PlayerJoin("id-a", "alice", 5000, 0)

	assert.Nil(t, te.PlayerSitOut("id-a"))
	assert.True(t, te.GetTable().Seats[0].SittingOut)

	assert.Nil(t, te.PlayerSitBackIn("id-a"))
	assert.False(t, te.GetTable().Seats[0].SittingOut)
	assert.False(t, te.GetTable().Seats[0].SitOutNextHand)
}

func TestSitOut_MidHandDefersToNextHand(t *testing.T) {
	te, _, _ := newTestEngine(t, testOptions(), 53)
	te.PlayerJoin("id-a", "alice", 5000, 0)
	te.PlayerJoin("id-b", "bob", 5000, 1)

	te.forceStartHand()

	assert.Nil(t, te.PlayerSitOut("id-b"))
	assert.False(t, te.GetTable().Seats[1].SittingOut)
	assert.True(t, te.GetTable().Seats[1].SitOutNextHand)

	// toggling again clears the flag
	assert.Nil(t, te.PlayerSitOut("id-b"))
	assert.False(t, te.GetTable().Seats[1].SitOutNextHand)
}

func TestSitOut_KickTimerRemovesPlayer(t *testing.T) {
	options := testOptions()
	options.SitOutKickMs = 30
	te, _, _ := newTestEngine(t, options, 59)
	te.PlayerJoin("id-a", "alice", 5000, 0)

	assert.Nil(t, te.PlayerSitOut("id-a"))

	assert.Eventually(t, func() bool {
		te.lock.Lock()
		defer te.lock.Unlock()
		return te.table.Seats[0] == nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRebuy_RestrictedDuringLiveHand(t *testing.T) {
	te, _, _ := newTestEngine(t, testOptions(), 61)
	te.PlayerJoin("id-a", "alice", 5000, 0)
	te.PlayerJoin("id-b", "bob", 5000, 1)

	te.forceStartHand()
	assert.Equal(t, ErrRebuyDuringHand, te.PlayerRebuy("id-a", 2000))

	// folded players may rebuy immediately
	assert.Nil(t, te.PlayerAction("id-a", Action_Fold, 0))
	assert.Nil(t, te.PlayerRebuy("id-a", 2000))
	assert.False(t, te.GetTable().Seats[0].SittingOut)
}

func TestLeave_MidHandDefersRemovalAndFolds(t *testing.T) {
	te, _, _ := newTestEngine(t, testOptions(), 67)
	te.PlayerJoin("id-a", "alice", 5000, 0)
	te.PlayerJoin("id-b", "bob", 5000, 1)
	te.PlayerJoin("id-c", "carol", 5000, 2)

	te.forceStartHand()

	// bob (small blind) leaves mid-hand: folded now, removed at hand end
	assert.Nil(t, te.PlayerLeave("id-b"))
	assert.True(t, te.GetTable().Seats[1].Folded)
	assert.True(t, te.GetTable().Seats[1].PendingRemoval)

	// alice folds too; carol wins and bob's seat is released
	assert.Nil(t, te.PlayerAction("id-a", Action_Fold, 0))
	assert.Equal(t, Phase_Idle, te.GetTable().Phase)
	assert.Nil(t, te.GetTable().Seats[1])
}

func TestTimeBank_GrowthEveryNHands(t *testing.T) {
	options := testOptions()
	options.TimeBankGrowthHands = 2
	options.TimeBankGrowthMs = 5000
	options.TimeBankCapMs = 21000
	te, _, _ := newTestEngine(t, options, 71)
	te.PlayerJoin("id-a", "alice", 5000, 0)
	te.PlayerJoin("id-b", "bob", 5000, 1)

	te.forceStartHand()
	first := te.GetTable().FindSeat("id-a")
	assert.Equal(t, int64(15000), te.GetTable().Seats[first].PreflopBankMs)

	// finish the hand, deal another: second hand triggers growth
	sb := te.GetTable().SBSeat
	assert.Nil(t, te.PlayerAction(te.GetTable().Seats[sb].Identity, Action_Fold, 0))
	te.forceStartHand()

	assert.Equal(t, int64(20000), te.GetTable().Seats[first].PreflopBankMs)
	assert.Equal(t, int64(20000), te.GetTable().Seats[first].PostflopBankMs)
}
