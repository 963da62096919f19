package table

import (
	"time"

	"github.com/thoas/go-funk"

	"github.com/evenkeel/SatoshiStacks/internal/poker"
)

// SeatPlayer is one occupied seat. The zero seat index is valid; an
// empty seat holds nil in Table.Seats.
type SeatPlayer struct {
	Identity string       `json:"identity"` // persistent pubkey, hex
	Handle   string       `json:"handle"`
	Stack    int64        `json:"stack"`
	Hole     []poker.Card `json:"hole,omitempty"`

	StreetBet int64 `json:"street_bet"` // committed this street, not yet collected
	HandBet   int64 `json:"hand_bet"`   // total committed this hand

	InHand         bool `json:"in_hand"`
	Folded         bool `json:"folded"`
	AllIn          bool `json:"all_in"`
	SittingOut     bool `json:"sitting_out"`
	SitOutNextHand bool `json:"sit_out_next_hand"`
	Disconnected   bool `json:"disconnected"`
	PendingRemoval bool `json:"pending_removal"`
	Busted         bool `json:"busted"`

	PreflopBankMs  int64 `json:"preflop_bank_ms"`
	PostflopBankMs int64 `json:"postflop_bank_ms"`
	HandsDealt     int   `json:"hands_dealt"`

	// per-hand bookkeeping for the archive row
	startingStack int64
	foldedOn      Phase
	actions       []string
	wonAmount     int64
	finalHand     string
}

// Table is the authoritative state of one 6-seat game.
type Table struct {
	ID    string        `json:"id"`
	Seats []*SeatPlayer `json:"seats"`

	Community []poker.Card `json:"community"`
	Pot       int64        `json:"pot"`
	ChipPile  []int64      `json:"chip_pile"` // must always sum to Pot

	DealerSeat  int   `json:"dealer_seat"`
	SBSeat      int   `json:"sb_seat"`
	BBSeat      int   `json:"bb_seat"`
	CurrentSeat int   `json:"current_seat"`
	Phase       Phase `json:"phase"`

	LastRaise      int64        `json:"last_raise"`
	LastAggressor  int          `json:"last_aggressor"`
	ActedThisRound map[int]bool `json:"acted_this_round"`

	HandCount   int   `json:"hand_count"`
	HandStartAt int64 `json:"hand_start_at"` // unix seconds

	HandLog []LogLine `json:"hand_log"`
}

// LogLine is one hand-history line. PrivateTo restricts delivery to a
// single identity ("dealt to" lines); empty means public.
type LogLine struct {
	Text      string `json:"text"`
	PrivateTo string `json:"private_to,omitempty"`
}

func newTable(id string, numSeats int) *Table {
	return &Table{
		ID:             id,
		Seats:          make([]*SeatPlayer, numSeats),
		Community:      make([]poker.Card, 0, 5),
		ChipPile:       make([]int64, 0),
		DealerSeat:     UnsetValue,
		SBSeat:         UnsetValue,
		BBSeat:         UnsetValue,
		CurrentSeat:    UnsetValue,
		Phase:          Phase_Idle,
		LastAggressor:  UnsetValue,
		ActedThisRound: make(map[int]bool),
	}
}

func (t *Table) FindSeat(identity string) int {
	for seat, p := range t.Seats {
		if p != nil && p.Identity == identity {
			return seat
		}
	}
	return UnsetValue
}

// EligibleSeats returns the seats that can be dealt into the next hand.
func (t *Table) EligibleSeats() []int {
	eligible := make([]int, 0, len(t.Seats))
	for seat, p := range t.Seats {
		if p != nil && !p.SittingOut && !p.PendingRemoval && p.Stack > 0 {
			eligible = append(eligible, seat)
		}
	}
	return eligible
}

// InHandSeats returns the seats dealt into the current hand.
func (t *Table) InHandSeats() []int {
	seats := make([]int, 0, len(t.Seats))
	for seat, p := range t.Seats {
		if p != nil && p.InHand {
			seats = append(seats, seat)
		}
	}
	return seats
}

// LiveSeats returns in-hand seats that have not folded.
func (t *Table) LiveSeats() []int {
	return funk.Filter(t.InHandSeats(), func(seat int) bool {
		return !t.Seats[seat].Folded
	}).([]int)
}

// ActingSeats returns the seats that can still take an action this
// street: in hand, not folded, not all-in, not sitting out.
func (t *Table) ActingSeats() []int {
	return funk.Filter(t.LiveSeats(), func(seat int) bool {
		p := t.Seats[seat]
		return !p.AllIn && !p.SittingOut
	}).([]int)
}

// MaxBet is the highest street commitment across all seats.
func (t *Table) MaxBet() int64 {
	var max int64
	for _, p := range t.Seats {
		if p != nil && p.StreetBet > max {
			max = p.StreetBet
		}
	}
	return max
}

// NextSeatFrom walks clockwise from (but excluding) the given seat and
// returns the first seat satisfying keep, or UnsetValue.
func (t *Table) NextSeatFrom(seat int, keep func(*SeatPlayer) bool) int {
	n := len(t.Seats)
	for offset := 1; offset <= n; offset++ {
		idx := (seat + offset) % n
		if p := t.Seats[idx]; p != nil && keep(p) {
			return idx
		}
	}
	return UnsetValue
}

// ChipPileSum re-derives the scalar pot from the visual pile.
func (t *Table) ChipPileSum() int64 {
	var sum int64
	for _, denom := range t.ChipPile {
		sum += denom
	}
	return sum
}

func (t *Table) resetForNewHand() {
	t.Community = t.Community[:0]
	t.Pot = 0
	t.ChipPile = t.ChipPile[:0]
	t.SBSeat = UnsetValue
	t.BBSeat = UnsetValue
	t.CurrentSeat = UnsetValue
	t.LastRaise = 0
	t.LastAggressor = UnsetValue
	t.ActedThisRound = make(map[int]bool)
	t.HandStartAt = time.Now().Unix()
	t.HandLog = t.HandLog[:0]
	for _, p := range t.Seats {
		if p == nil {
			continue
		}
		p.Hole = nil
		p.StreetBet = 0
		p.HandBet = 0
		p.InHand = false
		p.Folded = false
		p.AllIn = false
		p.startingStack = p.Stack
		p.foldedOn = ""
		p.actions = nil
		p.wonAmount = 0
		p.finalHand = ""
	}
}
