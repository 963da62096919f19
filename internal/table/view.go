package table

import "github.com/evenkeel/SatoshiStacks/internal/poker"

// TableView is a personalised snapshot. Hole cards appear only for the
// viewer's own seat, unless the phase is showdown, in which case every
// not-folded seat is revealed to everyone (observers included).
type TableView struct {
	TableID     string      `json:"table_id"`
	Phase       Phase       `json:"phase"`
	Community   []string    `json:"community"`
	Pot         int64       `json:"pot"`
	ChipPile    []int64     `json:"chip_pile"`
	DealerSeat  int         `json:"dealer_seat"`
	SBSeat      int         `json:"sb_seat"`
	BBSeat      int         `json:"bb_seat"`
	CurrentSeat int         `json:"current_seat"`
	HandCount   int         `json:"hand_count"`
	MaxBet      int64       `json:"max_bet"`
	MinRaiseTo  int64       `json:"min_raise_to"`
	Seats       []*SeatView `json:"seats"`
}

type SeatView struct {
	Identity     string   `json:"identity"`
	Handle       string   `json:"handle"`
	Stack        int64    `json:"stack"`
	StreetBet    int64    `json:"street_bet"`
	HandBet      int64    `json:"hand_bet"`
	InHand       bool     `json:"in_hand"`
	Folded       bool     `json:"folded"`
	AllIn        bool     `json:"all_in"`
	SittingOut   bool     `json:"sitting_out"`
	Disconnected bool     `json:"disconnected"`
	HasCards     bool     `json:"has_cards"`
	HoleCards    []string `json:"hole_cards,omitempty"`

	// time banks are visible to the owner only
	PreflopBankMs  int64 `json:"preflop_bank_ms,omitempty"`
	PostflopBankMs int64 `json:"postflop_bank_ms,omitempty"`
}

func (te *tableEngine) buildView(viewer string) *TableView {
	t := te.table
	view := &TableView{
		TableID:     t.ID,
		Phase:       t.Phase,
		Community:   poker.CardStrings(t.Community),
		Pot:         t.Pot,
		ChipPile:    append([]int64(nil), t.ChipPile...),
		DealerSeat:  t.DealerSeat,
		SBSeat:      t.SBSeat,
		BBSeat:      t.BBSeat,
		CurrentSeat: t.CurrentSeat,
		HandCount:   t.HandCount,
		MaxBet:      t.MaxBet(),
		MinRaiseTo:  te.minRaiseTo(),
		Seats:       make([]*SeatView, len(t.Seats)),
	}

	for seat, p := range t.Seats {
		if p == nil {
			continue
		}
		sv := &SeatView{
			Identity:     p.Identity,
			Handle:       p.Handle,
			Stack:        p.Stack,
			StreetBet:    p.StreetBet,
			HandBet:      p.HandBet,
			InHand:       p.InHand,
			Folded:       p.Folded,
			AllIn:        p.AllIn,
			SittingOut:   p.SittingOut,
			Disconnected: p.Disconnected,
			HasCards:     len(p.Hole) > 0,
		}

		ownSeat := p.Identity == viewer && viewer != ""
		revealed := t.Phase == Phase_Showdown && !p.Folded
		if len(p.Hole) > 0 && (ownSeat || revealed) {
			sv.HoleCards = poker.CardStrings(p.Hole)
		}
		if ownSeat {
			sv.PreflopBankMs = p.PreflopBankMs
			sv.PostflopBankMs = p.PostflopBankMs
		}

		view.Seats[seat] = sv
	}
	return view
}
