package table

const UnsetValue = -1

type Phase string

const (
	Phase_Idle     Phase = "idle"
	Phase_Preflop  Phase = "preflop"
	Phase_Flop     Phase = "flop"
	Phase_Turn     Phase = "turn"
	Phase_River    Phase = "river"
	Phase_Showdown Phase = "showdown"
)

type ActionType string

const (
	Action_Fold  ActionType = "fold"
	Action_Check ActionType = "check"
	Action_Call  ActionType = "call"
	Action_Raise ActionType = "raise"
)

// chipDenominations drives the greedy breakdown of each street
// collection into the visual chip pile.
var chipDenominations = []int64{5000, 1000, 500, 100, 25, 5, 1}

func breakIntoChips(amount int64) []int64 {
	chips := make([]int64, 0, 8)
	for _, denom := range chipDenominations {
		for amount >= denom {
			chips = append(chips, denom)
			amount -= denom
		}
	}
	return chips
}
