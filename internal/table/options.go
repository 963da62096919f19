package table

// Options carries every tunable of a single table. NewOptions returns
// the production defaults; tests override what they need.
type Options struct {
	NumSeats   int   `json:"num_seats"`
	SmallBlind int64 `json:"small_blind"`
	BigBlind   int64 `json:"big_blind"`
	MinBuyIn   int64 `json:"min_buyin"`
	MaxBuyIn   int64 `json:"max_buyin"`

	BaseActionMs        int64 `json:"base_action_ms"`
	DefaultTimeBankMs   int64 `json:"default_time_bank_ms"`
	TimeBankCapMs       int64 `json:"time_bank_cap_ms"`
	TimeBankGrowthMs    int64 `json:"time_bank_growth_ms"`
	TimeBankGrowthHands int   `json:"time_bank_growth_hands"`

	SitOutKickMs    int64 `json:"sit_out_kick_ms"`
	RatholeWindowMs int64 `json:"rathole_window_ms"`

	// hand-start debounce and dramatic run-out pacing
	HandStartDelayMs  int64 `json:"hand_start_delay_ms"`
	RunoutRevealMs    int64 `json:"runout_reveal_ms"`
	RunoutFlopMs      int64 `json:"runout_flop_ms"`
	RunoutTurnMs      int64 `json:"runout_turn_ms"`
	RunoutRiverMs     int64 `json:"runout_river_ms"`
}

func NewOptions() *Options {
	return &Options{
		NumSeats:            6,
		SmallBlind:          50,
		BigBlind:            100,
		MinBuyIn:            2000,
		MaxBuyIn:            10000,
		BaseActionMs:        15000,
		DefaultTimeBankMs:   15000,
		TimeBankCapMs:       60000,
		TimeBankGrowthMs:    5000,
		TimeBankGrowthHands: 10,
		SitOutKickMs:        300000,
		RatholeWindowMs:     7_200_000,
		HandStartDelayMs:    2000,
		RunoutRevealMs:      2000,
		RunoutFlopMs:        2000,
		RunoutTurnMs:        3000,
		RunoutRiverMs:       2000,
	}
}
