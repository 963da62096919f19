package table

import "github.com/evenkeel/SatoshiStacks/internal/poker"

// Event is the single outbound notification stream of a table engine.
// The coordinator is the sole consumer; it fans events out to the
// subscribed transports with per-identity filtering.
const (
	EventType_StateChanged    = "state_changed"
	EventType_TimerStart      = "action_timer_start"
	EventType_TimeBankStart   = "time_bank_start"
	EventType_HandLogLine     = "hand_log_line"
	EventType_DealCards       = "deal_cards"
	EventType_HandComplete    = "hand_complete"
	EventType_PlayerLeaving   = "player_leaving"
	EventType_Rebuy           = "rebuy"
	EventType_TableMaybeEmpty = "table_maybe_empty"
)

type Event struct {
	Type    string `json:"type"`
	TableID string `json:"table_id"`

	// EventType_TimerStart / EventType_TimeBankStart
	Seat       int   `json:"seat,omitempty"`
	DurationMs int64 `json:"duration_ms,omitempty"`

	// EventType_HandLogLine
	Line *LogLine `json:"line,omitempty"`

	// EventType_DealCards: the owner's own hole cards
	Identity string       `json:"identity,omitempty"`
	Cards    []poker.Card `json:"cards,omitempty"`

	// EventType_HandComplete: the personalised history for Identity
	HandID string   `json:"hand_id,omitempty"`
	Lines  []string `json:"lines,omitempty"`

	// EventType_PlayerLeaving / EventType_Rebuy
	Chips int64 `json:"chips,omitempty"`
}

func (te *tableEngine) emitEvent(event *Event) {
	event.TableID = te.table.ID
	te.onEvent(event)
}

func (te *tableEngine) emitStateChanged() {
	te.emitEvent(&Event{Type: EventType_StateChanged})
}

func (te *tableEngine) emitLogLine(line LogLine) {
	te.emitEvent(&Event{Type: EventType_HandLogLine, Line: &line})
}
