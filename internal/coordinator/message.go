package coordinator

import (
	"github.com/evenkeel/SatoshiStacks/internal/auth"
	"github.com/evenkeel/SatoshiStacks/internal/table"
)

// Inbound message types.
const (
	Msg_JoinTable    = "join-table"
	Msg_ObserveTable = "observe-table"
	Msg_Action       = "action"
	Msg_SitOut       = "sit-out"
	Msg_SitBackIn    = "sit-back-in"
	Msg_Rebuy        = "rebuy"
	Msg_LeaveTable   = "leave-table"
	Msg_ChatMessage  = "chat-message"
)

// Outbound message types.
const (
	Out_SeatAssigned     = "seat-assigned"
	Out_GameState        = "game-state"
	Out_ActionTimerStart = "action-timer-start"
	Out_TimeBankStart    = "time-bank-start"
	Out_HandLog          = "hand-log"
	Out_HandComplete     = "hand-complete"
	Out_ProfileUpdated   = "profile-updated"
	Out_ChatMessage      = "chat-message"
	Out_Error            = "error"
	Out_AuthError        = "auth-error"
)

type ErrorCode string

const (
	ErrorCode_Unauthenticated ErrorCode = "unauthenticated"
	ErrorCode_Unauthorized    ErrorCode = "unauthorized"
	ErrorCode_RateLimited     ErrorCode = "rate-limited"
	ErrorCode_InvalidArgument ErrorCode = "invalid-argument"
	ErrorCode_IllegalAction   ErrorCode = "illegal-action"
	ErrorCode_TableFull       ErrorCode = "table-full"
	ErrorCode_TableNotFound   ErrorCode = "table-not-found"
	ErrorCode_NotInHand       ErrorCode = "not-in-hand"
	ErrorCode_AlreadySeated   ErrorCode = "already-seated"
	ErrorCode_Internal        ErrorCode = "internal"
)

// ClientMessage is one frame from a transport.
type ClientMessage struct {
	Type         string `json:"type"`
	SessionToken string `json:"session_token,omitempty"`
	TableID      string `json:"table_id,omitempty"`
	Seat         *int   `json:"seat,omitempty"` // preferred seat on join
	Action       string `json:"action,omitempty"`
	Amount       int64  `json:"amount,omitempty"`
	BuyIn        int64  `json:"buy_in,omitempty"`
	Text         string `json:"text,omitempty"`
}

// ServerMessage is one frame to a transport.
type ServerMessage struct {
	Type    string `json:"type"`
	TableID string `json:"table_id,omitempty"`

	Seat       int              `json:"seat,omitempty"`
	State      *table.TableView `json:"state,omitempty"`
	DurationMs int64            `json:"duration_ms,omitempty"`

	Line   string   `json:"line,omitempty"`
	HandID string   `json:"hand_id,omitempty"`
	Lines  []string `json:"lines,omitempty"`

	Profile *auth.Profile `json:"profile,omitempty"`

	From     string `json:"from,omitempty"`
	Observer bool   `json:"observer,omitempty"`
	Text     string `json:"text,omitempty"`

	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
}
