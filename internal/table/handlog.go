package table

import (
	"fmt"
	"strings"
	"time"

	"github.com/evenkeel/SatoshiStacks/internal/poker"
)

// The per-hand log is append-only text. Public lines go to everyone in
// the room; "Dealt to" lines only to their owner. At hand end each
// participant receives a personalised copy (public lines plus their own
// private line); the archive keeps the full text.

func (te *tableEngine) logf(format string, args ...interface{}) {
	line := LogLine{Text: fmt.Sprintf(format, args...)}
	te.table.HandLog = append(te.table.HandLog, line)
	te.emitLogLine(line)
}

func (te *tableEngine) logPrivatef(identity string, format string, args ...interface{}) {
	line := LogLine{Text: fmt.Sprintf(format, args...), PrivateTo: identity}
	te.table.HandLog = append(te.table.HandLog, line)
	te.emitLogLine(line)
}

func (te *tableEngine) logHandHeader(handID string) {
	startedAt := time.Unix(te.table.HandStartAt, 0).UTC().Format("2006/01/02 15:04:05 MST")
	te.logf("Hand #%d (%s) - %s - blinds %d/%d", te.table.HandCount, handID, startedAt, te.options.SmallBlind, te.options.BigBlind)
	for seat, p := range te.table.Seats {
		if p == nil || !p.InHand {
			continue
		}
		marker := ""
		if seat == te.table.DealerSeat {
			marker = " (button)"
		}
		te.logf("Seat %d: %s (%d in chips)%s", seat, p.Handle, p.Stack+p.HandBet, marker)
	}
}

func (te *tableEngine) logBoard(street string) {
	te.logf("*** %s *** [%s]", street, strings.Join(poker.CardStrings(te.table.Community), " "))
}

func (te *tableEngine) logAction(seat int, action ActionType, amount int64) {
	p := te.table.Seats[seat]
	switch action {
	case Action_Fold:
		te.logf("%s folds", p.Handle)
	case Action_Check:
		te.logf("%s checks", p.Handle)
	case Action_Call:
		suffix := ""
		if p.AllIn {
			suffix = " and is all-in"
		}
		te.logf("%s calls %d%s", p.Handle, amount, suffix)
	case Action_Raise:
		suffix := ""
		if p.AllIn {
			suffix = " and is all-in"
		}
		te.logf("%s raises to %d%s", p.Handle, amount, suffix)
	}
}

// personalisedLog renders the hand history for one participant: every
// public line plus only their own private lines.
func (te *tableEngine) personalisedLog(identity string) []string {
	lines := make([]string, 0, len(te.table.HandLog))
	for _, line := range te.table.HandLog {
		if line.PrivateTo == "" || line.PrivateTo == identity {
			lines = append(lines, line.Text)
		}
	}
	return lines
}

// handHistoryText renders the complete log, private lines included,
// for the archive.
func (te *tableEngine) handHistoryText() string {
	var b strings.Builder
	for _, line := range te.table.HandLog {
		b.WriteString(line.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// foldPhaseNote names the street a seat folded on for the summary.
func foldPhaseNote(phase Phase) string {
	switch phase {
	case Phase_Preflop:
		return "before the Flop"
	case Phase_Flop:
		return "on the Flop"
	case Phase_Turn:
		return "on the Turn"
	case Phase_River:
		return "on the River"
	default:
		return ""
	}
}
