package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/julianstephens/habitmaster/internal/constants"
)

// Outcome is one day's result in a habit's completion ledger.
type Outcome int

const (
	// Pending means the day has not been evaluated yet. It never counts as
	// a success and never counts as a failure.
	Pending Outcome = iota
	Completed
	Missed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "O"
	case Missed:
		return "X"
	default:
		return "-"
	}
}

// MarshalJSON encodes Completed as true, Missed as false and Pending as null.
func (o Outcome) MarshalJSON() ([]byte, error) {
	switch o {
	case Completed:
		return []byte("true"), nil
	case Missed:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var v *bool
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("ledger entry must be true, false or null: %w", err)
	}
	switch {
	case v == nil:
		*o = Pending
	case *v:
		*o = Completed
	default:
		*o = Missed
	}
	return nil
}

// Ledger holds the most recent daily outcomes of a habit, oldest first.
// It never grows past constants.LedgerCapacity entries.
type Ledger []Outcome

// LedgerFrom builds a ledger from explicit entries, keeping the most recent ones.
func LedgerFrom(entries ...Outcome) Ledger {
	l := Ledger{}
	for _, e := range entries {
		l = l.Append(e)
	}
	return l
}

// ParseLedger reads the compact form produced by Ledger.String.
// O/T/1 mean completed, X/F/0 mean missed and -/./? mean pending.
func ParseLedger(s string) (Ledger, error) {
	entries := make([]Outcome, 0, len(s))
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		switch r {
		case 'O', 'T', '1':
			entries = append(entries, Completed)
		case 'X', 'F', '0':
			entries = append(entries, Missed)
		case '-', '.', '?':
			entries = append(entries, Pending)
		case ' ', ',':
		default:
			return nil, fmt.Errorf("invalid ledger entry %q", r)
		}
	}
	return LedgerFrom(entries...), nil
}

// Append returns a new ledger with o added as the newest entry, evicting
// the oldest entry once the capacity is exceeded. The receiver is not modified.
func (l Ledger) Append(o Outcome) Ledger {
	start := 0
	if len(l) >= constants.LedgerCapacity {
		start = len(l) - constants.LedgerCapacity + 1
	}
	next := make(Ledger, 0, constants.LedgerCapacity)
	next = append(next, l[start:]...)
	return append(next, o)
}

// SuccessCount counts entries that are exactly Completed.
func (l Ledger) SuccessCount() int {
	n := 0
	for _, o := range l {
		if o == Completed {
			n++
		}
	}
	return n
}

// CurrentStreak is the length of the trailing run of Completed entries.
func (l Ledger) CurrentStreak() int {
	n := 0
	for i := len(l) - 1; i >= 0 && l[i] == Completed; i-- {
		n++
	}
	return n
}

// BestStreak is the length of the longest run of Completed entries.
func (l Ledger) BestStreak() int {
	best, run := 0, 0
	for _, o := range l {
		if o != Completed {
			run = 0
			continue
		}
		run++
		if run > best {
			best = run
		}
	}
	return best
}

func (l Ledger) String() string {
	var b strings.Builder
	for _, o := range l {
		b.WriteString(o.String())
	}
	return b.String()
}

// UnmarshalJSON decodes a ledger and enforces the capacity bound on
// stored data, keeping the most recent entries.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var entries []Outcome
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*l = LedgerFrom(entries...)
	return nil
}
