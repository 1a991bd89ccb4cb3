// Package reader implements the Line Reader & Multi-line Assembler
// (spec.md §4.3): it opens a log file at its persisted offset, classifies
// each physical line against the compiled prefix matchers, and reassembles
// logical multi-line records keyed by process id.
package reader

// Record is a logical log entry: a prefix line plus any STATEMENT/DETAIL/
// HINT/CONTEXT/QUERY or tab-indented continuation lines that followed it
// before the next prefix for the same pid (spec.md §3 LogRecord).
type Record struct {
	PID        string // "?" for forced/non-parsed records
	Prefix     string // verbatim prefix text, including timestamp
	Timestamp  string
	Segments   []string
	SourceFile string
	SourceLine int
	Forced     bool
}

// subkeywords are the continuation markers that keep a record open
// instead of starting a new one for the same pid (spec.md §4.3 step 1).
var subkeywords = []string{"STATEMENT", "DETAIL", "HINT", "CONTEXT", "QUERY"}

func subkeywordPrefix(s string) bool {
	for _, k := range subkeywords {
		if len(s) >= len(k) && s[:len(k)] == k {
			return true
		}
	}
	return false
}
