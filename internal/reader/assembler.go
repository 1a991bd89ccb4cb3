package reader

import (
	"regexp"
	"strings"

	"github.com/tailnmail/tailnmail/internal/prefix"
)

// sqlstateHeadRE strips a leading five-character SQLSTATE token (and the
// whitespace around it) from the head of a classified rest-of-line, used
// when sqlstate mode is enabled (spec.md §4.1, §4.3 step 1).
var sqlstateHeadRE = regexp.MustCompile(`^[0-9A-Z]{5}\s+`)

// assembler holds the per-pid open-record state for one file read
// (spec.md §3 LogRecord invariants, §9 "keep the map, make the emission
// discipline explicit").
type assembler struct {
	matchers *prefix.Matchers
	syslog   bool
	stripSQL bool
	path     string

	open     map[string]*Record
	order    []string // insertion order of currently-open pids
	syslogN  map[string]string
	lastPID  string

	out []*Record
}

func newAssembler(m *prefix.Matchers, path string, syslog, stripSQL bool) *assembler {
	return &assembler{
		matchers: m,
		syslog:   syslog,
		stripSQL: stripSQL,
		path:     path,
		open:     make(map[string]*Record),
		syslogN:  make(map[string]string),
	}
}

// feed classifies one physical line (spec.md §4.3 assembly loop).
func (a *assembler) feed(lineNo int, line string, skipNonParsed bool, excludeNonParsed *regexp.Regexp) {
	if m, ok := a.matchers.MatchStrict(line); ok {
		a.feedPrefixed(lineNo, line, m)
		return
	}
	if a.matchers.Cluster.MatchString(line) {
		return
	}
	if a.lastPID == "" {
		return
	}
	if strings.HasPrefix(line, "\t") {
		if open, ok := a.open[a.lastPID]; ok {
			open.Segments = append(open.Segments, strings.TrimPrefix(line, "\t"))
		}
		return
	}
	if a.matchesDroppableLog(line) {
		return
	}
	if skipNonParsed {
		return
	}
	if excludeNonParsed != nil && excludeNonParsed.MatchString(line) {
		return
	}
	a.out = append(a.out, &Record{
		PID:        "?",
		Segments:   []string{line},
		SourceFile: a.path,
		SourceLine: lineNo,
		Forced:     true,
	})
}

func (a *assembler) feedPrefixed(lineNo int, line string, m prefix.Match) {
	pid := m.PID
	rest := m.Rest
	if a.stripSQL && a.matchers.HasSQLState {
		rest = sqlstateHeadRE.ReplaceAllString(rest, "")
	}

	open, exists := a.open[pid]
	if a.syslog && exists {
		if m.SyslogN != "" && m.SyslogN == a.syslogN[pid] {
			open.Segments = append(open.Segments, rest)
			a.lastPID = pid
			return
		}
		a.closeRecord(pid)
		exists = false
	} else if exists {
		if subkeywordPrefix(rest) {
			open.Segments = append(open.Segments, rest)
			a.lastPID = pid
			return
		}
		a.closeRecord(pid)
		exists = false
	}
	_ = exists

	rec := &Record{
		PID:        pid,
		Prefix:     m.Prefix,
		Timestamp:  m.Timestamp,
		Segments:   []string{rest},
		SourceFile: a.path,
		SourceLine: lineNo,
	}
	a.open[pid] = rec
	a.order = append(a.order, pid)
	a.syslogN[pid] = m.SyslogN
	a.lastPID = pid
}

// matchesDroppableLog implements spec.md §4.3 step 5: a line matching the
// timestamp-only matcher, immediately followed by the literal "LOG:", is
// dropped silently (a continuation-adjacent cluster notice).
func (a *assembler) matchesDroppableLog(line string) bool {
	loc := a.matchers.TimestampOnly.FindStringIndex(line)
	if loc == nil {
		return false
	}
	rest := strings.TrimLeft(line[loc[1]:], " ")
	return strings.HasPrefix(rest, "LOG:")
}

func (a *assembler) closeRecord(pid string) {
	rec, ok := a.open[pid]
	if !ok {
		return
	}
	a.out = append(a.out, rec)
	delete(a.open, pid)
	delete(a.syslogN, pid)
	for i, p := range a.order {
		if p == pid {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// drain closes every still-open record, in pid insertion order, at
// end of file (spec.md §4.3 "After the loop").
func (a *assembler) drain() {
	for len(a.order) > 0 {
		a.closeRecord(a.order[0])
	}
}
