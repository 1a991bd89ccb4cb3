// Package prefix compiles a PostgreSQL log_line_prefix format string into
// the three regular expressions the rest of tailnmail needs to classify
// physical lines (spec.md §4.1). The compiler is a pure, deterministic
// function of the format string: same input, same three patterns, every
// time, which is what makes it unit-testable in isolation from the
// reader that uses it (spec.md §9, "Regex-built-from-format-string").
package prefix

import (
	"fmt"
	"regexp"
	"strings"
)

// Matchers is the output of Compile: the three patterns described in
// spec.md §4.1.
type Matchers struct {
	// Strict captures, in order, (prefix, timestamp-or-empty,
	// pid-or-empty); MatchPrefix below returns them as a struct so
	// callers never depend on subexpression indices.
	Strict *regexp.Regexp

	// Cluster matches cluster-wide notices: the same shape with
	// session-specific fields removed and %t/%m/%p left as
	// non-capturing placeholders.
	Cluster *regexp.Regexp

	// TimestampOnly matches only the literal text up to and including
	// the format's first field specifier. Callers combine a match here
	// with a following "LOG:" literal to classify a line as the
	// cluster-notice preamble (spec.md §4.3 step 5).
	TimestampOnly *regexp.Regexp

	// HasSQLState is true when the format includes %e, enabling the
	// optional severity/sqlstate strip in sqlstate mode.
	HasSQLState bool
}

// Match is the normalized result of applying Strict to a line.
type Match struct {
	Prefix    string
	Timestamp string
	PID       string
	Rest      string
	// SyslogN/SyslogM are the "[N-M]" continuation counter captured
	// under syslog framing; both are empty outside syslog mode.
	SyslogN string
	SyslogM string
}

// fieldShapes gives the non-capturing regex shape for every supported
// log_line_prefix specifier (spec.md §4.1).
var fieldShapes = map[byte]string{
	't': `\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:\s[A-Z]+)?`,
	'm': `\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}(?:\s[A-Z]+)?`,
	'p': `\d+`,
	'c': `[0-9a-f]+\.[0-9a-f]+`,
	'l': `\d+`,
	'u': `[^\s\[\]]*`,
	'd': `[^\s\[\]]*`,
	'r': `\S*`,
	'h': `\S*`,
	'a': `\S*`,
	'e': `[0-9A-Z]{5}`,
	'q': ``,
}

// clusterStrip is the set of specifiers removed entirely from the
// cluster-notice matcher because they never appear in a backend-less
// notice (spec.md §4.1).
var clusterStrip = map[byte]bool{
	'u': true, 'd': true, 'r': true, 'h': true,
	'c': true, 'l': true,
	// i, s, v, x are PostgreSQL log_line_prefix specifiers this
	// compiler does not otherwise model (command tag, session start
	// time, virtual/real txid); they are only ever relevant to the
	// cluster matcher's strip set, per spec.md §4.1.
	'i': true, 's': true, 'v': true, 'x': true,
}

// Compile builds the three matchers for a log_line_prefix format string.
// syslogFraming wraps the result with the fixed syslog preamble described
// in spec.md §4.1's final paragraph.
func Compile(format string, syslogFraming bool) (*Matchers, error) {
	strictBody, hasTS, hasPID, hasSQLState := build(format, false)
	clusterBody, _, _, _ := build(format, true)
	tsOnlyBody := buildTimestampOnly(format)

	strictPattern := strictBody
	if !hasTS {
		strictPattern = `(?P<ts>)` + strictPattern
	}
	if !hasPID {
		strictPattern = `(?P<pid>)` + strictPattern
	}
	strictPattern = `^(?P<prefix>` + strictPattern + `)(?P<rest>.*)$`
	clusterPattern := `^(?:` + clusterBody + `)`
	tsOnlyPattern := `^(?:` + tsOnlyBody + `)`

	if syslogFraming {
		strictPattern = wrapSyslog(strictPattern)
		clusterPattern = wrapSyslog(clusterPattern)
		tsOnlyPattern = wrapSyslog(tsOnlyPattern)
	}

	strict, err := regexp.Compile(strictPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling strict matcher: %w", err)
	}
	cluster, err := regexp.Compile(clusterPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling cluster matcher: %w", err)
	}
	tsOnly, err := regexp.Compile(tsOnlyPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling timestamp-only matcher: %w", err)
	}

	return &Matchers{
		Strict:        strict,
		Cluster:       cluster,
		TimestampOnly: tsOnly,
		HasSQLState:   hasSQLState,
	}, nil
}

// build walks format left to right, escaping literal text and expanding
// field specifiers. When forCluster is true, fields in clusterStrip
// contribute nothing and %t/%m/%p are left non-capturing; otherwise %t/%m
// capture as "ts" and %p/%c capture as "pid". Every specifier is expanded
// in a single left-to-right pass over the format, so no expansion is ever
// applied to the output of another.
func build(format string, forCluster bool) (pattern string, hasTS, hasPID, hasSQLState bool) {
	var b strings.Builder
	i := 0
	for i < len(format) {
		c := format[i]
		if c == '%' && i+1 < len(format) {
			spec := format[i+1]
			i += 2
			if forCluster && clusterStrip[spec] {
				continue
			}
			shape, known := fieldShapes[spec]
			if !known {
				// Unknown specifier: treat the two literal characters
				// ("%" + spec) as escaped text rather than silently
				// dropping them.
				b.WriteString(regexp.QuoteMeta(string([]byte{'%', spec})))
				continue
			}
			switch spec {
			case 't', 'm':
				if forCluster {
					b.WriteString(nonCapturing(shape))
				} else {
					b.WriteString(`(?P<ts>` + shape + `)`)
					hasTS = true
				}
			case 'p':
				if forCluster {
					b.WriteString(nonCapturing(shape))
				} else {
					b.WriteString(`(?P<pid>` + shape + `)`)
					hasPID = true
				}
			case 'c':
				if !forCluster {
					b.WriteString(`(?P<pid>` + shape + `)`)
					hasPID = true
				}
			case 'e':
				hasSQLState = true
				b.WriteString(nonCapturing(shape))
			default:
				b.WriteString(nonCapturing(shape))
			}
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(c)))
		i++
	}
	return b.String(), hasTS, hasPID, hasSQLState
}

// buildTimestampOnly keeps literal text up to and including the first
// field specifier; %t/%m expand to their non-capturing shape, any other
// first specifier contributes nothing (spec.md §4.1).
func buildTimestampOnly(format string) string {
	var b strings.Builder
	i := 0
	for i < len(format) {
		c := format[i]
		if c == '%' && i+1 < len(format) {
			spec := format[i+1]
			if shape, ok := fieldShapes[spec]; ok {
				if spec == 't' || spec == 'm' {
					b.WriteString(nonCapturing(shape))
				}
				return b.String()
			}
			return b.String()
		}
		b.WriteString(regexp.QuoteMeta(string(c)))
		i++
	}
	return b.String()
}

func nonCapturing(shape string) string {
	if shape == "" {
		return ""
	}
	return "(?:" + shape + ")"
}

// wrapSyslog wraps a prefix pattern with the fixed syslog framing:
// timestamp, host, process name, pid, and a "[N-M]" continuation counter
// (spec.md §4.1 final paragraph). The counter is exposed as named groups
// "syslogN" and "syslogM" for the assembler's continuation logic.
func wrapSyslog(inner string) string {
	const frame = `^(?:\w{3}\s+\d+\s\d{2}:\d{2}:\d{2})\s(?:\S+)\s(?:\S+?)\[(?:\d+)\]:\s*(?:\[(?P<syslogN>\d+)-(?P<syslogM>\d+)\]\s)?`
	// inner already begins with its own ^; strip it so the frame's
	// anchor is the only one.
	inner = strings.TrimPrefix(inner, "^")
	return frame + inner
}

// MatchStrict applies m.Strict to line and normalizes the result,
// synthesizing empty strings for timestamp/pid when the format carried
// no such field, satisfying the "always exactly three captures" testable
// property (spec.md §8).
func (m *Matchers) MatchStrict(line string) (Match, bool) {
	sub := m.Strict.FindStringSubmatch(line)
	if sub == nil {
		return Match{}, false
	}
	names := m.Strict.SubexpNames()
	get := func(name string) string {
		for i, n := range names {
			if n == name && i < len(sub) {
				return sub[i]
			}
		}
		return ""
	}
	return Match{
		Prefix:    get("prefix"),
		Timestamp: get("ts"),
		PID:       get("pid"),
		Rest:      get("rest"),
		SyslogN:   get("syslogN"),
		SyslogM:   get("syslogM"),
	}, true
}
