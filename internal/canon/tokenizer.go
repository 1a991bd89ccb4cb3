package canon

import (
	"regexp"
	"strings"
)

// tupleState is one of the five states spec.md §4.5 Stage B names for
// the VALUES/REPLACE tuple tokenizer.
type tupleState int

const (
	tsStart tupleState = iota
	tsLiteral
	tsInQuote
	tsDollar
	tsFail
)

var valuesKeywordRE = regexp.MustCompile(`(?i)\b(VALUES|REPLACE)(\s*)\(`)
var dollarTagRE = regexp.MustCompile(`^\$[A-Za-z_]*\$`)

// flattenValueTuples finds every "(VALUES|REPLACE) ( ... )" occurrence in
// s and collapses the whole comma-separated tuple list that follows into
// a single "(?)" placeholder, so that statements differing only in how
// many rows (or which literal values) they insert share one cluster key
// (spec.md §4.5 Stage B, scenario 4).
func flattenValueTuples(s string) string {
	var out strings.Builder
	last := 0

	for {
		loc := valuesKeywordRE.FindStringSubmatchIndex(s[last:])
		if loc == nil {
			break
		}
		// Offsets are relative to s[last:]; rebase to s.
		kwStart, kwEnd := last+loc[0], last+loc[1]
		parenPos := kwEnd - 1 // index of the '(' itself

		out.WriteString(s[last:kwStart])
		out.WriteString(s[kwStart:kwEnd])

		end, ok := scanTupleRegion(s, parenPos)
		if !ok {
			// fail: leave this occurrence's tuple text untouched and
			// resume scanning right after the keyword (spec.md §4.5:
			// "abandon rewriting this occurrence; emit the original
			// text").
			last = kwEnd
			continue
		}
		out.WriteString("?)")
		last = end
	}
	out.WriteString(s[last:])
	return out.String()
}

// scanTupleRegion runs the Stage-B FSM starting at s[open] == '(' and
// returns the index just past the final ')' of the comma-separated tuple
// list, or ok=false if the FSM hit tsFail (typically an unterminated
// quote) before finding a stable close.
func scanTupleRegion(s string, open int) (end int, ok bool) {
	i := open
	depth := 0
	state := tsStart
	var tag string

	n := len(s)
	for i < n {
		c := s[i]
		switch state {
		case tsStart:
			switch {
			case c == ' ' || c == '\t' || c == ',':
				i++
			case c == '(':
				depth++
				i++
			case c == '\'':
				state = tsInQuote
				i++
			case c == 'E' && i+1 < n && s[i+1] == '\'':
				state = tsInQuote
				i += 2
			case c == '$':
				if m := dollarTagRE.FindString(s[i:]); m != "" {
					tag = m
					state = tsDollar
					i += len(tag)
				} else {
					state = tsLiteral
					i++
				}
			case c == ')':
				depth--
				i++
				if depth == 0 {
					if !moreTuples(s, i) {
						return i, true
					}
					state = tsStart
				}
			default:
				state = tsLiteral
				i++
			}
		case tsLiteral:
			switch c {
			case '(':
				depth++
				i++
			case ')':
				depth--
				i++
				if depth == 0 {
					if !moreTuples(s, i) {
						return i, true
					}
					state = tsStart
				}
			case ',':
				state = tsStart
				i++
			case ';':
				// A new statement begins; this tuple list is done.
				return i, true
			default:
				i++
			}
		case tsInQuote:
			switch c {
			case '\\':
				i += 2
			case '\'':
				if i+1 < n && s[i+1] == '\'' {
					i += 2
				} else {
					state = tsLiteral
					i++
				}
			default:
				i++
			}
		case tsDollar:
			if strings.HasPrefix(s[i:], tag) {
				i += len(tag)
				state = tsLiteral
			} else {
				i++
			}
		case tsFail:
			return 0, false
		}
	}
	if state == tsInQuote || state == tsDollar {
		return 0, false
	}
	return i, true
}

// moreTuples reports whether, after a closing ')', another tuple
// "(...)" follows (possibly separated by whitespace/commas), meaning the
// VALUES list continues.
func moreTuples(s string, pos int) bool {
	i := pos
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == ',') {
		i++
	}
	return i < len(s) && s[i] == '('
}
