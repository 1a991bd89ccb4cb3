// Package canon implements the Canonicalizer (spec.md §4.5): it turns a
// filtered record body into a cluster key that groups statements differing
// only in literal values, and a readable "raw" rendering kept as one
// representative example per cluster.
package canon

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tailnmail/tailnmail/internal/config"
)

// rewrite is one targeted, ordered Stage-A substitution.
type rewrite struct {
	re   *regexp.Regexp
	repl string
}

// stageA is the ordered list of targeted regex rewrites spec.md §4.5 Stage A
// names: equality/IN-list/SET literal folding, bare SELECT-list literals,
// timestamp folding, and a handful of known error-message shapes. Order
// matters — later patterns run against the output of earlier ones.
var stageA = []rewrite{
	// WHERE col = 'string literal'
	{regexp.MustCompile(`(?i)(\bWHERE\s+\S+\s*)=\s*'(?:[^'\\]|\\.|'')*'`), `$1= '?'`},
	// WHERE col = 123 / 123.45 / -1
	{regexp.MustCompile(`(?i)(\bWHERE\s+\S+\s*)=\s*-?\d+(?:\.\d+)?\b`), `$1= ?`},
	// SET col = 'string literal'
	{regexp.MustCompile(`(?i)(\bSET\s+\S+\s*)=\s*'(?:[^'\\]|\\.|'')*'`), `$1= '?'`},
	// SET col = 123
	{regexp.MustCompile(`(?i)(\bSET\s+\S+\s*)=\s*-?\d+(?:\.\d+)?\b`), `$1= ?`},
	// WHERE col IN (a, b, c) -- not a subquery, so no nested SELECT.
	{regexp.MustCompile(`(?i)(\bWHERE\s+\S+\s+IN\s*)\(\s*(?:(?i:SELECT)[^()]*)\)`), `$1(SELECT)`},
	{regexp.MustCompile(`(?i)(\bWHERE\s+\S+\s+IN\s*)\(([^()]*)\)`), `$1(?)`},
	// Bare numeric/string literal immediately after SELECT, or between
	// commas in a SELECT list (spec.md §4.5 Stage A).
	{regexp.MustCompile(`(?i)(\bSELECT\s+)-?\d+(?:\.\d+)?\b`), `$1?`},
	{regexp.MustCompile(`(?i)(\bSELECT\s+)'(?:[^'\\]|\\.|'')*'`), `$1'?'`},
	{regexp.MustCompile(`(,\s*)-?\d+(?:\.\d+)?\b`), `$1?`},
	{regexp.MustCompile(`(,\s*)'(?:[^'\\]|\\.|'')*'`), `$1'?'`},
	// Timestamp literal 'YYYY-MM-DD HH:MM:SS[.ffffff][+TZ]'
	{regexp.MustCompile(`'\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:[-+]\d{2}(?::?\d{2})?)?'`), `'?'`},
	// DECLARE "name" CURSOR / CLOSE "name"
	{regexp.MustCompile(`(?i)(\bDECLARE\s+)"[^"]+"(\s+CURSOR)`), `${1}"?"$2`},
	{regexp.MustCompile(`(?i)(\bCLOSE\s+)"[^"]+"`), `${1}"?"`},
	// ARRAY[...] literal
	{regexp.MustCompile(`(?i)\bARRAY\s*\[[^\[\]]*\]`), `ARRAY[?]`},
	// Known error-message shapes.
	{regexp.MustCompile(`(?i)(invalid byte sequence for encoding "[^"]+":)\s*0x[0-9a-fA-F]+(?:\s+0x[0-9a-fA-F]+)*`), `$1 ?`},
	{regexp.MustCompile(`(?i)(Failed on request of size)\s+\d+`), `$1 ?`},
	{regexp.MustCompile(`(?i)(Failing row contains)\s*\([^()]*\)`), `$1 (?)`},
	{regexp.MustCompile(`(?i)(Key\s*)\([^()]*\)=\([^()]*\)`), `$1(?)=(?)`},
	{regexp.MustCompile(`(?i)(at character)\s+\d+`), `$1 ?`},
	{regexp.MustCompile(`(?i)(duplicate key value violates unique constraint )"[^"]+"`), `$1"?"`},
	// Ambiguity markers: the referenced column/relation name varies per
	// statement but the shape of the message doesn't.
	{regexp.MustCompile(`(?i)(column reference )"[^"]+"( is ambiguous)`), `$1"?"$2`},
	{regexp.MustCompile(`(?i)(table reference )"[^"]+"( is ambiguous)`), `$1"?"$2`},
}

// selectFuncCallRE finds a function call in a SELECT list; foldSelectFuncArgs
// folds each of its arguments that is not already a "$N" placeholder.
var selectFuncCallRE = regexp.MustCompile(`(?i)\bSELECT\s+[A-Za-z_][A-Za-z0-9_]*\s*\(([^()]*)\)`)
var placeholderArgRE = regexp.MustCompile(`^\$\d+$`)

// foldSelectFuncArgs implements spec.md §4.5 Stage A's "SELECT func(a,b,c)"
// rewrite: every argument that isn't a placeholder like $N folds to "?",
// leaving the function name and any $N arguments untouched.
func foldSelectFuncArgs(s string) string {
	locs := selectFuncCallRE.FindAllStringSubmatchIndex(s, -1)
	if locs == nil {
		return s
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		argsStart, argsEnd := loc[2], loc[3]
		if argsStart < last {
			// An earlier replacement already consumed this region
			// (overlapping matches); skip it.
			continue
		}
		b.WriteString(s[last:argsStart])
		b.WriteString(foldArgList(s[argsStart:argsEnd]))
		last = argsEnd
	}
	b.WriteString(s[last:])
	return b.String()
}

func foldArgList(args string) string {
	if strings.TrimSpace(args) == "" {
		return args
	}
	parts := strings.Split(args, ",")
	for i, p := range parts {
		trimmed := strings.TrimSpace(p)
		if placeholderArgRE.MatchString(trimmed) {
			parts[i] = " " + trimmed
		} else {
			parts[i] = " ?"
		}
	}
	return strings.TrimPrefix(strings.Join(parts, ","), " ")
}

// subkeywordBreakRE finds the subkeyword markers that Stage C inserts a
// newline before, so a multi-segment record reads like psql output instead
// of one long run-on line (spec.md §4.5 Stage C).
var subkeywordBreakRE = regexp.MustCompile(`\s+(STATEMENT:|DETAIL:|HINT:|QUERY:|CONTEXT:)`)

// durationReshapeRE matches a duration-mode body's combined "duration: X
// ms  statement: Y" shape, captured for the Stage C duration-mode reshape.
var durationReshapeRE = regexp.MustCompile(`(?i)duration:\s*([0-9.]+\s*ms)\s*statement:\s*(.*)$`)

// Result is what Canonicalize produces for one record body.
type Result struct {
	// Key is the canonical cluster key: body text with literals folded
	// to "?" placeholders, used to group statements into clusters.
	Key string
	// Pretty is a readable rendering of the original body, kept as the
	// representative example text for a cluster (spec.md §4.6 Cluster.Example).
	Pretty string
}

// Canonicalize runs the Stage-A/B/C passes over body (already joined and
// whitespace-normalized by filterpipe.Body) and returns the cluster key
// plus a pretty-printed representative rendering. Folding is disabled in
// duration mode (spec.md §4.5 "Disabled in duration mode"): the key is the
// normalized raw body, so statements cluster only on literal text equality.
func Canonicalize(body string, reportType config.ReportType) Result {
	// Normalize to NFC first: a decomposed and a precomposed rendering of
	// the same identifier must fold to the same cluster key (spec.md §4.5
	// Stage A, DOMAIN STACK: golang.org/x/text).
	normalized := norm.NFC.String(body)

	if reportType == config.ReportDuration {
		return Result{
			Key:    collapseSpace(normalized),
			Pretty: prettyPrint(body, reportType),
		}
	}

	key := foldSelectFuncArgs(normalized)
	for _, rw := range stageA {
		key = rw.re.ReplaceAllString(key, rw.repl)
	}
	key = flattenValueTuples(key)
	key = collapseSpace(key)

	return Result{
		Key:    key,
		Pretty: prettyPrint(body, reportType),
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// prettyPrint implements Stage C (spec.md §4.5): it leaves the literal
// values in place (this runs on the original body, not the folded key). In
// duration mode it reshapes the combined "duration: X  statement: Y" line
// into two labeled lines; otherwise it breaks a record's STATEMENT/DETAIL/
// HINT/QUERY/CONTEXT segments onto their own lines for readability in the
// rendered report.
func prettyPrint(body string, reportType config.ReportType) string {
	if reportType == config.ReportDuration {
		if m := durationReshapeRE.FindStringSubmatch(body); m != nil {
			return "DURATION: " + m[1] + "\nSTATEMENT: " + m[2]
		}
	}
	return subkeywordBreakRE.ReplaceAllString(body, "\n$1")
}
