// Package filterpipe implements the Filter Pipeline (spec.md §4.4): it
// compiles a Config's global and per-file include/exclude patterns into a
// FilterSet and applies them, in order, to a closed Record's joined body.
package filterpipe

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tailnmail/tailnmail/internal/config"
	"github.com/tailnmail/tailnmail/internal/reader"
)

// FilterSet is the four compiled regex alternations for one file, built
// once per run and reused for every record from that file (spec.md §3
// FilterSet, §9 "replace implicit global regex handles with an explicit
// FilterSet value").
type FilterSet struct {
	Include          *regexp.Regexp
	Exclude          *regexp.Regexp
	ExcludePrefix    *regexp.Regexp
	ExcludeNonParsed *regexp.Regexp
}

// Compile merges a file's local Filters with the run's global Filters and
// compiles each of the four kinds into one alternation. An empty
// alternation (nil *regexp.Regexp) means "no filter of this kind."
func Compile(global, local config.Filters) (*FilterSet, error) {
	inc, err := alternation(append(append([]string{}, global.IncludeRaw...), local.IncludeRaw...))
	if err != nil {
		return nil, err
	}
	exc, err := alternation(append(append([]string{}, global.ExcludeRaw...), local.ExcludeRaw...))
	if err != nil {
		return nil, err
	}
	excPrefix, err := alternation(append(append([]string{}, global.ExcludePrefixRaw...), local.ExcludePrefixRaw...))
	if err != nil {
		return nil, err
	}
	excNonParsed, err := alternation(append(append([]string{}, global.ExcludeNonParsedRaw...), local.ExcludeNonParsedRaw...))
	if err != nil {
		return nil, err
	}
	return &FilterSet{
		Include:          inc,
		Exclude:          exc,
		ExcludePrefix:    excPrefix,
		ExcludeNonParsed: excNonParsed,
	}, nil
}

func alternation(parts []string) (*regexp.Regexp, error) {
	if len(parts) == 0 {
		return nil, nil
	}
	wrapped := make([]string, len(parts))
	for i, p := range parts {
		wrapped[i] = "(?:" + p + ")"
	}
	return regexp.Compile(strings.Join(wrapped, "|"))
}

var syslogTabRE = regexp.MustCompile(`#011`)
var whitespaceRE = regexp.MustCompile(`[ \t]+`)

// Body joins a Record's segments into the single string the filters and
// the canonicalizer operate on (spec.md §4.4): segments joined by single
// spaces, leading whitespace stripped, interior whitespace collapsed,
// embedded newlines escaped, and syslog "#011" tab encodings removed.
func Body(rec *reader.Record) string {
	joined := strings.Join(rec.Segments, " ")
	joined = syslogTabRE.ReplaceAllString(joined, " ")
	joined = strings.TrimLeft(joined, " \t")
	joined = whitespaceRE.ReplaceAllString(joined, " ")
	joined = strings.ReplaceAll(joined, "\n", "\\n")
	return joined
}

var durationRE = regexp.MustCompile(`duration:\s*([0-9.]+)\s*ms`)
var tempfileRE = regexp.MustCompile(`temporary file:[^\n]*?size\s+(\d+)`)
var statementHeadRE = regexp.MustCompile(`^STATEMENT:\s*`)

// Extra carries the type-specific values the Aggregator needs beyond the
// plain body text.
type Extra struct {
	DurationMS float64
	FileSize   int64
}

// Apply runs the five-step filter chain from spec.md §4.4 against one
// closed record, returning its joined body, any type-specific extras, and
// whether the record survives to the Canonicalizer/Aggregator.
func (fs *FilterSet) Apply(rec *reader.Record, reportType config.ReportType, durationMinMS int, tempfileMin int64) (body string, extra Extra, keep bool) {
	body = Body(rec)

	if rec.Forced {
		if fs.ExcludeNonParsed != nil && fs.ExcludeNonParsed.MatchString(body) {
			return body, extra, false
		}
		return body, extra, true
	}

	if fs.Include != nil && !fs.Include.MatchString(body) {
		return body, extra, false
	}
	if fs.Exclude != nil && fs.Exclude.MatchString(body) {
		return body, extra, false
	}
	if fs.ExcludePrefix != nil && fs.ExcludePrefix.MatchString(rec.Prefix) {
		return body, extra, false
	}

	switch reportType {
	case config.ReportDuration:
		m := durationRE.FindStringSubmatch(body)
		if m == nil {
			return body, extra, false
		}
		ms, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return body, extra, false
		}
		extra.DurationMS = ms
		if int(ms) < durationMinMS {
			return body, extra, false
		}
	case config.ReportTempfile:
		m := tempfileRE.FindStringSubmatch(body)
		if m == nil {
			return body, extra, false
		}
		size, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return body, extra, false
		}
		extra.FileSize = size
		if size < tempfileMin {
			return body, extra, false
		}
		body = statementHeadRE.ReplaceAllString(body, "")
	}

	return body, extra, true
}
