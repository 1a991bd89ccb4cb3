// Package config holds the in-memory representation of a parsed tailnmail
// configuration file: the ordered list of watched files, the global and
// per-file filters, and the report/mail parameters that drive a run.
//
// This replaces the "dynamic option bag" pattern (a process-wide
// map[string]interface{}) that an ad hoc config loader tends to grow into:
// every value here has a name and a type, and per-entry mutable state
// (offset, last scanned path) lives on the FileEntry it belongs to instead
// of in a side table keyed by string.
package config

import "regexp"

// ReportType selects which Aggregator specialization a run uses.
type ReportType string

const (
	ReportNormal   ReportType = "normal"
	ReportDuration ReportType = "duration"
	ReportTempfile ReportType = "tempfile"
)

// SortBy selects the ordering of clusters in a normal-mode report.
type SortBy string

const (
	SortByCount SortBy = "count"
	SortByDate  SortBy = "date"
)

// Defaults mirror the source's documented fallbacks (spec.md §5, §6).
const (
	DefaultMaxSize      = 80 * 1024 * 1024 // 80MB
	DefaultMaxEmailSize = 10 * 1024 * 1024 // 10MB
	DefaultSubject      = "Results for FILE on host: HOST UNIQUE : NUMBER"
	DefaultLookbackDays = 60
	DefaultStepMinutes  = 30
)

// FileEntry is one FILE[N]/LASTFILE[N]/OFFSET[N] triple plus the filters
// and bookkeeping that travel with it.
//
// Invariant: Suffix is unique within a Config's Files slice; Suffix 0 is a
// placeholder and must be renumbered to the lowest unused positive integer
// before the config is rewritten (spec.md §3).
type FileEntry struct {
	Suffix int // position within the config; 0 is "unassigned"

	Template string // may contain strftime-style %Y/%m/%d/%H/%M/%S directives or a LATEST token
	LastPath string // concrete path scanned last run, or "" if none yet
	Offset   int64  // byte offset into LastPath; always >= 0

	// CurrentPath and LatestPath are run-scoped: CurrentPath is the
	// template expanded for "now", LatestPath is the last concrete path
	// the reader actually finished with. They are never persisted
	// directly; Offset Persistence (internal/configio) derives the new
	// LastPath/Offset to write from them.
	CurrentPath string
	LatestPath  string
	NewOffset   int64

	Filters Filters

	// Inherited is true when this entry came from an INHERIT'd config
	// subset rather than the primary file; such entries are never
	// rewritten by Offset Persistence.
	Inherited bool

	// Unsuffixed is true when this entry was parsed from bare "FILE:"/
	// "LASTFILE:"/"OFFSET:" lines carrying no "[N]" at all. Offset
	// Persistence renumbers it to Suffix the next time the config is
	// rewritten, so a second FILE entry added later has an unambiguous
	// slot to attach its own filters to (spec.md §3 invariant).
	Unsuffixed bool
}

// Filters holds the four per-file regex alternations from spec.md §3/§4.4.
// Raw text is kept alongside the compiled form so the config can be
// rewritten byte-for-byte when filters are untouched.
type Filters struct {
	IncludeRaw          []string
	ExcludeRaw          []string
	ExcludePrefixRaw    []string
	ExcludeNonParsedRaw []string
	Include             *regexp.Regexp
	Exclude             *regexp.Regexp
	ExcludePrefix       *regexp.Regexp
	ExcludeNonParsed    *regexp.Regexp
}

// Config is the fully parsed configuration for one run.
type Config struct {
	Path string // path to the config file on disk

	Files []*FileEntry

	Global Filters

	Type          ReportType
	SortBy        SortBy
	Email         []string
	From          string
	MailSubject   string
	MailZero      bool
	MailSig       string
	MaxSize       int64
	MaxEmailSize  int64
	StatementSize int

	DurationMinMS int
	DurationLimit int
	TempfileMin   int64
	TempfileLimit int

	LogLinePrefix  string
	FindLineNumber bool
	CSVLog         bool
	Syslog         bool
	Rewind         int64

	// MailAuth, when non-empty, is "host:port:user" and selects SMTP+TLS
	// delivery; the password comes from the RC file via internal/mailcfg.
	// An empty MailAuth selects a "sendmail -t" pipe (spec.md §6).
	MailAuth string

	// Inherit records the names given on INHERIT lines, in file order.
	// The named configs are not searched for, loaded or merged; no
	// FileEntry is created from them.
	Inherit []string

	// Warnings accumulates non-fatal parse issues (duplicate lines,
	// unrecognized keys) surfaced to the operator but not fatal
	// (spec.md §7 item 1 vs. recoverable warnings).
	Warnings []string
}

// NextSuffix returns the lowest unused positive integer, used to
// renumber any FileEntry still carrying the Suffix-0 placeholder
// (spec.md §3 invariant).
func (c *Config) NextSuffix() int {
	used := make(map[int]bool, len(c.Files))
	for _, f := range c.Files {
		used[f.Suffix] = true
	}
	for n := 1; ; n++ {
		if !used[n] {
			return n
		}
	}
}

// BySuffix looks up a FileEntry by its [N] suffix, or returns nil when no
// entry carries that suffix.
func (c *Config) BySuffix(suffix int) *FileEntry {
	for _, f := range c.Files {
		if f.Suffix == suffix {
			return f
		}
	}
	return nil
}
