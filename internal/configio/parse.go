package configio

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/tailnmail/tailnmail/internal/config"
)

var keyLineRE = regexp.MustCompile(`^([A-Za-z_]+)(\[(\d+)\])?\s*:\s*(.*)$`)

// Load reads path and returns both the typed Config and the raw Document
// used later to rewrite the file without disturbing comments.
func Load(path string) (*config.Config, *Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening config %s: %w", path, err)
	}
	defer f.Close()

	doc, warnings, err := parseDocument(f)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg, err := documentToConfig(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("interpreting config %s: %w", path, err)
	}
	cfg.Path = path
	for _, w := range warnings {
		cfg.Warnings = append(cfg.Warnings, w)
	}
	return cfg, doc, nil
}

func parseDocument(f *os.File) (*Document, []string, error) {
	doc := &Document{}
	var pending []string
	seen := make(map[string]bool)
	var warnings []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimRight(line, " \t\r")

		switch {
		case trimmed == "":
			if len(pending) > 0 {
				doc.entries = append(doc.entries, &entry{comments: pending})
				pending = nil
			}
			doc.entries = append(doc.entries, &entry{blank: true})
			continue
		case strings.HasPrefix(strings.TrimLeft(trimmed, " \t"), "#"):
			pending = append(pending, trimmed)
			continue
		}

		if seen[trimmed] {
			warnings = append(warnings, fmt.Sprintf("duplicate config line ignored: %s", trimmed))
			continue
		}
		seen[trimmed] = true

		m := keyLineRE.FindStringSubmatch(trimmed)
		if m == nil {
			warnings = append(warnings, fmt.Sprintf("unrecognized config line ignored: %s", trimmed))
			continue
		}

		suffix := 0
		if m[3] != "" {
			suffix, _ = strconv.Atoi(m[3])
		}
		value, quoted := unquoteValue(m[4])

		doc.entries = append(doc.entries, &entry{
			comments: pending,
			raw:      trimmed,
			key:      strings.ToUpper(m[1]),
			suffix:   suffix,
			value:    value,
			quoted:   quoted,
		})
		pending = nil
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	if len(pending) > 0 {
		doc.entries = append(doc.entries, &entry{comments: pending})
	}
	return doc, warnings, nil
}

// unquoteValue strips a single layer of matching quotes, preserving
// interior whitespace exactly (spec.md §6: "Quoted values preserve
// surrounding whitespace").
func unquoteValue(v string) (value string, quoted bool) {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1], true
		}
	}
	return strings.TrimSpace(v), false
}

func documentToConfig(doc *Document) (*config.Config, error) {
	cfg := &config.Config{
		Type:           config.ReportNormal,
		SortBy:         config.SortByDate,
		MailSubject:    config.DefaultSubject,
		MaxSize:        config.DefaultMaxSize,
		MaxEmailSize:   config.DefaultMaxEmailSize,
		FindLineNumber: false,
	}

	byFile := map[int]*config.FileEntry{}
	entryFor := func(suffix int) *config.FileEntry {
		fe, ok := byFile[suffix]
		if !ok {
			fe = &config.FileEntry{Suffix: suffix}
			byFile[suffix] = fe
			cfg.Files = append(cfg.Files, fe)
		}
		return fe
	}

	for _, e := range doc.entries {
		if e.blank || e.key == "" {
			continue
		}
		switch e.key {
		case "FILE":
			entryFor(e.suffix).Template = e.value
		case "LASTFILE":
			entryFor(e.suffix).LastPath = e.value
		case "OFFSET":
			n, err := strconv.ParseInt(e.value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("OFFSET[%d]: %w", e.suffix, err)
			}
			entryFor(e.suffix).Offset = n
		case "EMAIL":
			cfg.Email = append(cfg.Email, e.value)
		case "FROM":
			cfg.From = e.value
		case "TYPE":
			cfg.Type = config.ReportType(strings.ToLower(e.value))
		case "DURATION":
			cfg.DurationMinMS, _ = strconv.Atoi(e.value)
		case "DURATION_LIMIT":
			cfg.DurationLimit, _ = strconv.Atoi(e.value)
		case "TEMPFILE":
			n, _ := strconv.ParseInt(e.value, 10, 64)
			cfg.TempfileMin = n
		case "TEMPFILE_LIMIT":
			cfg.TempfileLimit, _ = strconv.Atoi(e.value)
		case "LOG_LINE_PREFIX":
			cfg.LogLinePrefix = e.value
		case "SORTBY":
			cfg.SortBy = config.SortBy(strings.ToLower(e.value))
		case "FIND_LINE_NUMBER":
			cfg.FindLineNumber = e.value == "1"
		case "CSVLOG":
			cfg.CSVLog = e.value == "1"
		case "SYSLOG":
			cfg.Syslog = e.value == "1"
		case "REWIND":
			n, _ := strconv.ParseInt(e.value, 10, 64)
			cfg.Rewind = n
		case "INCLUDE", "EXCLUDE", "EXCLUDE_PREFIX", "EXCLUDE_NON_PARSED":
			addFilter(cfg, e, byFile, entryFor)
		case "INHERIT":
			cfg.Inherit = append(cfg.Inherit, e.value)
		case "MAXSIZE":
			n, _ := strconv.ParseInt(e.value, 10, 64)
			cfg.MaxSize = n
		case "MAILSUBJECT":
			cfg.MailSubject = e.value
		case "MAILZERO":
			cfg.MailZero = e.value == "1"
		case "MAILSIG":
			cfg.MailSig = e.value
		case "STATEMENT_SIZE":
			cfg.StatementSize, _ = strconv.Atoi(e.value)
		case "MAILAUTH":
			cfg.MailAuth = e.value
		default:
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown config key ignored: %s", e.key))
		}
	}

	if cfg.Type == "" {
		cfg.Type = config.ReportNormal
	}
	if cfg.SortBy == "" {
		cfg.SortBy = config.SortByDate
	}

	for _, fe := range cfg.Files {
		if fe.Suffix == 0 {
			fe.Unsuffixed = true
			fe.Suffix = cfg.NextSuffix()
		}
	}

	return cfg, nil
}

// addFilter appends a global filter value; per-file filters (keyed by a
// FILE[N] suffix on the same line, e.g. "INCLUDE[3]: ...") attach to that
// entry's Filters instead, creating the FileEntry via entryFor if this is
// the first line mentioning that suffix.
func addFilter(cfg *config.Config, e *entry, byFile map[int]*config.FileEntry, entryFor func(int) *config.FileEntry) {
	var dst *config.Filters
	if e.suffix == 0 {
		dst = &cfg.Global
	} else {
		dst = &entryFor(e.suffix).Filters
	}
	switch e.key {
	case "INCLUDE":
		dst.IncludeRaw = append(dst.IncludeRaw, e.value)
	case "EXCLUDE":
		dst.ExcludeRaw = append(dst.ExcludeRaw, e.value)
	case "EXCLUDE_PREFIX":
		dst.ExcludePrefixRaw = append(dst.ExcludePrefixRaw, e.value)
	case "EXCLUDE_NON_PARSED":
		dst.ExcludeNonParsedRaw = append(dst.ExcludeNonParsedRaw, e.value)
	}
}
