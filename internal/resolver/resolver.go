// Package resolver implements the File Resolver (spec.md §4.2): given a
// FileEntry's template and its last-scanned path, it produces the ordered
// sequence of concrete files to read this run, handling time-templated
// names, the LATEST directory wildcard, and plain rotation.
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tailnmail/tailnmail/internal/config"
)

// Clock abstracts "now" so tests can pin it (spec.md §5: "tests can pin
// it"). Resolve uses time.Now when no Clock is given and adds the
// configured timewarp to whatever the Clock returns.
type Clock func() time.Time

const (
	stepInterval  = 30 * time.Minute
	lookbackLimit = 60 * 24 * time.Hour
)

var latestTokenRE = regexp.MustCompile(`^(.*)LATEST(.*)$`)

// timeDirectiveRE matches any strftime-style directive this resolver
// understands; its presence in a template signals time-template mode.
var timeDirectiveRE = regexp.MustCompile(`%[YmdHMS]`)

// Queue is the drained-one-path-at-a-time output of Resolve: the
// last-scanned file (if any) is always yielded before newer files
// (spec.md §4.2 Output, §8 resolver monotonicity).
type Queue struct {
	paths []string
	pos   int
}

// Next returns the next path and true, or "", false when exhausted.
func (q *Queue) Next() (string, bool) {
	if q.pos >= len(q.paths) {
		return "", false
	}
	p := q.paths[q.pos]
	q.pos++
	return p, true
}

// Remaining reports how many paths are left.
func (q *Queue) Remaining() int {
	return len(q.paths) - q.pos
}

// Resolve builds the Queue for entry as of clock(), adjusted by timewarp.
func Resolve(entry *config.FileEntry, timewarp time.Duration, clock Clock) (*Queue, error) {
	if clock == nil {
		clock = time.Now
	}
	now := clock().Add(timewarp)

	switch {
	case latestTokenRE.MatchString(entry.Template):
		paths, err := resolveLatest(entry, now)
		if err != nil {
			return nil, err
		}
		return &Queue{paths: paths}, nil
	case timeDirectiveRE.MatchString(entry.Template):
		paths := resolveTimeTemplate(entry, now)
		return &Queue{paths: paths}, nil
	default:
		current := expandTime(entry.Template, now)
		paths := []string{current}
		if entry.LastPath != "" && entry.LastPath != current {
			paths = append([]string{entry.LastPath}, paths...)
		}
		return &Queue{paths: paths}, nil
	}
}

// resolveLatest scans the directory named by the template (after
// stripping the LATEST token and any affix text) and returns files whose
// name carries the configured prefix/suffix, strictly newer than
// entry.LastPath by modification time, oldest first. If there is no
// last-scanned file, only the single newest match is kept (spec.md
// §4.2).
func resolveLatest(entry *config.FileEntry, now time.Time) ([]string, error) {
	dir, prefix, suffix := splitLatestTemplate(entry.Template)

	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning LATEST directory %s: %w", dir, err)
	}

	var lastModTime time.Time
	if entry.LastPath != "" {
		if fi, err := os.Stat(entry.LastPath); err == nil {
			lastModTime = fi.ModTime()
		}
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, de := range ents {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		if suffix != "" && !strings.HasSuffix(name, suffix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		full := filepath.Join(dir, name)
		if entry.LastPath != "" {
			if !info.ModTime().After(lastModTime) {
				continue
			}
		}
		candidates = append(candidates, candidate{full, info.ModTime()})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.Before(candidates[j].modTime)
	})

	if entry.LastPath == "" {
		if len(candidates) == 0 {
			return nil, nil
		}
		return []string{candidates[len(candidates)-1].path}, nil
	}

	paths := make([]string, 0, len(candidates)+1)
	paths = append(paths, entry.LastPath)
	for _, c := range candidates {
		paths = append(paths, c.path)
	}
	return paths, nil
}

func splitLatestTemplate(template string) (dir, prefix, suffix string) {
	m := latestTokenRE.FindStringSubmatch(template)
	before, after := "", ""
	if m != nil {
		before, after = m[1], m[2]
	}
	if strings.HasSuffix(before, "/") {
		dir = strings.TrimSuffix(before, "/")
		prefix = ""
	} else {
		dir = filepath.Dir(before)
		prefix = filepath.Base(before)
		if prefix == "." || prefix == "/" {
			prefix = ""
		}
	}
	if dir == "" {
		dir = "."
	}
	suffix = after
	return dir, prefix, suffix
}

// resolveTimeTemplate walks backwards from now in stepInterval
// increments, rendering the template at each step and keeping every
// distinct path that isn't entry.LastPath, bounded to lookbackLimit
// (spec.md §4.2). The last-scanned file is always processed first.
func resolveTimeTemplate(entry *config.FileEntry, now time.Time) []string {
	seen := map[string]bool{}
	var paths []string
	if entry.LastPath != "" {
		seen[entry.LastPath] = true
		paths = append(paths, entry.LastPath)
	}

	cutoff := now.Add(-lookbackLimit)
	var forward []string
	for t := now; !t.Before(cutoff); t = t.Add(-stepInterval) {
		p := expandTime(entry.Template, t)
		if seen[p] {
			continue
		}
		seen[p] = true
		forward = append(forward, p)
	}
	// forward was built newest-first; the queue must yield oldest-first
	// so the reader never skips an intermediate rotation.
	for i := len(forward) - 1; i >= 0; i-- {
		paths = append(paths, forward[i])
	}
	return paths
}

// directiveRE matches one strftime-style directive for substitution.
var directiveRE = regexp.MustCompile(`%[A-Za-z]`)

// expandTime renders a strftime-subset template (%Y %m %d %H %M %S, plus
// a literal %% escape) against t. Unknown directives pass through
// unchanged so a stray "%" in a path is not silently eaten.
func expandTime(template string, t time.Time) string {
	return directiveRE.ReplaceAllStringFunc(template, func(d string) string {
		switch d[1] {
		case 'Y':
			return fmt.Sprintf("%04d", t.Year())
		case 'm':
			return fmt.Sprintf("%02d", int(t.Month()))
		case 'd':
			return fmt.Sprintf("%02d", t.Day())
		case 'H':
			return fmt.Sprintf("%02d", t.Hour())
		case 'M':
			return fmt.Sprintf("%02d", t.Minute())
		case 'S':
			return fmt.Sprintf("%02d", t.Second())
		case '%':
			return "%"
		default:
			return d
		}
	})
}
