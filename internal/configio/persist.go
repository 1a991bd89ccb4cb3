package configio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tailnmail/tailnmail/internal/config"
)

// Persist applies each non-inherited FileEntry's scan results back onto
// doc (updating or inserting its LASTFILE/OFFSET lines, and renumbering a
// placeholder suffix-0 entry) and atomically rewrites path with the result
// (spec.md §4.7, §9). It is a no-op — returning nil without touching the
// file — when skip is true, which the runner sets when any non-inherited
// file's run returned an error, such as a failed mail delivery.
// --dryrun and --nomail runs do not set skip, so they rewrite offsets.
func Persist(cfg *config.Config, doc *Document, path string, skip bool) error {
	if skip {
		return nil
	}

	for _, fe := range cfg.Files {
		if fe.Inherited {
			continue
		}
		applyOffset(doc, fe)
	}

	return writeAtomic(path, []byte(doc.Render()))
}

// applyOffset updates (or inserts) the LASTFILE[N]/OFFSET[N] lines for one
// FileEntry and, if it was originally an unsuffixed "FILE:" line,
// renumbers every bare FILE/LASTFILE/OFFSET line belonging to it to its
// now-final Suffix.
func applyOffset(doc *Document, fe *config.FileEntry) {
	if fe.Unsuffixed {
		renumber(doc, fe.Suffix)
	}

	lastPath := fe.LatestPath
	if lastPath == "" {
		lastPath = fe.LastPath
	}
	offset := fe.NewOffset

	setOrInsertAfter(doc, fe.Suffix, "FILE", "LASTFILE", lastPath, false)
	setOrInsertAfter(doc, fe.Suffix, "LASTFILE", "OFFSET", strconv.FormatInt(offset, 10), false)
}

// renumber rewrites every FILE/LASTFILE/OFFSET entry still carrying the
// suffix-0 placeholder to the given final suffix. There is at most one
// such group in a well-formed config (spec.md §3 invariant: Suffix 0 means
// "the sole entry with no bracket").
func renumber(doc *Document, suffix int) {
	for _, e := range doc.entries {
		if e.blank || e.suffix != 0 {
			continue
		}
		switch e.key {
		case "FILE", "LASTFILE", "OFFSET":
			e.suffix = suffix
		}
	}
}

// setOrInsertAfter finds the entry keyed key[suffix] and updates its
// value, or — if no such entry exists yet — inserts a new one directly
// after anchorKey[suffix] (falling back to appending at the end of the
// document if even the anchor is missing, which should not happen for a
// FileEntry that came from a successfully parsed FILE line).
func setOrInsertAfter(doc *Document, suffix int, anchorKey, key, value string, quoted bool) {
	for _, e := range doc.entries {
		if !e.blank && e.key == key && e.suffix == suffix {
			e.value = value
			e.quoted = quoted
			return
		}
	}

	newEntry := &entry{key: key, suffix: suffix, value: value, quoted: quoted}
	for i, e := range doc.entries {
		if !e.blank && e.key == anchorKey && e.suffix == suffix {
			doc.entries = append(doc.entries[:i+1], append([]*entry{newEntry}, doc.entries[i+1:]...)...)
			return
		}
	}
	doc.entries = append(doc.entries, newEntry)
}

// writeAtomic writes data to a temp file in the same directory as path
// and renames it into place, so a crash mid-write never leaves a
// truncated config file behind (spec.md §7 "the config file is rewritten
// atomically").
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tailnmail-rewrite-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}

	info, statErr := os.Stat(path)
	mode := os.FileMode(0o644)
	if statErr == nil {
		mode = info.Mode()
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, path, err)
	}
	return nil
}
