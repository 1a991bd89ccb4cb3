// Package configio reads and rewrites the tailnmail configuration file
// described in spec.md §6: a line-oriented "KEY[N]: value" format with
// "#"-prefixed comments.
//
// Parsing keeps two views of the file in sync: the typed config.Config
// (what the rest of the program operates on) and a Document (the ordered
// list of raw lines, including comments and blanks). Offset Persistence
// changes only the FILE/LASTFILE/OFFSET entries inside the Document and
// then renders the whole Document back out, which is how user comments
// attached to a keyword survive a rewrite (spec.md §4.7, §9). Comment
// lines and blank lines are written back as read (trailing whitespace
// trimmed). Keyword lines are written in the normalized form
// "KEY[N]: value" (upper-case key, double quotes around a quoted value),
// not as their original text. Duplicate lines and lines that are not of
// the "KEY[N]: value" form are left out of the Document when it is parsed,
// so they are absent from a rewritten file.
package configio

import "fmt"

// entry is one logical unit of the document: a (possibly empty) run of
// comment lines immediately followed by either a keyword line or, at
// end of file, nothing.
type entry struct {
	comments []string // comment lines verbatim, including the leading '#'
	blank    bool     // this entry is a single blank line, no keyword
	raw      string   // the exact keyword line as read, sans trailing newline
	key      string   // keyword without the [N] suffix, upper-cased
	suffix   int      // the N in KEY[N], or 0 if the key carries none
	value    string   // the parsed value (quotes stripped, whitespace preserved inside quotes)
	quoted   bool
}

// Document is the full parsed file: a trailing-comment-only block (kept
// as the last entry's comments with no raw line) is allowed.
type Document struct {
	entries []*entry
}

func (e *entry) String() string {
	if e.blank {
		return ""
	}
	if e.suffix != 0 {
		return fmt.Sprintf("%s[%d]: %s", e.key, e.suffix, renderValue(e.value, e.quoted))
	}
	return fmt.Sprintf("%s: %s", e.key, renderValue(e.value, e.quoted))
}

func renderValue(v string, quoted bool) string {
	if !quoted {
		return v
	}
	return "\"" + v + "\""
}

// Render reproduces the document as file content, comments and blank
// lines included, with any entries updated by Persist reflecting their
// new values.
func (d *Document) Render() string {
	out := make([]byte, 0, 4096)
	for _, e := range d.entries {
		for _, c := range e.comments {
			out = append(out, c...)
			out = append(out, '\n')
		}
		if e.blank {
			out = append(out, '\n')
			continue
		}
		if e.key == "" {
			// A comment-only entry has no keyword line of its own.
			continue
		}
		out = append(out, e.String()...)
		out = append(out, '\n')
	}
	return string(out)
}
