package reader

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	golog "github.com/opencoff/go-logger"

	"github.com/tailnmail/tailnmail/internal/prefix"
)

// Options configures one ReadFile call. Zero-value Options gives plain
// (non-CSV, non-syslog) mode with no size cap.
type Options struct {
	MaxSize          int64
	Rewind           int64
	FindLineNumber   bool
	Syslog           bool
	CSV              bool
	SkipNonParsed    bool
	StripSQLState    bool
	ExcludeNonParsed *regexp.Regexp

	// OffsetOverride, when true, disables the maxsize truncation step
	// (spec.md §4.3 "no explicit offset override is active"), so the
	// offset passed to ReadFile is honored exactly. The tailnmail command
	// has no flag that sets it.
	OffsetOverride bool
}

// Result is everything ReadFile learned about one file.
type Result struct {
	Records          []*Record
	NewOffset        int64
	TooLarge         bool
	ApproxLineNumber int // 0 if FindLineNumber was not requested
}

// Reader reads and reassembles one log file at a time.
type Reader struct {
	matchers *prefix.Matchers
	opts     Options
	log      golog.Logger
}

func New(m *prefix.Matchers, opts Options, log golog.Logger) *Reader {
	if log == nil {
		log = discardLogger()
	}
	return &Reader{matchers: m, opts: opts, log: log}
}

func discardLogger() golog.Logger {
	l, _ := golog.New(io.Discard, golog.LOG_NONE, "", golog.Lstdflag)
	return l
}

// ReadFile opens path at offset, heals a possible partial-line resume
// point, reads to end of file (or until maxsize bytes have been
// consumed), and returns the assembled records plus the new offset to
// persist (spec.md §4.3).
func (r *Reader) ReadFile(path string, offset int64) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	size := fi.Size()

	// Rotation safety: if the file shrank below the saved offset,
	// start over from 0 (spec.md §4.3 Opening, §8 invariant).
	if offset > size {
		offset = 0
	}

	result := &Result{}
	if r.opts.MaxSize > 0 && !r.opts.OffsetOverride && size-offset > r.opts.MaxSize {
		offset = size - r.opts.MaxSize
		result.TooLarge = true
	}

	if r.opts.FindLineNumber && offset > 0 {
		n, err := countNewlines(f, offset)
		if err != nil {
			return nil, fmt.Errorf("counting lines in %s: %w", path, err)
		}
		result.ApproxLineNumber = n
	}

	seekPos := offset - 10
	if seekPos < 0 {
		seekPos = 0
	}
	if r.opts.Rewind > 0 {
		seekPos -= r.opts.Rewind
		if seekPos < 0 {
			seekPos = 0
		}
	}
	atHead := seekPos == 0

	if r.opts.CSV {
		recs, newOffset, err := r.readCSV(f, seekPos, atHead)
		if err != nil {
			return nil, err
		}
		result.Records = recs
		result.NewOffset = newOffset
		return result, nil
	}

	recs, newOffset, err := r.readPlain(f, path, seekPos, atHead)
	if err != nil {
		return nil, err
	}
	if result.ApproxLineNumber > 0 {
		for _, rec := range recs {
			rec.SourceLine += result.ApproxLineNumber
		}
	}
	result.Records = recs
	result.NewOffset = newOffset
	return result, nil
}

// countNewlines counts '\n' bytes in [0, offset) via block reads, for
// the optional approximate-line-number report annotation.
func countNewlines(f *os.File, offset int64) (int, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	buf := make([]byte, 64*1024)
	remaining := offset
	count := 0
	for remaining > 0 {
		want := int64(len(buf))
		if remaining < want {
			want = remaining
		}
		n, err := f.Read(buf[:want])
		for _, b := range buf[:n] {
			if b == '\n' {
				count++
			}
		}
		remaining -= int64(n)
		if err != nil {
			if err == io.EOF {
				break
			}
			return 0, err
		}
		if n == 0 {
			break
		}
	}
	return count, nil
}

func (r *Reader) readPlain(f *os.File, path string, seekPos int64, atHead bool) ([]*Record, int64, error) {
	asm := newAssembler(r.matchers, path, r.opts.Syslog, r.opts.StripSQLState)

	pos := seekPos
	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seeking %s: %w", path, err)
	}
	br := bufio.NewReader(f)

	if !atHead {
		discard, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, 0, err
		}
		pos += int64(len(discard))
	}

	lastFullLineEnd := pos
	lineNo := 0

	for {
		line, readErr := br.ReadString('\n')
		if len(line) == 0 && readErr == io.EOF {
			break
		}

		if readErr == io.EOF && !strings.HasSuffix(line, "\n") {
			// Truncated read: sleep briefly, rewind exactly the
			// unread length, and retry once (spec.md §4.3).
			time.Sleep(50 * time.Millisecond)
			if _, err := f.Seek(pos, io.SeekStart); err != nil {
				return nil, 0, err
			}
			br = bufio.NewReader(f)
			line, readErr = br.ReadString('\n')
			if readErr == io.EOF && !strings.HasSuffix(line, "\n") {
				if line != "" {
					lineNo++
					asm.feed(lineNo, line, r.opts.SkipNonParsed, r.opts.ExcludeNonParsed)
				}
				break
			}
		}

		consumed := int64(len(line))
		text := strings.TrimRight(strings.TrimSuffix(line, "\n"), "\r")
		lineNo++
		asm.feed(lineNo, text, r.opts.SkipNonParsed, r.opts.ExcludeNonParsed)

		pos += consumed
		lastFullLineEnd = pos
	}

	asm.drain()
	return asm.out, lastFullLineEnd, nil
}

// readCSV decodes a PostgreSQL CSV-format log: each row becomes one
// record with a synthesized prefix "ts [pid]" and a composed body
// (spec.md §4.3 CSV mode).
func (r *Reader) readCSV(f *os.File, seekPos int64, atHead bool) ([]*Record, int64, error) {
	if _, err := f.Seek(seekPos, io.SeekStart); err != nil {
		return nil, 0, err
	}
	if !atHead {
		br := bufio.NewReader(f)
		discard, _ := br.ReadString('\n')
		if _, err := f.Seek(seekPos+int64(len(discard)), io.SeekStart); err != nil {
			return nil, 0, err
		}
	}

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var records []*Record
	lineNo := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		lineNo++
		rec := csvRowToRecord(row, lineNo)
		if rec != nil {
			records = append(records, rec)
		}
	}

	end, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, err
	}
	return records, end, nil
}

// csvColumns names the subset of the 20-column PostgreSQL CSV log format
// this reader composes a body from (spec.md SPEC_FULL supplement).
const (
	csvColTimestamp = 0
	csvColUser      = 1
	csvColDatabase  = 2
	csvColPID       = 3
	csvColSeverity  = 11
	csvColMessage   = 13
	csvColDetail    = 14
	csvColHint      = 15
	csvColContext   = 18
	csvColStatement = 19
)

func csvRowToRecord(row []string, lineNo int) *Record {
	get := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	ts := get(csvColTimestamp)
	pid := get(csvColPID)
	pfx := fmt.Sprintf("%s [%s]", ts, pid)

	var b strings.Builder
	b.WriteString(get(csvColSeverity))
	b.WriteString(":  ")
	b.WriteString(get(csvColMessage))
	if ctx := get(csvColContext); ctx != "" {
		b.WriteString(" CONTEXT: ")
		b.WriteString(ctx)
		b.WriteString(" ")
	}
	if stmt := get(csvColStatement); stmt != "" {
		b.WriteString("STATEMENT:  ")
		b.WriteString(stmt)
	}

	return &Record{
		PID:        pid,
		Prefix:     pfx,
		Timestamp:  ts,
		Segments:   []string{b.String()},
		SourceLine: lineNo,
	}
}
