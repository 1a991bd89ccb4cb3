// Package report renders an Aggregator's clusters into the plain-text
// report body the Mailer Adapter sends (spec.md §4.7): a header describing
// the run, followed by one numbered block per cluster, chunked so no single
// mail part exceeds the configured MaxEmailSize.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/tailnmail/tailnmail/internal/aggregator"
	"github.com/tailnmail/tailnmail/internal/config"
)

// Options carries everything Render needs to know beyond the cluster list
// itself.
type Options struct {
	Host        string
	Label       string // the FILE[N] template or path this report covers
	ReportType  config.ReportType
	Total       int // total records folded across all clusters
	GeneratedAt time.Time
	MaxSize     int64 // 0 means unbounded (single chunk)

	// MailSig, when set, is appended verbatim after the last cluster of
	// the final chunk only — it never counts against MaxSize and is
	// never split across a chunk boundary (SUPPLEMENTED FEATURES).
	MailSig string

	// StatementSize caps the rendered length of a cluster's example text
	// (config STATEMENT_SIZE); 0 means unbounded.
	StatementSize int
}

// Render formats clusters into one or more chunks, each a complete,
// self-contained mail body under Options.MaxSize bytes (when MaxSize > 0).
// Every chunk shares one run identifier so a reader can tell a multi-part
// report apart from an unrelated one with the same subject.
func Render(opts Options, clusters []*aggregator.Cluster) []string {
	runID := uuid.NewString()

	var chunks []string
	var cur strings.Builder
	part := 1

	writeHeader := func() {
		fmt.Fprintf(&cur, "tailnmail report for %s (%s)\n", opts.Host, opts.Label)
		fmt.Fprintf(&cur, "generated %s, run %s, part %d\n", opts.GeneratedAt.Format(time.RFC3339), runID, part)
		fmt.Fprintf(&cur, "%s distinct statements, %s total occurrences\n\n",
			humanize.Comma(int64(len(clusters))), humanize.Comma(int64(opts.Total)))
	}
	writeHeader()

	for i, c := range clusters {
		block := clusterBlock(opts.ReportType, i+1, c, opts.StatementSize)
		if opts.MaxSize > 0 && cur.Len() > 0 && int64(cur.Len()+len(block)) > opts.MaxSize && cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			part++
			writeHeader()
		}
		cur.WriteString(block)
	}

	if opts.MailSig != "" {
		cur.WriteString(opts.MailSig)
		cur.WriteString("\n")
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	if len(chunks) > 1 {
		for i := range chunks {
			chunks[i] = strings.Replace(chunks[i], fmt.Sprintf("part %d\n", i+1),
				fmt.Sprintf("part %d of %d\n", i+1, len(chunks)), 1)
		}
	}
	return chunks
}

// clusterBlock renders one "[N] ..." section, including the Stage-C
// pretty-printed example text and the type-specific statistics line
// (spec.md §4.6/§4.7).
func clusterBlock(rt config.ReportType, n int, c *aggregator.Cluster, statementSize int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s occurrences, first seen %s, last seen %s\n", n,
		humanize.Comma(int64(c.Count)), c.Earliest.Timestamp, c.Latest.Timestamp)

	switch rt {
	case config.ReportDuration:
		fmt.Fprintf(&b, "    total duration %s, min %s, max %s\n",
			formatMS(c.TotalDurationMS), formatMS(c.MinDurationMS), formatMS(c.MaxDurationMS))
	case config.ReportTempfile:
		fmt.Fprintf(&b, "    total size %s, mean %s, min %s, max %s\n",
			humanize.Bytes(uint64(c.TotalBytes)), humanize.Bytes(uint64(c.Mean())),
			humanize.Bytes(uint64(c.Smallest.FileSize)), humanize.Bytes(uint64(c.Largest.FileSize)))
	}

	if len(c.Files) > 1 {
		fmt.Fprintf(&b, "    seen in %d files\n", len(c.Files))
	}

	b.WriteString(truncateStatement(c.Example, statementSize))
	b.WriteString("\n\n")
	return b.String()
}

// truncateStatement bounds an example's rendered length, marking the cut
// with an ellipsis (config STATEMENT_SIZE); size <= 0 means unbounded.
func truncateStatement(s string, size int) string {
	if size <= 0 || len(s) <= size {
		return s
	}
	return s[:size] + " ...[truncated]"
}

func formatMS(ms float64) string {
	return time.Duration(ms * float64(time.Millisecond)).Round(time.Millisecond).String()
}
