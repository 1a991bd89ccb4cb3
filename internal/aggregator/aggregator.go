// Package aggregator implements the Aggregator (spec.md §4.6): it groups
// canonicalized records into clusters keyed by their canonical text, keeps
// one representative example per cluster, and accumulates the type-specific
// statistics (duration totals, tempfile sizes) a report needs.
package aggregator

import (
	"sort"

	"github.com/tailnmail/tailnmail/internal/canon"
	"github.com/tailnmail/tailnmail/internal/config"
	"github.com/tailnmail/tailnmail/internal/filterpipe"
)

// Occurrence pins one record's position in its source file, used for a
// cluster's earliest/latest (and, in tempfile mode, smallest/largest)
// pointers (spec.md §3).
type Occurrence struct {
	SourceFile string
	SourceLine int
	Prefix     string
	Timestamp  string
	FileSize   int64 // only meaningful for tempfile mode's Smallest/Largest
}

// Cluster is one canonical-key group and its accumulated statistics.
type Cluster struct {
	Key     string
	Example string // Stage-C pretty-printed text of the first record seen
	Count   int

	Earliest Occurrence
	Latest   Occurrence

	Files map[string]bool // distinct SourceFile values contributing to this cluster

	// Duration specialization (config.ReportDuration).
	TotalDurationMS float64
	MinDurationMS   float64
	MaxDurationMS   float64

	// Tempfile specialization (config.ReportTempfile).
	Smallest   Occurrence
	Largest    Occurrence
	TotalBytes int64
}

// Mean is the tempfile specialization's total/count derived statistic
// (spec.md §3), computed at render time rather than tracked incrementally.
func (c *Cluster) Mean() float64 {
	if c.Count == 0 {
		return 0
	}
	return float64(c.TotalBytes) / float64(c.Count)
}

// Aggregator accumulates clusters for one run. It is not safe for
// concurrent use; the runner feeds it records from one file at a time.
type Aggregator struct {
	reportType config.ReportType
	clusters   map[string]*Cluster
	order      []string // first-seen insertion order, for stable tie-breaking

	// fileOrder assigns each distinct source file the position it was
	// first encountered in, used as the "file order" sort tie-break
	// spec.md §4.6 specifies for every report type.
	fileOrder     map[string]int
	nextFileOrder int
}

// New creates an Aggregator for the given report specialization.
func New(reportType config.ReportType) *Aggregator {
	return &Aggregator{
		reportType: reportType,
		clusters:   make(map[string]*Cluster),
		fileOrder:  make(map[string]int),
	}
}

func (a *Aggregator) fileRank(file string) int {
	if r, ok := a.fileOrder[file]; ok {
		return r
	}
	r := a.nextFileOrder
	a.fileOrder[file] = r
	a.nextFileOrder++
	return r
}

// Add folds one filtered-and-canonicalized record into its cluster,
// creating the cluster on first sight (spec.md §4.6). occ carries the
// record's position (source file, line, prefix, timestamp); extra carries
// the type-specific numeric value the active specialization needs.
func (a *Aggregator) Add(key canon.Result, occ Occurrence, extra filterpipe.Extra) {
	a.fileRank(occ.SourceFile)

	c, ok := a.clusters[key.Key]
	if !ok {
		c = &Cluster{
			Key:      key.Key,
			Example:  key.Pretty,
			Earliest: occ,
			Latest:   occ,
			Files:    make(map[string]bool),
		}
		if a.reportType == config.ReportTempfile {
			sized := occ
			sized.FileSize = extra.FileSize
			c.Smallest = sized
			c.Largest = sized
		}
		a.clusters[key.Key] = c
		a.order = append(a.order, key.Key)
	}

	c.Count++
	if occ.SourceFile != "" {
		c.Files[occ.SourceFile] = true
	}
	if occ.Timestamp != "" {
		if c.Earliest.Timestamp == "" || occ.Timestamp < c.Earliest.Timestamp {
			c.Earliest = occ
		}
		if occ.Timestamp > c.Latest.Timestamp {
			c.Latest = occ
		}
	}

	switch a.reportType {
	case config.ReportDuration:
		c.TotalDurationMS += extra.DurationMS
		if extra.DurationMS < c.MinDurationMS || c.Count == 1 {
			c.MinDurationMS = extra.DurationMS
		}
		if extra.DurationMS > c.MaxDurationMS {
			c.MaxDurationMS = extra.DurationMS
		}
	case config.ReportTempfile:
		c.TotalBytes += extra.FileSize
		sized := occ
		sized.FileSize = extra.FileSize
		if extra.FileSize < c.Smallest.FileSize || c.Count == 1 {
			c.Smallest = sized
		}
		if extra.FileSize > c.Largest.FileSize {
			c.Largest = sized
		}
	}
}

// Clusters returns every accumulated cluster, ordered per spec.md §4.6:
// duration sorts by extracted duration descending, tempfile by largest
// size descending then mean then count, and a normal report honors the
// config's SortBy (by count, or by file order). Every mode falls back to
// file order, then line, for determinism.
func (a *Aggregator) Clusters(sortBy config.SortBy) []*Cluster {
	out := make([]*Cluster, 0, len(a.clusters))
	for _, k := range a.order {
		out = append(out, a.clusters[k])
	}

	fileLine := func(c *Cluster) (int, int) {
		return a.fileOrder[c.Earliest.SourceFile], c.Earliest.SourceLine
	}

	less := func(i, j int) bool {
		ci, cj := out[i], out[j]
		switch {
		case a.reportType == config.ReportDuration:
			if ci.TotalDurationMS != cj.TotalDurationMS {
				return ci.TotalDurationMS > cj.TotalDurationMS
			}
		case a.reportType == config.ReportTempfile:
			if ci.Largest.FileSize != cj.Largest.FileSize {
				return ci.Largest.FileSize > cj.Largest.FileSize
			}
			if mi, mj := ci.Mean(), cj.Mean(); mi != mj {
				return mi > mj
			}
			if ci.Count != cj.Count {
				return ci.Count > cj.Count
			}
		case sortBy == config.SortByDate:
			// No further key: file order then line is the whole
			// ordering for date mode (spec.md §4.6).
		default: // config.SortByCount and unset
			if ci.Count != cj.Count {
				return ci.Count > cj.Count
			}
		}
		fi, li := fileLine(ci)
		fj, lj := fileLine(cj)
		if fi != fj {
			return fi < fj
		}
		return li < lj
	}
	sort.SliceStable(out, less)
	return out
}

// Total returns the number of records folded into all clusters combined.
func (a *Aggregator) Total() int {
	n := 0
	for _, c := range a.clusters {
		n += c.Count
	}
	return n
}
