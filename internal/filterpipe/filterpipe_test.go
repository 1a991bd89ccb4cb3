package filterpipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailnmail/tailnmail/internal/config"
	"github.com/tailnmail/tailnmail/internal/reader"
)

func TestBodyJoinsAndCollapsesWhitespace(t *testing.T) {
	rec := &reader.Record{Segments: []string{"  LOG:  something", "STATEMENT:  SELECT 1"}}
	got := Body(rec)
	assert.Equal(t, "LOG: something STATEMENT: SELECT 1", got)
}

func TestBodyEscapesNewlines(t *testing.T) {
	rec := &reader.Record{Segments: []string{"line one\nline two"}}
	got := Body(rec)
	assert.Contains(t, got, "\\n")
	assert.NotContains(t, got, "\n")
}

func TestApplyIncludeExclude(t *testing.T) {
	fs, err := Compile(config.Filters{}, config.Filters{IncludeRaw: []string{"ERROR"}})
	require.NoError(t, err)

	keepRec := &reader.Record{Segments: []string{"ERROR: bad thing"}}
	_, _, keep := fs.Apply(keepRec, config.ReportNormal, 0, 0)
	assert.True(t, keep)

	dropRec := &reader.Record{Segments: []string{"LOG: fine"}}
	_, _, keep = fs.Apply(dropRec, config.ReportNormal, 0, 0)
	assert.False(t, keep)
}

func TestApplyExcludePrefix(t *testing.T) {
	fs, err := Compile(config.Filters{}, config.Filters{ExcludePrefixRaw: []string{`^noisyhost`}})
	require.NoError(t, err)
	rec := &reader.Record{Prefix: "noisyhost 2026-01-01", Segments: []string{"LOG: anything"}}
	_, _, keep := fs.Apply(rec, config.ReportNormal, 0, 0)
	assert.False(t, keep)
}

func TestApplyForcedRecordBypassesIncludeExclude(t *testing.T) {
	fs, err := Compile(config.Filters{}, config.Filters{IncludeRaw: []string{"NEVER_MATCHES"}})
	require.NoError(t, err)
	rec := &reader.Record{Forced: true, Segments: []string{"some unparsed line"}}
	_, _, keep := fs.Apply(rec, config.ReportNormal, 0, 0)
	assert.True(t, keep)
}

func TestApplyForcedRecordHonorsExcludeNonParsed(t *testing.T) {
	fs, err := Compile(config.Filters{}, config.Filters{ExcludeNonParsedRaw: []string{"^noise"}})
	require.NoError(t, err)
	rec := &reader.Record{Forced: true, Segments: []string{"noise line"}}
	_, _, keep := fs.Apply(rec, config.ReportNormal, 0, 0)
	assert.False(t, keep)
}

func TestApplyDurationModeExtractsAndGates(t *testing.T) {
	fs, err := Compile(config.Filters{}, config.Filters{})
	require.NoError(t, err)

	rec := &reader.Record{Segments: []string{"LOG:  duration: 42.500 ms  statement: SELECT 1"}}
	_, extra, keep := fs.Apply(rec, config.ReportDuration, 100, 0)
	assert.False(t, keep) // below the 100ms floor
	assert.Equal(t, 42.5, extra.DurationMS)

	_, extra, keep = fs.Apply(rec, config.ReportDuration, 10, 0)
	assert.True(t, keep)
	assert.Equal(t, 42.5, extra.DurationMS)
}

func TestApplyDurationModeDropsNonDurationLines(t *testing.T) {
	fs, err := Compile(config.Filters{}, config.Filters{})
	require.NoError(t, err)
	rec := &reader.Record{Segments: []string{"LOG:  connection received"}}
	_, _, keep := fs.Apply(rec, config.ReportDuration, 0, 0)
	assert.False(t, keep)
}

func TestApplyTempfileModeExtractsAndStripsStatementHead(t *testing.T) {
	fs, err := Compile(config.Filters{}, config.Filters{})
	require.NoError(t, err)
	rec := &reader.Record{Segments: []string{"LOG:  temporary file: path \"x\", size 123456 STATEMENT:  SELECT huge()"}}
	_, extra, keep := fs.Apply(rec, config.ReportTempfile, 0, 1000)
	require.True(t, keep)
	assert.EqualValues(t, 123456, extra.FileSize)
}
