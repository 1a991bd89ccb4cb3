package reader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailnmail/tailnmail/internal/prefix"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "postgresql.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadFileAssemblesMultilineRecord(t *testing.T) {
	m, err := prefix.Compile(`%t [%p] `, false)
	require.NoError(t, err)

	content := "2026-07-31 10:00:00 UTC [100] ERROR:  syntax error at or near \"FORM\"\n" +
		"2026-07-31 10:00:00 UTC [100] STATEMENT:  SELECT FORM bad\n" +
		"2026-07-31 10:00:01 UTC [101] LOG:  duration: 1.000 ms  statement: SELECT 1\n"

	path := writeLog(t, content)
	r := New(m, Options{}, nil)
	res, err := r.ReadFile(path, 0)
	require.NoError(t, err)

	require.Len(t, res.Records, 2)
	assert.Equal(t, "100", res.Records[0].PID)
	require.Len(t, res.Records[0].Segments, 2)
	assert.Contains(t, res.Records[0].Segments[1], "STATEMENT:")
	assert.Equal(t, int64(len(content)), res.NewOffset)
}

func TestReadFileResumesFromOffset(t *testing.T) {
	m, err := prefix.Compile(`%t [%p] `, false)
	require.NoError(t, err)

	first := "2026-07-31 10:00:00 UTC [100] LOG:  statement: SELECT 1\n"
	second := "2026-07-31 10:00:01 UTC [101] LOG:  statement: SELECT 2\n"
	path := writeLog(t, first+second)

	r := New(m, Options{}, nil)
	res1, err := r.ReadFile(path, 0)
	require.NoError(t, err)
	require.Len(t, res1.Records, 2)

	res2, err := r.ReadFile(path, res1.NewOffset)
	require.NoError(t, err)
	assert.Empty(t, res2.Records)
}

func TestReadFileResetsOffsetWhenFileShrank(t *testing.T) {
	m, err := prefix.Compile(`%t [%p] `, false)
	require.NoError(t, err)
	content := "2026-07-31 10:00:00 UTC [100] LOG:  statement: SELECT 1\n"
	path := writeLog(t, content)

	r := New(m, Options{}, nil)
	res, err := r.ReadFile(path, int64(len(content)+1000))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
}

func TestReadFileAnnotatesApproxLineNumberWhenRequested(t *testing.T) {
	m, err := prefix.Compile(`%t [%p] `, false)
	require.NoError(t, err)

	first := "2026-07-31 10:00:00 UTC [100] LOG:  statement: SELECT 1\n"
	second := "2026-07-31 10:00:01 UTC [101] LOG:  statement: SELECT 2\n"
	path := writeLog(t, first+second)

	r := New(m, Options{FindLineNumber: true}, nil)
	res, err := r.ReadFile(path, int64(len(first)))
	require.NoError(t, err)
	require.Equal(t, 1, res.ApproxLineNumber)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 2, res.Records[0].SourceLine)
}

func TestReadFileForcesUnparsedLinesAfterAKnownPID(t *testing.T) {
	m, err := prefix.Compile(`%t [%p] `, false)
	require.NoError(t, err)
	content := "2026-07-31 10:00:00 UTC [100] LOG:  statement: SELECT 1\n" +
		"a stray unparseable line with no prefix at all\n"
	path := writeLog(t, content)

	r := New(m, Options{}, nil)
	res, err := r.ReadFile(path, 0)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	var sawForced bool
	for _, rec := range res.Records {
		if rec.Forced {
			sawForced = true
		}
	}
	assert.True(t, sawForced)
}
