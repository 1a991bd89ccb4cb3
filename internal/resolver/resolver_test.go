package resolver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailnmail/tailnmail/internal/config"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestResolvePlainTemplateNoRotation(t *testing.T) {
	fe := &config.FileEntry{Template: "/var/log/postgres/postgresql.log"}
	q, err := Resolve(fe, 0, nil)
	require.NoError(t, err)
	p, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, "/var/log/postgres/postgresql.log", p)
	_, ok = q.Next()
	assert.False(t, ok)
}

func TestResolvePlainTemplateYieldsLastPathFirst(t *testing.T) {
	fe := &config.FileEntry{Template: "/var/log/postgres/postgresql.log", LastPath: "/var/log/postgres/postgresql.log.1"}
	q, err := Resolve(fe, 0, nil)
	require.NoError(t, err)
	p, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, "/var/log/postgres/postgresql.log.1", p)
	p, ok = q.Next()
	require.True(t, ok)
	assert.Equal(t, "/var/log/postgres/postgresql.log", p)
}

func TestResolveTimeTemplateExpandsAndOrdersOldestFirst(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	fe := &config.FileEntry{Template: "/var/log/postgres/postgresql-%Y-%m-%d-%H%M.log"}
	q, err := Resolve(fe, 0, fixedClock(now))
	require.NoError(t, err)

	var all []string
	for {
		p, ok := q.Next()
		if !ok {
			break
		}
		all = append(all, p)
	}
	require.NotEmpty(t, all)
	assert.Equal(t, "/var/log/postgres/postgresql-2026-07-31-1000.log", all[len(all)-1])

	prev := time.Time{}
	for _, p := range all {
		ts, err := time.Parse("2006-01-02-1504", p[len("/var/log/postgres/postgresql-"):len(p)-len(".log")])
		require.NoError(t, err)
		assert.True(t, prev.IsZero() || ts.After(prev))
		prev = ts
	}
}

func TestResolveLatestPicksNewestWhenNoLastPath(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "postgresql-2026-07-30.log")
	newer := filepath.Join(dir, "postgresql-2026-07-31.log")
	require.NoError(t, os.WriteFile(older, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(newer, []byte("b"), 0o644))
	now := time.Now()
	require.NoError(t, os.Chtimes(older, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))
	require.NoError(t, os.Chtimes(newer, now.Add(-1*time.Hour), now.Add(-1*time.Hour)))

	fe := &config.FileEntry{Template: filepath.Join(dir, "LATEST")}
	q, err := Resolve(fe, 0, nil)
	require.NoError(t, err)
	p, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, newer, p)
	_, ok = q.Next()
	assert.False(t, ok)
}

func TestResolveLatestYieldsLastPathThenNewerFiles(t *testing.T) {
	dir := t.TempDir()
	last := filepath.Join(dir, "postgresql-2026-07-30.log")
	next := filepath.Join(dir, "postgresql-2026-07-31.log")
	require.NoError(t, os.WriteFile(last, []byte("a"), 0o644))
	now := time.Now()
	require.NoError(t, os.Chtimes(last, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))
	require.NoError(t, os.WriteFile(next, []byte("b"), 0o644))
	require.NoError(t, os.Chtimes(next, now.Add(-1*time.Hour), now.Add(-1*time.Hour)))

	fe := &config.FileEntry{Template: filepath.Join(dir, "LATEST"), LastPath: last}
	q, err := Resolve(fe, 0, nil)
	require.NoError(t, err)
	p, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, last, p)
	p, ok = q.Next()
	require.True(t, ok)
	assert.Equal(t, next, p)
}

func TestSplitLatestTemplateHandlesTrailingSlash(t *testing.T) {
	dir, prefix, suffix := splitLatestTemplate("/var/log/postgres/LATEST")
	assert.Equal(t, "/var/log/postgres", dir)
	assert.Equal(t, "", prefix)
	assert.Equal(t, "", suffix)
}

func TestSplitLatestTemplateHandlesAffixedName(t *testing.T) {
	dir, prefix, suffix := splitLatestTemplate("/var/log/postgres/pg-LATEST.log")
	assert.Equal(t, "/var/log/postgres", dir)
	assert.Equal(t, "pg-", prefix)
	assert.Equal(t, ".log", suffix)
}
