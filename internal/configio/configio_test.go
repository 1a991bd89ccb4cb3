package configio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `# watched primary log
FILE: /var/log/postgres/postgresql-%Y-%m-%d.log
LASTFILE: /var/log/postgres/postgresql-2026-07-30.log
OFFSET: 4096

EMAIL: dba-team@example.com
FROM: tailnmail@example.com
TYPE: normal

# a noisy health-check query we never want reported
EXCLUDE: ^SELECT 1$
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tailnmail.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesBasicConfig(t *testing.T) {
	path := writeTemp(t, sampleConfig)
	cfg, doc, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, doc)

	require.Len(t, cfg.Files, 1)
	fe := cfg.Files[0]
	assert.Equal(t, "/var/log/postgres/postgresql-%Y-%m-%d.log", fe.Template)
	assert.Equal(t, "/var/log/postgres/postgresql-2026-07-30.log", fe.LastPath)
	assert.EqualValues(t, 4096, fe.Offset)
	assert.True(t, fe.Unsuffixed)

	assert.Equal(t, []string{"dba-team@example.com"}, cfg.Email)
	assert.Equal(t, "tailnmail@example.com", cfg.From)
	assert.Equal(t, []string{"^SELECT 1$"}, cfg.Global.ExcludeRaw)
}

func TestPersistUpdatesOffsetAndPreservesComments(t *testing.T) {
	path := writeTemp(t, sampleConfig)
	cfg, doc, err := Load(path)
	require.NoError(t, err)

	fe := cfg.Files[0]
	fe.LatestPath = "/var/log/postgres/postgresql-2026-07-31.log"
	fe.NewOffset = 8192

	require.NoError(t, Persist(cfg, doc, path, false))

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(out)

	assert.Contains(t, content, "LASTFILE[1]: /var/log/postgres/postgresql-2026-07-31.log")
	assert.Contains(t, content, "OFFSET[1]: 8192")
	assert.Contains(t, content, "# watched primary log")
	assert.Contains(t, content, "# a noisy health-check query we never want reported")

	cfg2, _, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 8192, cfg2.Files[0].Offset)
	assert.Equal(t, "/var/log/postgres/postgresql-2026-07-31.log", cfg2.Files[0].LastPath)
}

func TestPersistSkipsRewriteWhenAsked(t *testing.T) {
	path := writeTemp(t, sampleConfig)
	cfg, doc, err := Load(path)
	require.NoError(t, err)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	fe := cfg.Files[0]
	fe.NewOffset = 999999
	require.NoError(t, Persist(cfg, doc, path, true))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestPersistInsertsMissingOffsetLine(t *testing.T) {
	path := writeTemp(t, "FILE: /var/log/postgres/postgresql.log\n")
	cfg, doc, err := Load(path)
	require.NoError(t, err)

	fe := cfg.Files[0]
	fe.LatestPath = "/var/log/postgres/postgresql.log"
	fe.NewOffset = 42
	require.NoError(t, Persist(cfg, doc, path, false))

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(out), "LASTFILE[1]: /var/log/postgres/postgresql.log")
	assert.Contains(t, string(out), "OFFSET[1]: 42")
}

func TestUnrecognizedLineBecomesWarning(t *testing.T) {
	path := writeTemp(t, "NOT_A_REAL_KEY blah\n")
	cfg, _, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Warnings, 1)
}
