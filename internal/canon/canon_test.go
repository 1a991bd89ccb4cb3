package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailnmail/tailnmail/internal/config"
)

func TestCanonicalizeFoldsWhereEquality(t *testing.T) {
	a := Canonicalize("LOG: duration: 0.123 ms statement: SELECT * FROM users WHERE id = 42", config.ReportNormal)
	b := Canonicalize("LOG: duration: 4.500 ms statement: SELECT * FROM users WHERE id = 9001", config.ReportNormal)
	assert.Equal(t, a.Key, b.Key)
}

func TestCanonicalizeFoldsStringLiteral(t *testing.T) {
	a := Canonicalize("statement: SELECT * FROM users WHERE email = 'a@example.com'", config.ReportNormal)
	b := Canonicalize("statement: SELECT * FROM users WHERE email = 'zzz@other.org'", config.ReportNormal)
	assert.Equal(t, a.Key, b.Key)
}

func TestCanonicalizeFoldsInList(t *testing.T) {
	a := Canonicalize("statement: SELECT * FROM t WHERE id IN (1, 2, 3)", config.ReportNormal)
	b := Canonicalize("statement: SELECT * FROM t WHERE id IN (9, 10)", config.ReportNormal)
	assert.Equal(t, a.Key, b.Key)
}

func TestCanonicalizeFoldsTimestamp(t *testing.T) {
	a := Canonicalize("statement: SELECT * FROM t WHERE created_at > '2024-01-01 00:00:00.123456'", config.ReportNormal)
	b := Canonicalize("statement: SELECT * FROM t WHERE created_at > '2020-06-15 12:34:56'", config.ReportNormal)
	assert.Equal(t, a.Key, b.Key)
}

func TestCanonicalizeFoldsValuesTuples(t *testing.T) {
	a := Canonicalize("statement: INSERT INTO t (a, b) VALUES (1, 'x')", config.ReportNormal)
	b := Canonicalize("statement: INSERT INTO t (a, b) VALUES (1, 'x'), (2, 'y'), (3, 'z')", config.ReportNormal)
	require.Equal(t, a.Key, b.Key)
	assert.Contains(t, a.Key, "VALUES (?)")
}

func TestCanonicalizeFoldsReplaceTuples(t *testing.T) {
	a := Canonicalize("statement: REPLACE INTO cache (k, v) VALUES (1, 'a')", config.ReportNormal)
	b := Canonicalize("statement: REPLACE INTO cache (k, v) VALUES (9, 'z'), (10, 'w')", config.ReportNormal)
	assert.Equal(t, a.Key, b.Key)
}

func TestCanonicalizeFoldsKnownErrorShapes(t *testing.T) {
	a := Canonicalize(`ERROR: invalid byte sequence for encoding "UTF8": 0x9c`, config.ReportNormal)
	b := Canonicalize(`ERROR: invalid byte sequence for encoding "UTF8": 0xfa 0x12`, config.ReportNormal)
	assert.Equal(t, a.Key, b.Key)
}

func TestCanonicalizeFoldsAmbiguityMarkers(t *testing.T) {
	a := Canonicalize(`ERROR: column reference "id" is ambiguous`, config.ReportNormal)
	b := Canonicalize(`ERROR: column reference "name" is ambiguous`, config.ReportNormal)
	assert.Equal(t, a.Key, b.Key)
}

func TestCanonicalizeFoldsSelectFuncArgs(t *testing.T) {
	a := Canonicalize("statement: SELECT coalesce(a, 1) FROM t", config.ReportNormal)
	b := Canonicalize("statement: SELECT coalesce(b, 2) FROM t", config.ReportNormal)
	assert.Equal(t, a.Key, b.Key)
}

func TestCanonicalizeFoldsSelectFuncArgsKeepsPlaceholders(t *testing.T) {
	r := Canonicalize("statement: SELECT coalesce($1, $2) FROM t", config.ReportNormal)
	assert.Contains(t, r.Key, "coalesce($1, $2)")
}

func TestCanonicalizeFoldsBareSelectListLiterals(t *testing.T) {
	a := Canonicalize("statement: SELECT 1, 'x', col FROM t", config.ReportNormal)
	b := Canonicalize("statement: SELECT 2, 'yyy', col FROM t", config.ReportNormal)
	assert.Equal(t, a.Key, b.Key)
}

func TestCanonicalizeLeavesDistinctStatementsApart(t *testing.T) {
	a := Canonicalize("statement: SELECT * FROM users", config.ReportNormal)
	b := Canonicalize("statement: DELETE FROM users", config.ReportNormal)
	assert.NotEqual(t, a.Key, b.Key)
}

func TestPrettyPrintBreaksSubkeywords(t *testing.T) {
	r := Canonicalize("ERROR: syntax error at character 5 STATEMENT: SELECT * FROM", config.ReportNormal)
	assert.Contains(t, r.Pretty, "\nSTATEMENT:")
}

func TestValuesTupleFSMHandlesQuotedParens(t *testing.T) {
	r := Canonicalize("statement: INSERT INTO t (a) VALUES ('has (parens) inside')", config.ReportNormal)
	assert.Contains(t, r.Key, "VALUES (?)")
}

func TestValuesTupleFSMHandlesDollarQuoting(t *testing.T) {
	r := Canonicalize("statement: INSERT INTO t (a) VALUES ($tag$it's fine$tag$)", config.ReportNormal)
	assert.Contains(t, r.Key, "VALUES (?)")
}

func TestScanTupleRegionUnterminatedQuoteFails(t *testing.T) {
	_, ok := scanTupleRegion("(1, 'unterminated)", 0)
	assert.False(t, ok)
}

func TestCanonicalizeDisablesFoldingInDurationMode(t *testing.T) {
	a := Canonicalize("LOG:  duration: 12.345 ms  statement: SELECT * FROM users WHERE id = 1", config.ReportDuration)
	b := Canonicalize("LOG:  duration: 99.999 ms  statement: SELECT * FROM users WHERE id = 2", config.ReportDuration)
	assert.NotEqual(t, a.Key, b.Key)
	assert.Equal(t, "LOG: duration: 12.345 ms statement: SELECT * FROM users WHERE id = 1", a.Key)
}

func TestPrettyPrintReshapesDurationMode(t *testing.T) {
	r := Canonicalize("LOG:  duration: 12.345 ms  statement: SELECT * FROM users WHERE id = 1", config.ReportDuration)
	assert.Equal(t, "DURATION: 12.345 ms\nSTATEMENT: SELECT * FROM users WHERE id = 1", r.Pretty)
}
