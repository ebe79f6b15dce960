package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"dept_code":           "dept_code",
		"  Dept   Code ":      "dept_code",
		"Parent Dept. Code":   "parent_dept_code",
		"Reports-To Pos Code": "reports_to_pos_code",
		"IS_MANAGER":          "is_manager",
		"#":                   "",
	}
	for in, want := range cases {
		require.Equal(t, want, normalizeHeader(in), in)
	}
}

func TestParseBool(t *testing.T) {
	for _, in := range []string{"true", "TRUE", " True ", "1"} {
		v, ok := parseBool(in)
		require.True(t, ok, in)
		require.True(t, v, in)
	}
	for _, in := range []string{"false", "FALSE", "0", ""} {
		v, ok := parseBool(in)
		require.True(t, ok, in)
		require.False(t, v, in)
	}
	_, ok := parseBool("yes")
	require.False(t, ok)
}

func TestParseCount(t *testing.T) {
	n, ok := parseCount("3.0")
	require.True(t, ok)
	require.Equal(t, 3, n)

	n, ok = parseCount("")
	require.True(t, ok)
	require.Zero(t, n)

	_, ok = parseCount("-1")
	require.False(t, ok)
	_, ok = parseCount("two")
	require.False(t, ok)
}

func TestParseMetadata(t *testing.T) {
	m, outcome := parseMetadata(`{"a":1}`)
	require.Equal(t, metadataParsed, outcome)
	require.Equal(t, map[string]any{"a": float64(1)}, m)

	_, outcome = parseMetadata(`[1,2]`)
	require.Equal(t, metadataInvalid, outcome)

	_, outcome = parseMetadata("  ")
	require.Equal(t, metadataAbsent, outcome)

	m, outcome = parseMetadata("free text")
	require.Equal(t, metadataPlainText, outcome)
	require.Equal(t, "free text", m["text"])
}
