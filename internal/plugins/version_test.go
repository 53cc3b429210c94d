package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func versions(keys ...string) map[string]RegistryVersion {
	m := make(map[string]RegistryVersion, len(keys))
	for _, k := range keys {
		m[k] = RegistryVersion{WasmURL: "https://example.com/" + k + ".wasm"}
	}
	return m
}

func TestParseConstraint(t *testing.T) {
	tests := []struct {
		input string
		want  Constraint
	}{
		{"", Constraint{Kind: ConstraintLatest}},
		{"latest", Constraint{Kind: ConstraintLatest}},
		{"  latest  ", Constraint{Kind: ConstraintLatest}},
		{"1.2.3", Constraint{Kind: ConstraintExact, Version: "1.2.3"}},
		{"^1.2.3", Constraint{Kind: ConstraintCaret, Version: "1.2.3"}},
		{"~1.0.0", Constraint{Kind: ConstraintTilde, Version: "1.0.0"}},
		{">=1.0.0 <2.0.0", Constraint{Kind: ConstraintRange, Min: "1.0.0", Max: "2.0.0"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConstraint(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConstraintRangeErrors(t *testing.T) {
	// A range needs both bounds as separate tokens.
	_, err := ParseConstraint(">= <2.0.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing '>=' part")

	_, err = ParseConstraint(">=1.0.0 <")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing '<' part")
}

func TestResolveVersionCaret(t *testing.T) {
	available := versions("1.0.0", "1.1.0", "1.2.0", "2.0.0")
	c := Constraint{Kind: ConstraintCaret, Version: "1.0.0"}
	assert.Equal(t, "1.2.0", ResolveVersion(c, available, ""))
}

func TestResolveVersionTilde(t *testing.T) {
	available := versions("1.0.0", "1.0.1", "1.0.2", "1.1.0")
	c := Constraint{Kind: ConstraintTilde, Version: "1.0.0"}
	assert.Equal(t, "1.0.2", ResolveVersion(c, available, ""))
}

func TestResolveVersionRange(t *testing.T) {
	available := versions("0.9.0", "1.0.0", "1.5.0", "2.0.0", "3.0.0")
	c := Constraint{Kind: ConstraintRange, Min: "1.0.0", Max: "2.0.0"}
	assert.Equal(t, "1.5.0", ResolveVersion(c, available, ""))
}

func TestResolveVersionExact(t *testing.T) {
	available := versions("1.0.0", "1.1.0")
	assert.Equal(t, "1.1.0", ResolveVersion(Constraint{Kind: ConstraintExact, Version: "1.1.0"}, available, ""))
	assert.Equal(t, "", ResolveVersion(Constraint{Kind: ConstraintExact, Version: "9.9.9"}, available, ""))
}

func TestResolveVersionLatestHint(t *testing.T) {
	available := versions("1.0.0", "1.1.0")
	latest := Constraint{Kind: ConstraintLatest}

	// The hint wins when it names a published version, even if a higher
	// version exists.
	assert.Equal(t, "1.0.0", ResolveVersion(latest, available, "1.0.0"))

	// A stale hint falls back to the highest published version.
	assert.Equal(t, "1.1.0", ResolveVersion(latest, available, "3.0.0"))
	assert.Equal(t, "1.1.0", ResolveVersion(latest, available, ""))
}

func TestResolveVersionSkipsNonSemverKeys(t *testing.T) {
	available := versions("1.0.0", "not-a-version", "dev")
	c := Constraint{Kind: ConstraintCaret, Version: "1.0.0"}
	assert.Equal(t, "1.0.0", ResolveVersion(c, available, ""))
}

func TestResolveVersionNoMatch(t *testing.T) {
	available := versions("1.0.0")
	c := Constraint{Kind: ConstraintCaret, Version: "2.0.0"}
	assert.Equal(t, "", ResolveVersion(c, available, ""))
}

func TestMatchesConstraint(t *testing.T) {
	caret := Constraint{Kind: ConstraintCaret, Version: "1.0.0"}
	assert.True(t, MatchesConstraint(caret, "1.9.0"))
	assert.False(t, MatchesConstraint(caret, "2.0.0"))
	assert.False(t, MatchesConstraint(caret, "garbage"))

	assert.True(t, MatchesConstraint(Constraint{Kind: ConstraintLatest}, "anything"))
	assert.True(t, MatchesConstraint(Constraint{Kind: ConstraintExact, Version: "1.0.0"}, "1.0.0"))
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 1, CompareVersions("1.1.0", "1.0.0"))
	assert.Equal(t, -1, CompareVersions("1.0.0", "1.1.0"))
	assert.Equal(t, 0, CompareVersions("1.0.0", "1.0.0"))

	// Parseable versions sort above unparseable ones.
	assert.Equal(t, 1, CompareVersions("0.0.1", "zzz"))
	assert.Equal(t, -1, CompareVersions("abc", "0.0.1"))
	assert.Equal(t, -1, CompareVersions("abc", "abd"))
}

func TestConstraintString(t *testing.T) {
	assert.Equal(t, "latest", Constraint{Kind: ConstraintLatest}.String())
	assert.Equal(t, "^1.2.3", Constraint{Kind: ConstraintCaret, Version: "1.2.3"}.String())
	assert.Equal(t, "~1.2.3", Constraint{Kind: ConstraintTilde, Version: "1.2.3"}.String())
	assert.Equal(t, ">=1.0.0 <2.0.0", Constraint{Kind: ConstraintRange, Min: "1.0.0", Max: "2.0.0"}.String())
	assert.Equal(t, "1.2.3", Constraint{Kind: ConstraintExact, Version: "1.2.3"}.String())
}
