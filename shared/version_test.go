package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseVersionString(t *testing.T) {
	for input, expected := range map[string]ParsedVersion{
		"v0.12":                   {0, 12},
		"v1.0":                    {1, 0},
		"v123.456":                {123, 456},
		"transgemma/v0.7 (linux)": {0, 7},
		"v2.31-dirty":             {2, 31},
	} {
		p, err := ParseVersionString(input)
		require.NoError(t, err, input)
		require.Equal(t, expected, p, input)
	}

	for _, input := range []string{"", "Unknown", "1.2", "v1.2 v1.3"} {
		_, err := ParseVersionString(input)
		require.Error(t, err, input)
	}
}

func TestVersionLessThan(t *testing.T) {
	require.False(t, ParsedVersion{0, 12}.LessThan(ParsedVersion{0, 12}))
	require.False(t, ParsedVersion{0, 13}.LessThan(ParsedVersion{0, 12}))
	require.False(t, ParsedVersion{1, 0}.LessThan(ParsedVersion{0, 200}))
	require.True(t, ParsedVersion{0, 11}.LessThan(ParsedVersion{0, 12}))
	require.True(t, ParsedVersion{0, 200}.LessThan(ParsedVersion{1, 1}))
	require.Equal(t, "v0.12", ParsedVersion{0, 12}.String())
}
