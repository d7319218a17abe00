package text

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFold(t *testing.T) {
	cases := map[string]string{
		"Jürgen Müller": "jurgen muller",
		"ÁRPÁD":         "arpad",
		"plain":         "plain",
	}
	for in, want := range cases {
		require.Equal(t, want, Fold(in))
	}
}

func TestNameParts(t *testing.T) {
	parts := NameParts([]string{"Müller, Jürgen", "J. Müller"})
	// Single-letter initials are dropped, punctuation is stripped.
	require.Equal(t, []string{"jurgen", "muller"}, parts)
}

func TestNamePartsMinLength(t *testing.T) {
	require.Empty(t, NameParts([]string{"A B C"}))
	require.Equal(t, []string{"ab"}, NameParts([]string{"AB c"}))
}

func TestNameKeys(t *testing.T) {
	keys := NameKeys([]string{"Acme Corp", "Corp Acme"})
	// Fingerprints are order-invariant: both spellings share one key.
	require.Equal(t, []string{"acmecorp"}, keys)
}

func TestNameKeysDropShort(t *testing.T) {
	require.Empty(t, NameKeys([]string{"ab"}))
}

func TestPhoneticNames(t *testing.T) {
	first := PhoneticNames([]string{"Stephen Smith"})
	require.NotEmpty(t, first)
	// Homophones collide on their phonetic codes.
	second := PhoneticNames([]string{"Steven Smyth"})
	require.Equal(t, first, second)
}

func TestExpandDates(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{"full date", []string{"1965-03-01"}, []string{"1965", "1965-03", "1965-03-01"}},
		{"year month", []string{"1965-03"}, []string{"1965", "1965-03"}},
		{"year only", []string{"1965"}, []string{"1965"}},
		{"dedup", []string{"1965-03-01", "1965-03-02"}, []string{"1965", "1965-03", "1965-03-01", "1965-03-02"}},
		{"empty dropped", []string{""}, nil},
		{"junk passthrough", []string{"circa 1965"}, []string{"circa 1965"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExpandDates(tc.in)
			if tc.want == nil {
				require.Empty(t, got)
			} else {
				require.Equal(t, tc.want, got)
			}
		})
	}
}
