package feedsync

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateWithinBudget(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "short text", Truncate("short text", 800))
	exact := strings.Repeat("a", 800)
	assert.Equal(t, exact, Truncate(exact, 800))
}

func TestTruncateBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      string
		wantLen int
	}{
		{
			// Terminator at index 600, so the cut keeps 601 runes.
			name:    "sentence end",
			in:      strings.Repeat("a", 600) + ". " + strings.Repeat("b", 298),
			wantLen: 601,
		},
		{
			name:    "space in last 30%",
			in:      strings.Repeat("a", 750) + " " + strings.Repeat("b", 149),
			wantLen: 750,
		},
		{
			name:    "hard cut",
			in:      strings.Repeat("a", 900),
			wantLen: 800,
		},
		{
			// A sentence end before the halfway mark doesn't count.
			name:    "early sentence falls back to space",
			in:      strings.Repeat("a", 100) + ". " + strings.Repeat("c", 658) + " " + strings.Repeat("d", 139),
			wantLen: 760,
		},
		{
			name:    "early space falls back to hard cut",
			in:      strings.Repeat("a", 300) + " " + strings.Repeat("b", 599),
			wantLen: 800,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, 900, utf8.RuneCountInString(tc.in))
			got := Truncate(tc.in, 800)
			require.True(t, strings.HasSuffix(got, ellipsis), got)
			body := strings.TrimSuffix(got, ellipsis)
			assert.Equal(t, tc.wantLen, utf8.RuneCountInString(body))
			assert.True(t, strings.HasPrefix(tc.in, body))
		})
	}
}

func TestTruncateSentenceBeforeNewline(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("x", 59) + "!\n" + strings.Repeat("y", 60)
	got := Truncate(in, 100)
	assert.Equal(t, strings.Repeat("x", 59)+"!"+ellipsis, got)
}

func TestTruncateCountsRunes(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("\u00e9", 20)
	assert.Equal(t, in, Truncate(in, 20))
	got := Truncate(strings.Repeat("日", 30), 10)
	assert.Equal(t, strings.Repeat("日", 10)+ellipsis, got)
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	// "e" + combining acute composes to a single rune.
	assert.Equal(t, "caf\u00e9", NormalizeText("  cafe\u0301 \n", 800))
	assert.Equal(t, "one\n\ntwo", NormalizeText("one\r\n\r\n\r\n\n  \ntwo", 800))
	assert.Equal(t, "", NormalizeText(" \n\t ", 800))
	assert.Equal(t, "abc"+ellipsis, NormalizeText("abcdef", 3))
}
