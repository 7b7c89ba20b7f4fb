package report

import (
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRating(n int) RatingFunc {
	return func(string) int { return n }
}

var (
	topBanner    = regexp.MustCompile(`^\n🌟 \*\*Rating:\*\* ([1-5]) / 5 🌟\n\n`)
	bottomBanner = regexp.MustCompile(`\n\n🎉 Overall Rating: ([1-5]) ⭐\n\n✨ Stay healthy and enjoy your food! ✨$`)
)

// bannerRatings returns the ratings found in the opening and closing banners.
func bannerRatings(t *testing.T, out string) (int, int) {
	t.Helper()
	top := topBanner.FindStringSubmatch(out)
	require.NotNil(t, top, "missing opening banner in %q", out)
	bottom := bottomBanner.FindStringSubmatch(out)
	require.NotNil(t, bottom, "missing closing banner in %q", out)
	a, _ := strconv.Atoi(top[1])
	b, _ := strconv.Atoi(bottom[1])
	return a, b
}

func TestFormatExactShape(t *testing.T) {
	out, rating := NewFormatter(fixedRating(3)).Format("Looks fine.")

	expected := "\n🌟 **Rating:** 3 / 5 🌟\n\nLooks fine.\n\n🎉 Overall Rating: 3 ⭐\n\n✨ Stay healthy and enjoy your food! ✨"
	assert.Equal(t, expected, out)
	assert.Equal(t, 3, rating)
}

func TestFormatMockedPipelineOutput(t *testing.T) {
	raw := "This contains preservatives and chemicals. See rating above."

	out, rating := NewFormatter(nil).Format(raw)

	assert.Contains(t, out, "**preservatives** ⚠️")
	assert.Contains(t, out, "**chemicals** 🧪")
	assert.Contains(t, out, "**unhealthy**")
	assert.NotContains(t, out, "See rating above")

	top, bottom := bannerRatings(t, out)
	assert.Equal(t, top, bottom)
	assert.Equal(t, rating, top)
}

func TestFormatEmptyReport(t *testing.T) {
	out, rating := NewFormatter(fixedRating(1)).Format("")

	top, bottom := bannerRatings(t, out)
	assert.Equal(t, 1, top)
	assert.Equal(t, 1, bottom)
	assert.Equal(t, 1, rating)
}

func TestFormatRatingAlwaysInRangeAndEqual(t *testing.T) {
	f := NewFormatter(RandomRating)
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		out, rating := f.Format("additives everywhere")
		top, bottom := bannerRatings(t, out)
		require.Equal(t, top, bottom)
		require.Equal(t, rating, top)
		require.GreaterOrEqual(t, rating, 1)
		require.LessOrEqual(t, rating, 5)
		seen[rating] = true
	}
	assert.Len(t, seen, 5, "500 draws should hit every value in [1,5]")
}

func TestFormatClampsOutOfRangeRating(t *testing.T) {
	_, low := NewFormatter(fixedRating(0)).Format("x")
	_, high := NewFormatter(fixedRating(9)).Format("x")
	assert.Equal(t, 1, low)
	assert.Equal(t, 5, high)
}

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "every occurrence replaced",
			raw:      "chemicals chemicals",
			expected: "**chemicals** 🧪 **chemicals** 🧪",
		},
		{
			name:     "all patterns",
			raw:      "preservatives, chemicals, additives, healthier alternatives, rating",
			expected: "**preservatives** ⚠️, **chemicals** 🧪, **additives** 🍭, 🍏 **healthier alternatives** 🍎, **unhealthy**",
		},
		{
			name:     "case sensitive",
			raw:      "Preservatives CHEMICALS Rating",
			expected: "Preservatives CHEMICALS Rating",
		},
		{
			name:     "substring matches are replaced too",
			raw:      "ratings",
			expected: "**unhealthy**s",
		},
		{
			name:     "no patterns",
			raw:      "Just sugar.",
			expected: "Just sugar.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Substitute(tt.raw))
		})
	}
}

func TestSubstituteDoesNotCascade(t *testing.T) {
	out := Substitute("Try healthier alternatives.")

	assert.Equal(t, "Try 🍏 **healthier alternatives** 🍎.", out)
	assert.Equal(t, 1, strings.Count(out, "🍏"))
	assert.Equal(t, 1, strings.Count(out, "healthier alternatives"))
	assert.NotContains(t, out, "**unhealthy**")
}

func TestParseStatedRating(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   int
		wantOK bool
	}{
		{name: "slash", raw: "Overall: **2/5**", want: 2, wantOK: true},
		{name: "spaced slash", raw: "Score 4 / 5 ⭐", want: 4, wantOK: true},
		{name: "out of", raw: "I'd give it 3 out of 5", want: 3, wantOK: true},
		{name: "stars", raw: "⭐ 1 star for this one", want: 1, wantOK: true},
		{name: "decimal", raw: "Rated 2.5/5", want: 2, wantOK: true},
		{name: "last wins", raw: "Sugar: 1/5. Fiber: 4/5. Final score: 3/5", want: 3, wantOK: true},
		{name: "not a score", raw: "Contains 15/50 grams", wantOK: false},
		{name: "none", raw: "No score given.", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseStatedRating(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDerivedRating(t *testing.T) {
	assert.Equal(t, 4, DerivedRating("Final verdict: 4/5"))

	n := DerivedRating("no score here")
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, 5)
}
