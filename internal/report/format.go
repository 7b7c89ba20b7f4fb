package report

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
)

// substitutions is applied in order, case-sensitive, every occurrence. No
// replacement contains a pattern that comes after it, so nothing is rewritten twice.
var substitutions = []struct {
	pattern     string
	replacement string
}{
	{"preservatives", "**preservatives** ⚠️"},
	{"chemicals", "**chemicals** 🧪"},
	{"additives", "**additives** 🍭"},
	{"healthier alternatives", "🍏 **healthier alternatives** 🍎"},
	{"rating", "**unhealthy**"},
}

// RatingFunc picks the 1-5 rating shown for a raw report.
type RatingFunc func(raw string) int

// RandomRating ignores the report and returns a uniform value in [1,5].
// The displayed rating is therefore unrelated to the analysis text.
func RandomRating(string) int {
	return rand.IntN(5) + 1
}

// statedRating matches "3/5", "3 / 5", "4 out of 5", "2.5/5" and "4 stars".
var statedRating = regexp.MustCompile(`(?i)\b([1-5])(?:\.\d+)?\s*(?:/\s*5\b|out\s+of\s+5\b|stars?\b)`)

// ParseStatedRating returns the last 1-5 score stated in the report.
func ParseStatedRating(raw string) (int, bool) {
	matches := statedRating.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// DerivedRating uses the score the model stated and falls back to RandomRating.
func DerivedRating(raw string) int {
	if n, ok := ParseStatedRating(raw); ok {
		return n
	}
	return RandomRating(raw)
}

type Formatter struct {
	rate RatingFunc
}

func NewFormatter(rate RatingFunc) *Formatter {
	if rate == nil {
		rate = RandomRating
	}
	return &Formatter{rate: rate}
}

// Format applies the substitution table and wraps the result in the rating
// banners. The same rating appears in both banners and is also returned.
func (f *Formatter) Format(raw string) (string, int) {
	rating := clampRating(f.rate(raw))

	var b strings.Builder
	fmt.Fprintf(&b, "\n🌟 **Rating:** %d / 5 🌟\n\n", rating)
	b.WriteString(Substitute(raw))
	fmt.Fprintf(&b, "\n\n🎉 Overall Rating: %d ⭐\n\n✨ Stay healthy and enjoy your food! ✨", rating)
	return b.String(), rating
}

// Substitute applies the substitution table once.
func Substitute(raw string) string {
	for _, s := range substitutions {
		raw = strings.ReplaceAll(raw, s.pattern, s.replacement)
	}
	return raw
}

func clampRating(n int) int {
	switch {
	case n < 1:
		return 1
	case n > 5:
		return 5
	default:
		return n
	}
}
