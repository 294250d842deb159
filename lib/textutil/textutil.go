package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeWhitespace folds compatibility characters (non-breaking and
// narrow spaces included) and collapses whitespace runs into one space.
func NormalizeWhitespace(s string) string {
	s = norm.NFKC.String(s)
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Clean returns nil when nothing is left after whitespace normalization.
func Clean(s string) *string {
	cleaned := NormalizeWhitespace(s)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// CleanPtr is Clean for values that may already be unset.
func CleanPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return Clean(*s)
}

// SplitLines splits text line by line, trimming every line and dropping the
// blank ones.
func SplitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = NormalizeWhitespace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// NormalizeName lowercases a heading and strips surrounding whitespace and a
// trailing colon so that "Сортовой состав:" and "сортовой состав" compare equal.
func NormalizeName(name string) string {
	name = strings.ToLower(NormalizeWhitespace(name))
	name = strings.TrimRight(name, ": ")
	return name
}

func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.HasPrefix(name, m) {
			return true
		}
	}
	return false
}

// ClosestName returns the candidate most similar to name (Jaro-Winkler), as
// long as the similarity reaches threshold.
func ClosestName(name string, candidates []string, threshold float64) (string, bool) {
	name = NormalizeName(name)

	var best string
	var bestScore float64
	for _, c := range candidates {
		score := matchr.JaroWinkler(name, c, false)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if bestScore < threshold {
		return "", false
	}
	return best, true
}
