package reconcile

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize prepares a vendor name for comparison: NFKC (full-width to
// half-width), case folding, punctuation to spaces, collapsed whitespace.
func Normalize(s string) string {
	s = folder.String(norm.NFKC.String(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Similarity scores two vendor names in [0, 1]. It is the larger of the
// whole-string ratio and the best ratio of the shorter name against any
// same-length window of the longer one, so "Acme" scores 1 against
// "Acme Corp".
func Similarity(a, b string) float64 {
	a, b = Normalize(a), Normalize(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	full := ratio([]rune(a), []rune(b))
	partial := partialRatio([]rune(a), []rune(b))
	if partial > full {
		return partial
	}
	return full
}

func ratio(a, b []rune) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(string(a), string(b))
	return 1 - float64(d)/float64(longest)
}

func partialRatio(a, b []rune) float64 {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		r := ratio(short, long[i:i+len(short)])
		if r > best {
			best = r
			if best == 1 {
				break
			}
		}
	}
	return best
}
