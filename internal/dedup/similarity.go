package dedup

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// FoldTitle prepares a title for bigram comparison: NFKC, full-width folded
// to half-width, lowercased, with everything but letters and digits removed.
// CJK ideographs are kept so Chinese titles compare character by character.
func FoldTitle(s string) string {
	s = width.Fold.String(norm.NFKC.String(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// agencyNoise lists leading and trailing words that vary between feeds
// publishing the same agency.
var agencyNoise = []string{
	"THE ",
	" (HKSAR)", " HKSAR",
	" SINGAPORE",
	" DEPARTMENT", " DEPT",
	" OFFICE",
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// NormalizeAgency standardises an agency name for equality checks:
//  1. NFKC and width folding
//  2. Uppercase
//  3. Removing the words in agencyNoise
//  4. Stripping punctuation and collapsing spaces
func NormalizeAgency(name string) string {
	name = strings.TrimSpace(width.Fold.String(norm.NFKC.String(name)))
	if name == "" {
		return ""
	}
	name = strings.ToUpper(name)

	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"&", "AND",
		"-", " ",
	).Replace(name)

	for _, w := range agencyNoise {
		if strings.HasPrefix(w, " ") {
			name = strings.TrimSuffix(name, w)
		} else {
			name = strings.TrimPrefix(name, w)
		}
	}

	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// Dice returns the Sørensen–Dice coefficient over character bigrams of two
// folded strings. Identical non-empty strings score 1 even when shorter than
// a bigram; an empty string matches nothing.
func Dice(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	grams := make(map[[2]rune]int, len(ra)-1)
	for i := 0; i < len(ra)-1; i++ {
		grams[[2]rune{ra[i], ra[i+1]}]++
	}
	shared := 0
	for i := 0; i < len(rb)-1; i++ {
		g := [2]rune{rb[i], rb[i+1]}
		if grams[g] > 0 {
			grams[g]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ra)-1+len(rb)-1)
}

// TitleSimilarity folds both titles and scores them with Dice.
func TitleSimilarity(a, b string) float64 {
	return Dice(FoldTitle(a), FoldTitle(b))
}
