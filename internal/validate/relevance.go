package validate

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// tenderTerms is the procurement vocabulary a tender source is expected to
// use somewhere on its page or in its data.
var tenderTerms = []string{
	"tender", "quotation", "procurement", "invitation to bid",
	"request for proposal", "rfp", "rfq", "expression of interest",
	"closing date", "tender reference", "tender notice", "bidding", "contract award",
	"gebiz", "purchase", "supplies",
	"招標", "招标", "投標", "投标", "報價", "报价", "採購", "采购", "截標", "標書",
}

const (
	relevantHits     = 2
	maxSampleRunes   = 4000
	maxSampleForHTML = 200_000
)

// VocabularyHits counts distinct tender terms appearing in text.
func VocabularyHits(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, term := range tenderTerms {
		if containsWord(lower, term) {
			n++
		}
	}
	return n
}

// containsWord matches ASCII terms on word boundaries, allowing a plural
// "s" or "es" suffix. CJK terms match as substrings since the script has no
// spaces.
func containsWord(text, term string) bool {
	if term[0] >= 0x80 {
		return strings.Contains(text, term)
	}
	for from := 0; ; {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := pluralEnd(text, start+len(term))
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		from = start + 1
	}
}

// pluralEnd skips an "s" or "es" suffix at end when it closes the word.
func pluralEnd(text string, end int) int {
	for _, suffix := range []string{"s", "es"} {
		next := end + len(suffix)
		if strings.HasPrefix(text[end:], suffix) && (next == len(text) || !isWordByte(text[next])) {
			return next
		}
	}
	return end
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}

// sampleText returns the readable text of a response body: visible text for
// HTML with a space between text nodes so adjacent cells stay separate
// words, the raw body otherwise.
func sampleText(body []byte, html bool) string {
	if html {
		if len(body) > maxSampleForHTML {
			body = body[:maxSampleForHTML]
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err == nil {
			doc.Find("script, style, noscript").Remove()
			var parts []string
			collectText(doc.Selection, &parts)
			return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
		}
	}
	return string(body)
}

// collectText appends every text node under s in document order.
func collectText(s *goquery.Selection, parts *[]string) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			*parts = append(*parts, c.Text())
			return
		}
		collectText(c, parts)
	})
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
