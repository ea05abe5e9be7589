package discovery

import (
	"bytes"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-intel/internal/registry"
	"github.com/sells-group/tender-intel/internal/validate"
)

// Link is a candidate URL pulled from a hub page.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

var dataExtensions = map[string]bool{
	".xml": true, ".rss": true, ".atom": true, ".csv": true,
	".xlsx": true, ".xls": true, ".json": true,
}

var feedSegments = []string{"/rss", "/feed", "/atom", "/api/"}

// ExtractLinks returns the de-duplicated, normalised links on a hub page
// that look like tender feeds or listings. Links to blocklisted hosts and
// non-web schemes are dropped, and when keywords are given at least one
// must appear in the link text or href.
func ExtractLinks(body []byte, hubURL string, keywords, blocklist []string) ([]Link, error) {
	base, err := url.Parse(hubURL)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: parse hub url %q", hubURL)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "discovery: parse hub page")
	}
	self, _ := registry.NormalizeURL(hubURL)

	seen := make(map[string]bool)
	var links []Link
	doc.Find("a[href], link[rel=alternate][href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if isBlockedHost(abs.Hostname(), blocklist) {
			return
		}
		norm, err := registry.NormalizeURL(abs.String())
		if err != nil || norm == self || seen[norm] {
			return
		}

		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			text, _ = s.Attr("title")
		}
		if !looksLikeSource(abs, text) || !matchesKeywords(norm+" "+text, keywords) {
			return
		}
		seen[norm] = true
		links = append(links, Link{URL: norm, Text: text})
	})
	return links, nil
}

// looksLikeSource accepts data files, feed endpoints and anything whose
// href or anchor text uses procurement vocabulary.
func looksLikeSource(u *url.URL, text string) bool {
	p := strings.ToLower(u.Path)
	if dataExtensions[path.Ext(p)] {
		return true
	}
	for _, seg := range feedSegments {
		if strings.Contains(p, seg) {
			return true
		}
	}
	hrefWords := strings.NewReplacer("-", " ", "_", " ", "/", " ", ".", " ").Replace(p)
	return validate.VocabularyHits(hrefWords+" "+text) > 0
}

func matchesKeywords(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// isBlockedHost checks if a hostname matches any entry in the blocklist,
// including subdomains.
func isBlockedHost(host string, blocklist []string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, blocked := range blocklist {
		blocked = strings.ToLower(blocked)
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}
