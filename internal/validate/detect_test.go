package validate

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tender-intel/internal/fetcher"
	"github.com/sells-group/tender-intel/internal/model"
)

func TestSniffFormat(t *testing.T) {
	tests := []struct {
		name string
		url  string
		ct   string
		body string
		want model.SourceType
	}{
		{"rss by type", "https://x.gov.hk/rss", "application/rss+xml", "<rss/>", model.SourceRSS},
		{"rss by body", "https://x.gov.hk/feed", "text/xml", `<?xml version="1.0"?><rss version="2.0"></rss>`, model.SourceRSS},
		{"atom", "https://x.gov.hk/feed", "application/xml", `<feed xmlns="http://www.w3.org/2005/Atom"></feed>`, model.SourceRSS},
		{"xml rows", "https://data.gov.hk/t.xml", "application/xml", `<?xml version="1.0"?><Tenders><Row/></Tenders>`, model.SourceAPIXML},
		{"json", "https://api.x.gov.sg/v1", "application/json", `{"items":[]}`, model.SourceAPIJSON},
		{"json untyped", "https://api.x.gov.sg/v1", "", `  [{"a":1}]`, model.SourceAPIJSON},
		{"csv", "https://data.gov.hk/t.csv", "text/csv", "ref,title,closing\n1,a,b", model.SourceCSV},
		{"csv by extension", "https://data.gov.hk/t.csv?x=1", "application/octet-stream", "ref,title\n", model.SourceCSV},
		{"csv as text", "https://data.gov.hk/t", "text/plain", "ref,title,closing\n", model.SourceCSV},
		{"xlsx", "https://data.gov.hk/t.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "PK\x03\x04", model.SourceXLSX},
		{"xlsx by magic", "https://data.gov.hk/t.xlsx", "application/octet-stream", "PK\x03\x04rest", model.SourceXLSX},
		{"html", "https://x.gov.hk/list", "text/html; charset=utf-8", "<!DOCTYPE html><html></html>", model.SourceHTML},
		{"xhtml", "https://x.gov.hk/list", "application/xhtml+xml", `<?xml version="1.0"?><html xmlns="http://www.w3.org/1999/xhtml"></html>`, model.SourceHTML},
		{"pdf", "https://x.gov.hk/a.pdf", "application/pdf", "%PDF-1.7", ""},
		{"plain text", "https://x.gov.hk/a.txt", "text/plain", "hello", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &fetcher.Response{URL: tt.url, StatusCode: 200, ContentType: tt.ct, Body: []byte(tt.body)}
			assert.Equal(t, tt.want, SniffFormat(resp))
		})
	}
}

func TestDetectBlock(t *testing.T) {
	cf := http.Header{}
	cf.Set("cf-ray", "8a1b2c")

	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   BlockType
	}{
		{"cloudflare header", 403, cf, "denied", BlockCloudflare},
		{"challenge page", 200, nil, "<p>Checking your browser before accessing</p>", BlockCloudflare},
		{"captcha", 200, nil, `<div class="g-recaptcha"></div>`, BlockCaptcha},
		{"large page with captcha form", 200, nil, strings.Repeat("<p>tender</p>", 4000) + "recaptcha", BlockNone},
		{"js shell", 200, nil, "<noscript>Please enable JavaScript</noscript>", BlockJSShell},
		{"meta refresh", 200, nil, `<meta http-equiv="refresh" content="0;url=/app">`, BlockJSShell},
		{"normal", 200, nil, "<table><tr><td>Tender</td></tr></table>", BlockNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.header
			if h == nil {
				h = http.Header{}
			}
			resp := &fetcher.Response{StatusCode: tt.status, Header: h, Body: []byte(tt.body)}
			assert.Equal(t, tt.want, DetectBlock(resp))
		})
	}
	assert.Equal(t, BlockNone, DetectBlock(nil))
}

func TestVocabularyHits(t *testing.T) {
	assert.Equal(t, 2, VocabularyHits("Open Tender: closing date 20 March"))
	assert.Equal(t, 0, VocabularyHits("Attendees tendered their apologies"))
	assert.Equal(t, 2, VocabularyHits("政府物流服務署 招標公告 截標日期"))
	assert.Equal(t, 1, VocabularyHits("RFQ-2026-01"))
	assert.Equal(t, 2, VocabularyHits("Current tender notices"))
	assert.Equal(t, 2, VocabularyHits("Tenders and purchases"))
	assert.Equal(t, 0, VocabularyHits("Tenderness"))
}

func TestSampleText_SeparatesCells(t *testing.T) {
	body := `<html><head><title>Notices</title><script>var tender = 1;</script></head><body>
<table><tr><th>Reference</th><th>Closing Date</th><th>Department</th></tr>
<tr><td>GLD/1/2026</td><td>20/03/2026</td><td>LCSD</td></tr></table></body></html>`

	got := sampleText([]byte(body), true)
	assert.Contains(t, got, "Reference Closing Date Department")
	assert.Contains(t, got, "GLD/1/2026 20/03/2026 LCSD")
	assert.NotContains(t, got, "var tender")
	assert.Equal(t, 1, VocabularyHits(got))

	assert.Equal(t, "raw tender body", sampleText([]byte("raw tender body"), false))
}

func TestSampleText_ListingPageIsRelevant(t *testing.T) {
	assert.GreaterOrEqual(t, VocabularyHits(sampleText([]byte(listingHTML), true)), relevantHits)
}

func TestInfer(t *testing.T) {
	assert.Equal(t, model.JurisdictionHK, InferJurisdiction("www.gld.gov.hk"))
	assert.Equal(t, model.JurisdictionSG, InferJurisdiction("www.gebiz.gov.sg"))
	assert.Equal(t, model.JurisdictionGlobal, InferJurisdiction("example.com"))

	tests := []struct {
		host, org string
		want      model.OwnerType
	}{
		{"www.gld.gov.hk", "", model.OwnerGovernment},
		{"www.ha.org.hk", "", model.OwnerPublicBody},
		{"www.tendersinfo.com", "", model.OwnerAggregator},
		{"procure.example.com", "Airport Authority", model.OwnerPublicBody},
		{"procure.example.com", "Ministry of Culture", model.OwnerGovernment},
		{"events.example.com", "", model.OwnerOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferOwner(tt.host, tt.org), tt.host+" "+tt.org)
	}
}

func TestGuessScrapeRules(t *testing.T) {
	t.Run("table without id uses position", func(t *testing.T) {
		body := `<html><body>
<table><tr><td>layout</td></tr></table>
<table>
<tr><th>Subject</th><th>Closing</th></tr>
<tr><td><a href="/1">A</a></td><td>1/4/2026</td></tr>
<tr><td><a href="/2">B</a></td><td>2/4/2026</td></tr>
</table></body></html>`
		rules := GuessScrapeRules([]byte(body))
		require.NotNil(t, rules)
		assert.Equal(t, "table:nth-of-type(2) tr:has(a[href])", rules.RowSelector)
		assert.Equal(t, "td:nth-child(2)", rules.Fields[model.FieldClosingDate])
	})

	t.Run("list under identified parent", func(t *testing.T) {
		body := `<div id="latest"><ul>
<li><a href="/1">A</a></li><li><a href="/2">B</a></li><li><a href="/3">C</a></li>
</ul></div><a href="/p2">下一頁</a>`
		rules := GuessScrapeRules([]byte(body))
		require.NotNil(t, rules)
		assert.Equal(t, "div#latest > ul > li", rules.RowSelector)
		assert.Equal(t, model.PaginationNextLink, rules.Pagination.Style)
		assert.Equal(t, `a:contains("下一頁")`, rules.Pagination.NextSelector)
	})

	t.Run("nothing repeats", func(t *testing.T) {
		assert.Nil(t, GuessScrapeRules([]byte(`<p><a href="/only">one link</a></p>`)))
	})
}
