package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tender-intel/internal/fetcher"
	"github.com/sells-group/tender-intel/internal/model"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>GLD Tender Notices</title>
  <item>
    <title>Provision of Event Management Services</title>
    <link>https://www.gld.gov.hk/tenders/1</link>
    <guid>GLD-2026-001</guid>
    <description>Tender ref ISD/EA/2026/001</description>
    <pubDate>Mon, 02 Mar 2026 09:00:00 +0800</pubDate>
    <category>Event Management</category>
    <closingDate>30/03/2026</closingDate>
  </item>
  <item>
    <title>Supply of Laptops</title>
    <link>https://www.gld.gov.hk/tenders/2</link>
  </item>
</channel>
</rss>`

func newHTTPFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
}

func serve(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.RawQuery
		}
		body, ok := routes[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMapFields(t *testing.T) {
	rec := map[string]string{
		"Tender Title":     " Cleaning services ",
		"Closing_Date":     "30/03/2026",
		"Dept":             "Leisure and Cultural Services Department",
		"Reference Number": "LCSD/T/2026/01",
		"Notes":            "",
	}
	got := MapFields(rec, map[string]string{model.FieldAgency: "Dept", directiveRow: "Row"})
	assert.Equal(t, map[string]string{
		model.FieldTitle:       "Cleaning services",
		model.FieldClosingDate: "30/03/2026",
		model.FieldAgency:      "Leisure and Cultural Services Department",
		model.FieldTenderRef:   "LCSD/T/2026/01",
	}, got)
}

func TestRecordGUID_OrderIndependent(t *testing.T) {
	a, err := RecordGUID(map[string]string{"title": "x", "ref": "1"})
	require.NoError(t, err)
	b, err := RecordGUID(map[string]string{"ref": "1", "title": "x"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestFeedHandler_RSS(t *testing.T) {
	srv := serve(t, map[string]string{"/rss.xml": rssFeed})
	h := NewFeedHandler(newHTTPFetcher())
	src := &model.Source{ID: "HK-gld", SourceType: model.SourceRSS, FetchURL: srv.URL + "/rss.xml"}

	out, err := h.Fetch(context.Background(), src, nil)
	require.NoError(t, err)
	require.Len(t, out.Captures, 2)
	assert.Equal(t, 2, out.Rows)

	first := out.Captures[0]
	assert.Equal(t, "GLD-2026-001", first.ItemGUID)
	assert.Equal(t, model.RawRSS, first.RawFormat)
	assert.Contains(t, first.Payload, "Provision of Event Management Services")
	assert.Equal(t, "Provision of Event Management Services", first.Field(model.FieldTitle))
	assert.Equal(t, "30/03/2026", first.Field(model.FieldClosingDate))
	assert.Equal(t, "Event Management", first.Field(model.FieldCategory))
	assert.NotEmpty(t, first.Field(model.FieldPublishDate))

	second := out.Captures[1]
	assert.Equal(t, ItemGUID("Supply of Laptops", "https://www.gld.gov.hk/tenders/2"), second.ItemGUID)
}

func TestFeedHandler_HTTPErrorIsFetchError(t *testing.T) {
	srv := serve(t, nil)
	h := NewFeedHandler(newHTTPFetcher())
	_, err := h.Fetch(context.Background(), &model.Source{ID: "x", SourceType: model.SourceRSS, FetchURL: srv.URL + "/missing"}, nil)
	require.Error(t, err)
	assert.Equal(t, model.FetchError, StatusOf(err))
}

func TestFeedHandler_GarbageIsParseError(t *testing.T) {
	srv := serve(t, map[string]string{"/rss.xml": "this is not a feed"})
	h := NewFeedHandler(newHTTPFetcher())
	_, err := h.Fetch(context.Background(), &model.Source{ID: "x", SourceType: model.SourceRSS, FetchURL: srv.URL + "/rss.xml"}, nil)
	require.Error(t, err)
	assert.Equal(t, model.FetchParseError, StatusOf(err))
}

func TestFeedHandler_XMLRows(t *testing.T) {
	doc := `<?xml version="1.0"?>
<Tenders>
  <Tender><No>ArchSD/T/2026/3</No><Subject>Renovation works</Subject><Closing>2026-04-01</Closing></Tender>
  <Tender><No>ArchSD/T/2026/4</No><Subject>Drainage works</Subject><Closing>2026-04-08</Closing></Tender>
</Tenders>`
	srv := serve(t, map[string]string{"/export.xml": doc})
	h := NewFeedHandler(newHTTPFetcher())
	src := &model.Source{
		ID:         "HK-archsd",
		SourceType: model.SourceAPIXML,
		FetchURL:   srv.URL + "/export.xml",
		FieldMap: map[string]string{
			directiveRow:           "Tender",
			model.FieldGUID:        "No",
			model.FieldTenderRef:   "No",
			model.FieldClosingDate: "Closing",
		},
	}

	out, err := h.Fetch(context.Background(), src, nil)
	require.NoError(t, err)
	require.Len(t, out.Captures, 2)
	assert.Equal(t, "ArchSD/T/2026/3", out.Captures[0].ItemGUID)
	assert.Equal(t, "Renovation works", out.Captures[0].Field(model.FieldTitle))
	assert.Equal(t, "2026-04-08", out.Captures[1].Field(model.FieldClosingDate))
	assert.Equal(t, model.RawXML, out.Captures[1].RawFormat)
}

const listingPage1 = `<html><body><table class="tenders">
<tr><th>Ref</th><th>Title</th><th>Closing</th></tr>
<tr><td class="ref">LCSD-1</td><td><a href="/t/1">Stage lighting hire</a></td><td class="close">30/03/2026</td></tr>
<tr><td class="ref">LCSD-2</td><td><a href="/t/2">Festival publicity</a></td><td class="close">02/04/2026</td></tr>
</table><a class="next" href="/list?page=2">Next</a></body></html>`

const listingPage2 = `<html><body><table class="tenders">
<tr><td class="ref">LCSD-3</td><td><a href="/t/3">Exhibition design</a></td><td class="close">09/04/2026</td></tr>
</table></body></html>`

func listingSource(url string) *model.Source {
	return &model.Source{
		ID:         "HK-lcsd",
		SourceType: model.SourceHTML,
		FetchURL:   url,
		ScrapeRules: &model.ScrapeRules{
			RowSelector: "table.tenders tr",
			Fields: map[string]string{
				model.FieldTenderRef:   "td.ref",
				model.FieldClosingDate: "td.close",
				model.FieldLink:        "a@href",
			},
			Pagination: model.Pagination{Style: model.PaginationNextLink, NextSelector: "a.next"},
		},
	}
}

func TestListingHandler_Pagination(t *testing.T) {
	srv := serve(t, map[string]string{"/list": listingPage1, "/list?page=2": listingPage2})
	h := NewListingHandler(newHTTPFetcher(), 3)

	out, err := h.Fetch(context.Background(), listingSource(srv.URL+"/list"), map[string]bool{})
	require.NoError(t, err)
	require.Len(t, out.Captures, 3)
	assert.Equal(t, 3, out.Rows)

	c := out.Captures[0]
	assert.Equal(t, srv.URL+"/t/1", c.ItemGUID)
	assert.Equal(t, "Stage lighting hire", c.Field(model.FieldTitle))
	assert.Equal(t, "LCSD-1", c.Field(model.FieldTenderRef))
	assert.Equal(t, "30/03/2026", c.Field(model.FieldClosingDate))
	assert.Equal(t, model.RawHTML, c.RawFormat)
	assert.Contains(t, c.Payload, "<tr>")
	assert.Equal(t, "Exhibition design", out.Captures[2].Field(model.FieldTitle))
}

func TestListingHandler_StopsOnKnownPage(t *testing.T) {
	srv := serve(t, map[string]string{"/list": listingPage1})
	h := NewListingHandler(newHTTPFetcher(), 3)
	known := map[string]bool{srv.URL + "/t/1": true, srv.URL + "/t/2": true}

	out, err := h.Fetch(context.Background(), listingSource(srv.URL+"/list"), known)
	require.NoError(t, err)
	assert.Len(t, out.Captures, 2)
}

func TestListingHandler_StructureChanged(t *testing.T) {
	srv := serve(t, map[string]string{"/list": `<html><body><div class="new-layout"></div></body></html>`})
	h := NewListingHandler(newHTTPFetcher(), 3)
	src := listingSource(srv.URL + "/list")
	src.LastRowCount = 12

	out, err := h.Fetch(context.Background(), src, nil)
	require.NoError(t, err)
	assert.True(t, out.StructureChanged)
	assert.Contains(t, out.Detail, "previous run saw 12 rows")
}

func TestListingHandler_NoRules(t *testing.T) {
	h := NewListingHandler(newHTTPFetcher(), 3)
	_, err := h.Fetch(context.Background(), &model.Source{ID: "x", SourceType: model.SourceHTML}, nil)
	assert.Equal(t, model.FetchParseError, StatusOf(err))
}

func TestTabularHandler_CSV(t *testing.T) {
	csv := "Tender No,Subject,Closing Date,Department\nEMSD(T)23/2025,Lift maintenance,30/03/2026,EMSD\nEMSD(T)24/2025,Chiller replacement,02/04/2026,EMSD\n"
	srv := serve(t, map[string]string{"/tenders.csv": csv})
	h := NewTabularHandler(newHTTPFetcher(), nil, t.TempDir())
	src := &model.Source{ID: "HK-emsd", SourceType: model.SourceCSV, FetchURL: srv.URL + "/tenders.csv"}

	out, err := h.Fetch(context.Background(), src, nil)
	require.NoError(t, err)
	require.Len(t, out.Captures, 2)
	c := out.Captures[0]
	assert.Equal(t, "Lift maintenance", c.Field(model.FieldTitle))
	assert.Equal(t, "EMSD(T)23/2025", c.Field(model.FieldTenderRef))
	assert.Equal(t, "EMSD", c.Field(model.FieldAgency))
	assert.Len(t, c.ItemGUID, 16)
	assert.Equal(t, model.RawCSV, c.RawFormat)
	assert.Contains(t, c.Payload, `"Subject":"Lift maintenance"`)
}

func TestTabularHandler_JSONWithItemsPath(t *testing.T) {
	doc := `{"result":{"tenders":[{"id":"GeBIZ-001","title":"Event services","closing_date":"2026-04-01","agency":{"name":"STB"}}]}}`
	srv := serve(t, map[string]string{"/api": doc})
	h := NewTabularHandler(newHTTPFetcher(), nil, t.TempDir())
	src := &model.Source{
		ID:         "SG-gebiz",
		SourceType: model.SourceAPIJSON,
		FetchURL:   srv.URL + "/api",
		FieldMap:   map[string]string{directiveItems: "result.tenders", model.FieldAgency: "agency.name"},
	}

	out, err := h.Fetch(context.Background(), src, nil)
	require.NoError(t, err)
	require.Len(t, out.Captures, 1)
	c := out.Captures[0]
	assert.Equal(t, "GeBIZ-001", c.ItemGUID)
	assert.Equal(t, "STB", c.Field(model.FieldAgency))
	assert.Equal(t, model.RawJSON, c.RawFormat)
}

func TestTabularHandler_ZIP(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("export/tenders.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("title,closing date\nCatering services,2026-04-01\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv := serve(t, map[string]string{"/bundle.zip": buf.String()})
	h := NewTabularHandler(newHTTPFetcher(), nil, t.TempDir())
	out, err := h.Fetch(context.Background(), &model.Source{ID: "x", SourceType: model.SourceCSV, FetchURL: srv.URL + "/bundle.zip"}, nil)
	require.NoError(t, err)
	require.Len(t, out.Captures, 1)
	assert.Equal(t, "Catering services", out.Captures[0].Field(model.FieldTitle))
}

func TestTabularHandler_FTPWithoutDownloader(t *testing.T) {
	h := NewTabularHandler(newHTTPFetcher(), nil, t.TempDir())
	_, err := h.Fetch(context.Background(), &model.Source{ID: "x", SourceType: model.SourceCSV, FetchURL: "ftp://ftp.example.gov.hk/t.csv"}, nil)
	assert.Equal(t, model.FetchError, StatusOf(err))
}
