package ingest

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-intel/internal/fetcher"
	"github.com/sells-group/tender-intel/internal/model"
)

// ListingHandler scrapes HTML listing pages with a source's scrape rules.
type ListingHandler struct {
	fetcher fetcher.Fetcher
	pageCap int
	now     func() time.Time
}

// NewListingHandler creates a ListingHandler that reads at most pageCap
// pages per source.
func NewListingHandler(f fetcher.Fetcher, pageCap int) *ListingHandler {
	if pageCap <= 0 {
		pageCap = 3
	}
	return &ListingHandler{fetcher: f, pageCap: pageCap, now: time.Now}
}

// Family implements Handler.
func (h *ListingHandler) Family() model.Family { return model.FamilyListing }

// Fetch implements Handler. Pagination stops at the page cap, when a page
// has no rows, or when every row on a page is already known.
func (h *ListingHandler) Fetch(ctx context.Context, src *model.Source, known map[string]bool) (*Outcome, error) {
	rules := src.ScrapeRules
	if rules == nil || rules.RowSelector == "" {
		return nil, parseError(eris.Errorf("listing: source %s has no scrape rules", src.ID))
	}

	maxPages := h.pageCap
	switch {
	case rules.Pagination.Style == "" || rules.Pagination.Style == model.PaginationNone:
		maxPages = 1
	case rules.Pagination.MaxPages > 0 && rules.Pagination.MaxPages < maxPages:
		maxPages = rules.Pagination.MaxPages
	}

	now := h.now().UTC()
	out := &Outcome{}
	seen := make(map[string]bool)
	pageURL := src.FetchURL

	for page := 1; page <= maxPages && pageURL != ""; page++ {
		resp, err := h.fetcher.Get(ctx, pageURL)
		if err == nil && !resp.OK() {
			err = eris.Errorf("listing: http %d from %s", resp.StatusCode, pageURL)
		}
		if err != nil {
			if page == 1 {
				return nil, fetchError(err)
			}
			zap.L().Warn("listing: stopping pagination after page error",
				zap.String("source_id", src.ID),
				zap.Int("page", page),
				zap.Error(err),
			)
			break
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			return nil, parseError(eris.Wrap(err, "listing: parse html"))
		}
		base, _ := url.Parse(resp.URL)
		if base == nil {
			base, _ = url.Parse(pageURL)
		}

		rows := doc.Find(rules.RowSelector)
		fresh := 0
		rows.Each(func(_ int, row *goquery.Selection) {
			fields := extractRow(row, rules.Fields, base)
			if fields[model.FieldTitle] == "" && fields[model.FieldLink] == "" {
				return
			}
			out.Rows++

			guid := firstNonEmpty(fields[model.FieldGUID], fields[model.FieldLink], fields[model.FieldTenderRef])
			if guid == "" {
				guid = ItemGUID(fields[model.FieldTitle], "")
			}
			if seen[guid] {
				return
			}
			seen[guid] = true
			if !known[guid] {
				fresh++
			}
			fields[model.FieldGUID] = guid

			html, err := goquery.OuterHtml(row)
			if err != nil {
				html = row.Text()
			}
			out.Captures = append(out.Captures, model.RawCapture{
				SourceID:   src.ID,
				ItemGUID:   guid,
				ItemURL:    fields[model.FieldLink],
				RawFormat:  model.RawHTML,
				Payload:    html,
				Fields:     fields,
				CapturedAt: now,
			})
		})

		if rows.Length() == 0 || fresh == 0 {
			break
		}
		pageURL = nextPage(doc, rules.Pagination, src.FetchURL, base, page)
	}

	if out.Rows == 0 && src.LastRowCount > 0 {
		out.StructureChanged = true
		out.Detail = fmt.Sprintf("row selector %q matched nothing; previous run saw %d rows", rules.RowSelector, src.LastRowCount)
	}
	return out, nil
}

// extractRow reads each configured field relative to the row. A selector
// ending in "@attr" reads the attribute; "." or an empty selector reads the
// row itself. Links are resolved against the page URL.
func extractRow(row *goquery.Selection, selectors map[string]string, base *url.URL) map[string]string {
	fields := make(map[string]string)
	for field, sel := range selectors {
		if strings.HasPrefix(field, "_") {
			continue
		}
		if v := selectValue(row, sel); v != "" {
			fields[field] = v
		}
	}
	if fields[model.FieldLink] == "" {
		if href, ok := row.Find("a[href]").First().Attr("href"); ok {
			fields[model.FieldLink] = href
		}
	}
	if fields[model.FieldTitle] == "" {
		fields[model.FieldTitle] = collapse(row.Find("a[href]").First().Text())
	}
	if link := fields[model.FieldLink]; link != "" && base != nil {
		if u, err := base.Parse(link); err == nil {
			fields[model.FieldLink] = u.String()
		}
	}
	for k, v := range fields {
		if v == "" {
			delete(fields, k)
		}
	}
	return fields
}

func selectValue(row *goquery.Selection, sel string) string {
	sel = strings.TrimSpace(sel)
	attr := ""
	if i := strings.LastIndex(sel, "@"); i >= 0 {
		sel, attr = strings.TrimSpace(sel[:i]), sel[i+1:]
	}
	target := row
	if sel != "" && sel != "." {
		target = row.Find(sel).First()
	}
	if target.Length() == 0 {
		return ""
	}
	if attr != "" {
		v, _ := target.Attr(attr)
		return strings.TrimSpace(v)
	}
	return collapse(target.Text())
}

func nextPage(doc *goquery.Document, p model.Pagination, fetchURL string, base *url.URL, page int) string {
	switch p.Style {
	case model.PaginationQueryParam:
		if p.Param == "" {
			return ""
		}
		u, err := url.Parse(fetchURL)
		if err != nil {
			return ""
		}
		q := u.Query()
		q.Set(p.Param, strconv.Itoa(page+1))
		u.RawQuery = q.Encode()
		return u.String()
	case model.PaginationNextLink:
		if p.NextSelector == "" {
			return ""
		}
		href, ok := doc.Find(p.NextSelector).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" || base == nil {
			return ""
		}
		u, err := base.Parse(strings.TrimSpace(href))
		if err != nil || u.String() == base.String() {
			return ""
		}
		return u.String()
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
