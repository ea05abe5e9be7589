package validate

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/tender-intel/internal/model"
)

const (
	minTableRows = 2
	minListItems = 3
	guessedPages = 3
)

// headerFields maps column header vocabulary to capture fields.
var headerFields = []struct {
	field string
	words []string
}{
	{model.FieldClosingDate, []string{"closing", "deadline", "close", "截標", "截止"}},
	{model.FieldPublishDate, []string{"publish", "issue date", "posted", "date of issue", "發出", "发布"}},
	{model.FieldTenderRef, []string{"reference", "ref", "tender no", "no.", "編號", "编号"}},
	{model.FieldAgency, []string{"agency", "department", "organisation", "organization", "procuring entity", "部門", "部门"}},
	{model.FieldCategory, []string{"category", "type", "類別", "类别"}},
}

// GuessScrapeRules proposes listing rules for an HTML page: the table whose
// rows carry the most links, or failing that the largest link list. Header
// cells are mapped to capture fields where their wording is recognised.
// Returns nil when nothing repeats.
func GuessScrapeRules(body []byte) *model.ScrapeRules {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	rules := guessTable(doc)
	if rules == nil {
		rules = guessList(doc)
	}
	if rules == nil {
		return nil
	}
	rules.Pagination = guessPagination(doc)
	return rules
}

func guessTable(doc *goquery.Document) *model.ScrapeRules {
	var (
		best     *goquery.Selection
		bestRows int
		bestIdx  int
	)
	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		n := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
			return tr.Find("a[href]").Length() > 0
		}).Length()
		if n > bestRows {
			best, bestRows, bestIdx = table, n, i
		}
	})
	if best == nil || bestRows < minTableRows {
		return nil
	}

	base := selectorFor(best, "table")
	if base == "" {
		base = fmt.Sprintf("table:nth-of-type(%d)", bestIdx+1)
	}
	rules := &model.ScrapeRules{
		RowSelector: base + " tr:has(a[href])",
		Fields: map[string]string{
			model.FieldTitle: "a",
			model.FieldLink:  "a@href",
		},
	}

	headers := best.Find("tr").First().Find("th")
	if headers.Length() == 0 {
		headers = best.Find("thead tr").First().Find("td")
	}
	headers.Each(func(col int, cell *goquery.Selection) {
		text := strings.ToLower(strings.TrimSpace(cell.Text()))
		for _, hf := range headerFields {
			if _, taken := rules.Fields[hf.field]; taken {
				continue
			}
			if matchesAny(text, hf.words) {
				rules.Fields[hf.field] = fmt.Sprintf("td:nth-child(%d)", col+1)
				return
			}
		}
	})
	return rules
}

func guessList(doc *goquery.Document) *model.ScrapeRules {
	var (
		best      string
		bestItems int
	)
	doc.Find("ul, ol").Each(func(_ int, list *goquery.Selection) {
		n := list.ChildrenFiltered("li").FilterFunction(func(_ int, li *goquery.Selection) bool {
			return li.Find("a[href]").Length() > 0
		}).Length()
		if n <= bestItems {
			return
		}
		tag := goquery.NodeName(list)
		sel := selectorFor(list, tag)
		if sel == "" {
			if parent := selectorFor(list.Parent(), goquery.NodeName(list.Parent())); parent != "" {
				sel = parent + " > " + tag
			}
		}
		if sel == "" {
			return
		}
		best, bestItems = sel, n
	})
	if bestItems < minListItems {
		return nil
	}
	return &model.ScrapeRules{
		RowSelector: best + " > li",
		Fields: map[string]string{
			model.FieldTitle: "a",
			model.FieldLink:  "a@href",
		},
	}
}

// selectorFor builds tag#id or tag.class for an element, or "" when it has
// neither.
func selectorFor(s *goquery.Selection, tag string) string {
	if id, ok := s.Attr("id"); ok && strings.TrimSpace(id) != "" && !strings.ContainsAny(id, " .:#") {
		return tag + "#" + strings.TrimSpace(id)
	}
	if class, ok := s.Attr("class"); ok {
		if fields := strings.Fields(class); len(fields) > 0 && !strings.ContainsAny(fields[0], ".:#") {
			return tag + "." + fields[0]
		}
	}
	return ""
}

func guessPagination(doc *goquery.Document) model.Pagination {
	if doc.Find("a[rel=next]").Length() > 0 {
		return model.Pagination{Style: model.PaginationNextLink, NextSelector: "a[rel=next]", MaxPages: guessedPages}
	}
	for _, label := range []string{"Next", "下一頁", "下一页"} {
		sel := fmt.Sprintf("a:contains(%q)", label)
		if doc.Find(sel).Length() > 0 {
			return model.Pagination{Style: model.PaginationNextLink, NextSelector: sel, MaxPages: guessedPages}
		}
	}
	return model.Pagination{Style: model.PaginationNone}
}

func matchesAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
