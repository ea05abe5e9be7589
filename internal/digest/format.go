package digest

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/sells-group/tender-intel/internal/model"
)

const budgetNotStated = "Budget not stated"

var currencySymbols = map[string]string{
	"HKD": "HK$",
	"SGD": "S$",
	"USD": "US$",
	"CNY": "RMB ",
	"EUR": "€",
	"GBP": "£",
}

func currencySymbol(code string) string {
	if s, ok := currencySymbols[strings.ToUpper(code)]; ok {
		return s
	}
	if code == "" {
		return "$"
	}
	return strings.ToUpper(code) + " "
}

// BudgetDisplay renders a tender's budget the way the digest shows it:
// exact figures for stated budgets, a compact approximation for estimates.
func BudgetDisplay(t *model.Tender) string {
	if t.BudgetSource == model.BudgetUnknown || t.BudgetSource == "" {
		return budgetNotStated
	}
	value, ok := t.BudgetValue()
	if !ok || value <= 0 {
		return budgetNotStated
	}
	sym := currencySymbol(t.Currency)

	if t.BudgetSource == model.BudgetStated {
		exact := func(v float64) string { return sym + humanize.Comma(int64(math.Round(v))) }
		if t.BudgetMin != nil && t.BudgetMax != nil && *t.BudgetMin > 0 && *t.BudgetMin < *t.BudgetMax {
			return exact(*t.BudgetMin) + " to " + exact(*t.BudgetMax)
		}
		return exact(value)
	}
	return "~" + sym + compact(value) + " (estimated)"
}

// compact shortens large amounts: 1200000 → "1.2M", 500000 → "500k".
func compact(v float64) string {
	switch {
	case v >= 1_000_000:
		return humanize.FtoaWithDigits(v/1_000_000, 1) + "M"
	case v >= 1_000:
		return humanize.FtoaWithDigits(math.Round(v/1_000), 0) + "k"
	default:
		return humanize.FtoaWithDigits(math.Round(v), 0)
	}
}

// Subject is the email subject line for a digest.
func Subject(date string, priority int) string {
	noun := "tenders"
	if priority == 1 {
		noun = "tender"
	}
	return fmt.Sprintf("HK+SG Tender Daily Digest · %s · %d Priority %s", date, priority, noun)
}

// TemplateNarrative writes the overview when no reasoner is available.
func TemplateNarrative(d *model.Digest) string {
	var entries []model.DigestEntry
	counts := map[model.Jurisdiction]int{}
	for _, s := range d.Sections {
		entries = append(entries, s.Entries...)
		counts[s.Jurisdiction] += len(s.Entries)
	}

	var b strings.Builder
	if len(entries) == 0 {
		fmt.Fprintf(&b, "No new tenders met the shortlist bar on %s.", d.Date)
	} else {
		fmt.Fprintf(&b, "%d tenders shortlisted on %s (%d HK, %d SG), %d rated Priority.",
			len(entries), d.Date, counts[model.JurisdictionHK], counts[model.JurisdictionSG], d.PriorityCount())
		top := entries[0]
		for _, e := range entries[1:] {
			if e.OverallScore > top.OverallScore {
				top = e
			}
		}
		fmt.Fprintf(&b, " Top pick: %s", top.Title)
		if top.Agency != "" {
			fmt.Fprintf(&b, " (%s)", top.Agency)
		}
		fmt.Fprintf(&b, ", scored %.2f.", top.OverallScore)
	}
	if n := len(d.ClosingSoon); n > 0 {
		fmt.Fprintf(&b, " %d closing within the week.", n)
	}
	fmt.Fprintf(&b, " Sources: %d active, %d need attention.", d.Stats.SourcesActive, d.Stats.SourcesFailed)
	return b.String()
}
