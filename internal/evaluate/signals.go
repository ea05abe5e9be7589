package evaluate

import (
	"math"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/sells-group/tender-intel/internal/model"
)

// Signal names as stored on an evaluation.
const (
	SignalCategoryMatch     = "category_match"
	SignalAgencyFamiliarity = "agency_familiarity"
	SignalDeliveryScale     = "delivery_scale"
	SignalKeywordOverlap    = "keyword_overlap"
	SignalGeographicFit     = "geographic_fit"

	SignalBudget              = "budget"
	SignalBudgetProxy         = "budget_proxy"
	SignalStrategicBeachhead  = "strategic_beachhead"
	SignalCategoryGrowth      = "category_growth"
	SignalTimeToDeadline      = "time_to_deadline"
	SignalRecurrencePotential = "recurrence_potential"
)

// HKD per unit of foreign currency, for budget tiers and scale estimates.
var fxToHKD = map[string]float64{
	"HKD": 1,
	"SGD": 5.8,
	"USD": 7.8,
}

func toHKD(amount float64, currency string) float64 {
	if rate, ok := fxToHKD[strings.ToUpper(currency)]; ok {
		return amount * rate
	}
	return amount
}

// scoreCategoryMatch returns 1 for a competency, 0.5 for an adjacent or
// downgraded competency, 0 otherwise.
func scoreCategoryMatch(tags []string, p *model.Profile) float64 {
	best := 0.0
	for _, tag := range tags {
		switch {
		case slices.Contains(p.DowngradedCategories, tag):
			best = math.Max(best, 0.5)
		case slices.Contains(p.Competencies, tag):
			return 1.0
		case slices.Contains(p.AdjacentCategories, tag):
			best = math.Max(best, 0.5)
		}
	}
	return best
}

// KnownAgency reports whether agency names one of the known agencies.
// Either side may carry extra words ("HKSAR Tourism Commission").
func KnownAgency(agency string, known []string) bool {
	a := strings.ToLower(strings.TrimSpace(agency))
	if a == "" {
		return false
	}
	for _, k := range known {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if a == k || strings.Contains(a, k) || strings.Contains(k, a) {
			return true
		}
	}
	return false
}

func scoreAgencyFamiliarity(agency string, p *model.Profile) float64 {
	if KnownAgency(agency, p.KnownAgencies) {
		return 1.0
	}
	return 0.0
}

// baseFTE is the typical team needed per category.
var baseFTE = map[string]float64{
	model.CategoryIT:           4,
	model.CategoryEvents:       4,
	model.CategoryMarketing:    3,
	model.CategoryConsultancy:  3,
	model.CategoryConstruction: 12,
	model.CategoryFacilities:   10,
	model.CategorySocial:       6,
	model.CategoryResearch:     2,
	model.CategorySupplies:     2,
	model.CategoryFinancial:    3,
	model.CategoryGrant:        2,
	model.CategoryOther:        4,
}

// hkdPerFTE converts a budget into an FTE estimate.
const hkdPerFTE = 400_000

// EstimateFTE returns the mapped FTE when a source states one, otherwise the
// larger of the category baseline and the budget-implied headcount.
func EstimateFTE(t *model.Tender) float64 {
	if t.RequiredFTE != nil && *t.RequiredFTE > 0 {
		return *t.RequiredFTE
	}
	est := 0.0
	for _, tag := range t.Categories {
		est = math.Max(est, baseFTE[tag])
	}
	if est == 0 {
		est = baseFTE[model.CategoryOther]
	}
	if v, ok := t.BudgetValue(); ok {
		est = math.Max(est, toHKD(v, t.Currency)/hkdPerFTE)
	}
	return est
}

// scoreDeliveryScale is 1 within capacity, falling linearly to 0 at twice
// capacity.
func scoreDeliveryScale(fte, maxFTE float64) float64 {
	if maxFTE <= 0 {
		return 1.0
	}
	ratio := fte / maxFTE
	switch {
	case ratio <= 1:
		return 1.0
	case ratio >= 2:
		return 0.0
	default:
		return 2 - ratio
	}
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// minTitleWords keeps short titles from inflating the overlap ratio.
const minTitleWords = 8

// scoreKeywordOverlap counts track-record keywords present in the title and
// description, divides by the title length, triples and caps at 1.
func scoreKeywordOverlap(title, description string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	text := title + " " + description
	padded := " " + strings.Join(tokens(text), " ") + " "
	lower := strings.ToLower(text)

	matched := 0
	for _, kw := range keywords {
		kwTokens := tokens(kw)
		if len(kwTokens) == 0 {
			continue
		}
		if !isASCII(kw) {
			if strings.Contains(lower, strings.ToLower(strings.TrimSpace(kw))) {
				matched++
			}
			continue
		}
		phrase := strings.Join(kwTokens, " ")
		if strings.Contains(padded, " "+phrase+" ") || strings.Contains(padded, " "+phrase+"s ") {
			matched++
		}
	}

	words := max(len(tokens(title)), minTitleWords)
	return math.Min(float64(matched)/float64(words)*3, 1.0)
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func scoreGeographicFit(j model.Jurisdiction, p *model.Profile) float64 {
	switch j {
	case p.PrimaryJurisdiction:
		return 1.0
	case p.SecondaryJurisdiction:
		return 0.7
	default:
		return 0.3
	}
}

// budgetStated reports whether the budget score applies.
func budgetStated(t *model.Tender) bool {
	_, ok := t.BudgetValue()
	return ok && t.BudgetSource == model.BudgetStated
}

// scoreBudget tiers a stated budget in the jurisdiction's own currency.
func scoreBudget(t *model.Tender) float64 {
	v, _ := t.BudgetValue()
	hkd := toHKD(v, t.Currency)
	if t.Jurisdiction == model.JurisdictionSG {
		sgd := hkd / fxToHKD["SGD"]
		switch {
		case sgd > 100_000:
			return 1.0
		case sgd >= 30_000:
			return 0.6
		case sgd >= 20_000:
			return 0.4
		default:
			return 0.2
		}
	}
	switch {
	case hkd > 500_000:
		return 1.0
	case hkd >= 100_000:
		return 0.6
	case hkd >= 50_000:
		return 0.4
	default:
		return 0.2
	}
}

// largeAgencies are spending departments whose open tenders typically run
// well above the top budget tier.
var largeAgencies = []string{
	"architectural services department",
	"highways department",
	"housing department",
	"hospital authority",
	"leisure and cultural services department",
	"government logistics department",
	"digital policy office",
	"drainage services department",
	"water supplies department",
	"airport authority",
	"land transport authority",
	"housing & development board",
	"housing and development board",
	"government technology agency",
	"govtech",
	"ministry of education",
	"ministry of health",
	"national environment agency",
	"public utilities board",
}

func isLargeAgency(agency string) bool {
	a := strings.ToLower(agency)
	for _, l := range largeAgencies {
		if strings.Contains(a, l) {
			return true
		}
	}
	return false
}

// scoreBudgetProxy guesses budget size from notice type and agency scale.
func scoreBudgetProxy(t *model.Tender) float64 {
	large := isLargeAgency(t.Agency)
	switch {
	case t.NoticeType == model.NoticeQuotation:
		return 0.3
	case large && t.NoticeType == model.NoticeOpenTender:
		return 0.9
	case large:
		return 0.7
	case t.OwnerType == model.OwnerGovernment:
		return 0.5
	default:
		return 0.3
	}
}

func scoreStrategicBeachhead(agency string, p *model.Profile) float64 {
	if KnownAgency(agency, p.KnownAgencies) {
		return 0.4
	}
	return 0.8
}

var (
	growingCategories   = []string{model.CategoryIT, model.CategoryEvents, model.CategoryMarketing}
	decliningCategories = []string{model.CategoryConstruction, model.CategorySupplies}
)

// scoreCategoryGrowth takes the best group across the tender's tags.
func scoreCategoryGrowth(tags []string, p *model.Profile) float64 {
	best := 0.0
	for _, tag := range tags {
		s := 0.5
		switch {
		case slices.Contains(p.DowngradedCategories, tag), slices.Contains(decliningCategories, tag):
			s = 0.2
		case slices.Contains(growingCategories, tag):
			s = 0.9
		}
		best = math.Max(best, s)
	}
	if best == 0 {
		return 0.5
	}
	return best
}

// deadlineCurve maps days to close onto a score. Between points the score is
// interpolated linearly; beyond the last point it stays at 1.
var deadlineCurve = []struct{ days, score float64 }{
	{0, 0},
	{7, 0.1},
	{14, 0.4},
	{21, 0.7},
	{30, 1.0},
}

// noDeadlineScore applies when the closing date is unknown.
const noDeadlineScore = 0.5

func scoreTimeToDeadline(t *model.Tender, now time.Time) float64 {
	days, ok := t.DaysToClose(now)
	if !ok {
		return noDeadlineScore
	}
	d := float64(days)
	if d <= 0 {
		return 0
	}
	for i := 1; i < len(deadlineCurve); i++ {
		lo, hi := deadlineCurve[i-1], deadlineCurve[i]
		if d <= hi.days {
			return lo.score + (d-lo.days)/(hi.days-lo.days)*(hi.score-lo.score)
		}
	}
	return 1.0
}

var recurringTerms = []string{
	"framework", "annual", "multi-year", "multi year", "panel", "standing offer",
	"term contract", "period contract", "retainer", "框架", "年度",
}

var oneOffTerms = []string{"one-off", "one off", "pilot", "ad hoc", "ad-hoc", "single event", "一次性"}

func scoreRecurrencePotential(title string) float64 {
	lower := strings.ToLower(title)
	for _, term := range recurringTerms {
		if strings.Contains(lower, term) {
			return 0.9
		}
	}
	for _, term := range oneOffTerms {
		if strings.Contains(lower, term) {
			return 0.3
		}
	}
	return 0.5
}
