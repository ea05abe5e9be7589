package evaluate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/tender-intel/internal/model"
)

func ptrFloat64(v float64) *float64 { return &v }

func closingIn(days int) *time.Time {
	t := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
	return &t
}

// evalNow is 10:00 HKT on 1 March 2026.
var evalNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("HKT", 8*3600))

func TestScoreTimeToDeadline(t *testing.T) {
	tests := []struct {
		name    string
		closing *time.Time
		want    float64
	}{
		{"no closing date", nil, 0.5},
		{"already closed", closingIn(-2), 0},
		{"closes today", closingIn(0), 0},
		{"3 days", closingIn(3), 0.3 / 7},
		{"7 days", closingIn(7), 0.1},
		{"14 days", closingIn(14), 0.4},
		{"20 days", closingIn(20), 0.4 + 6.0/7*0.3},
		{"30 days", closingIn(30), 1.0},
		{"45 days", closingIn(45), 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoreTimeToDeadline(&model.Tender{ClosingDate: tt.closing}, evalNow)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestScoreBudget(t *testing.T) {
	tests := []struct {
		name     string
		j        model.Jurisdiction
		amount   float64
		currency string
		want     float64
	}{
		{"HK above top tier", model.JurisdictionHK, 600_000, "HKD", 1.0},
		{"HK at 500k is mid tier", model.JurisdictionHK, 500_000, "HKD", 0.6},
		{"HK 100k", model.JurisdictionHK, 100_000, "HKD", 0.6},
		{"HK 60k", model.JurisdictionHK, 60_000, "HKD", 0.4},
		{"HK small", model.JurisdictionHK, 10_000, "HKD", 0.2},
		{"HK tender priced in USD", model.JurisdictionHK, 70_000, "USD", 1.0},
		{"SG above top tier", model.JurisdictionSG, 150_000, "SGD", 1.0},
		{"SG 50k", model.JurisdictionSG, 50_000, "SGD", 0.6},
		{"SG 25k", model.JurisdictionSG, 25_000, "SGD", 0.4},
		{"SG small", model.JurisdictionSG, 5_000, "SGD", 0.2},
		{"SG tender priced in HKD", model.JurisdictionSG, 290_000, "HKD", 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tdr := &model.Tender{Jurisdiction: tt.j, BudgetMax: ptrFloat64(tt.amount), Currency: tt.currency, BudgetSource: model.BudgetStated}
			assert.True(t, budgetStated(tdr))
			assert.InDelta(t, tt.want, scoreBudget(tdr), 1e-9)
		})
	}

	assert.False(t, budgetStated(&model.Tender{BudgetMax: ptrFloat64(1e6), BudgetSource: model.BudgetEstimated}))
	assert.False(t, budgetStated(&model.Tender{BudgetSource: model.BudgetStated}))
}

func TestScoreBudgetProxy(t *testing.T) {
	tests := []struct {
		name   string
		tender model.Tender
		want   float64
	}{
		{"quotation", model.Tender{NoticeType: model.NoticeQuotation, Agency: "Highways Department"}, 0.3},
		{"large agency open tender", model.Tender{NoticeType: model.NoticeOpenTender, Agency: "Highways Department"}, 0.9},
		{"large agency unknown notice", model.Tender{NoticeType: model.NoticeUnknown, Agency: "Land Transport Authority"}, 0.7},
		{"other government", model.Tender{OwnerType: model.OwnerGovernment, Agency: "Islands District Office"}, 0.5},
		{"public body", model.Tender{OwnerType: model.OwnerPublicBody, Agency: "Arts Development Council"}, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scoreBudgetProxy(&tt.tender), 1e-9)
		})
	}
}

func TestScoreKeywordOverlap(t *testing.T) {
	keywords := DefaultProfile().TrackRecordKeywords
	tests := []struct {
		name     string
		title    string
		desc     string
		keywords []string
		want     float64
	}{
		{"capped at one", "Social media campaign for museum events", "", keywords, 1.0},
		{"one match on a short title", "Website revamp", "", keywords, 3.0 / 8},
		{"match in description", "Consultancy study", "Includes a video production package", keywords, 3.0 / 8},
		{"whole words only", "Eventual bridge works", "", keywords, 0},
		{"cjk substring", "數碼推廣活動", "", []string{"推廣"}, 3.0 / 8},
		{"long title dilutes", "Provision of a website for the annual flower show at the Victoria Park grounds", "", keywords, 3.0 / 14},
		{"no keywords", "Website", "", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scoreKeywordOverlap(tt.title, tt.desc, tt.keywords), 1e-9)
		})
	}
}

func TestScoreDeliveryScale(t *testing.T) {
	assert.Equal(t, 1.0, scoreDeliveryScale(4, 8))
	assert.Equal(t, 1.0, scoreDeliveryScale(8, 8))
	assert.InDelta(t, 0.5, scoreDeliveryScale(12, 8), 1e-9)
	assert.Equal(t, 0.0, scoreDeliveryScale(16, 8))
	assert.Equal(t, 0.0, scoreDeliveryScale(24, 8))
	assert.Equal(t, 1.0, scoreDeliveryScale(24, 0))
}

func TestEstimateFTE(t *testing.T) {
	assert.Equal(t, 24.0, EstimateFTE(&model.Tender{RequiredFTE: ptrFloat64(24), Categories: []string{model.CategoryMarketing}}))
	assert.Equal(t, 12.0, EstimateFTE(&model.Tender{Categories: []string{model.CategoryMarketing, model.CategoryConstruction}}))
	assert.Equal(t, 4.0, EstimateFTE(&model.Tender{}))
	assert.InDelta(t, 14.5, EstimateFTE(&model.Tender{
		Categories: []string{model.CategoryIT},
		BudgetMax:  ptrFloat64(1_000_000),
		Currency:   "SGD",
	}), 1e-9)
}

func TestScoreCategoryMatch(t *testing.T) {
	p := DefaultProfile()
	assert.Equal(t, 1.0, scoreCategoryMatch([]string{model.CategoryOther, model.CategoryEvents}, p))
	assert.Equal(t, 0.5, scoreCategoryMatch([]string{model.CategoryResearch}, p))
	assert.Equal(t, 0.0, scoreCategoryMatch([]string{model.CategoryConstruction}, p))
	assert.Equal(t, 0.0, scoreCategoryMatch([]string{model.CategoryOther}, p))

	p.DowngradedCategories = []string{model.CategoryEvents}
	assert.Equal(t, 0.5, scoreCategoryMatch([]string{model.CategoryEvents}, p))
	assert.Equal(t, 1.0, scoreCategoryMatch([]string{model.CategoryEvents, model.CategoryIT}, p))
}

func TestScoreCategoryGrowth(t *testing.T) {
	p := DefaultProfile()
	assert.Equal(t, 0.5, scoreCategoryGrowth(nil, p))
	assert.Equal(t, 0.9, scoreCategoryGrowth([]string{model.CategoryIT}, p))
	assert.Equal(t, 0.2, scoreCategoryGrowth([]string{model.CategoryConstruction}, p))
	assert.Equal(t, 0.9, scoreCategoryGrowth([]string{model.CategoryConstruction, model.CategoryIT}, p))
	assert.Equal(t, 0.5, scoreCategoryGrowth([]string{model.CategorySocial}, p))

	p.DowngradedCategories = []string{model.CategoryIT}
	assert.Equal(t, 0.2, scoreCategoryGrowth([]string{model.CategoryIT}, p))
}

func TestKnownAgency(t *testing.T) {
	known := []string{"Tourism Commission", "Information Services Department"}
	assert.True(t, KnownAgency("Tourism Commission", known))
	assert.True(t, KnownAgency("HKSAR Tourism Commission", known))
	assert.True(t, KnownAgency("information services department", known))
	assert.False(t, KnownAgency("Highways Department", known))
	assert.False(t, KnownAgency("", known))
}

func TestScoreRecurrencePotential(t *testing.T) {
	assert.Equal(t, 0.9, scoreRecurrencePotential("Framework Agreement for Event Management Services"))
	assert.Equal(t, 0.9, scoreRecurrencePotential("Standing Offer Arrangement for Printing"))
	assert.Equal(t, 0.3, scoreRecurrencePotential("Pilot Scheme for Smart Kiosks"))
	assert.Equal(t, 0.5, scoreRecurrencePotential("Provision of Cleaning Services"))
}

func TestScoreGeographicFit(t *testing.T) {
	p := DefaultProfile()
	assert.Equal(t, 1.0, scoreGeographicFit(model.JurisdictionHK, p))
	assert.Equal(t, 0.7, scoreGeographicFit(model.JurisdictionSG, p))
	assert.Equal(t, 0.3, scoreGeographicFit(model.JurisdictionGlobal, p))
}
