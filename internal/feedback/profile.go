package feedback

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-intel/internal/model"
)

// WeightPaths lists every adjustable weight by its recommendation target.
var WeightPaths = []string{
	"capability_fit.category_match",
	"capability_fit.agency_familiarity",
	"capability_fit.delivery_scale",
	"capability_fit.keyword_overlap",
	"capability_fit.geographic_fit",
	"business_potential.budget",
	"business_potential.budget_proxy",
	"business_potential.strategic_beachhead",
	"business_potential.category_growth",
	"business_potential.time_to_deadline",
	"business_potential.recurrence_potential",
	"overall.capability",
	"overall.business",
}

func weightRef(w *model.Weights, path string) *float64 {
	switch path {
	case "capability_fit.category_match":
		return &w.Capability.CategoryMatch
	case "capability_fit.agency_familiarity":
		return &w.Capability.AgencyFamiliarity
	case "capability_fit.delivery_scale":
		return &w.Capability.DeliveryScale
	case "capability_fit.keyword_overlap":
		return &w.Capability.KeywordOverlap
	case "capability_fit.geographic_fit":
		return &w.Capability.GeographicFit
	case "business_potential.budget":
		return &w.Business.Budget
	case "business_potential.budget_proxy":
		return &w.Business.BudgetProxy
	case "business_potential.strategic_beachhead":
		return &w.Business.StrategicBeachhead
	case "business_potential.category_growth":
		return &w.Business.CategoryGrowth
	case "business_potential.time_to_deadline":
		return &w.Business.TimeToDeadline
	case "business_potential.recurrence_potential":
		return &w.Business.RecurrencePotential
	case "overall.capability":
		return &w.Overall.Capability
	case "overall.business":
		return &w.Overall.Business
	}
	return nil
}

// WeightValue returns the weight a target path names.
func WeightValue(w model.Weights, path string) (float64, bool) {
	ref := weightRef(&w, path)
	if ref == nil {
		return 0, false
	}
	return *ref, true
}

// CheckRecommendation rejects proposals that could not be applied to p.
func CheckRecommendation(rec *model.Recommendation, p *model.Profile) error {
	target := strings.TrimSpace(rec.Target)
	if target == "" {
		return eris.New("feedback: recommendation has no target")
	}
	if rec.Confidence < 0 || rec.Confidence > 1 {
		return eris.Errorf("feedback: confidence %.2f outside [0,1]", rec.Confidence)
	}
	switch rec.Type {
	case model.RecWeightAdjustment:
		if _, ok := WeightValue(p.Weights, target); !ok {
			return eris.Errorf("feedback: unknown weight %q", target)
		}
		if rec.RecommendedValue == nil {
			return eris.Errorf("feedback: weight %q has no recommended value", target)
		}
		if v := *rec.RecommendedValue; v < 0 || v > 1 {
			return eris.Errorf("feedback: weight %q value %.2f outside [0,1]", target, v)
		}
	case model.RecAddKnownAgency:
		if containsFold(p.KnownAgencies, target) {
			return eris.Errorf("feedback: agency %q already known", target)
		}
	case model.RecAddKeyword:
		if containsFold(p.TrackRecordKeywords, target) {
			return eris.Errorf("feedback: keyword %q already listed", target)
		}
	case model.RecDowngradeCategory:
		if !model.ValidCategory(target) {
			return eris.Errorf("feedback: unknown category %q", target)
		}
		if slices.Contains(p.DowngradedCategories, target) {
			return eris.Errorf("feedback: category %q already downgraded", target)
		}
	default:
		return eris.Errorf("feedback: unknown recommendation type %q", rec.Type)
	}
	return nil
}

// ApplyRecommendation derives the next profile version from p with rec
// applied. p itself is left untouched.
func ApplyRecommendation(p *model.Profile, rec *model.Recommendation) (*model.Profile, error) {
	if err := CheckRecommendation(rec, p); err != nil {
		return nil, err
	}
	version, err := NextVersion(p.Version)
	if err != nil {
		return nil, err
	}

	next := p.Clone()
	next.Version = version
	target := strings.TrimSpace(rec.Target)
	switch rec.Type {
	case model.RecWeightAdjustment:
		*weightRef(&next.Weights, target) = *rec.RecommendedValue
	case model.RecAddKnownAgency:
		next.KnownAgencies = append(next.KnownAgencies, target)
	case model.RecAddKeyword:
		next.TrackRecordKeywords = append(next.TrackRecordKeywords, strings.ToLower(target))
	case model.RecDowngradeCategory:
		next.DowngradedCategories = append(next.DowngradedCategories, target)
		slices.Sort(next.DowngradedCategories)
	}
	next.ChangeNote = fmt.Sprintf("%s %s", rec.Type, target)
	if rec.Description != "" {
		next.ChangeNote += ": " + rec.Description
	}
	return next, nil
}

// NextVersion bumps the minor component of a semantic version.
func NextVersion(v string) (string, error) {
	sv, err := semver.NewVersion(v)
	if err != nil {
		return "", eris.Wrapf(err, "feedback: parse profile version %q", v)
	}
	return sv.IncMinor().String(), nil
}

// ValidateProfile checks a profile before it is saved. All problems are
// reported together.
func ValidateProfile(p *model.Profile) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if _, err := semver.StrictNewVersion(p.Version); err != nil {
		add("version %q is not semantic", p.Version)
	}
	if len(p.Competencies) == 0 {
		add("no competencies")
	}
	for _, set := range [][]string{p.Competencies, p.AdjacentCategories, p.DowngradedCategories} {
		for _, c := range set {
			if !model.ValidCategory(c) {
				add("unknown category %q", c)
			}
		}
	}
	if p.MaxDeliveryFTE <= 0 {
		add("max delivery FTE must be positive")
	}
	switch p.PrimaryJurisdiction {
	case model.JurisdictionHK, model.JurisdictionSG, model.JurisdictionGlobal:
	default:
		add("unknown primary jurisdiction %q", p.PrimaryJurisdiction)
	}

	for _, path := range WeightPaths {
		if v, _ := WeightValue(p.Weights, path); v < 0 || v > 1 {
			add("weight %s=%.2f outside [0,1]", path, v)
		}
	}
	if p.Weights.Capability.Sum() <= 0 {
		add("capability weights sum to zero")
	}
	if p.Weights.Business.FullInformation() <= 0 {
		add("business weights sum to zero")
	}
	if p.Weights.Overall.Capability+p.Weights.Overall.Business <= 0 {
		add("overall weights sum to zero")
	}

	if len(problems) > 0 {
		return eris.Errorf("feedback: invalid profile %s: %s", p.Version, strings.Join(problems, "; "))
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}
