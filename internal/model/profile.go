package model

import "time"

// CapabilityWeights are the sub-weights of the capability-fit score.
type CapabilityWeights struct {
	CategoryMatch     float64 `json:"category_match"`
	AgencyFamiliarity float64 `json:"agency_familiarity"`
	DeliveryScale     float64 `json:"delivery_scale"`
	KeywordOverlap    float64 `json:"keyword_overlap"`
	GeographicFit     float64 `json:"geographic_fit"`
}

// Sum returns the total capability weight.
func (w CapabilityWeights) Sum() float64 {
	return w.CategoryMatch + w.AgencyFamiliarity + w.DeliveryScale + w.KeywordOverlap + w.GeographicFit
}

// BusinessWeights are the sub-weights of the business-potential score.
type BusinessWeights struct {
	Budget              float64 `json:"budget"`
	BudgetProxy         float64 `json:"budget_proxy"`
	StrategicBeachhead  float64 `json:"strategic_beachhead"`
	CategoryGrowth      float64 `json:"category_growth"`
	TimeToDeadline      float64 `json:"time_to_deadline"`
	RecurrencePotential float64 `json:"recurrence_potential"`
}

// FullInformation is the weight mass reachable when a budget is stated.
func (w BusinessWeights) FullInformation() float64 {
	return w.Budget + w.StrategicBeachhead + w.CategoryGrowth + w.TimeToDeadline + w.RecurrencePotential
}

// OverallWeights blend the two sub-scores.
type OverallWeights struct {
	Capability float64 `json:"capability"`
	Business   float64 `json:"business"`
}

// Weights is the full nested weight set carried by a profile.
type Weights struct {
	Capability CapabilityWeights `json:"capability_fit"`
	Business   BusinessWeights   `json:"business_potential"`
	Overall    OverallWeights    `json:"overall"`
}

// Profile is an immutable, versioned scoring configuration. A new version is
// produced for every approved calibration change.
type Profile struct {
	Version               string       `json:"version"`
	Competencies          []string     `json:"competencies"`
	AdjacentCategories    []string     `json:"adjacent_categories,omitempty"`
	DowngradedCategories  []string     `json:"downgraded_categories,omitempty"`
	TrackRecordKeywords   []string     `json:"track_record_keywords"`
	KnownAgencies         []string     `json:"known_agencies"`
	MaxDeliveryFTE        float64      `json:"max_delivery_fte"`
	PrimaryJurisdiction   Jurisdiction `json:"primary_jurisdiction"`
	SecondaryJurisdiction Jurisdiction `json:"secondary_jurisdiction"`
	Weights               Weights      `json:"weights"`
	ApprovedBy            string       `json:"approved_by,omitempty"`
	ChangeNote            string       `json:"change_note,omitempty"`
	CreatedAt             time.Time    `json:"created_at"`
}

// Clone returns a deep copy so callers can derive a new version without
// touching the original.
func (p *Profile) Clone() *Profile {
	c := *p
	c.Competencies = append([]string(nil), p.Competencies...)
	c.AdjacentCategories = append([]string(nil), p.AdjacentCategories...)
	c.DowngradedCategories = append([]string(nil), p.DowngradedCategories...)
	c.TrackRecordKeywords = append([]string(nil), p.TrackRecordKeywords...)
	c.KnownAgencies = append([]string(nil), p.KnownAgencies...)
	return &c
}
