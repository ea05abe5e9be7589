package model

import "time"

// TenderStatus is derived from the closing date.
type TenderStatus string

const (
	TenderOpen           TenderStatus = "open"
	TenderClosed         TenderStatus = "closed"
	TenderAwarded        TenderStatus = "awarded"
	TenderCancelled      TenderStatus = "cancelled"
	TenderUnknownClosing TenderStatus = "unknown_closing"
)

// BudgetSource records where a budget figure came from.
type BudgetSource string

const (
	BudgetStated    BudgetSource = "stated"
	BudgetEstimated BudgetSource = "estimated"
	BudgetProxy     BudgetSource = "proxy"
	BudgetUnknown   BudgetSource = "unknown"
)

// EvaluationStatus tracks whether a tender needs scoring.
type EvaluationStatus string

const (
	EvalPending    EvaluationStatus = "pending"
	EvalScored     EvaluationStatus = "scored"
	EvalReEvaluate EvaluationStatus = "re_evaluate"
)

// NoticeType is the procurement method inferred from the notice.
type NoticeType string

const (
	NoticeOpenTender NoticeType = "open_tender"
	NoticeQuotation  NoticeType = "quotation"
	NoticeEOI        NoticeType = "eoi"
	NoticeUnknown    NoticeType = "unknown"
)

// Label is the decision bucket assigned by the evaluator.
type Label string

const (
	LabelPriority    Label = "Priority"
	LabelConsider    Label = "Consider"
	LabelPartnerOnly Label = "Partner-only"
	LabelIgnore      Label = "Ignore"
)

// Tender is the canonical record produced by the normalizer.
type Tender struct {
	ID               string       `json:"tender_id"`
	SourceID         string       `json:"source_id"`
	SourceReferences []string     `json:"source_references"`
	RawCaptureID     string       `json:"raw_capture_id"`
	SourceURL        string       `json:"source_url,omitempty"`
	Jurisdiction     Jurisdiction `json:"jurisdiction"`
	OwnerType        OwnerType    `json:"owner_type"`

	Title        string     `json:"title"`
	Agency       string     `json:"agency"`
	TenderRef    string     `json:"tender_ref"`
	RefSynthetic bool       `json:"ref_synthetic"`
	Description  string     `json:"description,omitempty"`
	RawCategory  string     `json:"raw_category,omitempty"`
	Categories   []string   `json:"category_tags"`
	NoticeType   NoticeType `json:"notice_type"`
	RequiredFTE  *float64   `json:"required_fte,omitempty"`

	PublishDate          *time.Time   `json:"publish_date,omitempty"`
	PublishDateEstimated bool         `json:"publish_date_estimated"`
	ClosingDate          *time.Time   `json:"closing_date,omitempty"`
	Status               TenderStatus `json:"status"`

	BudgetMin    *float64     `json:"budget_min,omitempty"`
	BudgetMax    *float64     `json:"budget_max,omitempty"`
	Currency     string       `json:"currency"`
	BudgetSource BudgetSource `json:"budget_source"`

	IsCanonical       bool   `json:"is_canonical"`
	CanonicalTenderID string `json:"canonical_tender_id,omitempty"`

	EvaluationStatus  EvaluationStatus `json:"evaluation_status"`
	Label             Label            `json:"label,omitempty"`
	CapabilityFit     *float64         `json:"capability_fit,omitempty"`
	BusinessPotential *float64         `json:"business_potential,omitempty"`
	OverallScore      *float64         `json:"overall_score,omitempty"`
	ProfileVersion    string           `json:"profile_version,omitempty"`
	EvaluatedAt       *time.Time       `json:"evaluated_at,omitempty"`

	MappingVersion string    `json:"mapping_version"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// BudgetValue returns the most informative budget figure (max, then min).
func (t *Tender) BudgetValue() (float64, bool) {
	if t.BudgetMax != nil {
		return *t.BudgetMax, true
	}
	if t.BudgetMin != nil {
		return *t.BudgetMin, true
	}
	return 0, false
}

// DaysToClose returns whole days between now's civil date and the closing date.
func (t *Tender) DaysToClose(now time.Time) (int, bool) {
	if t.ClosingDate == nil {
		return 0, false
	}
	today := CivilDate(now)
	return int(t.ClosingDate.Sub(today).Hours() / 24), true
}

// CivilDate truncates t to midnight UTC of its calendar date in the
// location carried by t.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Evaluation is one scoring result for a tender.
type Evaluation struct {
	ID                string             `json:"id"`
	TenderID          string             `json:"tender_id"`
	CapabilityFit     float64            `json:"capability_fit"`
	BusinessPotential float64            `json:"business_potential"`
	OverallScore      float64            `json:"overall_score"`
	Label             Label              `json:"label"`
	Rationale         string             `json:"rationale"`
	CapabilitySignals map[string]float64 `json:"capability_signals"`
	BusinessSignals   map[string]float64 `json:"business_signals"`
	Weights           Weights            `json:"scoring_weights"`
	ProfileVersion    string             `json:"profile_version"`
	ModelUsed         string             `json:"model_used,omitempty"`
	EvaluatedAt       time.Time          `json:"evaluated_at"`
}
