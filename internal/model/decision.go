package model

import "time"

// DecisionAction is a human action on a tender.
type DecisionAction string

const (
	DecisionTrack         DecisionAction = "track"
	DecisionIgnore        DecisionAction = "ignore"
	DecisionAssign        DecisionAction = "assign"
	DecisionPartnerNeeded DecisionAction = "partner_needed"
	DecisionNotForUs      DecisionAction = "not_for_us"
	DecisionWon           DecisionAction = "won"
	DecisionLost          DecisionAction = "lost"
	DecisionShortlisted   DecisionAction = "shortlisted"
)

// ParseDecisionAction validates a decision action string.
func ParseDecisionAction(s string) (DecisionAction, bool) {
	a := DecisionAction(s)
	switch a {
	case DecisionTrack, DecisionIgnore, DecisionAssign, DecisionPartnerNeeded,
		DecisionNotForUs, DecisionWon, DecisionLost, DecisionShortlisted:
		return a, true
	}
	return "", false
}

// Positive reports whether the action shows the team wanted the tender.
func (a DecisionAction) Positive() bool {
	switch a {
	case DecisionTrack, DecisionAssign, DecisionShortlisted, DecisionWon, DecisionLost, DecisionPartnerNeeded:
		return true
	}
	return false
}

// Negative reports whether the action rejects the tender.
func (a DecisionAction) Negative() bool {
	return a == DecisionIgnore || a == DecisionNotForUs
}

// Decision is an append-only entry in the decision log.
type Decision struct {
	ID        string         `json:"id"`
	TenderID  string         `json:"tender_id"`
	Action    DecisionAction `json:"action"`
	Notes     string         `json:"notes,omitempty"`
	Stage     string         `json:"pipeline_stage,omitempty"`
	DecidedBy string         `json:"decided_by,omitempty"`
	DecidedAt time.Time      `json:"decided_at"`
}

// DecisionRecord joins a decision with the tender state it was made on.
type DecisionRecord struct {
	Decision
	Title        string       `json:"title"`
	Agency       string       `json:"agency"`
	Jurisdiction Jurisdiction `json:"jurisdiction"`
	Categories   []string     `json:"category_tags"`
	Label        Label        `json:"label"`
	OverallScore float64      `json:"overall_score"`
}

// RecommendationType enumerates calibration proposals.
type RecommendationType string

const (
	RecWeightAdjustment  RecommendationType = "weight_adjustment"
	RecAddKnownAgency    RecommendationType = "add_known_agency"
	RecAddKeyword        RecommendationType = "add_track_record_keyword"
	RecDowngradeCategory RecommendationType = "downgrade_category"
)

// RecommendationStatus is the approval lifecycle.
type RecommendationStatus string

const (
	RecProposed RecommendationStatus = "proposed"
	RecApproved RecommendationStatus = "approved"
	RecRejected RecommendationStatus = "rejected"
)

// Recommendation is one proposed profile change. Target names the field it
// touches: a weight path such as "capability_fit.category_match", an agency,
// a keyword, or a category tag.
type Recommendation struct {
	ID               string               `json:"id"`
	ReportID         string               `json:"report_id"`
	Type             RecommendationType   `json:"type"`
	Target           string               `json:"target"`
	Description      string               `json:"description"`
	CurrentValue     *float64             `json:"current_value,omitempty"`
	RecommendedValue *float64             `json:"recommended_value,omitempty"`
	Confidence       float64              `json:"confidence"`
	Evidence         string               `json:"evidence"`
	Status           RecommendationStatus `json:"status"`
	ProfileVersion   string               `json:"profile_version"`
	DecidedBy        string               `json:"decided_by,omitempty"`
	DecidedAt        *time.Time           `json:"decided_at,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

// Accuracy summarises how labels lined up with human decisions.
type Accuracy struct {
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	TrueNegatives  int     `json:"true_negatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
	Sample         int     `json:"sample"`
}

// CalibrationReport is the weekly feedback output.
type CalibrationReport struct {
	ID              string           `json:"id"`
	ProfileVersion  string           `json:"profile_version"`
	WindowStart     time.Time        `json:"window_start"`
	WindowEnd       time.Time        `json:"window_end"`
	Accuracy        Accuracy         `json:"accuracy"`
	Summary         string           `json:"summary"`
	NoChangesNeeded bool             `json:"no_changes_needed"`
	Recommendations []Recommendation `json:"recommendations"`
	CreatedAt       time.Time        `json:"created_at"`
}
