package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/pkg/anthropic"
)

const (
	rationaleSystem = `You are a tender evaluation assistant for a digital marketing and events agency
in Hong Kong. You are given scores that have already been computed. Never change or invent a
score. Write 2-3 plain sentences explaining the label: mention the two strongest positive
signals and the single leading concern.`

	narrativeSystem = `You are a senior tender intelligence analyst for a Hong Kong digital marketing
and events agency. Write a concise 1-2 paragraph daily overview of today's government tender
landscape based on the tenders listed. Mention notable themes, high-value opportunities,
unusual patterns or important deadlines. Be factual and brief. Plain text only.`

	calibrationSystem = `You analyse how a tender scoring profile performed against the team's
recorded decisions. Identify categories that are systematically over- or under-rated, agencies
the team keeps tracking that are not yet known, keywords from tracked tenders worth adding to the
track record, and patterns in ignored tenders suggesting a weight should fall. Every
recommendation needs quantified supporting evidence and a confidence between 0 and 1. You only
propose changes; you never apply them. Reply with one JSON object:
{"summary": "...", "no_changes_needed": bool, "recommendations": [{"type":
"weight_adjustment|add_known_agency|add_track_record_keyword|downgrade_category", "target": "...",
"description": "...", "current_value": number|null, "recommended_value": number|null,
"confidence": number, "supporting_evidence": "..."}]}.
For weight_adjustment the target is a weight path such as "capability_fit.category_match".`
)

// RationaleInput carries only already-computed numbers plus identifying text.
type RationaleInput struct {
	Title             string             `json:"title"`
	Agency            string             `json:"agency"`
	Categories        []string           `json:"category_tags"`
	Label             model.Label        `json:"label"`
	CapabilityFit     float64            `json:"capability_fit"`
	BusinessPotential float64            `json:"business_potential"`
	OverallScore      float64            `json:"overall_score"`
	CapabilitySignals map[string]float64 `json:"capability_signals"`
	BusinessSignals   map[string]float64 `json:"business_signals"`
}

// NarrativeInput is the ranked digest plus source health.
type NarrativeInput struct {
	Date          string              `json:"date"`
	Entries       []model.DigestEntry `json:"tenders"`
	SourcesActive int                 `json:"sources_active"`
	SourcesFailed int                 `json:"sources_failed"`
	Issues        []string            `json:"source_issues,omitempty"`
}

// CalibrationInput is the aggregated decision history handed to the
// reasoner. Aggregates is serialised as-is.
type CalibrationInput struct {
	ProfileVersion      string         `json:"profile_version"`
	Weights             model.Weights  `json:"weights"`
	KnownAgencies       []string       `json:"known_agencies"`
	TrackRecordKeywords []string       `json:"track_record_keywords"`
	Accuracy            model.Accuracy `json:"accuracy"`
	Aggregates          any            `json:"aggregates"`
}

// CalibrationOutput is the validated reasoner reply.
type CalibrationOutput struct {
	Summary         string
	NoChangesNeeded bool
	Recommendations []model.Recommendation
}

type calibrationReply struct {
	Summary         string `json:"summary"`
	NoChangesNeeded bool   `json:"no_changes_needed"`
	Recommendations []struct {
		Type             string   `json:"type"`
		Target           string   `json:"target"`
		Description      string   `json:"description"`
		CurrentValue     *float64 `json:"current_value"`
		RecommendedValue *float64 `json:"recommended_value"`
		Confidence       float64  `json:"confidence"`
		Evidence         string   `json:"supporting_evidence"`
	} `json:"recommendations"`
}

// Reasoner is the heavy collaborator used for narration and calibration
// analysis.
type Reasoner struct {
	c *caller
}

// NewReasoner returns a reasoner using the configured reasoning model.
func NewReasoner(client anthropic.Client, cfg config.AnthropicConfig, opts ...Option) *Reasoner {
	return &Reasoner{c: newCaller(client, "reasoner", cfg.ReasoningModel, cfg, opts...)}
}

// Available reports whether the reasoner will attempt calls.
func (r *Reasoner) Available() bool {
	return r != nil && r.c.Available()
}

// Model returns the reasoning model id.
func (r *Reasoner) Model() string {
	if r == nil {
		return ""
	}
	return r.c.Model()
}

// Rationale narrates an evaluation.
func (r *Reasoner) Rationale(ctx context.Context, in RationaleInput) (string, error) {
	if !r.Available() {
		return "", ErrUnavailable
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return "", eris.Wrap(err, "llm: marshal rationale input")
	}
	var out string
	err = r.c.complete(ctx, "reasoner_rationale", anthropic.CachedSystem(rationaleSystem), string(payload), func(reply string) error {
		out = reply
		return nil
	})
	return out, err
}

// Narrative writes the digest overview.
func (r *Reasoner) Narrative(ctx context.Context, in NarrativeInput) (string, error) {
	if !r.Available() {
		return "", ErrUnavailable
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return "", eris.Wrap(err, "llm: marshal narrative input")
	}
	var out string
	err = r.c.complete(ctx, "reasoner_narrative", anthropic.CachedSystem(narrativeSystem), string(payload), func(reply string) error {
		out = reply
		return nil
	})
	return out, err
}

// Recommendations asks for calibration proposals. The reply is validated
// against a JSON schema before any recommendation is accepted.
func (r *Reasoner) Recommendations(ctx context.Context, in CalibrationInput) (*CalibrationOutput, error) {
	if !r.Available() {
		return nil, ErrUnavailable
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrap(err, "llm: marshal calibration input")
	}

	var reply calibrationReply
	err = r.c.complete(ctx, "reasoner_calibration", anthropic.CachedSystem(calibrationSystem), string(payload), func(text string) error {
		return decodeValidated(text, calibrationSchema, &reply)
	})
	if err != nil {
		return nil, err
	}

	out := &CalibrationOutput{
		Summary:         strings.TrimSpace(reply.Summary),
		NoChangesNeeded: reply.NoChangesNeeded,
	}
	for _, rec := range reply.Recommendations {
		out.Recommendations = append(out.Recommendations, model.Recommendation{
			Type:             model.RecommendationType(rec.Type),
			Target:           rec.Target,
			Description:      rec.Description,
			CurrentValue:     rec.CurrentValue,
			RecommendedValue: rec.RecommendedValue,
			Confidence:       rec.Confidence,
			Evidence:         rec.Evidence,
			Status:           model.RecProposed,
		})
	}
	return out, nil
}
