package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tender-intel/internal/evaluate"
	"github.com/sells-group/tender-intel/internal/model"
)

var decidedAt = time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)

func record(tenderID string, label model.Label, score float64, action model.DecisionAction, agency, title string, cats ...string) model.DecisionRecord {
	return model.DecisionRecord{
		Decision: model.Decision{
			ID:        tenderID + "-" + string(action),
			TenderID:  tenderID,
			Action:    action,
			DecidedAt: decidedAt,
		},
		Title:        title,
		Agency:       agency,
		Jurisdiction: model.JurisdictionHK,
		Categories:   cats,
		Label:        label,
		OverallScore: score,
	}
}

func TestAccuracy(t *testing.T) {
	won := record("t1", model.LabelPriority, 0.8, model.DecisionWon, "", "")
	won.DecidedAt = decidedAt.Add(time.Hour)

	records := []model.DecisionRecord{
		record("t1", model.LabelPriority, 0.8, model.DecisionTrack, "", ""),
		record("t2", model.LabelConsider, 0.6, model.DecisionIgnore, "", ""),
		record("t3", model.LabelIgnore, 0.3, model.DecisionTrack, "", ""),
		record("t4", model.LabelPartnerOnly, 0.4, model.DecisionNotForUs, "", ""),
		won,
		record("t5", model.LabelPriority, 0.75, model.DecisionAssign, "", ""),
	}

	acc := Accuracy(records)
	assert.Equal(t, 2, acc.TruePositives)
	assert.Equal(t, 1, acc.FalsePositives)
	assert.Equal(t, 1, acc.FalseNegatives)
	assert.Equal(t, 1, acc.TrueNegatives)
	assert.Equal(t, 5, acc.Sample)
	assert.InDelta(t, 0.667, acc.Precision, 1e-9)
	assert.InDelta(t, 0.667, acc.Recall, 1e-9)
	assert.InDelta(t, 0.667, acc.F1, 1e-9)
}

func TestAccuracy_Empty(t *testing.T) {
	assert.Equal(t, model.Accuracy{}, Accuracy(nil))
}

func TestAccuracy_LatestDecisionWins(t *testing.T) {
	later := record("t1", model.LabelPriority, 0.8, model.DecisionIgnore, "", "")
	later.DecidedAt = decidedAt.Add(24 * time.Hour)

	acc := Accuracy([]model.DecisionRecord{
		record("t1", model.LabelPriority, 0.8, model.DecisionTrack, "", ""),
		later,
	})
	assert.Equal(t, 0, acc.TruePositives)
	assert.Equal(t, 1, acc.FalsePositives)
	assert.Equal(t, 0.0, acc.Precision)
}

// calibrationRecords is a window where the team chases lantern carnivals
// from an unknown agency and ignores every IT tender.
func calibrationRecords() []model.DecisionRecord {
	const lcsd = "Leisure and Cultural Services Department"
	return []model.DecisionRecord{
		record("a1", model.LabelPriority, 0.8, model.DecisionTrack, lcsd, "Lunar New Year Lantern Carnival", model.CategoryEvents),
		record("a2", model.LabelConsider, 0.6, model.DecisionTrack, lcsd, "Mid-Autumn Lantern Carnival", model.CategoryEvents),
		record("a3", model.LabelPriority, 0.7, model.DecisionIgnore, "Highways Department", "Traffic Data Platform", model.CategoryIT),
		record("a4", model.LabelConsider, 0.5, model.DecisionIgnore, "Highways Department", "Kiosk Platform Maintenance", model.CategoryIT),
		record("a5", model.LabelConsider, 0.55, model.DecisionNotForUs, "Tourism Commission", "Smart Kiosk Platform", model.CategoryIT),
		record("a6", model.LabelPartnerOnly, 0.4, model.DecisionTrack, "Tourism Commission", "Lantern Festival Publicity", model.CategoryMarketing),
	}
}

func TestAggregate(t *testing.T) {
	agg := Aggregate(calibrationRecords(), evaluate.DefaultProfile())

	assert.Equal(t, 6, agg.Decisions)
	assert.Equal(t, 6, agg.Tenders)

	require.Len(t, agg.Categories, 3)
	byCat := map[string]CategoryStat{}
	for _, c := range agg.Categories {
		byCat[c.Category] = c
	}
	assert.Equal(t, CategoryStat{Category: model.CategoryEvents, Tracked: 2, AvgScoreTracked: 0.7}, byCat[model.CategoryEvents])
	assert.Equal(t, CategoryStat{Category: model.CategoryIT, Ignored: 3, AvgScoreIgnored: 0.583}, byCat[model.CategoryIT])
	assert.Equal(t, 1, byCat[model.CategoryMarketing].Tracked)

	assert.Equal(t, []AgencyStat{{Agency: "Leisure and Cultural Services Department", Tracked: 2}}, agg.MissedAgencies)
	assert.Equal(t, []TermStat{{Term: "lantern", Tenders: 3}, {Term: "carnival", Tenders: 2}}, agg.CandidateTerms)
}

func TestTitleTerms(t *testing.T) {
	got := titleTerms("Provision of Services for the 2026 Mid-Autumn Lantern Carnival (Phase 2)")
	assert.Equal(t, map[string]bool{"mid-autumn": true, "lantern": true, "carnival": true, "phase": true}, got)
}

func TestHeuristics(t *testing.T) {
	p := evaluate.DefaultProfile()
	recs := Heuristics(Aggregate(calibrationRecords(), p), p, 90)

	require.Len(t, recs, 3)
	assert.Equal(t, model.RecAddKnownAgency, recs[0].Type)
	assert.Equal(t, "Leisure and Cultural Services Department", recs[0].Target)
	assert.Equal(t, 0.7, recs[0].Confidence)
	assert.Contains(t, recs[0].Evidence, "2 tenders")

	assert.Equal(t, model.RecAddKeyword, recs[1].Type)
	assert.Equal(t, "lantern", recs[1].Target)

	assert.Equal(t, model.RecDowngradeCategory, recs[2].Type)
	assert.Equal(t, model.CategoryIT, recs[2].Target)
	assert.Equal(t, "Team ignored all 3 IT_digital tenders (average score 0.58)", recs[2].Evidence)

	for _, rec := range recs {
		assert.NoError(t, CheckRecommendation(&rec, p))
	}
}

func TestHeuristics_SkipsAlreadyDowngraded(t *testing.T) {
	p := evaluate.DefaultProfile()
	p.DowngradedCategories = []string{model.CategoryIT}
	for _, rec := range Heuristics(Aggregate(calibrationRecords(), p), p, 90) {
		assert.NotEqual(t, model.RecDowngradeCategory, rec.Type)
	}
}
