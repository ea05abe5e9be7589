package feedback

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/sells-group/tender-intel/internal/model"
)

const (
	maxRecommendations = 10
	minTermForKeyword  = 3
	minIgnoredCategory = 3
)

// Heuristics proposes profile changes from the aggregates alone. It runs
// when no reasoner is available and never proposes weight changes.
func Heuristics(agg Aggregates, p *model.Profile, days int) []model.Recommendation {
	var recs []model.Recommendation

	for _, a := range agg.MissedAgencies {
		recs = append(recs, model.Recommendation{
			Type:        model.RecAddKnownAgency,
			Target:      a.Agency,
			Description: fmt.Sprintf("Add %s to known agencies", a.Agency),
			Confidence:  capConfidence(0.5+0.1*float64(a.Tracked), 0.9),
			Evidence:    fmt.Sprintf("Team pursued %d tenders from %s in the last %d days", a.Tracked, a.Agency, days),
		})
	}

	for _, t := range agg.CandidateTerms {
		if t.Tenders < minTermForKeyword {
			continue
		}
		recs = append(recs, model.Recommendation{
			Type:        model.RecAddKeyword,
			Target:      t.Term,
			Description: fmt.Sprintf("Add %q to track-record keywords", t.Term),
			Confidence:  capConfidence(0.4+0.1*float64(t.Tenders), 0.8),
			Evidence:    fmt.Sprintf("%q appears in %d tracked tender titles", t.Term, t.Tenders),
		})
	}

	for _, c := range agg.Categories {
		if c.Tracked > 0 || c.Ignored < minIgnoredCategory || slices.Contains(p.DowngradedCategories, c.Category) {
			continue
		}
		if !slices.Contains(p.Competencies, c.Category) && !slices.Contains(p.AdjacentCategories, c.Category) {
			continue
		}
		recs = append(recs, model.Recommendation{
			Type:        model.RecDowngradeCategory,
			Target:      c.Category,
			Description: fmt.Sprintf("Downgrade %s: matched but never pursued", c.Category),
			Confidence:  capConfidence(0.4+0.1*float64(c.Ignored), 0.9),
			Evidence: fmt.Sprintf("Team ignored all %d %s tenders (average score %.2f)",
				c.Ignored, c.Category, c.AvgScoreIgnored),
		})
	}

	return rankRecommendations(recs)
}

func rankRecommendations(recs []model.Recommendation) []model.Recommendation {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Confidence > recs[j].Confidence
	})
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}

func capConfidence(v, ceiling float64) float64 {
	return math.Round(math.Min(v, ceiling)*100) / 100
}
