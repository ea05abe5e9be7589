package feedback

import (
	"math"
	"sort"

	"github.com/sells-group/tender-intel/internal/model"
)

// latestPerTender keeps the most recent decision for each tender. Records
// arrive ordered by decision time, so later entries win.
func latestPerTender(records []model.DecisionRecord) []model.DecisionRecord {
	idx := make(map[string]int, len(records))
	var out []model.DecisionRecord
	for _, r := range records {
		if i, ok := idx[r.TenderID]; ok {
			if !r.DecidedAt.Before(out[i].DecidedAt) {
				out[i] = r
			}
			continue
		}
		idx[r.TenderID] = len(out)
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TenderID < out[j].TenderID })
	return out
}

// recommended reports whether a label put the tender in front of the team.
func recommended(l model.Label) bool {
	return l == model.LabelPriority || l == model.LabelConsider
}

// Accuracy compares the label each tender carried when the team decided on
// it with the decision itself. A Priority or Consider label followed by a
// positive action is a true positive and by a rejection a false positive.
// A Partner-only or Ignore label that the team still pursued is a false
// negative. Only the latest decision per tender counts.
func Accuracy(records []model.DecisionRecord) model.Accuracy {
	var acc model.Accuracy
	for _, r := range latestPerTender(records) {
		switch {
		case r.Action.Positive() && recommended(r.Label):
			acc.TruePositives++
		case r.Action.Negative() && recommended(r.Label):
			acc.FalsePositives++
		case r.Action.Positive():
			acc.FalseNegatives++
		case r.Action.Negative():
			acc.TrueNegatives++
		default:
			continue
		}
		acc.Sample++
	}

	if d := acc.TruePositives + acc.FalsePositives; d > 0 {
		acc.Precision = round3(float64(acc.TruePositives) / float64(d))
	}
	if d := acc.TruePositives + acc.FalseNegatives; d > 0 {
		acc.Recall = round3(float64(acc.TruePositives) / float64(d))
	}
	if acc.Precision+acc.Recall > 0 {
		acc.F1 = round3(2 * acc.Precision * acc.Recall / (acc.Precision + acc.Recall))
	}
	return acc
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
