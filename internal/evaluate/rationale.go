package evaluate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/tender-intel/internal/model"
)

var signalPhrases = map[string]string{
	SignalCategoryMatch:       "category match with our competencies",
	SignalAgencyFamiliarity:   "an agency we have worked with",
	SignalDeliveryScale:       "a delivery scale within team capacity",
	SignalKeywordOverlap:      "overlap with our track record",
	SignalGeographicFit:       "jurisdiction fit",
	SignalBudget:              "the stated budget",
	SignalBudgetProxy:         "the likely budget size",
	SignalStrategicBeachhead:  "a new-agency beachhead",
	SignalCategoryGrowth:      "category spend growth",
	SignalTimeToDeadline:      "time left to respond",
	SignalRecurrencePotential: "recurring work potential",
}

type contribution struct {
	name   string
	signal float64
	value  float64
}

// contributions weights every active signal by its share of the overall
// score. The unused budget signal is left out.
func contributions(s Score, w model.Weights) []contribution {
	capWeights := map[string]float64{
		SignalCategoryMatch:     w.Capability.CategoryMatch,
		SignalAgencyFamiliarity: w.Capability.AgencyFamiliarity,
		SignalDeliveryScale:     w.Capability.DeliveryScale,
		SignalKeywordOverlap:    w.Capability.KeywordOverlap,
		SignalGeographicFit:     w.Capability.GeographicFit,
	}
	bizWeights := map[string]float64{
		SignalBudget:              w.Business.Budget,
		SignalBudgetProxy:         w.Business.BudgetProxy,
		SignalStrategicBeachhead:  w.Business.StrategicBeachhead,
		SignalCategoryGrowth:      w.Business.CategoryGrowth,
		SignalTimeToDeadline:      w.Business.TimeToDeadline,
		SignalRecurrencePotential: w.Business.RecurrencePotential,
	}
	budgetUsed := s.BusinessSignals[SignalBudget] > 0

	var out []contribution
	for name, weight := range capWeights {
		if weight <= 0 {
			continue
		}
		v := s.CapabilitySignals[name]
		out = append(out, contribution{name: name, signal: v, value: v * weight * w.Overall.Capability})
	}
	for name, weight := range bizWeights {
		if weight <= 0 || (name == SignalBudget && !budgetUsed) || (name == SignalBudgetProxy && budgetUsed) {
			continue
		}
		v := s.BusinessSignals[name]
		out = append(out, contribution{name: name, signal: v, value: v * weight * w.Overall.Business})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].value != out[j].value {
			return out[i].value > out[j].value
		}
		return out[i].name < out[j].name
	})
	return out
}

// TemplateRationale explains a score without a language model: the two
// largest weighted contributions and the weakest active signal.
func TemplateRationale(s Score, w model.Weights) string {
	cs := contributions(s, w)
	var b strings.Builder
	fmt.Fprintf(&b, "Scored %s (overall %.2f; capability %.2f, business %.2f).",
		s.Label, s.Overall, s.CapabilityFit, s.BusinessPotential)
	if len(cs) == 0 {
		return b.String()
	}

	var strengths []string
	for _, c := range cs {
		if len(strengths) == 2 || c.value <= 0 {
			break
		}
		strengths = append(strengths, signalPhrases[c.name])
	}
	if len(strengths) > 0 {
		fmt.Fprintf(&b, " Strongest signals: %s.", strings.Join(strengths, " and "))
	}

	weakest := cs[0]
	for _, c := range cs[1:] {
		if c.signal < weakest.signal || (c.signal == weakest.signal && c.name < weakest.name) {
			weakest = c
		}
	}
	if weakest.signal < 0.5 {
		fmt.Fprintf(&b, " Main concern: %s (%.2f).", signalPhrases[weakest.name], weakest.signal)
	}
	return b.String()
}
