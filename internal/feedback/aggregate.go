package feedback

import (
	"sort"
	"strings"
	"unicode"

	"github.com/sells-group/tender-intel/internal/evaluate"
	"github.com/sells-group/tender-intel/internal/model"
)

const (
	minAgencyTracked = 2
	minTermTenders   = 2
	maxTerms         = 10
)

// CategoryStat is how the team treated one category tag.
type CategoryStat struct {
	Category        string  `json:"category"`
	Tracked         int     `json:"tracked"`
	Ignored         int     `json:"ignored"`
	AvgScoreTracked float64 `json:"avg_score_tracked"`
	AvgScoreIgnored float64 `json:"avg_score_ignored"`
}

// AgencyStat is an agency the team keeps pursuing that the profile does not
// know yet.
type AgencyStat struct {
	Agency  string `json:"agency"`
	Tracked int    `json:"tracked"`
}

// TermStat is a title term from tracked tenders missing from the keyword list.
type TermStat struct {
	Term    string `json:"term"`
	Tenders int    `json:"tenders"`
}

// Aggregates is the decision history summary handed to the reasoner and to
// the fallback heuristics.
type Aggregates struct {
	Decisions      int            `json:"decisions"`
	Tenders        int            `json:"tenders"`
	Categories     []CategoryStat `json:"categories"`
	MissedAgencies []AgencyStat   `json:"missed_agencies"`
	CandidateTerms []TermStat     `json:"candidate_keywords"`
}

// Aggregate summarises decisions per category, agency and title term. Only
// the latest decision per tender counts.
func Aggregate(records []model.DecisionRecord, p *model.Profile) Aggregates {
	latest := latestPerTender(records)
	agg := Aggregates{Decisions: len(records), Tenders: len(latest)}

	type catSums struct {
		CategoryStat
		sumTracked, sumIgnored float64
	}
	cats := make(map[string]*catSums)
	agencies := make(map[string]*AgencyStat)
	terms := make(map[string]int)

	for _, r := range latest {
		for _, c := range r.Categories {
			cs, ok := cats[c]
			if !ok {
				cs = &catSums{CategoryStat: CategoryStat{Category: c}}
				cats[c] = cs
			}
			switch {
			case r.Action.Positive():
				cs.Tracked++
				cs.sumTracked += r.OverallScore
			case r.Action.Negative():
				cs.Ignored++
				cs.sumIgnored += r.OverallScore
			}
		}

		if !r.Action.Positive() {
			continue
		}
		if name := strings.TrimSpace(r.Agency); name != "" && !evaluate.KnownAgency(name, p.KnownAgencies) {
			key := strings.ToLower(name)
			if a, ok := agencies[key]; ok {
				a.Tracked++
			} else {
				agencies[key] = &AgencyStat{Agency: name, Tracked: 1}
			}
		}
		for term := range titleTerms(r.Title) {
			if !coveredByKeyword(term, p.TrackRecordKeywords) {
				terms[term]++
			}
		}
	}

	for _, cs := range cats {
		st := cs.CategoryStat
		if st.Tracked > 0 {
			st.AvgScoreTracked = round3(cs.sumTracked / float64(st.Tracked))
		}
		if st.Ignored > 0 {
			st.AvgScoreIgnored = round3(cs.sumIgnored / float64(st.Ignored))
		}
		agg.Categories = append(agg.Categories, st)
	}
	sort.Slice(agg.Categories, func(i, j int) bool { return agg.Categories[i].Category < agg.Categories[j].Category })

	for _, a := range agencies {
		if a.Tracked >= minAgencyTracked {
			agg.MissedAgencies = append(agg.MissedAgencies, *a)
		}
	}
	sort.Slice(agg.MissedAgencies, func(i, j int) bool {
		if agg.MissedAgencies[i].Tracked != agg.MissedAgencies[j].Tracked {
			return agg.MissedAgencies[i].Tracked > agg.MissedAgencies[j].Tracked
		}
		return agg.MissedAgencies[i].Agency < agg.MissedAgencies[j].Agency
	})

	for term, n := range terms {
		if n >= minTermTenders {
			agg.CandidateTerms = append(agg.CandidateTerms, TermStat{Term: term, Tenders: n})
		}
	}
	sort.Slice(agg.CandidateTerms, func(i, j int) bool {
		if agg.CandidateTerms[i].Tenders != agg.CandidateTerms[j].Tenders {
			return agg.CandidateTerms[i].Tenders > agg.CandidateTerms[j].Tenders
		}
		return agg.CandidateTerms[i].Term < agg.CandidateTerms[j].Term
	})
	if len(agg.CandidateTerms) > maxTerms {
		agg.CandidateTerms = agg.CandidateTerms[:maxTerms]
	}
	return agg
}

// stopwords are procurement boilerplate that never make useful keywords.
var stopwords = map[string]bool{
	"provision": true, "services": true, "service": true, "supply": true, "tender": true,
	"contract": true, "with": true, "works": true, "term": true, "invitation": true,
	"quotation": true, "proposal": true, "request": true, "hong": true, "kong": true,
	"singapore": true, "government": true, "year": true, "years": true, "period": true,
	"from": true, "into": true, "other": true, "related": true,
}

// titleTerms returns the distinct meaningful lowercase words of a title.
func titleTerms(title string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	out := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.Trim(w, "-")
		if len([]rune(w)) < 4 || stopwords[w] || isNumeric(w) {
			continue
		}
		out[w] = true
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// coveredByKeyword reports whether a term already appears inside, or
// contains, a track-record keyword.
func coveredByKeyword(term string, keywords []string) bool {
	for _, k := range keywords {
		k = strings.ToLower(k)
		if strings.Contains(k, term) || strings.Contains(term, k) {
			return true
		}
	}
	return false
}
