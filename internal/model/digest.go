package model

import "time"

// DigestAction is a follow-up offered on a digest entry.
type DigestAction string

const (
	ActionTrack        DigestAction = "track"
	ActionIgnore       DigestAction = "ignore"
	ActionPartnerOnly  DigestAction = "partner_only"
	ActionNotForUs     DigestAction = "not_for_us"
	ActionAssignToTeam DigestAction = "assign_to_team"
)

// DigestEntry is one ranked tender in the digest.
type DigestEntry struct {
	Rank          int            `json:"rank"`
	TenderID      string         `json:"tender_id"`
	Title         string         `json:"title"`
	Agency        string         `json:"agency"`
	Jurisdiction  Jurisdiction   `json:"jurisdiction"`
	TenderRef     string         `json:"tender_ref"`
	Label         Label          `json:"label"`
	OverallScore  float64        `json:"overall_score"`
	ClosingDate   *time.Time     `json:"closing_date,omitempty"`
	DaysRemaining *int           `json:"days_remaining,omitempty"`
	Budget        string         `json:"budget_display"`
	SourceURL     string         `json:"source_url,omitempty"`
	Rationale     string         `json:"rationale,omitempty"`
	Categories    []string       `json:"category_tags"`
	Actions       []DigestAction `json:"actions"`
}

// DigestSection groups ranked entries for one jurisdiction.
type DigestSection struct {
	Jurisdiction Jurisdiction  `json:"jurisdiction"`
	Entries      []DigestEntry `json:"entries"`
}

// DigestStats summarises the day's pipeline state.
type DigestStats struct {
	NewTendersTotal int      `json:"new_tenders_total"`
	HKCount         int      `json:"hk_count"`
	SGCount         int      `json:"sg_count"`
	SourcesActive   int      `json:"sources_active"`
	SourcesFailed   int      `json:"sources_failed"`
	SourceIssues    []string `json:"source_issues,omitempty"`
}

// Digest is the daily shortlist artifact.
type Digest struct {
	ID          string          `json:"id"`
	Date        string          `json:"digest_date"`
	Subject     string          `json:"subject"`
	Narrative   string          `json:"narrative"`
	Sections    []DigestSection `json:"sections"`
	ClosingSoon []DigestEntry   `json:"closing_soon"`
	Stats       DigestStats     `json:"stats"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// TenderIDs returns every tender surfaced by the digest, without repeats.
func (d *Digest) TenderIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(entries []DigestEntry) {
		for _, e := range entries {
			if !seen[e.TenderID] {
				seen[e.TenderID] = true
				ids = append(ids, e.TenderID)
			}
		}
	}
	for _, s := range d.Sections {
		add(s.Entries)
	}
	add(d.ClosingSoon)
	return ids
}

// PriorityCount counts Priority entries across sections.
func (d *Digest) PriorityCount() int {
	n := 0
	for _, s := range d.Sections {
		for _, e := range s.Entries {
			if e.Label == LabelPriority {
				n++
			}
		}
	}
	return n
}
