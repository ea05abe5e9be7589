package digest

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-intel/internal/model"
)

var (
	headerColor   = color.New(color.FgCyan, color.Bold)
	sectionColor  = color.New(color.Bold)
	priorityColor = color.New(color.FgGreen, color.Bold)
	considerColor = color.New(color.FgYellow)
	partnerColor  = color.New(color.FgMagenta)
	warnColor     = color.New(color.FgRed)
)

func labelString(l model.Label) string {
	switch l {
	case model.LabelPriority:
		return priorityColor.Sprint(string(l))
	case model.LabelConsider:
		return considerColor.Sprint(string(l))
	case model.LabelPartnerOnly:
		return partnerColor.Sprint(string(l))
	}
	return string(l)
}

func deadline(e *model.DigestEntry) string {
	if e.ClosingDate == nil {
		return "closing date not stated"
	}
	s := "closes " + e.ClosingDate.Format("2006-01-02")
	if e.DaysRemaining != nil {
		switch d := *e.DaysRemaining; d {
		case 0:
			s += " (today)"
		case 1:
			s += " (1 day)"
		default:
			s += fmt.Sprintf(" (%d days)", d)
		}
	}
	return s
}

// Render writes a plain-text view of the digest. Colour is off unless stdout
// is a terminal.
func Render(w io.Writer, d *model.Digest) error {
	var b strings.Builder
	headerColor.Fprintln(&b, d.Subject) //nolint:errcheck
	fmt.Fprintf(&b, "\n%s\n", d.Narrative)

	for _, s := range d.Sections {
		sectionColor.Fprintf(&b, "\n%s (%d)\n", s.Jurisdiction, len(s.Entries)) //nolint:errcheck
		for i := range s.Entries {
			e := &s.Entries[i]
			fmt.Fprintf(&b, "%2d. [%s %.2f] %s\n", e.Rank, labelString(e.Label), e.OverallScore, e.Title)
			fmt.Fprintf(&b, "    %s · %s · %s · %s\n", orDash(e.Agency), orDash(e.TenderRef), deadline(e), e.Budget)
			if e.Rationale != "" {
				fmt.Fprintf(&b, "    %s\n", e.Rationale)
			}
			if e.SourceURL != "" {
				fmt.Fprintf(&b, "    %s\n", e.SourceURL)
			}
		}
	}

	if len(d.ClosingSoon) > 0 {
		sectionColor.Fprintln(&b, "\nClosing soon") //nolint:errcheck
		for i := range d.ClosingSoon {
			e := &d.ClosingSoon[i]
			fmt.Fprintf(&b, "  - %s (%s): %s\n", e.Title, e.Jurisdiction, deadline(e))
		}
	}

	fmt.Fprintf(&b, "\nNew tenders (24h): %d (HK %d, SG %d) · sources active %d, failing %d\n",
		d.Stats.NewTendersTotal, d.Stats.HKCount, d.Stats.SGCount, d.Stats.SourcesActive, d.Stats.SourcesFailed)
	for _, issue := range d.Stats.SourceIssues {
		warnColor.Fprintf(&b, "  ! %s\n", issue) //nolint:errcheck
	}

	_, err := io.WriteString(w, b.String())
	return eris.Wrap(err, "digest: render")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
