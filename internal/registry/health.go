package registry

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/store"
)

// Health is the registry summary carried by the digest and the monitor.
type Health struct {
	Total   int      `json:"total"`
	Active  int      `json:"active"`
	Failing int      `json:"failing"`
	Pending int      `json:"pending"`
	Issues  []string `json:"issues,omitempty"`
}

// Failing reports whether a source needs attention: it is broken, its format
// changed, or its last fetch did not succeed.
func Failing(src *model.Source) bool {
	switch src.Status {
	case model.SourceBroken, model.SourceFormatChanged:
		return true
	case model.SourceActive:
		return src.LastStatus != "" && src.LastStatus != model.FetchOK
	}
	return false
}

// HealthSummary counts non-deprecated sources by state and lists an issue
// line for each failing one.
func HealthSummary(ctx context.Context, st store.Store) (*Health, error) {
	sources, err := st.ListSources(ctx, store.SourceFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "registry: list sources")
	}
	h := &Health{}
	for i := range sources {
		src := &sources[i]
		if src.Status == model.SourceDeprecated {
			continue
		}
		h.Total++
		switch {
		case Failing(src):
			h.Failing++
			h.Issues = append(h.Issues, issueLine(src))
		case src.Status == model.SourceActive:
			h.Active++
		case src.Status == model.SourcePendingValidation:
			h.Pending++
		}
	}
	return h, nil
}

func issueLine(src *model.Source) string {
	line := fmt.Sprintf("%s: %s", src.ID, src.Status)
	if src.LastStatus != "" && src.LastStatus != model.FetchOK {
		line += " (" + string(src.LastStatus)
		if src.LastStatusDetail != "" {
			line += ": " + src.LastStatusDetail
		}
		line += ")"
	}
	if src.ConsecutiveFailures > 0 {
		line += fmt.Sprintf(", %d consecutive failures", src.ConsecutiveFailures)
	}
	return line
}
