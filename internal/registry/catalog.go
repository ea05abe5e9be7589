// Package registry imports, exports and summarises the source catalog.
package registry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/store"
)

const defaultReliability = 0.5

// Catalog is the YAML document holding static source entries.
type Catalog struct {
	Sources []model.Source `yaml:"sources"`
}

// LoadCatalog reads a YAML catalog from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read catalog")
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal catalog")
	}
	return &c, nil
}

// EntryError reports a catalog entry that could not be imported.
type EntryError struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ImportResult counts what an import did.
type ImportResult struct {
	Created int          `json:"created"`
	Updated int          `json:"updated"`
	Invalid []EntryError `json:"invalid,omitempty"`
}

// Import upserts catalog entries. Entries without an id get one derived from
// their fetch URL. Existing sources keep their health history and creation
// time. Invalid entries are reported and skipped.
func Import(ctx context.Context, st store.Store, sources []model.Source) (*ImportResult, error) {
	log := zap.L().With(zap.String("component", "registry"))
	res := &ImportResult{}

	for i := range sources {
		src := sources[i]
		applyDefaults(&src)
		if err := ValidateSource(&src); err != nil {
			res.Invalid = append(res.Invalid, EntryError{Index: i, Name: src.Name, Reason: err.Error()})
			continue
		}
		if src.ID == "" {
			id, err := SourceID(src.Jurisdiction, src.FetchURL)
			if err != nil {
				res.Invalid = append(res.Invalid, EntryError{Index: i, Name: src.Name, Reason: err.Error()})
				continue
			}
			src.ID = id
		}

		existing, err := st.GetSource(ctx, src.ID)
		switch {
		case err == nil:
			carryHealth(&src, existing)
			res.Updated++
		case eris.Is(err, store.ErrNotFound):
			res.Created++
		default:
			return res, eris.Wrapf(err, "registry: load source %s", src.ID)
		}
		if err := st.UpsertSource(ctx, &src); err != nil {
			return res, eris.Wrapf(err, "registry: upsert source %s", src.ID)
		}
	}

	log.Info("catalog imported",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("invalid", len(res.Invalid)),
	)
	return res, nil
}

func applyDefaults(src *model.Source) {
	src.Name = strings.TrimSpace(src.Name)
	src.FetchURL = strings.TrimSpace(src.FetchURL)
	if src.Status == "" {
		src.Status = model.SourcePendingValidation
	}
	if src.AccessLevel == "" {
		src.AccessLevel = model.AccessPublic
	}
	if src.OwnerType == "" {
		src.OwnerType = model.OwnerGovernment
	}
	if src.ReliabilityScore == 0 {
		src.ReliabilityScore = defaultReliability
	}
}

func carryHealth(src, existing *model.Source) {
	src.CreatedAt = existing.CreatedAt
	src.LastCheckedAt = existing.LastCheckedAt
	src.LastStatus = existing.LastStatus
	src.LastStatusDetail = existing.LastStatusDetail
	src.LastRowCount = existing.LastRowCount
	src.ConsecutiveFailures = existing.ConsecutiveFailures
}

// ValidateSource checks the fields a catalog entry must carry. All problems
// are reported together.
func ValidateSource(src *model.Source) error {
	var problems []string
	if src.Name == "" {
		problems = append(problems, "name is required")
	}
	switch src.Jurisdiction {
	case model.JurisdictionHK, model.JurisdictionSG, model.JurisdictionGlobal:
	default:
		problems = append(problems, fmt.Sprintf("unknown jurisdiction %q", src.Jurisdiction))
	}
	if !src.SourceType.Valid() {
		problems = append(problems, fmt.Sprintf("unknown source type %q", src.SourceType))
	}
	if _, err := NormalizeURL(src.FetchURL); err != nil {
		problems = append(problems, fmt.Sprintf("bad fetch url %q", src.FetchURL))
	}
	switch src.Status {
	case model.SourceActive, model.SourceBroken, model.SourceFormatChanged,
		model.SourcePendingValidation, model.SourceDeprecated:
	default:
		problems = append(problems, fmt.Sprintf("unknown status %q", src.Status))
	}
	if src.ReliabilityScore < 0 || src.ReliabilityScore > 1 {
		problems = append(problems, "reliability_score outside [0,1]")
	}
	for _, c := range src.DefaultCategories {
		if !model.ValidCategory(c) {
			problems = append(problems, fmt.Sprintf("unknown default category %q", c))
		}
	}
	if src.SourceType == model.SourceHTML && (src.ScrapeRules == nil || src.ScrapeRules.RowSelector == "") {
		problems = append(problems, "html_list sources need scrape_rules.row_selector")
	}
	if len(problems) > 0 {
		return eris.Errorf("registry: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Export writes every registered source as a YAML catalog. Health fields are
// not part of the catalog.
func Export(ctx context.Context, st store.Store, w io.Writer) (int, error) {
	sources, err := st.ListSources(ctx, store.SourceFilter{})
	if err != nil {
		return 0, eris.Wrap(err, "registry: list sources")
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Catalog{Sources: sources}); err != nil {
		return 0, eris.Wrap(err, "registry: encode catalog")
	}
	return len(sources), eris.Wrap(enc.Close(), "registry: flush catalog")
}

// Deprecate retires a source. Sources are never deleted.
func Deprecate(ctx context.Context, st store.Store, id, reason string) error {
	if _, err := st.GetSource(ctx, id); err != nil {
		return eris.Wrapf(err, "registry: deprecate %s", id)
	}
	return eris.Wrapf(st.SetSourceStatus(ctx, id, model.SourceDeprecated, reason), "registry: deprecate %s", id)
}
