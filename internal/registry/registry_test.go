package registry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HTTPS://WWW.GLD.gov.hk:443/en/tenders/#top", "https://www.gld.gov.hk/en/tenders"},
		{"https://www.gld.gov.hk/en/tenders", "https://www.gld.gov.hk/en/tenders"},
		{"http://data.gov.hk:8080/feed", "http://data.gov.hk:8080/feed"},
		{"https://x.gov.hk/list?b=2&a=1", "https://x.gov.hk/list?a=1&b=2"},
		{"https://x.gov.hk/", "https://x.gov.hk"},
		{"ftp://ftp.example.gov.sg:21/pub/tenders.csv", "ftp://ftp.example.gov.sg/pub/tenders.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NormalizeURL("/relative/path")
	assert.Error(t, err)
}

func TestSourceID(t *testing.T) {
	id, err := SourceID(model.JurisdictionHK, "https://www.gld.gov.hk/en/tenders/")
	require.NoError(t, err)
	assert.Equal(t, "hk-gld-gov-hk-5b3c68", id)

	again, err := SourceID(model.JurisdictionHK, "HTTPS://WWW.GLD.GOV.HK/en/tenders#latest")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	sg, err := SourceID(model.JurisdictionSG, "https://www.gebiz.gov.sg/rss/opportunities.xml")
	require.NoError(t, err)
	assert.Equal(t, "sg-gebiz-gov-sg-85b728", sg)

	long, err := SourceID(model.JurisdictionHK, "https://procurement.some-very-long-department.gov.hk/feed")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(long), len("hk-")+maxSlugLen+len("-abcdef"))
}

const catalogYAML = `sources:
  - name: GLD Tender Notices
    organisation: Government Logistics Department
    jurisdiction: HK
    source_type: rss_xml
    fetch_url: https://www.gld.gov.hk/en/tenders
    default_categories: [supplies_procurement]
    reliability_score: 0.9
    status: active
  - name: GeBIZ Opportunities
    jurisdiction: SG
    source_type: html_list
    fetch_url: https://www.gebiz.gov.sg/opportunities
    scrape_rules:
      row_selector: table.opps tr
      fields:
        title: td.title a
        source_url: td.title a@href
  - name: Broken entry
    jurisdiction: MY
    source_type: pdf
    fetch_url: not a url
`

func TestLoadCatalogAndImport(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o644))
	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, cat.Sources, 3)

	res, err := Import(ctx, st, cat.Sources)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 0, res.Updated)
	require.Len(t, res.Invalid, 1)
	assert.Equal(t, 2, res.Invalid[0].Index)
	assert.Contains(t, res.Invalid[0].Reason, `unknown jurisdiction "MY"`)
	assert.Contains(t, res.Invalid[0].Reason, `unknown source type "pdf"`)

	gld, err := st.GetSource(ctx, "hk-gld-gov-hk-5b3c68")
	require.NoError(t, err)
	assert.Equal(t, model.SourceActive, gld.Status)
	assert.Equal(t, 0.9, gld.ReliabilityScore)
	assert.Equal(t, model.AccessPublic, gld.AccessLevel)

	sgID, err := SourceID(model.JurisdictionSG, "https://www.gebiz.gov.sg/opportunities")
	require.NoError(t, err)
	gebiz, err := st.GetSource(ctx, sgID)
	require.NoError(t, err)
	assert.Equal(t, model.SourcePendingValidation, gebiz.Status)
	assert.Equal(t, defaultReliability, gebiz.ReliabilityScore)
	require.NotNil(t, gebiz.ScrapeRules)
	assert.Equal(t, "td.title a@href", gebiz.ScrapeRules.Fields["source_url"])

	t.Run("reimport keeps health", func(t *testing.T) {
		_, err := st.RecordSourceHealth(ctx, model.SourceHealth{
			SourceID:  gld.ID,
			Status:    model.FetchError,
			Detail:    "timeout",
			CheckedAt: time.Now(),
		})
		require.NoError(t, err)

		res, err := Import(ctx, st, cat.Sources[:1])
		require.NoError(t, err)
		assert.Equal(t, 1, res.Updated)

		got, err := st.GetSource(ctx, gld.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.ConsecutiveFailures)
		assert.Equal(t, model.FetchError, got.LastStatus)
	})
}

func TestValidateSource(t *testing.T) {
	src := &model.Source{
		Name:              "Listing without rules",
		Jurisdiction:      model.JurisdictionHK,
		SourceType:        model.SourceHTML,
		FetchURL:          "https://example.gov.hk/tenders",
		Status:            model.SourceActive,
		ReliabilityScore:  1.5,
		DefaultCategories: []string{"catering"},
	}
	err := ValidateSource(src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reliability_score outside [0,1]")
	assert.Contains(t, err.Error(), `unknown default category "catering"`)
	assert.Contains(t, err.Error(), "scrape_rules.row_selector")
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := Import(ctx, st, []model.Source{{
		ID:           "hk-gld",
		Name:         "GLD Tender Notices",
		Jurisdiction: model.JurisdictionHK,
		SourceType:   model.SourceRSS,
		FetchURL:     "https://www.gld.gov.hk/en/tenders",
		Status:       model.SourceActive,
	}})
	require.NoError(t, err)
	_, err = st.RecordSourceHealth(ctx, model.SourceHealth{SourceID: "hk-gld", Status: model.FetchOK, RowCount: 12, CheckedAt: time.Now()})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := Export(ctx, st, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	out := buf.String()
	assert.Contains(t, out, "source_id: hk-gld")
	assert.Contains(t, out, "fetch_url: https://www.gld.gov.hk/en/tenders")
	assert.NotContains(t, out, "row_count")
	assert.NotContains(t, out, "consecutive_failures")
}

func TestDeprecate(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := Import(ctx, st, []model.Source{{
		ID: "hk-old", Name: "Old feed", Jurisdiction: model.JurisdictionHK,
		SourceType: model.SourceRSS, FetchURL: "https://old.gov.hk/rss", Status: model.SourceActive,
	}})
	require.NoError(t, err)

	require.NoError(t, Deprecate(ctx, st, "hk-old", "replaced by open data API"))
	got, err := st.GetSource(ctx, "hk-old")
	require.NoError(t, err)
	assert.Equal(t, model.SourceDeprecated, got.Status)

	assert.Error(t, Deprecate(ctx, st, "missing", ""))
}

func TestHealthSummary(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sources := []model.Source{
		{ID: "a-ok", Status: model.SourceActive},
		{ID: "b-broken", Status: model.SourceBroken, LastStatus: model.FetchError, LastStatusDetail: "HTTP 503", ConsecutiveFailures: 3},
		{ID: "c-changed", Status: model.SourceFormatChanged, LastStatus: model.FetchStructureChanged},
		{ID: "d-pending", Status: model.SourcePendingValidation},
		{ID: "e-retired", Status: model.SourceDeprecated},
		{ID: "f-flaky", Status: model.SourceActive, LastStatus: model.FetchParseError, ConsecutiveFailures: 1},
	}
	for i := range sources {
		sources[i].Name = sources[i].ID
		sources[i].Jurisdiction = model.JurisdictionHK
		sources[i].SourceType = model.SourceRSS
		sources[i].FetchURL = "https://" + sources[i].ID + ".gov.hk/rss"
		require.NoError(t, st.UpsertSource(ctx, &sources[i]))
	}

	h, err := HealthSummary(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 5, h.Total)
	assert.Equal(t, 1, h.Active)
	assert.Equal(t, 3, h.Failing)
	assert.Equal(t, 1, h.Pending)
	assert.Equal(t, []string{
		"b-broken: broken (fetch_error: HTTP 503), 3 consecutive failures",
		"c-changed: format_changed (structure_changed)",
		"f-flaky: active (parse_error), 1 consecutive failures",
	}, h.Issues)
}
