package ingest

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-intel/internal/fetcher"
	"github.com/sells-group/tender-intel/internal/model"
)

// Downloader is the part of a fetcher the tabular handler needs. Both the
// HTTP and FTP fetchers satisfy it.
type Downloader interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// TabularHandler reads CSV, XLSX, and JSON open-data exports over HTTP or
// FTP, including exports bundled in a ZIP archive.
type TabularHandler struct {
	http    Downloader
	ftp     Downloader
	tempDir string
	now     func() time.Time
}

// NewTabularHandler creates a TabularHandler. ftp may be nil when no source
// publishes over FTP.
func NewTabularHandler(httpDL, ftpDL Downloader, tempDir string) *TabularHandler {
	return &TabularHandler{http: httpDL, ftp: ftpDL, tempDir: tempDir, now: time.Now}
}

// Family implements Handler.
func (h *TabularHandler) Family() model.Family { return model.FamilyTabular }

// Fetch implements Handler.
func (h *TabularHandler) Fetch(ctx context.Context, src *model.Source, _ map[string]bool) (*Outcome, error) {
	dl := h.http
	if strings.HasPrefix(strings.ToLower(src.FetchURL), "ftp://") {
		dl = h.ftp
	}
	if dl == nil {
		return nil, fetchError(eris.Errorf("tabular: no downloader for %s", src.FetchURL))
	}

	if h.tempDir != "" {
		if err := os.MkdirAll(h.tempDir, 0o755); err != nil {
			return nil, fetchError(eris.Wrap(err, "tabular: create temp dir"))
		}
	}
	dir, err := os.MkdirTemp(h.tempDir, "ingest-*")
	if err != nil {
		return nil, fetchError(eris.Wrap(err, "tabular: create temp dir"))
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	ext := urlExt(src.FetchURL)
	file := filepath.Join(dir, "payload"+ext)
	if _, err := dl.DownloadToFile(ctx, src.FetchURL, file); err != nil {
		return nil, fetchError(err)
	}

	if ext == ".zip" {
		extracted, err := fetcher.ExtractZIPData(file, dir, ".csv", ".xlsx", ".json")
		if err != nil {
			return nil, parseError(err)
		}
		file = extracted
		ext = strings.ToLower(filepath.Ext(extracted))
	}

	records, format, err := h.readRecords(ctx, src, file, ext)
	if err != nil {
		return nil, parseError(err)
	}

	now := h.now().UTC()
	out := &Outcome{Rows: len(records)}
	for _, rec := range records {
		c, err := recordCapture(src, rec, format, "", now)
		if err != nil {
			return nil, parseError(err)
		}
		out.Captures = append(out.Captures, c)
	}
	if out.Rows == 0 && src.LastRowCount > 0 {
		out.StructureChanged = true
		out.Detail = "export contained no data rows"
	}
	return out, nil
}

func (h *TabularHandler) readRecords(ctx context.Context, src *model.Source, file, ext string) ([]map[string]string, model.RawFormat, error) {
	kind := src.SourceType
	switch ext {
	case ".csv":
		kind = model.SourceCSV
	case ".xlsx":
		kind = model.SourceXLSX
	case ".json":
		kind = model.SourceAPIJSON
	}

	switch kind {
	case model.SourceXLSX:
		_, recs, err := fetcher.ReadXLSXRecords(file, fetcher.XLSXOptions{SheetName: src.FieldMap[directiveSheet]})
		return recs, model.RawCSV, err
	case model.SourceAPIJSON:
		f, err := os.Open(file)
		if err != nil {
			return nil, "", eris.Wrap(err, "tabular: open json")
		}
		defer f.Close() //nolint:errcheck
		items, err := fetcher.DecodeJSONItems(f, src.FieldMap[directiveItems])
		if err != nil {
			return nil, "", err
		}
		recs := make([]map[string]string, 0, len(items))
		for _, item := range items {
			recs = append(recs, fetcher.FlattenJSON(item))
		}
		return recs, model.RawJSON, nil
	default:
		f, err := os.Open(file)
		if err != nil {
			return nil, "", eris.Wrap(err, "tabular: open csv")
		}
		defer f.Close() //nolint:errcheck
		_, recs, err := fetcher.ReadCSVRecords(ctx, f)
		return recs, model.RawCSV, err
	}
}

func urlExt(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}
