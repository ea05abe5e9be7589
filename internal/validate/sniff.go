package validate

import (
	"bytes"
	"strings"

	"github.com/sells-group/tender-intel/internal/fetcher"
	"github.com/sells-group/tender-intel/internal/model"
)

var zipMagic = []byte("PK\x03\x04")

// SniffFormat classifies a response by content type, URL extension and
// leading bytes. It returns "" when the format is not one we ingest.
func SniffFormat(resp *fetcher.Response) model.SourceType {
	mt := resp.MediaType()
	lowerURL := strings.ToLower(resp.URL)
	head := bytes.TrimSpace(resp.Body)
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	if len(head) > 512 {
		head = head[:512]
	}
	lowerHead := bytes.ToLower(head)

	switch {
	case strings.Contains(mt, "spreadsheetml") || strings.Contains(mt, "ms-excel") ||
		bytes.HasPrefix(resp.Body, zipMagic) && strings.HasSuffix(pathOf(lowerURL), ".xlsx"):
		return model.SourceXLSX

	case strings.Contains(mt, "rss") || strings.Contains(mt, "atom"):
		return model.SourceRSS

	case strings.Contains(mt, "json") || bytes.HasPrefix(head, []byte("{")) || bytes.HasPrefix(head, []byte("[")):
		return model.SourceAPIJSON

	case strings.Contains(mt, "csv") || strings.HasSuffix(pathOf(lowerURL), ".csv"):
		return model.SourceCSV

	case bytes.Contains(lowerHead, []byte("<html")) || bytes.HasPrefix(lowerHead, []byte("<!doctype html")):
		return model.SourceHTML

	case bytes.Contains(lowerHead, []byte("<rss")) || bytes.Contains(lowerHead, []byte("<feed")) ||
		bytes.Contains(lowerHead, []byte("<rdf:rdf")):
		return model.SourceRSS

	case strings.HasPrefix(mt, "text/html"):
		return model.SourceHTML

	case strings.Contains(mt, "xml") || bytes.HasPrefix(head, []byte("<")):
		return model.SourceAPIXML

	case strings.HasPrefix(mt, "text/plain") && looksLikeCSV(head):
		return model.SourceCSV
	}
	return ""
}

func pathOf(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// looksLikeCSV reports whether the first line has at least two commas.
func looksLikeCSV(head []byte) bool {
	line, _, _ := bytes.Cut(head, []byte("\n"))
	return bytes.Count(line, []byte(",")) >= 2
}
