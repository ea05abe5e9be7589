package ingest

import (
	"crypto/sha1" //nolint:gosec // content hash, not a security boundary
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-intel/internal/model"
)

// Field map directives. Keys starting with "_" configure the handler rather
// than map a column.
const (
	directiveRow   = "_row"
	directiveItems = "_items"
	directiveSheet = "_sheet"
)

// fieldAliases are the column names recognised when a source's field map
// does not name a column explicitly. Names are compared after foldKey.
var fieldAliases = map[string][]string{
	model.FieldTitle:       {"title", "subject", "tender title", "description of tender", "tender description", "tender subject", "name", "標題", "項目名稱"},
	model.FieldLink:        {"link", "url", "href", "tender url", "details url", "notice url"},
	model.FieldDescription: {"description", "details", "summary", "remarks", "內容"},
	model.FieldPublishDate: {"publish date", "published", "publication date", "date published", "issue date", "pubdate", "notice date", "date of issue", "刊登日期"},
	model.FieldClosingDate: {"closing date", "closingdate", "closing", "deadline", "tender closing date", "close date", "closing date time", "截標日期"},
	model.FieldAgency:      {"agency", "department", "procuring entity", "procuring department", "organisation", "organization", "bureau", "部門"},
	model.FieldTenderRef:   {"tender ref", "tender reference", "reference", "ref", "ref no", "tender no", "reference no", "reference number", "quotation no", "tender number", "編號"},
	model.FieldCategory:    {"category", "procurement category", "procurement type", "nature"},
	model.FieldBudget:      {"budget", "estimated value", "contract value", "estimated contract value", "amount"},
	model.FieldCurrency:    {"currency"},
	model.FieldGUID:        {"guid", "id", "notice id", "tender id"},
	model.FieldRequiredFTE: {"required fte", "fte"},
}

func foldKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// MapFields projects a source record onto the canonical field keys. Explicit
// field map entries win; aliases fill the rest.
func MapFields(rec map[string]string, fieldMap map[string]string) map[string]string {
	folded := make(map[string]string, len(rec))
	for k, v := range rec {
		fk := foldKey(k)
		if _, dup := folded[fk]; !dup {
			folded[fk] = v
		}
	}

	out := make(map[string]string)
	for canonical, column := range fieldMap {
		if strings.HasPrefix(canonical, "_") {
			continue
		}
		if v, ok := rec[column]; ok {
			out[canonical] = strings.TrimSpace(v)
		} else if v, ok := folded[foldKey(column)]; ok {
			out[canonical] = strings.TrimSpace(v)
		}
	}
	for canonical, names := range fieldAliases {
		if out[canonical] != "" {
			continue
		}
		for _, name := range names {
			if v := strings.TrimSpace(folded[name]); v != "" {
				out[canonical] = v
				break
			}
		}
	}
	for k, v := range out {
		if v == "" {
			delete(out, k)
		}
	}
	return out
}

// ItemGUID is the guid fallback for feed items without one.
func ItemGUID(title, link string) string {
	return shortSHA1(title+link, 16)
}

// RecordGUID identifies a tabular row by its canonical JSON, so the same
// row always yields the same guid whatever the column order.
func RecordGUID(rec map[string]string) (string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", eris.Wrap(err, "ingest: marshal record")
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", eris.Wrap(err, "ingest: canonicalise record")
	}
	return shortSHA1(string(canon), 16), nil
}

// CanonicalPayload serialises a record for storage.
func CanonicalPayload(rec any) (string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", eris.Wrap(err, "ingest: marshal payload")
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", eris.Wrap(err, "ingest: canonicalise payload")
	}
	return string(canon), nil
}

func shortSHA1(s string, n int) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:n]
}

// recordCapture builds a capture for a row-oriented record. The guid comes
// from the mapped guid column when present.
func recordCapture(src *model.Source, rec map[string]string, format model.RawFormat, payload string, now time.Time) (model.RawCapture, error) {
	fields := MapFields(rec, src.FieldMap)
	guid := fields[model.FieldGUID]
	if guid == "" {
		g, err := RecordGUID(rec)
		if err != nil {
			return model.RawCapture{}, err
		}
		guid = g
	}
	if payload == "" {
		p, err := CanonicalPayload(rec)
		if err != nil {
			return model.RawCapture{}, err
		}
		payload = p
	}
	return model.RawCapture{
		SourceID:   src.ID,
		ItemGUID:   guid,
		ItemURL:    fields[model.FieldLink],
		RawFormat:  format,
		Payload:    payload,
		Fields:     fields,
		CapturedAt: now,
	}, nil
}
