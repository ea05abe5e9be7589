package model

import "time"

// RawFormat describes the shape of a captured payload.
type RawFormat string

const (
	RawRSS  RawFormat = "rss_xml"
	RawXML  RawFormat = "xml_row"
	RawHTML RawFormat = "html_fragment"
	RawCSV  RawFormat = "csv_row"
	RawJSON RawFormat = "api_json"
)

// RawCapture is the immutable snapshot of one item as it was fetched. Only
// Normalised ever changes after insert.
type RawCapture struct {
	ID         string            `json:"id"`
	SourceID   string            `json:"source_id"`
	ItemGUID   string            `json:"item_guid"`
	ItemURL    string            `json:"item_url,omitempty"`
	RawFormat  RawFormat         `json:"raw_format"`
	Payload    string            `json:"payload"`
	Fields     map[string]string `json:"fields,omitempty"`
	CapturedAt time.Time         `json:"captured_at"`
	Normalised bool              `json:"normalised"`
}

// Field returns the pre-extracted value for key, or "".
func (c *RawCapture) Field(key string) string {
	if c.Fields == nil {
		return ""
	}
	return c.Fields[key]
}

// Canonical field keys produced by every ingestion handler.
const (
	FieldTitle       = "title"
	FieldLink        = "link"
	FieldDescription = "description"
	FieldPublishDate = "publish_date"
	FieldClosingDate = "closing_date"
	FieldAgency      = "agency"
	FieldTenderRef   = "tender_ref"
	FieldCategory    = "category"
	FieldBudget      = "budget"
	FieldCurrency    = "currency"
	FieldGUID        = "guid"
	FieldRequiredFTE = "required_fte"
)
