package model

import "time"

// Jurisdiction identifies the procurement regime a source or tender belongs to.
type Jurisdiction string

const (
	JurisdictionHK     Jurisdiction = "HK"
	JurisdictionSG     Jurisdiction = "SG"
	JurisdictionGlobal Jurisdiction = "Global"
)

// OwnerType classifies who publishes a source.
type OwnerType string

const (
	OwnerGovernment OwnerType = "government"
	OwnerPublicBody OwnerType = "public_body"
	OwnerAggregator OwnerType = "aggregator"
	OwnerOther      OwnerType = "other"
)

// SourceType is the wire format a source publishes in.
type SourceType string

const (
	SourceRSS     SourceType = "rss_xml"
	SourceAPIXML  SourceType = "api_xml"
	SourceCSV     SourceType = "csv_open_data"
	SourceXLSX    SourceType = "xlsx_open_data"
	SourceAPIJSON SourceType = "api_json"
	SourceHTML    SourceType = "html_list"
	SourceHub     SourceType = "html_hub"
)

// Family is the closed set of ingestion variants. Each family has exactly
// one handler and all of them emit RawCapture records.
type Family string

const (
	FamilyFeed    Family = "feed"
	FamilyListing Family = "listing"
	FamilyTabular Family = "tabular"
	FamilyNone    Family = ""
)

// Families lists the ingestable families in a fixed order.
var Families = []Family{FamilyFeed, FamilyListing, FamilyTabular}

// Family maps a source type to its ingestion variant. Hub pages are only
// crawled by discovery and have no ingestion family.
func (t SourceType) Family() Family {
	switch t {
	case SourceRSS, SourceAPIXML:
		return FamilyFeed
	case SourceHTML:
		return FamilyListing
	case SourceCSV, SourceXLSX, SourceAPIJSON:
		return FamilyTabular
	default:
		return FamilyNone
	}
}

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceRSS, SourceAPIXML, SourceCSV, SourceXLSX, SourceAPIJSON, SourceHTML, SourceHub:
		return true
	}
	return false
}

// AccessLevel describes whether a source can be read anonymously.
type AccessLevel string

const (
	AccessPublic        AccessLevel = "public"
	AccessLoginRequired AccessLevel = "login_required"
	AccessRestricted    AccessLevel = "restricted"
)

// SourceStatus is the registry lifecycle state.
type SourceStatus string

const (
	SourceActive            SourceStatus = "active"
	SourceBroken            SourceStatus = "broken"
	SourceFormatChanged     SourceStatus = "format_changed"
	SourcePendingValidation SourceStatus = "pending_validation"
	SourceDeprecated        SourceStatus = "deprecated"
)

// Valid reports whether s is a known lifecycle state.
func (s SourceStatus) Valid() bool {
	switch s {
	case SourceActive, SourceBroken, SourceFormatChanged, SourcePendingValidation, SourceDeprecated:
		return true
	}
	return false
}

// FetchStatus is the outcome of the most recent ingestion attempt.
type FetchStatus string

const (
	FetchOK               FetchStatus = "ok"
	FetchError            FetchStatus = "fetch_error"
	FetchParseError       FetchStatus = "parse_error"
	FetchStructureChanged FetchStatus = "structure_changed"
)

// Pagination styles for HTML listings.
const (
	PaginationNone       = "none"
	PaginationQueryParam = "query_param"
	PaginationNextLink   = "next_link"
)

// ScrapeRules drive the HTML listing handler. Field selectors are relative to
// a row; a selector ending in "@attr" reads that attribute instead of text.
type ScrapeRules struct {
	RowSelector string            `json:"row_selector" yaml:"row_selector"`
	Fields      map[string]string `json:"fields" yaml:"fields"`
	Pagination  Pagination        `json:"pagination" yaml:"pagination"`
}

// Pagination configures how further listing pages are reached.
type Pagination struct {
	Style        string `json:"style" yaml:"style"`
	Param        string `json:"param,omitempty" yaml:"param,omitempty"`
	NextSelector string `json:"next_selector,omitempty" yaml:"next_selector,omitempty"`
	MaxPages     int    `json:"max_pages,omitempty" yaml:"max_pages,omitempty"`
}

// Source is one registry entry.
type Source struct {
	ID                  string            `json:"source_id" yaml:"source_id"`
	Name                string            `json:"name" yaml:"name"`
	Organisation        string            `json:"organisation,omitempty" yaml:"organisation,omitempty"`
	Jurisdiction        Jurisdiction      `json:"jurisdiction" yaml:"jurisdiction"`
	OwnerType           OwnerType         `json:"owner_type" yaml:"owner_type"`
	SourceType          SourceType        `json:"source_type" yaml:"source_type"`
	AccessLevel         AccessLevel       `json:"access_level" yaml:"access_level"`
	FetchURL            string            `json:"fetch_url" yaml:"fetch_url"`
	FieldMap            map[string]string `json:"field_map,omitempty" yaml:"field_map,omitempty"`
	ScrapeRules         *ScrapeRules      `json:"scrape_rules,omitempty" yaml:"scrape_rules,omitempty"`
	ParsingNotes        string            `json:"parsing_notes,omitempty" yaml:"parsing_notes,omitempty"`
	DefaultCategories   []string          `json:"default_categories,omitempty" yaml:"default_categories,omitempty"`
	Priority            int               `json:"priority" yaml:"priority"`
	ReliabilityScore    float64           `json:"reliability_score" yaml:"reliability_score"`
	Status              SourceStatus      `json:"status" yaml:"status"`
	LastCheckedAt       *time.Time        `json:"last_checked_at,omitempty" yaml:"-"`
	LastStatus          FetchStatus       `json:"last_status,omitempty" yaml:"-"`
	LastStatusDetail    string            `json:"last_status_detail,omitempty" yaml:"-"`
	LastRowCount        int               `json:"last_row_count" yaml:"-"`
	ConsecutiveFailures int               `json:"consecutive_failures" yaml:"-"`
	CreatedAt           time.Time         `json:"created_at" yaml:"-"`
	UpdatedAt           time.Time         `json:"updated_at" yaml:"-"`
}

// Ingestable reports whether the daily ingestion run should fetch this source.
func (s *Source) Ingestable() bool {
	if s.SourceType.Family() == FamilyNone {
		return false
	}
	return s.Status == SourceActive || s.Status == SourcePendingValidation
}

// SourceHealth is the per-source outcome written back to the registry after a fetch.
type SourceHealth struct {
	SourceID  string      `json:"source_id"`
	Status    FetchStatus `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	RowCount  int         `json:"row_count"`
	CheckedAt time.Time   `json:"checked_at"`
}
