// Package ingest fetches every ingestable source and stores what it
// publishes as immutable raw captures.
package ingest

import (
	"context"
	"errors"

	"github.com/sells-group/tender-intel/internal/model"
)

// Handler fetches one family of sources. Every handler emits captures with
// the canonical field keys from the model package so the normalizer never
// needs to know where a capture came from.
type Handler interface {
	Family() model.Family
	// Fetch reads the source. known holds item guids already captured and
	// lets paginated handlers stop early.
	Fetch(ctx context.Context, src *model.Source, known map[string]bool) (*Outcome, error)
}

// Outcome is what a handler read from one source.
type Outcome struct {
	Captures         []model.RawCapture
	Rows             int
	StructureChanged bool
	Detail           string
}

// SourceError carries the health status a failed fetch should record.
type SourceError struct {
	Status model.FetchStatus
	Err    error
}

func (e *SourceError) Error() string {
	return string(e.Status) + ": " + e.Err.Error()
}

func (e *SourceError) Unwrap() error { return e.Err }

func fetchError(err error) error {
	return &SourceError{Status: model.FetchError, Err: err}
}

func parseError(err error) error {
	return &SourceError{Status: model.FetchParseError, Err: err}
}

// StatusOf maps a handler error to the health status it should record.
// Unclassified errors count as fetch errors.
func StatusOf(err error) model.FetchStatus {
	if err == nil {
		return model.FetchOK
	}
	var se *SourceError
	if errors.As(err, &se) {
		return se.Status
	}
	return model.FetchError
}
