package ingest

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-intel/internal/fetcher"
	"github.com/sells-group/tender-intel/internal/model"
)

// FeedHandler reads RSS/Atom feeds and XML row exports.
type FeedHandler struct {
	fetcher fetcher.Fetcher
	now     func() time.Time
}

// NewFeedHandler creates a FeedHandler.
func NewFeedHandler(f fetcher.Fetcher) *FeedHandler {
	return &FeedHandler{fetcher: f, now: time.Now}
}

// Family implements Handler.
func (h *FeedHandler) Family() model.Family { return model.FamilyFeed }

// Fetch implements Handler.
func (h *FeedHandler) Fetch(ctx context.Context, src *model.Source, _ map[string]bool) (*Outcome, error) {
	resp, err := h.fetcher.Get(ctx, src.FetchURL)
	if err != nil {
		return nil, fetchError(err)
	}
	if !resp.OK() {
		return nil, fetchError(eris.Errorf("feed: http %d from %s", resp.StatusCode, src.FetchURL))
	}

	if src.SourceType == model.SourceAPIXML {
		return h.xmlRows(ctx, src, resp.Body)
	}
	return h.feedItems(ctx, src, resp.Body)
}

func (h *FeedHandler) feedItems(ctx context.Context, src *model.Source, body []byte) (*Outcome, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, parseError(eris.Wrap(err, "feed: parse"))
	}

	// Keep the verbatim item markup as the payload when the element count
	// lines up with what gofeed parsed.
	rowName := "item"
	if feed.FeedType == "atom" {
		rowName = "entry"
	}
	raws, err := fetcher.ReadXMLRows(ctx, bytes.NewReader(body), rowName)
	if err != nil || len(raws) != len(feed.Items) {
		raws = nil
	}

	now := h.now().UTC()
	out := &Outcome{Rows: len(feed.Items)}
	for i, item := range feed.Items {
		if item == nil {
			continue
		}
		rec := make(map[string]string, len(item.Custom)+6)
		for k, v := range item.Custom {
			rec[k] = v
		}
		fields := MapFields(rec, src.FieldMap)
		setIfEmpty(fields, model.FieldTitle, item.Title)
		setIfEmpty(fields, model.FieldLink, item.Link)
		setIfEmpty(fields, model.FieldDescription, firstNonEmpty(item.Description, item.Content))
		setIfEmpty(fields, model.FieldPublishDate, firstNonEmpty(item.Published, item.Updated))
		setIfEmpty(fields, model.FieldCategory, strings.Join(item.Categories, ", "))
		if item.Author != nil {
			setIfEmpty(fields, model.FieldAgency, item.Author.Name)
		}

		guid := firstNonEmpty(item.GUID, fields[model.FieldGUID])
		if guid == "" {
			guid = ItemGUID(fields[model.FieldTitle], fields[model.FieldLink])
		}
		fields[model.FieldGUID] = guid

		var payload string
		if raws != nil {
			payload = raws[i].Raw
		} else if payload, err = CanonicalPayload(item); err != nil {
			zap.L().Debug("feed: payload fallback failed", zap.String("source_id", src.ID), zap.Error(err))
			continue
		}

		out.Captures = append(out.Captures, model.RawCapture{
			SourceID:   src.ID,
			ItemGUID:   guid,
			ItemURL:    fields[model.FieldLink],
			RawFormat:  model.RawRSS,
			Payload:    payload,
			Fields:     fields,
			CapturedAt: now,
		})
	}
	return out, nil
}

func (h *FeedHandler) xmlRows(ctx context.Context, src *model.Source, body []byte) (*Outcome, error) {
	rows, err := fetcher.ReadXMLRows(ctx, bytes.NewReader(body), src.FieldMap[directiveRow])
	if err != nil {
		return nil, parseError(eris.Wrap(err, "feed: read xml rows"))
	}
	now := h.now().UTC()
	out := &Outcome{Rows: len(rows)}
	for _, row := range rows {
		c, err := recordCapture(src, row.Fields, model.RawXML, row.Raw, now)
		if err != nil {
			return nil, parseError(err)
		}
		out.Captures = append(out.Captures, c)
	}
	if out.Rows == 0 && src.LastRowCount > 0 {
		out.StructureChanged = true
		out.Detail = "xml export contained no rows"
	}
	return out, nil
}

func setIfEmpty(m map[string]string, key, value string) {
	if m[key] != "" {
		return
	}
	if v := strings.TrimSpace(value); v != "" {
		m[key] = v
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
