package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/pkg/anthropic"
)

const classifierSystem = `You extract structured fields from public procurement notices published by
Hong Kong and Singapore government departments and public bodies. Notices may be in English,
Traditional Chinese or Simplified Chinese. Reply with a single JSON object and nothing else.
Use null for anything the text does not state. Never guess dates or reference numbers.`

// maxSampleChars bounds how much raw text is sent per call.
const maxSampleChars = 6000

// Classifier is the lightweight collaborator used for structured-field
// recovery during ingestion and normalisation, and for relevance checks
// during source validation.
type Classifier struct {
	c *caller
}

// NewClassifier returns a classifier using the configured classifier model.
// A nil client yields a classifier that always reports ErrUnavailable.
func NewClassifier(client anthropic.Client, cfg config.AnthropicConfig, opts ...Option) *Classifier {
	return &Classifier{c: newCaller(client, "classifier", cfg.ClassifierModel, cfg, opts...)}
}

// Available reports whether the classifier will attempt calls.
func (c *Classifier) Available() bool {
	return c != nil && c.c.Available()
}

// ExtractFields recovers canonical capture fields from free text. Only
// non-empty values are returned.
func (c *Classifier) ExtractFields(ctx context.Context, text string) (map[string]string, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}
	user := "Extract title, agency, tender_ref, closing_date, publish_date, budget and description " +
		"from this notice:\n\n" + truncate(text, maxSampleChars)

	var out map[string]*string
	err := c.c.complete(ctx, "classifier_extract", anthropic.CachedSystem(classifierSystem), user, func(reply string) error {
		return decodeValidated(reply, extractionSchema, &out)
	})
	if err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(out))
	for k, v := range out {
		if v == nil {
			continue
		}
		if s := strings.TrimSpace(*v); s != "" {
			fields[k] = s
		}
	}
	return fields, nil
}

// Classify assigns category tags from vocabulary. Tags outside the
// vocabulary are dropped.
func (c *Classifier) Classify(ctx context.Context, text string, vocabulary []string) ([]string, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}
	user := fmt.Sprintf("Assign between one and four category tags to this tender. Allowed tags: %s.\n"+
		`Reply as {"category_tags": [...]}.`+"\n\n%s",
		strings.Join(vocabulary, ", "), truncate(text, maxSampleChars))

	var out struct {
		Tags []string `json:"category_tags"`
	}
	err := c.c.complete(ctx, "classifier_categories", anthropic.CachedSystem(classifierSystem), user, func(reply string) error {
		return decodeValidated(reply, classificationSchema, &out)
	})
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(vocabulary))
	for _, v := range vocabulary {
		allowed[v] = true
	}
	var tags []string
	for _, t := range out.Tags {
		if allowed[t] {
			tags = append(tags, t)
		}
	}
	return tags, nil
}

// IsTenderSource decides whether a page sample publishes procurement
// notices. Used when vocabulary checks are inconclusive.
func (c *Classifier) IsTenderSource(ctx context.Context, sample string) (bool, error) {
	if !c.Available() {
		return false, ErrUnavailable
	}
	user := "Does this page list public tenders, quotations or procurement notices? " +
		`Reply as {"is_tender_source": true|false, "reason": "..."}.` + "\n\n" + truncate(sample, maxSampleChars)

	var out struct {
		IsTenderSource bool `json:"is_tender_source"`
	}
	err := c.c.complete(ctx, "classifier_source_check", anthropic.CachedSystem(classifierSystem), user, func(reply string) error {
		return decodeValidated(reply, sourceCheckSchema, &out)
	})
	if err != nil {
		return false, err
	}
	return out.IsTenderSource, nil
}

// Vocabulary is the default tag vocabulary offered to Classify.
func Vocabulary() []string {
	out := make([]string, 0, len(model.Categories))
	for _, c := range model.Categories {
		if c != model.CategoryOther {
			out = append(out, c)
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
