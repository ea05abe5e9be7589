// Package llm holds the two optional language-model collaborators: a
// lightweight classifier for field recovery and source validation, and a
// reasoning model for rationales, digest narratives and calibration analysis.
// Neither computes scores. Both sit behind a latching circuit breaker so a
// failing provider degrades the rest of the run to deterministic fallbacks.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/cost"
	"github.com/sells-group/tender-intel/internal/resilience"
	"github.com/sells-group/tender-intel/pkg/anthropic"
)

// ErrUnavailable is returned when the collaborator is not configured or its
// breaker has opened. Callers fall back to deterministic behaviour.
var ErrUnavailable = eris.New("llm: collaborator unavailable")

// caller is the shared plumbing for both collaborators.
type caller struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	breaker   *resilience.CircuitBreaker
	ledger    *cost.Ledger
}

// Option configures a collaborator.
type Option func(*caller)

// WithLedger records the token spend of every call.
func WithLedger(l *cost.Ledger) Option {
	return func(c *caller) { c.ledger = l }
}

func newCaller(client anthropic.Client, name, model string, cfg config.AnthropicConfig, opts ...Option) *caller {
	bcfg := resilience.FromFailureLimit(name, cfg.FailureLimit)
	bcfg.ShouldTrip = func(err error) bool {
		return !errors.Is(err, context.Canceled)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	c := &caller{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		breaker:   resilience.NewCircuitBreaker(bcfg),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Available reports whether calls will be attempted.
func (c *caller) Available() bool {
	return c != nil && c.client != nil && !c.breaker.Open()
}

// Model returns the model id used for calls.
func (c *caller) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// complete sends one system+user exchange and returns the text reply. Empty
// replies and malformed JSON count as failures towards the breaker.
func (c *caller) complete(ctx context.Context, phase string, system []anthropic.SystemBlock, user string, parse func(string) error) error {
	if !c.Available() {
		return ErrUnavailable
	}
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		temp := 0.0
		resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       c.model,
			MaxTokens:   c.maxTokens,
			System:      system,
			Messages:    []anthropic.Message{{Role: "user", Content: user}},
			Temperature: &temp,
		})
		if err != nil {
			return eris.Wrapf(err, "llm: %s request", phase)
		}
		resp.Usage.LogCost(c.model, phase)
		c.ledger.Record(c.model, phase, resp.Usage.CostUsage())

		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return eris.Errorf("llm: %s returned empty response", phase)
		}
		return parse(text)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return ErrUnavailable
	}
	return err
}

// extractJSON returns the outermost JSON object or array embedded in text.
// Models often wrap the payload in prose or code fences.
func extractJSON(text string) (string, error) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", eris.New("llm: no JSON in response")
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return "", eris.New("llm: unterminated JSON in response")
	}
	return text[start : end+1], nil
}

// decodeValidated extracts, validates and decodes a JSON reply.
func decodeValidated(text string, schema *schema, out any) error {
	raw, err := extractJSON(text)
	if err != nil {
		return err
	}
	if schema != nil {
		if err := schema.validate([]byte(raw)); err != nil {
			return err
		}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return eris.Wrap(err, "llm: decode response")
	}
	return nil
}
