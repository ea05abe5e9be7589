// Package cost prices model calls and keeps a running ledger of spend per
// pipeline phase.
package cost

import (
	"sort"
	"sync"
)

// Rates holds per-model pricing.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Usage is the token count of one call.
type Usage struct {
	Input      int64
	Output     int64
	CacheWrite int64
	CacheRead  int64
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the USD cost of one call. Unknown models cost 0.
func (c *Calculator) Claude(model string, u Usage) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}

	inCost := (float64(u.Input) / 1e6) * rate.Input
	outCost := (float64(u.Output) / 1e6) * rate.Output
	cwCost := (float64(u.CacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(u.CacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 1.00, Output: 5.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
	}
}

// PhaseSpend is the accumulated usage of one phase.
type PhaseSpend struct {
	Phase        string  `json:"phase"`
	Calls        int     `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	USD          float64 `json:"usd"`
}

// Ledger accumulates spend across calls. It is safe for concurrent use;
// evaluation fans rationale calls out over a worker pool.
type Ledger struct {
	calc *Calculator

	mu     sync.Mutex
	phases map[string]*PhaseSpend
}

// NewLedger creates an empty ledger priced by calc.
func NewLedger(calc *Calculator) *Ledger {
	return &Ledger{calc: calc, phases: make(map[string]*PhaseSpend)}
}

// Record prices one call and adds it to its phase. It returns the call's cost.
func (l *Ledger) Record(model, phase string, u Usage) float64 {
	if l == nil {
		return 0
	}
	usd := l.calc.Claude(model, u)

	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.phases[phase]
	if !ok {
		p = &PhaseSpend{Phase: phase}
		l.phases[phase] = p
	}
	p.Calls++
	p.InputTokens += u.Input
	p.OutputTokens += u.Output
	p.USD += usd
	return usd
}

// Total returns the spend across all phases.
func (l *Ledger) Total() float64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, p := range l.phases {
		total += p.USD
	}
	return total
}

// Phases returns a snapshot of per-phase spend ordered by phase name.
func (l *Ledger) Phases() []PhaseSpend {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]PhaseSpend, 0, len(l.phases))
	for _, p := range l.phases {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phase < out[j].Phase })
	return out
}
