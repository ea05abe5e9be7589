package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculator_Claude(t *testing.T) {
	calc := NewCalculator(DefaultRates())

	tests := []struct {
		name  string
		model string
		usage Usage
		want  float64
	}{
		{"haiku input and output", "claude-haiku-4-5-20251001", Usage{Input: 1_000_000, Output: 100_000}, 1.50},
		{"sonnet", "claude-sonnet-4-5-20250929", Usage{Input: 200_000, Output: 20_000}, 0.90},
		{"cache write and read", "claude-sonnet-4-5-20250929", Usage{CacheWrite: 1_000_000, CacheRead: 1_000_000}, 3.75 + 0.30},
		{"unknown model", "gpt-4", Usage{Input: 1_000_000}, 0},
		{"zero usage", "claude-haiku-4-5-20251001", Usage{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.Claude(tt.model, tt.usage), 1e-9)
		})
	}
}

func TestLedger(t *testing.T) {
	l := NewLedger(NewCalculator(DefaultRates()))

	l.Record("claude-haiku-4-5-20251001", "classify", Usage{Input: 1_000_000})
	l.Record("claude-haiku-4-5-20251001", "classify", Usage{Output: 200_000})
	l.Record("claude-sonnet-4-5-20250929", "narrative", Usage{Input: 100_000, Output: 10_000})

	phases := l.Phases()
	require.Len(t, phases, 2)
	assert.Equal(t, "classify", phases[0].Phase)
	assert.Equal(t, 2, phases[0].Calls)
	assert.Equal(t, int64(1_000_000), phases[0].InputTokens)
	assert.Equal(t, int64(200_000), phases[0].OutputTokens)
	assert.InDelta(t, 2.00, phases[0].USD, 1e-9)
	assert.Equal(t, "narrative", phases[1].Phase)
	assert.InDelta(t, 0.45, phases[1].USD, 1e-9)
	assert.InDelta(t, 2.45, l.Total(), 1e-9)
}

func TestLedger_Concurrent(t *testing.T) {
	l := NewLedger(NewCalculator(DefaultRates()))
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record("claude-sonnet-4-5-20250929", "rationale", Usage{Input: 1000, Output: 100})
		}()
	}
	wg.Wait()

	phases := l.Phases()
	require.Len(t, phases, 1)
	assert.Equal(t, 20, phases[0].Calls)
	assert.Equal(t, int64(20_000), phases[0].InputTokens)
}

func TestLedger_Nil(t *testing.T) {
	var l *Ledger
	assert.Zero(t, l.Record("claude-haiku-4-5-20251001", "classify", Usage{Input: 10}))
	assert.Zero(t, l.Total())
	assert.Nil(t, l.Phases())
}
