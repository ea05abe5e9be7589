package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDecisionAction(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"track", "ignore", "assign", "partner_needed", "not_for_us", "won", "lost", "shortlisted"} {
		a, ok := ParseDecisionAction(s)
		assert.True(t, ok, s)
		assert.Equal(t, DecisionAction(s), a)
	}

	a, ok := ParseDecisionAction("maybe")
	assert.False(t, ok)
	assert.Empty(t, a)
}

func TestDecisionActionPolarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		action   DecisionAction
		positive bool
		negative bool
	}{
		{DecisionTrack, true, false},
		{DecisionAssign, true, false},
		{DecisionWon, true, false},
		{DecisionLost, true, false},
		{DecisionShortlisted, true, false},
		{DecisionPartnerNeeded, true, false},
		{DecisionIgnore, false, true},
		{DecisionNotForUs, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.positive, tt.action.Positive())
			assert.Equal(t, tt.negative, tt.action.Negative())
		})
	}
}

func TestStageResultStatus(t *testing.T) {
	t.Parallel()
	assert.Equal(t, StageSuccess, (&StageResult{ItemsProcessed: 3}).Status())
	assert.Equal(t, StagePartial, (&StageResult{ItemsProcessed: 3, Failures: 1}).Status())
}
