package feedback

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/tender-intel/internal/llm"
)

type mockReasoner struct {
	mock.Mock
}

func (m *mockReasoner) Available() bool {
	return m.Called().Bool(0)
}

func (m *mockReasoner) Recommendations(ctx context.Context, in llm.CalibrationInput) (*llm.CalibrationOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*llm.CalibrationOutput)
	return out, args.Error(1)
}
