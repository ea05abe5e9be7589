package evaluate

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

func (m *mockReasoner) Model() string {
	return m.Called().String(0)
}

func (m *mockReasoner) Rationale(ctx context.Context, in llm.RationaleInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}
