package schedule

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/monitoring"
)

type mockMonitor struct {
	mock.Mock
}

func (m *mockMonitor) Check(ctx context.Context) []monitoring.Alert {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]monitoring.Alert)
}

// countingRun returns a RunFunc that counts calls and fails while failures
// remain.
type countingRun struct {
	calls    int
	failures int
	err      error
}

func (c *countingRun) run(context.Context) (*model.StageResult, error) {
	c.calls++
	if c.failures > 0 {
		c.failures--
		return nil, c.err
	}
	return &model.StageResult{ItemsProcessed: 1}, nil
}
