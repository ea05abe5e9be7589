package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/tender-intel/internal/feedback"
)

type mockApprover struct {
	mock.Mock
}

func (m *mockApprover) Approve(ctx context.Context, id, approver string) (*feedback.ApprovalResult, error) {
	args := m.Called(ctx, id, approver)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*feedback.ApprovalResult), args.Error(1)
}

func (m *mockApprover) Reject(ctx context.Context, id, approver string) error {
	return m.Called(ctx, id, approver).Error(0)
}
