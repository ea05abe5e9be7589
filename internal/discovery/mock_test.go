package discovery

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/validate"
)

type mockValidator struct {
	mock.Mock
}

func (m *mockValidator) Validate(ctx context.Context, c validate.Candidate) (*validate.Result, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*validate.Result), args.Error(1)
}

func (m *mockValidator) Revalidate(ctx context.Context, src *model.Source) (*validate.Result, error) {
	args := m.Called(ctx, src)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*validate.Result), args.Error(1)
}

func (m *mockValidator) Probe(ctx context.Context, src *model.Source) (bool, error) {
	args := m.Called(ctx, src)
	return args.Bool(0), args.Error(1)
}
