package validate

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Available() bool {
	return m.Called().Bool(0)
}

func (m *mockClassifier) IsTenderSource(ctx context.Context, sample string) (bool, error) {
	args := m.Called(ctx, sample)
	return args.Bool(0), args.Error(1)
}
