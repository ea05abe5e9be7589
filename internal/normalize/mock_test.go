package normalize

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Available() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *mockClassifier) Classify(ctx context.Context, text string, vocabulary []string) ([]string, error) {
	args := m.Called(ctx, text, vocabulary)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
