package ingest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/tender-intel/internal/model"
)

type mockHandler struct {
	mock.Mock
	family model.Family
}

func (m *mockHandler) Family() model.Family { return m.family }

func (m *mockHandler) Fetch(ctx context.Context, src *model.Source, known map[string]bool) (*Outcome, error) {
	args := m.Called(ctx, src.ID, known)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Outcome), args.Error(1)
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Available() bool {
	return m.Called().Bool(0)
}

func (m *mockExtractor) ExtractFields(ctx context.Context, text string) (map[string]string, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) Put(ctx context.Context, sourceID, itemGUID string, payload []byte, contentType string) error {
	return m.Called(ctx, sourceID, itemGUID, payload, contentType).Error(0)
}
