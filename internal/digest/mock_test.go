package digest

import (
	"context"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/tender-intel/internal/llm"
	"github.com/sells-group/tender-intel/internal/model"
)

type mockReasoner struct {
	mock.Mock
}

func (m *mockReasoner) Available() bool {
	return m.Called().Bool(0)
}

func (m *mockReasoner) Narrative(ctx context.Context, in llm.NarrativeInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

type mockSink struct {
	mock.Mock
	name string
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) Publish(ctx context.Context, d *model.Digest) error {
	return m.Called(ctx, d).Error(0)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}
