package archive

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tender-intel/internal/config"
)

type mockObjectAPI struct {
	mock.Mock
}

func (m *mockObjectAPI) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.HeadObjectOutput), args.Error(1)
}

func (m *mockObjectAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func TestS3Archive_Key(t *testing.T) {
	a := NewS3WithClient(&mockObjectAPI{}, "bucket", "/raw/")
	assert.Equal(t, "raw/HK-gld-gov-hk-a1b2c3/guid%201", a.Key("HK-gld-gov-hk-a1b2c3", "guid 1"))
	assert.Equal(t, "raw/src/a%2Fb", a.Key("src", "a/b"))
}

func TestS3Archive_PutNew(t *testing.T) {
	api := &mockObjectAPI{}
	api.On("HeadObject", mock.Anything, mock.Anything).Return(nil, errors.New("not found"))
	api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, _ := io.ReadAll(in.Body)
		return aws.ToString(in.Bucket) == "tenders" &&
			aws.ToString(in.Key) == "raw/src/g1" &&
			aws.ToString(in.ContentType) == "application/rss+xml" &&
			string(body) == "<item/>"
	})).Return(&s3.PutObjectOutput{}, nil)

	a := NewS3WithClient(api, "tenders", "raw")
	require.NoError(t, a.Put(context.Background(), "src", "g1", []byte("<item/>"), "application/rss+xml"))
	api.AssertExpectations(t)
}

func TestS3Archive_PutExistingIsNoop(t *testing.T) {
	api := &mockObjectAPI{}
	api.On("HeadObject", mock.Anything, mock.Anything).Return(&s3.HeadObjectOutput{}, nil)

	a := NewS3WithClient(api, "tenders", "raw")
	require.NoError(t, a.Put(context.Background(), "src", "g1", []byte("x"), ""))
	api.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything)
}

func TestS3Archive_PutError(t *testing.T) {
	api := &mockObjectAPI{}
	api.On("HeadObject", mock.Anything, mock.Anything).Return(nil, errors.New("not found"))
	api.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	a := NewS3WithClient(api, "tenders", "raw")
	err := a.Put(context.Background(), "src", "g1", []byte("x"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive: put raw/src/g1")
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), config.ArchiveConfig{})
	assert.Error(t, err)
}
