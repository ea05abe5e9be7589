// Package archive keeps an immutable copy of every newly captured payload.
package archive

import (
	"bytes"
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-intel/internal/config"
)

// Archiver stores raw payloads.
type Archiver interface {
	Put(ctx context.Context, sourceID, itemGUID string, payload []byte, contentType string) error
}

// ObjectAPI is the subset of the S3 client used by S3Archive.
type ObjectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes payloads to <prefix>/<source_id>/<guid>. Existing keys
// are never overwritten.
type S3Archive struct {
	client ObjectAPI
	bucket string
	prefix string
}

// NewS3 builds an S3Archive from the default AWS credential chain.
func NewS3(ctx context.Context, cfg config.ArchiveConfig) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, eris.New("archive: bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, eris.Wrap(err, "archive: load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3WithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3WithClient builds an S3Archive around an existing client.
func NewS3WithClient(client ObjectAPI, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key for a capture.
func (a *S3Archive) Key(sourceID, itemGUID string) string {
	return path.Join(a.prefix, url.PathEscape(sourceID), url.PathEscape(itemGUID))
}

// Put uploads payload unless the key already exists.
func (a *S3Archive) Put(ctx context.Context, sourceID, itemGUID string, payload []byte, contentType string) error {
	key := a.Key(sourceID, itemGUID)
	if _, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}); err == nil {
		return nil
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"source-id": sourceID},
	})
	if err != nil {
		return eris.Wrapf(err, "archive: put %s", key)
	}
	return nil
}
