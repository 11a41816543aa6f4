package publish

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"hlsforge/internal/config"
)

// ObjectStore is the upload surface the publisher needs. Uploads overwrite
// existing objects, which is what makes publish retries safe.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
}

type s3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds an S3-compatible object store from the storage config.
// A non-empty endpoint switches the client to path-style addressing for
// MinIO and R2 style deployments.
func NewS3Store(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	bucket := strings.TrimSpace(cfg.Storage.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket not configured")
	}

	provider := credentials.NewStaticCredentialsProvider(
		cfg.Storage.AccessKeyID, cfg.Storage.SecretAccessKey, "")
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Storage.Region),
		awsconfig.WithCredentialsProvider(provider),
	)
	if err != nil {
		return nil, fmt.Errorf("load storage config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Storage.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &s3Store{client: client, bucket: bucket}, nil
}

func (s *s3Store) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
