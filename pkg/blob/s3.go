package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store keeps payloads as S3 objects. It works against Amazon S3 and
// S3-compatible services (MinIO, Localstack) when the client is built
// with a custom endpoint and path-style addressing.
//
// Concurrent writes to the same key are last-write-wins under S3's
// consistency model, which is fine here: keys are version IDs and a key
// is only ever written once.
type S3Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// S3Config configures an S3Store. The bucket must already exist.
type S3Config struct {
	// Client is a configured S3 client.
	Client *s3.Client

	// Bucket is the bucket name.
	Bucket string

	// KeyPrefix is prepended to every object key, e.g. "cloudbox/blobs/".
	KeyPrefix string
}

// NewS3Store validates the configuration and verifies bucket access.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("s3 blob store: client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 blob store: bucket is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 blob store: cannot access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	return s.keyPrefix + key
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("s3 blob store: put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("blob %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("s3 blob store: get %s: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 blob store: read %s: %w", key, err)
	}
	return data, nil
}

// Delete removes an object. S3 deletes are idempotent, so a missing key
// succeeds without a round trip to check first.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 blob store: delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Close() error { return nil }
