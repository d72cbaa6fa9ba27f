package tracker

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the subset of the S3 client this store calls.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store is the production Tracker store: one object per correlation id
// under the conventional path, overwritten on each progression.
type S3Store struct {
	client s3API
	bucket string
}

// NewS3Store binds a store to bucket using the given S3 client.
func NewS3Store(client s3API, bucket string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("tracker: s3 bucket is required")
	}
	return &S3Store{client: client, bucket: bucket}, nil
}

// Put writes status as the object body at DocumentPath(stage,
// correlationID).
func (s *S3Store) Put(ctx context.Context, stage, correlationID string, status Status) error {
	body, err := encodeStatus(status)
	if err != nil {
		return fmt.Errorf("tracker: encode status: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(DocumentPath(stage, correlationID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("tracker: put object: %w", err)
	}
	return nil
}
