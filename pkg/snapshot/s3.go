package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const expiresMetaKey = "pagewire-expires-at"

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps one object per snapshot under prefix. The expiry is kept in
// object metadata and checked on Load; pair it with a bucket lifecycle rule
// to reclaim space.
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := snapshot.NewS3Store(s3.NewFromConfig(cfg), "my-bucket", "pagewire/")
type S3Store struct {
	client S3API
	bucket string
	prefix string
	now    func() time.Time
	closed atomic.Bool
}

// NewS3Store creates an S3-backed snapshot store.
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *S3Store) WithClock(now func() time.Time) *S3Store {
	s.now = now
	return s
}

func (s *S3Store) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *S3Store) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(sessionID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			expiresMetaKey: strconv.FormatInt(expiresAt.UnixMilli(), 10),
		},
	})
	if err != nil {
		return fmt.Errorf("snapshot: s3 put %s: %w", sessionID, err)
	}
	return nil
}

func (s *S3Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sessionID)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: s3 get %s: %w", sessionID, err)
	}
	defer out.Body.Close()

	if raw, ok := out.Metadata[expiresMetaKey]; ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || !s.now().Before(time.UnixMilli(ms)) {
			return nil, nil
		}
	}
	return io.ReadAll(out.Body)
}

func (s *S3Store) Delete(ctx context.Context, sessionID string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sessionID)),
	})
	if err != nil {
		return fmt.Errorf("snapshot: s3 delete %s: %w", sessionID, err)
	}
	return nil
}

// SaveAll uploads sequentially; S3 has no multi-object atomic write.
func (s *S3Store) SaveAll(ctx context.Context, snapshots map[string]Data) error {
	var errs []error
	for id, d := range snapshots {
		if err := s.Save(ctx, id, d.Data, d.ExpiresAt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *S3Store) Close() error {
	s.closed.Store(true)
	return nil
}
