package pagewire

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/pagewire/internal/config"
	"github.com/vango-dev/pagewire/internal/errors"
	"github.com/vango-dev/pagewire/pkg/snapshot"
)

// openSnapshots builds the configured snapshot backend. A nil store means
// disconnected sessions live only in memory, inside the session store.
func openSnapshots(ctx context.Context, cfg config.SnapshotConfig, logger *slog.Logger) (snapshot.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendNone, "":
		return nil, nil, nil

	case config.BackendMemory:
		store := snapshot.NewMemoryStore()
		return store, store.Close, nil

	case config.BackendSQLite:
		store, db, err := snapshot.OpenSQLite(ctx, cfg.DSN,
			snapshot.WithTable(cfg.Table),
			snapshot.WithSQLLogger(logger))
		if err != nil {
			return nil, nil, errors.New(errors.CodeSnapshotIOFailure).Wrap(err)
		}
		logger.Info("session snapshots in sqlite", "dsn", cfg.DSN, "table", cfg.Table)
		return store, func() error {
			err := store.Close()
			if dbErr := db.Close(); err == nil {
				err = dbErr
			}
			return err
		}, nil

	case config.BackendS3:
		store := snapshot.NewS3Store(newS3Client(cfg), cfg.Bucket, cfg.Prefix)
		logger.Info("session snapshots in s3", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
		return store, store.Close, nil

	default:
		return nil, nil, errors.New(errors.CodeInvalidConfig).
			WithDetail("unknown snapshot.backend " + cfg.Backend)
	}
}

// newS3Client builds a client from the snapshot section, with credentials
// from the standard AWS_* environment variables. A custom endpoint (MinIO,
// LocalStack) switches to path-style addressing.
func newS3Client(cfg config.SnapshotConfig) *s3.Client {
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: envCredentials(),
	}
	if opts.Region == "" {
		opts.Region = os.Getenv("AWS_REGION")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

func envCredentials() aws.CredentialsProvider {
	return aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "EnvironmentVariables",
		}, nil
	}))
}
