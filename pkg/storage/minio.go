package storage

import (
	"context"
	"fmt"
	"io"

	"reviewhub/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("storage.minio",
	fx.Provide(registerClient, NewMinioStore),
)

// ObjectStore uploads a blob and returns an opaque reference to it.
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

func registerClient(c *config.Config) (*minio.Client, error) {
	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		zap.L().Error("failed to create MinIO client", zap.String("endpoint", c.Minio.Endpoint), zap.Error(err))
		return nil, err
	}

	zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint))
	return client, nil
}

type MinioStore struct {
	client *minio.Client
	bucket string
}

type Params struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Client    *minio.Client
}

func NewMinioStore(p Params) ObjectStore {
	s := &MinioStore{client: p.Client, bucket: p.Config.Minio.BucketName}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.ensureBucket(ctx)
		},
	})

	return s
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		zap.L().Error("failed to check if bucket exists", zap.String("bucket", s.bucket), zap.Error(err))
		return err
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		zap.L().Error("failed to create bucket", zap.String("bucket", s.bucket), zap.Error(err))
		return err
	}
	zap.L().Info("bucket created", zap.String("bucket", s.bucket))
	return nil
}

func (s *MinioStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	return fmt.Sprintf("%s/%s", info.Bucket, info.Key), nil
}
