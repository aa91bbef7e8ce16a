package cli

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/meshdata/blobstore"
	miniostore "github.com/hupe1980/meshdata/blobstore/minio"
	s3store "github.com/hupe1980/meshdata/blobstore/s3"
)

// openStore builds the blob store selected by cfg.Store.
func openStore(ctx context.Context, cfg Config) (blobstore.Store, error) {
	switch cfg.Store {
	case "local":
		return blobstore.NewLocalStore(cfg.Root), nil
	case "memory":
		return blobstore.NewMemoryStore(), nil
	case "s3":
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("s3: bucket is required")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
		if err != nil {
			return nil, fmt.Errorf("s3: loading AWS config: %w", err)
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if cfg.S3.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
				o.UsePathStyle = true
			}
		})
		return s3store.NewStore(client, cfg.S3.Bucket, cfg.S3.Prefix), nil
	case "minio":
		if cfg.MinIO.Endpoint == "" || cfg.MinIO.Bucket == "" {
			return nil, fmt.Errorf("minio: endpoint and bucket are required")
		}
		client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		return miniostore.NewStore(client, cfg.MinIO.Bucket, cfg.MinIO.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown store %q (want local, s3 or minio)", cfg.Store)
	}
}
