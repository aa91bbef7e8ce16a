// Package s3 stores checkpoints in Amazon S3.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	client := awss3.NewFromConfig(cfg)
//	store := s3.NewStore(client, "my-bucket", "runs/sedov/")
//
//	err = checkpoint.Save(ctx, store, "step_0100", data)
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads for large variable blobs
//   - CRC32C checksums on uploads
//   - Automatic pagination for listing
package s3
