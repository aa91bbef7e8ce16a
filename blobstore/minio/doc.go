// Package minio stores checkpoints in MinIO or another S3-compatible
// service through the MinIO client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "checkpoints", "runs/sedov/")
//	err = checkpoint.Save(ctx, store, "step_0100", data)
//
// Works with any S3-compatible service (Ceph, Garage, SeaweedFS) and needs
// no AWS SDK.
package minio
