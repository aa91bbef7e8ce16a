// Package checkpoint writes the restart state of a block container to a
// blobstore.Store and reads it back.
//
// A checkpoint lives under a prefix and consists of a manifest plus one blob
// per saved variable:
//
//	<prefix>/manifest.json
//	<prefix>/vars/<label>.bin
//
// Save writes every allocated variable flagged Independent or Restart.
// Variable blobs are compressed (ZSTD by default), checksummed with CRC32C
// and uploaded concurrently. The manifest is written last, so a checkpoint
// without a manifest is incomplete and is ignored by List.
//
//	err := checkpoint.Save(ctx, store, "sedov/step_0100", data,
//	    checkpoint.WithResourceController(rc))
//
//	m, err := checkpoint.Load(ctx, store, "sedov/step_0100", restored)
package checkpoint
