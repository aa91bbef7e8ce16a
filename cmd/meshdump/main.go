// Command meshdump lists, inspects, verifies and deletes field checkpoints
// in a local directory, an S3 bucket or a MinIO bucket.
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/meshdata/internal/cli"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, "meshdump:", err)
		os.Exit(1)
	}
}
