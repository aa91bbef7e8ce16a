// Package cli implements the meshdump command line.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/meshdata"
	"github.com/hupe1980/meshdata/blobstore"
	"github.com/hupe1980/meshdata/checkpoint"
	"github.com/hupe1980/meshdata/resource"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	v          *viper.Viper
	configFile string

	cfg    Config
	store  blobstore.Store
	logger *meshdata.Logger

	// openStore is replaced in tests.
	openStore func(ctx context.Context, cfg Config) (blobstore.Store, error)
}

// Execute runs meshdump with the process arguments.
func Execute(version string) error {
	return newRootCmd(version, nil).Execute()
}

// newRootCmd builds the command tree. A non-nil store replaces the
// configured backend.
func newRootCmd(version string, store blobstore.Store) *cobra.Command {
	a := &app{v: viper.New(), openStore: openStore}
	if store != nil {
		a.openStore = func(context.Context, Config) (blobstore.Store, error) { return store, nil }
	}

	root := &cobra.Command{
		Use:           "meshdump",
		Short:         "Inspect field checkpoints",
		Long:          `meshdump lists, inspects, verifies and deletes block field checkpoints written by the checkpoint package.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context(), cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (yaml, toml or json)")
	flags.String("store", "local", "backend: local, s3 or minio")
	flags.String("root", ".", "root directory of the local backend")
	flags.Int("concurrency", 4, "blobs read in parallel")
	flags.Int64("io-limit", 0, "checkpoint IO limit in bytes per second (0 = unlimited)")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	flags.String("bucket", "", "bucket of the s3 or minio backend")
	flags.String("prefix", "", "key prefix inside the bucket")
	_ = a.v.BindPFlag("store", flags.Lookup("store"))
	_ = a.v.BindPFlag("root", flags.Lookup("root"))
	_ = a.v.BindPFlag("concurrency", flags.Lookup("concurrency"))
	_ = a.v.BindPFlag("io_limit", flags.Lookup("io-limit"))
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("s3.bucket", flags.Lookup("bucket"))
	_ = a.v.BindPFlag("minio.bucket", flags.Lookup("bucket"))
	_ = a.v.BindPFlag("s3.prefix", flags.Lookup("prefix"))
	_ = a.v.BindPFlag("minio.prefix", flags.Lookup("prefix"))

	root.AddCommand(
		newListCmd(a),
		newInspectCmd(a),
		newVerifyCmd(a),
		newRmCmd(a),
	)
	return root
}

func (a *app) setup(ctx context.Context, stderr io.Writer) error {
	cfg, err := loadConfig(a.v, a.configFile)
	if err != nil {
		return err
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = meshdata.NewLogger(textHandler(stderr, level))

	if ctx == nil {
		ctx = context.Background()
	}
	a.store, err = a.openStore(ctx, cfg)
	return err
}

// checkpointOptions maps the configuration onto checkpoint options.
func (a *app) checkpointOptions() []checkpoint.Option {
	opts := []checkpoint.Option{
		checkpoint.WithConcurrency(a.cfg.Concurrency),
		checkpoint.WithLogger(a.logger),
	}
	if a.cfg.IOLimit > 0 {
		opts = append(opts, checkpoint.WithResourceController(resource.NewController(resource.Config{
			MaxBackgroundWorkers: int64(a.cfg.Concurrency),
			IOLimitBytesPerSec:   a.cfg.IOLimit,
		})))
	}
	return opts
}
