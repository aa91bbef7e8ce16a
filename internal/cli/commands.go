package cli

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/meshdata/checkpoint"
	"github.com/hupe1980/meshdata/codec"
)

func textHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [root]",
		Short: "List complete checkpoints",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := ""
			if len(args) == 1 {
				root = args[0]
			}
			prefixes, err := checkpoint.List(cmd.Context(), a.store, root)
			if err != nil {
				return fmt.Errorf("listing checkpoints: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(prefixes) == 0 {
				fmt.Fprintln(out, "No checkpoints found.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PREFIX\tSTAGE\tBLOCK\tVARIABLES\tSIZE\tCREATED")
			for _, p := range prefixes {
				m, err := checkpoint.ReadManifest(cmd.Context(), a.store, p)
				if err != nil {
					fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t%v\n", p, err)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", p, m.Stage, m.Block.ID,
					len(m.Variables), humanize.IBytes(uint64(m.StoredBytes())), humanize.Time(m.CreatedAt))
			}
			return tw.Flush()
		},
	}
}

func newInspectCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <prefix>",
		Short: "Show the manifest of a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := checkpoint.ReadManifest(cmd.Context(), a.store, args[0])
			if err != nil {
				return fmt.Errorf("reading manifest: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				data, err := codec.GoJSON{}.MarshalIndent(m)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintf(out, "Prefix:      %s\n", args[0])
			fmt.Fprintf(out, "Version:     %d (%s)\n", m.Version, m.Codec)
			fmt.Fprintf(out, "Stage:       %s\n", m.Stage)
			fmt.Fprintf(out, "Block:       id=%d rank=%d level=%d nx=%v nghost=%d\n",
				m.Block.ID, m.Block.Rank, m.Block.Level, m.Block.NX, m.Block.NGhost)
			fmt.Fprintf(out, "Compression: %s\n", m.Compression)
			fmt.Fprintf(out, "Created:     %s\n", m.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			fmt.Fprintf(out, "Size:        %s\n\n", humanize.IBytes(uint64(m.StoredBytes())))

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LABEL\tKIND\tVALUES\tSTORED\tFLAGS")
			for _, e := range m.Variables {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n", e.Label, e.Kind,
					humanize.Comma(int64(e.Values)), humanize.IBytes(uint64(e.Stored)), e.Flags)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the manifest as JSON")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <prefix>...",
		Short: "Check sizes and checksums of every variable blob",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, prefix := range args {
				m, err := checkpoint.Verify(cmd.Context(), a.store, prefix, a.checkpointOptions()...)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %s: %v\n", prefix, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK    %s (%d variables)\n", prefix, len(m.Variables))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d checkpoints failed verification", failed, len(args))
			}
			return nil
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <prefix>...",
		Short: "Delete checkpoints",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, prefix := range args {
				if _, err := checkpoint.ReadManifest(cmd.Context(), a.store, prefix); err != nil {
					return fmt.Errorf("%s: %w", prefix, err)
				}
				if err := checkpoint.Delete(cmd.Context(), a.store, prefix); err != nil {
					return fmt.Errorf("deleting %s: %w", prefix, err)
				}
				a.logger.Info("checkpoint deleted", "prefix", prefix)
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", prefix)
			}
			return nil
		},
	}
}
