// Command kmertab inspects and converts k-mer count table dumps.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jcalabro/kmertab"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "kmertab",
		Short: "Inspect and convert k-mer count table dumps",
		Long: `kmertab reads tables written by Dump.

Files ending in .zst or .lz4 are compressed with zstd or lz4.
Use - to read from standard input or write to standard output.`,
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log table restores and dumps to stderr")

	logger := func() *kmertab.Logger {
		if !verbose {
			return kmertab.NoopLogger()
		}
		return kmertab.NewTextLogger(slog.LevelDebug)
	}

	rootCmd.AddCommand(statsCommand(logger))
	rootCmd.AddCommand(histCommand(logger))
	rootCmd.AddCommand(convertCommand(logger))
	return rootCmd
}

func restore(path string, logger func() *kmertab.Logger) (*kmertab.Table, error) {
	return kmertab.Restore(path, kmertab.WithLogger(logger()))
}

func statsCommand(logger func() *kmertab.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "stats FILE",
		Short: "Print table parameters and entry count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := restore(args[0], logger)
			if err != nil {
				return err
			}
			defer t.Close()

			h := t.Histogram()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "k\t%d\n", t.K())
			fmt.Fprintf(w, "prefix_bits\t%d\n", t.PrefixBits())
			fmt.Fprintf(w, "shards\t%d\n", t.NumShards())
			fmt.Fprintf(w, "entries\t%d\n", t.Len())
			fmt.Fprintf(w, "mode\t%d\n", h.Mode)
			return nil
		},
	}
}

func histCommand(logger func() *kmertab.Logger) *cobra.Command {
	var high bool

	cmd := &cobra.Command{
		Use:   "hist FILE",
		Short: "Print the count distribution",
		Long: `Print one line per non-zero bucket: the count, a tab, and the number of
entries with that count. With --high the high-quality counts are used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := restore(args[0], logger)
			if err != nil {
				return err
			}
			defer t.Close()

			h := t.Histogram()
			if high {
				writeHist(cmd.OutOrStdout(), h.High[:])
			} else {
				writeHist(cmd.OutOrStdout(), h.Counts[:])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&high, "high", false, "Use high-quality counts")
	return cmd
}

func writeHist(w io.Writer, buckets []uint64) {
	for c, n := range buckets {
		if n > 0 {
			fmt.Fprintf(w, "%d\t%d\n", c, n)
		}
	}
}

func convertCommand(logger func() *kmertab.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "convert IN OUT",
		Short: "Rewrite a dump, changing compression by suffix",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := restore(args[0], logger)
			if err != nil {
				return err
			}
			defer t.Close()

			if err := t.Dump(args[1]); err != nil {
				return err
			}
			if args[1] != kmertab.StdioPath {
				fmt.Fprintf(cmd.ErrOrStderr(), "converted %d entries\n", t.Len())
			}
			return nil
		},
	}
}
