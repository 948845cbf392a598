package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rice-chunk",
		Short: "Rice Chunk - semantic code chunking",
		Long: `Rice Chunk splits source files into token-bounded chunks that
respect function, class and section boundaries.

Run 'rice-chunk chunk <path>' to chunk a repository or a single file.
Run 'rice-chunk --help' for available commands.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("format", "jsonl", "output format (jsonl, yaml, text)")
	rootCmd.PersistentFlags().String("tokenizer", "", "tokenizer type (tiktoken, estimate), overrides config")

	rootCmd.AddCommand(
		chunkCmd(),
		segmentsCmd(),
		verifyCmd(),
		replayCmd(),
		tailCmd(),
		versionCmd(),
	)

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rice-chunk %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
