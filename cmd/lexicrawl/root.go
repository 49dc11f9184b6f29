package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	seclog "github.com/nao1215/lexicrawl/internal/log"
)

// NewRootCmd creates the root command for lexicrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexicrawl",
		Short: "Polite crawler for paginated online lexicons",
		Long: `lexicrawl walks the paginated listing pages of an online lexicon,
follows every "next" link, and downloads the XML chunk of each entry.

Requests are sent one at a time. HTTP 429 responses are retried with
Retry-After or exponential backoff, and any other failure is logged and
skipped so a long crawl never stops on a single bad page.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Only log warnings and errors")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewRunsCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getBoolFlag reads a bool flag from the command or the root persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// setupLogger creates the secure structured logger from the global flags.
// Logs go to stderr so reports on stdout stay parseable.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	return seclog.New(cmd.ErrOrStderr(), seclog.Options{
		Verbose: getBoolFlag(cmd, "verbose"),
		Quiet:   getBoolFlag(cmd, "quiet"),
		JSON:    getBoolFlag(cmd, "log-json"),
	})
}
