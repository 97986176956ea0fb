// Package main provides the entry point for the rbkit CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rbkit/cmd/rbkit/commands"
	"github.com/Sumatoshi-tech/rbkit/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	err := newRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rbkit",
		Short: "rbkit - intrusive red-black tree toolkit",
		Long: `rbkit exercises an arena-backed intrusive red-black tree and the
message response cache built on it.

Commands:
  dump      Print the shape of a tree built from keys
  fuzz      Randomized insert/detach run with invariant checks
  cachesim  Simulate retransmitting peers against the response cache`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default: .rbkit.yaml in ., ./config or /etc/rbkit)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress output")

	rootCmd.AddCommand(commands.NewDumpCommand())
	rootCmd.AddCommand(commands.NewFuzzCommand())
	rootCmd.AddCommand(commands.NewCacheSimCommand())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
