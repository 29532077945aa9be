// Package cli is the phelnav command line: one-shot queries against a freshly
// built index, a long-running watch mode with an optional terminal monitor,
// and the editor protocol server.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	verbose    bool
	logFile    string
}

func NewRootCommand(version string) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "phelnav",
		Short: "Symbol index and reference navigation for Phel projects",
		Long: `phelnav indexes the top-level definitions of a Phel project and resolves
symbol occurrences to their definitions and usages.

Queries run against a fresh index; watch and lsp keep it live while files
and editor buffers change.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to phelnav.toml (default: ./phelnav.toml when present)")
	rootCmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Write logs to this file instead of stderr")

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Build the symbol index and print its size",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return runIndex(cmd, opts) },
	}
	indexCmd.Flags().Bool("json", false, "Print machine-readable index stats")

	symbolsCmd := &cobra.Command{
		Use:   "symbols [namespace]",
		Short: "List indexed definitions, optionally of one short namespace",
		Args:  cobra.MaximumNArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return runSymbols(cmd, opts, args) },
	}
	symbolsCmd.Flags().Bool("json", false, "Print machine-readable definitions")

	findCmd := &cobra.Command{
		Use:   "find <namespace> <name>",
		Short: "Show one definition by short namespace and name",
		Args:  cobra.ExactArgs(2),
		RunE:  func(cmd *cobra.Command, args []string) error { return runFind(cmd, opts, args) },
	}
	findCmd.Flags().Bool("json", false, "Print machine-readable definition")

	definitionCmd := &cobra.Command{
		Use:   "definition <file> <line> <column>",
		Short: "Resolve the symbol at a position to its definitions",
		Args:  cobra.ExactArgs(3),
		RunE:  func(cmd *cobra.Command, args []string) error { return runDefinition(cmd, opts, args) },
	}
	definitionCmd.Flags().Bool("json", false, "Print machine-readable locations")

	usagesCmd := &cobra.Command{
		Use:   "usages <file> <line> <column>",
		Short: "List the usages of the definition at or behind a position",
		Args:  cobra.ExactArgs(3),
		RunE:  func(cmd *cobra.Command, args []string) error { return runUsages(cmd, opts, args) },
	}
	usagesCmd.Flags().Bool("json", false, "Print machine-readable locations")

	renameCmd := &cobra.Command{
		Use:   "rename <file> <line> <column> <new-name>",
		Short: "Compute the edits renaming a definition and its usages",
		Args:  cobra.ExactArgs(4),
		RunE:  func(cmd *cobra.Command, args []string) error { return runRename(cmd, opts, args) },
	}
	renameCmd.Flags().Bool("write", false, "Apply the edits to the files on disk")
	renameCmd.Flags().Bool("json", false, "Print machine-readable edits")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index live while project files change",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return runWatch(cmd, opts) },
	}
	watchCmd.Flags().Bool("ui", false, "Show the terminal index monitor")
	watchCmd.Flags().String("metrics-addr", "", "Serve /metrics and /health on this address (overrides config)")

	lspCmd := &cobra.Command{
		Use:   "lsp",
		Short: "Serve definition, references, rename and completion over stdio",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return runLSP(cmd, opts, version) },
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "phelnav %s\n", version)
		},
	}

	rootCmd.AddCommand(
		indexCmd,
		symbolsCmd,
		findCmd,
		definitionCmd,
		usagesCmd,
		renameCmd,
		watchCmd,
		lspCmd,
		versionCmd,
	)
	return rootCmd
}
