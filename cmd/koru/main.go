package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "koru",
		Short: "Bank data ingestion and reconciliation",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newWorkerCommand(),
		newImportCommand(),
		newStatusCommand(),
		newMatchCommand(),
		newInstitutionsCommand(),
		newLinkCommand(),
		newMigrateCommand(),
	)

	return rootCmd
}
