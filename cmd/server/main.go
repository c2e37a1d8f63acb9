package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "catalog",
	Short:         "Product catalog backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, treeCmd)
	treeCmd.AddCommand(treeCheckCmd, treeRebuildCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		bootLog().WithError(err).Error("command failed")
		os.Exit(1)
	}
}
