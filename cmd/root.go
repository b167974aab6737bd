// Package cmd defines the recall command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Recall - memory-augmented chat backend",
	Long: `Recall is a chat backend that remembers. It stores facts about each
user as embeddings in PostgreSQL and retrieves them to enrich future
conversations. Replies stream over server-sent events.

Run 'recall serve' to start the HTTP API server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
