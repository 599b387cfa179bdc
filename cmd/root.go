// Package cmd implements the inkwell CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "Inkwell - a conversational writing assistant",
	Long: `Inkwell is a conversational writing assistant. It drafts and revises
documents with you, keeps every version, and can look up external
information through workflow tools.

Running inkwell with no arguments starts an interactive conversation.`,
	RunE: runChat,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
