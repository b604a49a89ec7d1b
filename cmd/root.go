// Package cmd wires the studybuddy binary: configuration loading, process
// lifecycle, and the serve/migrate subcommands.
package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "studybuddy",
	Short: "StudyBuddy document ingestion and retrieval service",
	Long: `StudyBuddy ingests study material (PDF, DOCX, PPTX, TXT) into
per-subject knowledge bases and answers queries against them with
similarity search over embedded chunks.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
}
