package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/studybuddy/studybuddy/db"
	"github.com/studybuddy/studybuddy/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return db.Migrate(cfg.Database.ConnString())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
