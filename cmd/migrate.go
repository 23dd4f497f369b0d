package cmd

import (
	"context"
	"fmt"
	"time"

	"isp-portal/pkg/database"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			config, logger, err := loadBase()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			db, err := database.InitDB(ctx, config.Database)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()

			if err := database.Migrate(ctx, db, args[0]); err != nil {
				logger.Error("Migration failed", zap.String("command", args[0]), zap.Error(err))
				return err
			}

			logger.Info("Migration finished", zap.String("command", args[0]))
			return nil
		},
	}
}
