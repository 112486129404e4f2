package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/videoflow-gin/internal/database"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run storage migrations",
	Long: `Run storage migrations for the configured document store.
With the gorm store this creates or updates all tables and the
composite indexes used by the reconciliation sweep. With the mongo
store it ensures the collection indexes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		switch cfg.Store.Driver {
		case "", "gorm":
			log.WithFields(logrus.Fields{
				"driver": cfg.Database.Driver,
				"host":   cfg.Database.Host,
				"dbname": cfg.Database.DBName,
			}).Info("Connecting to database")
			db, err := database.Connect(cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect database: %w", err)
			}
			defer database.Close(db)

			log.Info("Running database migrations...")
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

		case "mongo":
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			client, err := database.ConnectMongo(ctx, cfg.Mongo)
			if err != nil {
				return err
			}
			defer client.Disconnect(context.Background())

			log.WithField("database", cfg.Mongo.Database).Info("Ensuring mongo indexes...")
			if err := database.EnsureMongoIndexes(ctx, client.Database(cfg.Mongo.Database)); err != nil {
				return fmt.Errorf("failed to ensure indexes: %w", err)
			}

		default:
			return fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
		}

		log.Info("Migrations completed successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
