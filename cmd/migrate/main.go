package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liamcoop/calcengine/internal/config"
	"github.com/liamcoop/calcengine/internal/logger"
)

var (
	configFile     string
	databaseURL    string
	migrationsPath string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply or roll back the calculation engine database schema",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: none, CALC_* environment only)")
	root.PersistentFlags().StringVar(&databaseURL, "database", "", "database URL (overrides database.url)")
	root.PersistentFlags().StringVar(&migrationsPath, "path", "", "migrations source, path or file:// URL (overrides database.migrationsPath)")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrate(func(m *migrate.Migrate, log *zap.Logger) error {
				err := m.Up()
				if errors.Is(err, migrate.ErrNoChange) {
					log.Info("no migrations to run, database is up to date")
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to run migrations: %w", err)
				}
				log.Info("migrations completed")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back all migrations, or the given number of steps",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 0
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n <= 0 {
						return fmt.Errorf("invalid step count %q", args[0])
					}
					steps = n
				}
				return withMigrate(func(m *migrate.Migrate, log *zap.Logger) error {
					var err error
					if steps > 0 {
						err = m.Steps(-steps)
					} else {
						err = m.Down()
					}
					if err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("failed to roll back migrations: %w", err)
					}
					log.Info("rollback completed", zap.Int("steps", steps))
					return nil
				})(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrate(func(m *migrate.Migrate, log *zap.Logger) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					log.Info("no migration applied yet")
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to get version: %w", err)
				}
				log.Info("current version", zap.Uint("version", version), zap.Bool("dirty", dirty))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version number: %w", err)
				}
				return withMigrate(func(m *migrate.Migrate, log *zap.Logger) error {
					if err := m.Force(version); err != nil {
						return fmt.Errorf("failed to force version: %w", err)
					}
					log.Info("forced version", zap.Int("version", version))
					return nil
				})(cmd, args)
			},
		},
	)
	return root
}

// withMigrate resolves the configuration, opens a migrate instance and hands it
// to fn. The instance is closed when fn returns.
func withMigrate(fn func(*migrate.Migrate, *zap.Logger) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		conf, err := config.Load(configFile)
		if err != nil {
			return err
		}

		log, err := logger.New(conf.Logging)
		if err != nil {
			return err
		}
		defer log.Sync()

		dbURL := conf.Database.URL
		if databaseURL != "" {
			dbURL = databaseURL
		}
		if dbURL == "" {
			return errors.New("database URL is required: use --database or CALC_DATABASE_URL")
		}

		source := sourceURL(conf.Database.MigrationsPath)
		if migrationsPath != "" {
			source = sourceURL(migrationsPath)
		}

		log.Info("connecting to database", zap.String("source", source))
		m, err := migrate.New(source, dbURL)
		if err != nil {
			return fmt.Errorf("failed to create migration instance: %w", err)
		}
		defer m.Close()

		return fn(m, log)
	}
}

// sourceURL accepts a bare directory as well as a source URL
func sourceURL(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return "file://" + path
}
