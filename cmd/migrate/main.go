package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/jwalitptl/patient-records/internal/config"
	"github.com/jwalitptl/patient-records/internal/repository/postgres"
	"github.com/jwalitptl/patient-records/pkg/logger"
)

// gooseLogger receives goose's progress output.
var gooseLogger *logger.Logger

func main() {
	app := &cli.Command{
		Name:  "migrate",
		Usage: "Manage the patient records database schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Sources: cli.EnvVars("RECORDS_DATABASE_URL"),
				Usage:   "PostgreSQL connection string; defaults to the database section of config.yml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "Log level",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			gooseLogger = logger.Setup(cmd.String("log-level"), "console")
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply all pending migrations",
				Action: migrateUp,
			},
			{
				Name:   "down",
				Usage:  "Roll back the most recent migration",
				Action: migrateDown,
			},
			{
				Name:   "status",
				Usage:  "Show the state of every migration",
				Action: migrateStatus,
			},
			{
				Name:   "version",
				Usage:  "Print the current schema version",
				Action: migrateVersion,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("migration command failed")
	}
}

func openDB(cmd *cli.Command) (*sqlx.DB, error) {
	if url := cmd.String("database-url"); url != "" {
		db, err := sqlx.Connect("postgres", url)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return db, nil
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	return postgres.NewDB(cfg.Database)
}

func migrateUp(ctx context.Context, cmd *cli.Command) error {
	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.Migrate(db.DB, gooseLogger); err != nil {
		return err
	}
	log.Info().Msg("migrations applied")
	return nil
}

func migrateDown(ctx context.Context, cmd *cli.Command) error {
	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.MigrateDown(db.DB, gooseLogger); err != nil {
		return err
	}
	log.Info().Msg("rolled back one migration")
	return nil
}

func migrateStatus(ctx context.Context, cmd *cli.Command) error {
	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	return postgres.MigrationStatus(db.DB, gooseLogger)
}

func migrateVersion(ctx context.Context, cmd *cli.Command) error {
	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := postgres.MigrationVersion(db.DB)
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d\n", version)
	return nil
}
