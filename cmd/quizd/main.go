// Command quizd runs the quiz administration server and its maintenance
// commands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/mind-engage/quizdesk/internal/config"
	"github.com/mind-engage/quizdesk/internal/db"
	"github.com/mind-engage/quizdesk/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:          "quizd",
	Short:        "Quiz administration server",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("env-file", "", "dotenv file to load (overrides ENV_FILE)")
	rootCmd.AddCommand(serveCmd, migrateCmd, addUserCmd, resetPasswordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the state every subcommand starts from.
type app struct {
	cfg   config.Config
	log   *slog.Logger
	db    *sqlx.DB
	flush func()
}

func setup(cmd *cobra.Command) (*app, error) {
	if f, _ := cmd.Flags().GetString("env-file"); f != "" {
		_ = os.Setenv("ENV_FILE", f)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	log, flush := logging.New(logging.Options{
		Level:        cfg.LogLevel,
		Format:       cfg.LogFormat,
		Env:          cfg.Env,
		RollbarToken: cfg.RollbarToken,
	})
	drv, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		flush()
		return nil, err
	}
	dbh, err := db.Open(cmd.Context(), drv, cfg.DBDSN)
	if err != nil {
		flush()
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &app{cfg: cfg, log: log, db: dbh, flush: flush}, nil
}

func (a *app) close() {
	_ = a.db.Close()
	a.flush()
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		a.log.InfoContext(context.Background(), "schema up to date", "driver", a.cfg.DBDriver)
		return nil
	},
}
