package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmehdipour/realestate-billing/internal/db"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply MySQL and ClickHouse schema migrations (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		mysqlDB, err := db.OpenMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		defer mysqlDB.Close()
		if err := applyDir(ctx, mysqlDB, filepath.Join(migrationsDir, "mysql"), log); err != nil {
			return err
		}

		chDB, err := db.OpenClickHouse(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer chDB.Close()
		if err := applyDir(ctx, chDB, filepath.Join(migrationsDir, "clickhouse"), log); err != nil {
			return err
		}

		log.Info("migration complete")
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "directory holding mysql/ and clickhouse/ migrations")
}

// applyDir runs every .sql file in dir in name order, one statement at a time.
func applyDir(ctx context.Context, dbx *sqlx.DB, dir string, log *zap.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", path, err)
		}
		for _, stmt := range statements(string(raw)) {
			if _, err := dbx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("exec %s: %w", path, err)
			}
		}
		log.Info("migration applied", zap.String("file", path))
	}
	return nil
}

// statements splits a migration file on ";" line endings, dropping empty chunks.
func statements(sql string) []string {
	var out []string
	for _, s := range strings.Split(sql, ";\n") {
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ";"))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
