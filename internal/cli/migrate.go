package cli

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/creetelo/bmsync/internal/config"
)

func newMigrateCmd() *cobra.Command {
	var (
		dir      string
		listOnly bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the ledger schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			// Migrations only need the database, not the API credentials
			// every other command validates.
			cfg, err := config.LoadFromEnv(configPath)
			if err != nil {
				return fmt.Errorf("load config %s: %w", configPath, err)
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("database.url is required (DATABASE_URL)")
			}
			db, err := sql.Open("postgres", cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("open ledger database: %w", err)
			}
			defer db.Close()
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("ping ledger database: %w", err)
			}

			out := cmd.OutOrStdout()

			if listOnly {
				rows, err := db.QueryContext(ctx,
					"SELECT tablename FROM pg_tables WHERE schemaname='public' AND tablename IN ('comparisons', 'import_ledger') ORDER BY tablename")
				if err != nil {
					return err
				}
				defer rows.Close()
				n := 0
				for rows.Next() {
					var t string
					if err := rows.Scan(&t); err != nil {
						return err
					}
					fmt.Fprintln(out, " ", t)
					n++
				}
				fmt.Fprintf(out, "Total: %d tables\n", n)
				return rows.Err()
			}

			entries, err := os.ReadDir(dir)
			if err != nil {
				return fmt.Errorf("read migrations dir %s: %w", dir, err)
			}

			var files []string
			for _, e := range entries {
				if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
					files = append(files, e.Name())
				}
			}
			sort.Strings(files)

			var okCount, errCount int
			for _, f := range files {
				path := filepath.Join(dir, f)
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				content := string(data)
				if strings.TrimSpace(content) == "" {
					continue
				}
				fmt.Fprintf(out, "  %s ... ", f)

				tx, err := db.BeginTx(ctx, nil)
				if err != nil {
					fmt.Fprintf(out, "BEGIN ERROR: %v\n", err)
					errCount++
					continue
				}
				if _, err := tx.ExecContext(ctx, content); err != nil {
					tx.Rollback()
					fmt.Fprintf(out, "ERROR: %v\n", err)
					errCount++
				} else {
					tx.Commit()
					fmt.Fprintln(out, "OK")
					okCount++
				}
			}
			fmt.Fprintf(out, "Done: %d OK, %d errors\n", okCount, errCount)
			if errCount > 0 {
				return fmt.Errorf("%d migration(s) failed", errCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory of .sql migration files")
	cmd.Flags().BoolVar(&listOnly, "list", false, "list bmsync tables instead of applying migrations")
	return cmd
}
