// Package postgres applies the versioned SQL schema for the postgres store.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	pgdb "fleetbook/pkg/db/postgres"
	"fleetbook/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sql/*.sql
var scripts embed.FS

const trackingTable = "schema_migrations"

type Migration struct {
	Version    int
	Name       string
	UpScript   string
	DownScript string
}

// LoadMigrations reads NNN_name.up.sql / NNN_name.down.sql pairs from dir,
// ordered by version. Files that do not follow the pattern are skipped.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	byVersion := map[int]*Migration{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version}
			byVersion[version] = m
		}

		switch {
		case strings.HasSuffix(rest, ".up.sql"):
			m.Name = strings.TrimSuffix(rest, ".up.sql")
			m.UpScript = string(content)
		case strings.HasSuffix(rest, ".down.sql"):
			m.DownScript = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpScript == "" {
			return nil, fmt.Errorf("migration %03d has no up script", m.Version)
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b Migration) int { return a.Version - b.Version })
	return migrations, nil
}

// RunMigration applies every embedded migration newer than the recorded
// schema version. Each migration runs in its own transaction.
func RunMigration(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	migrations, err := LoadMigrations(scripts, "sql")
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+trackingTable+` (
		version    INT PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", trackingTable, err)
	}

	var current int
	if err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM `+trackingTable).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	log.Info("Running Postgres migrations", "current_version", current, "available", len(migrations))

	txManager := pgdb.NewTransactionManager(pool)
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		err := txManager.ExecuteTransaction(ctx, func(ctx context.Context) error {
			conn := pgdb.Conn(ctx, pool)
			if _, err := conn.Exec(ctx, m.UpScript); err != nil {
				return err
			}
			_, err := conn.Exec(ctx, `INSERT INTO `+trackingTable+` (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %03d_%s failed: %w", m.Version, m.Name, err)
		}
		log.Info("Applied migration", "version", m.Version, "name", m.Name)
	}

	log.Info("All Postgres migrations applied")
	return nil
}
