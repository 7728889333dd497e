package database

import (
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migration is one NNN_name.sql schema step.
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// Migrator applies schema steps in version order and remembers what it
// applied, with a checksum so an edited historical step is caught at boot.
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

// RunEmbedded applies the schema compiled into the binary.
func (m *Migrator) RunEmbedded() error {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	return m.Run(sub, "embedded")
}

// RunMigrations applies pending steps from a directory on disk.
func (m *Migrator) RunMigrations(dir string) error {
	return m.Run(os.DirFS(dir), dir)
}

// Run applies every pending step found at the root of fsys.
func (m *Migrator) Run(fsys fs.FS, source string) error {
	steps, err := parseMigrations(fsys)
	if err != nil {
		return fmt.Errorf("load migrations from %s: %w", source, err)
	}

	if _, err := m.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		checksum   TEXT NOT NULL DEFAULT '',
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := m.appliedChecksums()
	if err != nil {
		return err
	}

	var ran int
	for _, step := range steps {
		if sum, ok := applied[step.Version]; ok {
			if sum != "" && sum != step.Checksum {
				return fmt.Errorf("migration %d (%s) changed after it was applied", step.Version, step.Name)
			}
			continue
		}
		if err := m.apply(step); err != nil {
			return fmt.Errorf("apply migration %d: %w", step.Version, err)
		}
		m.logger.Info("Applied migration",
			zap.Int("version", step.Version),
			zap.String("name", step.Name))
		ran++
	}

	m.logger.Info("Schema up to date",
		zap.String("source", source),
		zap.Int("applied", ran),
		zap.Int("known", len(steps)))
	return nil
}

func (m *Migrator) appliedChecksums() (map[int]string, error) {
	rows, err := m.db.Query("SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var (
			version int
			sum     string
		)
		if err := rows.Scan(&version, &sum); err != nil {
			return nil, err
		}
		out[version] = sum
	}
	return out, rows.Err()
}

func (m *Migrator) apply(step Migration) error {
	return m.db.WithTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(step.SQL); err != nil {
			return err
		}
		_, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)",
			step.Version, step.Name, step.Checksum,
		)
		return err
	})
}

// parseMigrations reads the *.sql files at the root of fsys. Names must
// start with a numeric version ("001_initial_schema.sql") and versions
// must be unique.
func parseMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	seen := make(map[int]string)
	var steps []Migration
	for _, entry := range entries {
		file := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(file, ".sql") {
			continue
		}

		prefix, rest, _ := strings.Cut(strings.TrimSuffix(file, ".sql"), "_")
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %q: name must start with a version number", file)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %q and %q share version %d", other, file, version)
		}
		seen[version] = file

		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		sum := sha256.Sum256(body)

		steps = append(steps, Migration{
			Version:  version,
			Name:     rest,
			SQL:      string(body),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps, nil
}
