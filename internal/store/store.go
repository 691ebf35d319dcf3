// Package store owns all persistent state. It exposes typed operations —
// never ad-hoc queries — and every multi-statement operation runs in a
// transaction: on error no partial row set remains.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// Tables lists every table the store manages, parents before children so
// seed insertion satisfies foreign keys. The pipeline never deletes rows
// from the configuration tables.
var Tables = []string{
	"categories", "feeds", "difficulty_levels", "apikey",
	"users", "user_progress", "user_quiz_scores", "user_preferences",
	"articles", "article_images", "article_summaries", "keywords",
	"questions", "choices", "comments", "background_read",
	"article_analysis", "response",
}

// dataTables are purged by the destructive phase; configuration and user
// tables survive.
var dataTables = []string{
	"response", "article_analysis", "background_read", "comments",
	"choices", "questions", "keywords", "article_summaries",
	"article_images", "articles",
}

// Store is the SQLite-backed relational substrate shared by all stages.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at dbPath, applies the
// schema bootstrap file, and loads seed data. Both bootstrap steps are
// idempotent.
func Open(dbPath, schemaFile, seedFile string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Long-running transactions are forbidden; a single connection keeps
	// SQLite writes serialized without SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: dbPath}
	if err := s.applySchema(schemaFile); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.applySeed(seedFile); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// applySchema executes the CREATE TABLE statements from the bootstrap
// file. The file is human-editable: statements are grouped under
// "-- [table_name]" section headers.
func (s *Store) applySchema(schemaFile string) error {
	data, err := os.ReadFile(schemaFile)
	if err != nil {
		return fmt.Errorf("failed to read schema file %s: %w", schemaFile, err)
	}

	for _, section := range parseSchemaSections(string(data)) {
		if _, err := s.db.Exec(section.SQL); err != nil {
			return fmt.Errorf("failed to apply schema section %s: %w", section.Name, err)
		}
	}
	return nil
}

type schemaSection struct {
	Name string
	SQL  string
}

// parseSchemaSections splits the bootstrap file on "-- [name]" headers.
// Lines before the first header are ignored, as are blank sections.
func parseSchemaSections(text string) []schemaSection {
	var sections []schemaSection
	var current *schemaSection

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-- [") && strings.HasSuffix(trimmed, "]") {
			if current != nil && strings.TrimSpace(current.SQL) != "" {
				sections = append(sections, *current)
			}
			current = &schemaSection{Name: trimmed[4 : len(trimmed)-1]}
			continue
		}
		if current != nil {
			current.SQL += line + "\n"
		}
	}
	if current != nil && strings.TrimSpace(current.SQL) != "" {
		sections = append(sections, *current)
	}
	return sections
}

// applySeed inserts seed rows per table from the JSON seed file. Rows are
// inserted with INSERT OR IGNORE so repeated bootstraps are no-ops.
func (s *Store) applySeed(seedFile string) error {
	data, err := os.ReadFile(seedFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read seed file %s: %w", seedFile, err)
	}

	var seed map[string][]map[string]any
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", seedFile, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	// Parents-first order so foreign keys resolve.
	for _, table := range Tables {
		rows, ok := seed[table]
		if !ok {
			continue
		}
		for _, row := range rows {
			if err := insertSeedRow(tx, table, row); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed data: %w", err)
	}
	return nil
}

func insertSeedRow(tx *sql.Tx, table string, row map[string]any) error {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		args[i] = row[c]
	}

	query := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to seed %s: %w", table, err)
	}
	return nil
}

// TableCounts returns the row count of every managed table, used by the
// driver's results summary and the verify phase.
func (s *Store) TableCounts() (map[string]int64, error) {
	counts := make(map[string]int64, len(Tables))
	for _, table := range Tables {
		var n int64
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// Purge deletes all pipeline-produced data. Configuration tables (feeds,
// categories, difficulty_levels, apikey) and user tables are preserved.
func (s *Store) Purge() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin purge: %w", err)
	}
	defer tx.Rollback()

	// articles and article_images reference each other; the backlink must
	// be cleared before the image rows can go.
	if _, err := tx.Exec("UPDATE articles SET image_id = NULL"); err != nil {
		return fmt.Errorf("failed to unlink article images: %w", err)
	}
	for _, table := range dataTables {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to purge %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit purge: %w", err)
	}

	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum after purge: %w", err)
	}
	return nil
}

// APIKey returns the stored key for a provider name (e.g. "DeepSeek").
func (s *Store) APIKey(name string) (string, error) {
	var key string
	err := s.db.QueryRow("SELECT key_value FROM apikey WHERE name = ?", name).Scan(&key)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no API key stored for %s", name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return key, nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure (duplicate url, duplicate id).
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
