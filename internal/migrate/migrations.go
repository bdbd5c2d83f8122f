// Package migrate applies the embedded schema revisions.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var revisions embed.FS

// Migrate brings the database up to the newest embedded revision. Each
// sql/NNNN_name.sql file is one revision, applied in order inside a
// single transaction; schema_version holds the number of the last
// revision applied.
func Migrate(db *sql.DB) error {
	names, err := fs.Glob(revisions, "sql/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	current, err := versionTx(tx)
	if err != nil {
		return err
	}

	for _, name := range names {
		rev, err := revisionOf(name)
		if err != nil {
			return err
		}
		if rev <= current {
			continue
		}
		stmts, err := revisions.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(stmts)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, rev); err != nil {
			return fmt.Errorf("record revision %d: %w", rev, err)
		}
		current = rev
	}
	return tx.Commit()
}

// Version reports the revision the database is currently at; 0 means
// never migrated.
func Version(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return v, err
}

func versionTx(tx *sql.Tx) (int, error) {
	var v int
	err := tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&v)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return 0, fmt.Errorf("init schema_version: %w", err)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return v, nil
}

// revisionOf extracts the numeric prefix of sql/NNNN_name.sql.
func revisionOf(name string) (int, error) {
	base := strings.TrimPrefix(name, "sql/")
	i := strings.IndexByte(base, '_')
	if i < 1 {
		return 0, fmt.Errorf("migration %s: missing revision prefix", name)
	}
	rev, err := strconv.Atoi(base[:i])
	if err != nil {
		return 0, fmt.Errorf("migration %s: %w", name, err)
	}
	return rev, nil
}
