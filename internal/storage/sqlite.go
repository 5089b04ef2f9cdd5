package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // CGO-free SQLite driver

	"github.com/enterprise-contract/ec-policies/internal/ir"
)

// ErrNotFound is returned when a build id is not in the history.
var ErrNotFound = errors.New("build not found")

// timeLayout is fixed width so stored timestamps order lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB is the build history backed by SQLite.
type DB struct {
	conn *sql.DB
}

// Open opens the history database for driver. Only sqlite is supported;
// an empty driver means sqlite.
func Open(driver, path string) (*DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// OpenSQLite opens (and creates if missing) a SQLite DB at path.
func OpenSQLite(path string) (*DB, error) {
	// Pragmas via DSN keep it portable with the modernc driver.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	c, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{conn: c}, nil
}

func (db *DB) Close() error { return db.conn.Close() }

// CreateSchema ensures tables exist.
func (db *DB) CreateSchema() error {
	_, err := db.conn.Exec(`
CREATE TABLE IF NOT EXISTS builds (
  id         TEXT PRIMARY KEY,
  started_at TEXT,          -- fixed width RFC3339, UTC
  source     TEXT,
  ir_version TEXT,
  pages      INTEGER NOT NULL DEFAULT 0,
  bundles    INTEGER NOT NULL DEFAULT 0,
  build_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rules (
  build_id           TEXT NOT NULL,
  namespace          TEXT NOT NULL,
  pos                INTEGER NOT NULL, -- order within the namespace
  package_path       TEXT,
  short_name         TEXT,
  code               TEXT,
  title              TEXT,
  warning_or_failure TEXT,
  effective_on       TEXT,
  collections        TEXT,            -- comma separated
  rule_json          TEXT NOT NULL,
  PRIMARY KEY (build_id, namespace, pos),
  FOREIGN KEY(build_id) REFERENCES builds(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_rules_build ON rules(build_id);
CREATE INDEX IF NOT EXISTS idx_rules_code ON rules(code);

CREATE TABLE IF NOT EXISTS audit (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts TEXT NOT NULL,
  username TEXT,
  action TEXT NOT NULL,
  resource TEXT,
  meta_json TEXT
);
`)
	return err
}

// SaveBuild upserts a build summary and (re)writes its rule inventory.
func (db *DB) SaveBuild(build *ir.Build) error {
	b, err := json.Marshal(build)
	if err != nil {
		return err
	}
	ts := build.StartedAt.UTC().Format(timeLayout)

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT INTO builds (id, started_at, source, ir_version, pages, bundles, build_json)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET started_at=excluded.started_at, source=excluded.source, ir_version=excluded.ir_version,
           pages=excluded.pages, bundles=excluded.bundles, build_json=excluded.build_json`,
		build.ID, ts, build.Source, build.IRVersion, len(build.Pages), build.Bundles, string(b),
	); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM rules WHERE build_id = ?`, build.ID); err != nil {
		return err
	}
	if build.RuleCount() > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO rules
			(build_id, namespace, pos, package_path, short_name, code, title, warning_or_failure, effective_on, collections, rule_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, ns := range build.Namespaces {
			for i, r := range ns.Rules {
				rj, err := json.Marshal(r)
				if err != nil {
					return err
				}
				if _, err := stmt.Exec(
					build.ID,
					ns.Qualifier,
					i,
					r.PackagePath,
					r.ShortName,
					r.Code,
					r.Title,
					r.WarningOrFailure,
					r.EffectiveOn,
					strings.Join(r.Collections, ","),
					string(rj),
				); err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit()
}

// LoadBuild returns the full build summary (from stored JSON).
func (db *DB) LoadBuild(id string) (ir.Build, error) {
	return db.loadBuild(`SELECT build_json FROM builds WHERE id = ?`, id)
}

// LoadLatestBuild returns the most recently started build.
func (db *DB) LoadLatestBuild() (ir.Build, error) {
	return db.loadBuild(`SELECT build_json FROM builds ORDER BY started_at DESC, id DESC LIMIT 1`)
}

func (db *DB) loadBuild(q string, args ...any) (ir.Build, error) {
	var s string
	if err := db.conn.QueryRow(q, args...).Scan(&s); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Build{}, ErrNotFound
		}
		return ir.Build{}, err
	}
	var build ir.Build
	if err := json.Unmarshal([]byte(s), &build); err != nil {
		return ir.Build{}, err
	}
	return build, nil
}
