package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed registry for providers, models, agent roles and
// tasks.
//
// Notes:
//   - Schema creation and column backfills run once in Open, not as an import
//     side effect. The composition root owns the call.
//   - Foreign keys are declared but enforcement is left at the SQLite default:
//     deleting a provider does not cascade to its models, and an agent role may
//     keep a dangling model_id. The UI treats both as valid states.
//   - WAL is enabled so reads stay available while an import is writing.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("missing db path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	return migrateSchema(db)
}

func migrateSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	const targetVersion = 2

	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS model_providers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider_name TEXT NOT NULL UNIQUE,
  display_name TEXT NOT NULL DEFAULT '',
  extra_info TEXT NOT NULL DEFAULT ''
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS models (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider_id INTEGER NOT NULL REFERENCES model_providers(id),
  model_name TEXT NOT NULL,
  display_name TEXT NOT NULL DEFAULT '',
  extra_info TEXT NOT NULL DEFAULT '',
  supports_reasoning INTEGER NOT NULL DEFAULT 1,
  UNIQUE(provider_id, model_name)
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS agent_roles (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  agent_role TEXT NOT NULL UNIQUE,
  agent_description TEXT NOT NULL DEFAULT '',
  allowed_tools TEXT NOT NULL DEFAULT '[]',
  default_developer_prompt TEXT NOT NULL DEFAULT '',
  default_user_prompt TEXT NOT NULL DEFAULT '',
  model_id INTEGER REFERENCES models(id),
  reasoning_level TEXT NOT NULL DEFAULT '',
  tool_choice TEXT NOT NULL DEFAULT 'auto'
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS tasks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  task_name TEXT NOT NULL UNIQUE,
  task_prompt TEXT NOT NULL DEFAULT ''
);
`); err != nil {
		return err
	}

	// Columns added after the tables first shipped. Older DBs pick them up here.
	if has, err := columnExists(tx, "models", "supports_reasoning"); err != nil {
		return err
	} else if !has {
		if _, err := tx.Exec(`ALTER TABLE models ADD COLUMN supports_reasoning INTEGER NOT NULL DEFAULT 1`); err != nil {
			return err
		}
	}
	if has, err := columnExists(tx, "agent_roles", "reasoning_level"); err != nil {
		return err
	} else if !has {
		if _, err := tx.Exec(`ALTER TABLE agent_roles ADD COLUMN reasoning_level TEXT NOT NULL DEFAULT ''`); err != nil {
			return err
		}
	}
	if has, err := columnExists(tx, "agent_roles", "tool_choice"); err != nil {
		return err
	} else if !has {
		if _, err := tx.Exec(`ALTER TABLE agent_roles ADD COLUMN tool_choice TEXT NOT NULL DEFAULT 'auto'`); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, targetVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func columnExists(tx *sql.Tx, tableName string, colName string) (bool, error) {
	tableName = strings.TrimSpace(tableName)
	colName = strings.TrimSpace(colName)
	if tableName == "" || colName == "" {
		return false, errors.New("invalid table/column")
	}

	rows, err := tx.Query(`PRAGMA table_info(` + tableName + `)`)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notNull int
		var defaultValue sql.NullString
		var primaryKey int
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &defaultValue, &primaryKey); err != nil {
			return false, err
		}
		if strings.EqualFold(strings.TrimSpace(name), colName) {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return false, nil
}
