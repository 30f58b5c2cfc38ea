/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metadata

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver, registered as "sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS metadata_kv (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	value     BLOB NOT NULL,
	PRIMARY KEY (namespace, key)
);
CREATE INDEX IF NOT EXISTS idx_metadata_kv_prefix ON metadata_kv(namespace, key);
`

// SQLiteEngine persists every namespace into a single SQLite file, so a
// coordinator restart recovers nodes, versions, conflicts and the event
// log without replaying replication traffic.
type SQLiteEngine struct {
	db   *sql.DB
	path string
}

// NewSQLiteEngine opens (creating if necessary) a SQLite-backed Engine at
// path.
func NewSQLiteEngine(path string) (*SQLiteEngine, error) {
	if path == "" {
		return nil, fmt.Errorf("metadata: sqlite engine requires a non-empty path")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("metadata: opening sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("metadata: pinging sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("metadata: applying schema: %w", err)
	}
	// the coordinator issues one logical write at a time per namespace;
	// a single connection avoids SQLITE_BUSY under concurrent readers.
	db.SetMaxOpenConns(1)
	return &SQLiteEngine{db: db, path: path}, nil
}

func (e *SQLiteEngine) Put(namespace, key string, value []byte) error {
	_, err := e.db.Exec(
		`INSERT INTO metadata_kv (namespace, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value`,
		namespace, key, value,
	)
	if err != nil {
		return fmt.Errorf("metadata: put %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (e *SQLiteEngine) Get(namespace, key string) ([]byte, bool, error) {
	var value []byte
	err := e.db.QueryRow(
		`SELECT value FROM metadata_kv WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("metadata: get %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

func (e *SQLiteEngine) Delete(namespace, key string) error {
	_, err := e.db.Exec(
		`DELETE FROM metadata_kv WHERE namespace = ? AND key = ?`,
		namespace, key,
	)
	if err != nil {
		return fmt.Errorf("metadata: delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (e *SQLiteEngine) Scan(namespace, keyPrefix string) ([]Record, error) {
	rows, err := e.db.Query(
		`SELECT key, value FROM metadata_kv
		 WHERE namespace = ? AND key >= ? AND key < ?
		 ORDER BY key`,
		namespace, keyPrefix, prefixUpperBound(keyPrefix),
	)
	if err != nil {
		return nil, fmt.Errorf("metadata: scan %s/%s*: %w", namespace, keyPrefix, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Key, &rec.Value); err != nil {
			return nil, fmt.Errorf("metadata: scan %s/%s*: %w", namespace, keyPrefix, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (e *SQLiteEngine) Close() error {
	return e.db.Close()
}

func (e *SQLiteEngine) Type() EngineType { return EngineTypeSQLite }

// prefixUpperBound returns the smallest string that is lexicographically
// greater than every string with the given prefix, letting a prefix scan
// be expressed as a half-open range over an ordered index. An empty
// prefix has no upper bound short of scanning everything.
func prefixUpperBound(prefix string) string {
	if prefix == "" {
		return "\xff\xff\xff\xff\xff\xff\xff\xff"
	}
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return prefix + "\xff"
}
