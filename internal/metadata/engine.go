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

/*
Package metadata is the coordinator's persistent record of nodes, files,
versions, events and conflicts. Every other component treats it as an
external collaborator reached through the Engine interface: a namespaced
key/value store with ordered scans, backed either by an in-memory map for
tests and small deployments or by SQLite for durability across restarts.
*/
package metadata

import (
	"errors"
	"fmt"
)

// ErrEngineNotSupported is returned when an unsupported engine type is requested.
var ErrEngineNotSupported = errors.New("metadata: engine type not supported")

// EngineType names a metadata engine backend.
type EngineType string

const (
	// EngineTypeMemory keeps all state in process memory; lost on restart.
	EngineTypeMemory EngineType = "memory"
	// EngineTypeSQLite persists state to a SQLite file via database/sql.
	EngineTypeSQLite EngineType = "sqlite"
)

// Record is a single stored key/value pair within a namespace, in the
// order a Scan should return it.
type Record struct {
	Key   string
	Value []byte
}

// Engine is the storage contract every coordinator component is built
// against. Namespaces group related keys (e.g. "nodes", "files",
// "versions:<file_id>", "conflicts", "events") so a single Engine can
// back every metadata kind without key collisions.
type Engine interface {
	// Put stores value under key in namespace, replacing any prior value.
	Put(namespace, key string, value []byte) error

	// Get retrieves the value stored under key in namespace.
	// Returns false if no such key exists.
	Get(namespace, key string) ([]byte, bool, error)

	// Delete removes key from namespace. No-op if absent.
	Delete(namespace, key string) error

	// Scan returns every record in namespace whose key has the given
	// prefix, ordered lexicographically by key.
	Scan(namespace, keyPrefix string) ([]Record, error)

	// Close releases resources held by the engine. After Close, the
	// engine must not be used.
	Close() error

	// Type reports which backend this Engine is.
	Type() EngineType
}

// Config configures engine construction.
type Config struct {
	// Type selects the backend. Defaults to EngineTypeMemory.
	Type EngineType

	// Path is the SQLite file path, required when Type is EngineTypeSQLite.
	Path string
}

// NewEngine constructs an Engine per cfg.
func NewEngine(cfg Config) (Engine, error) {
	switch cfg.Type {
	case "", EngineTypeMemory:
		return NewMemoryEngine(), nil
	case EngineTypeSQLite:
		return NewSQLiteEngine(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrEngineNotSupported, cfg.Type)
	}
}
