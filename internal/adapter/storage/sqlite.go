// Package storage provides the SQLite snapshot store. One row per meter,
// holding the serialized snapshot payload; the schema is created on open.
package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

const createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS meter_snapshots (
	meter_id   TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

type SQLiteSnapshotStore struct {
	db *sql.DB
}

func NewSQLiteSnapshotStore(path string) (*SQLiteSnapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(createSnapshotsTable); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteSnapshotStore{db: db}, nil
}

func (s *SQLiteSnapshotStore) Load(key string) ([]byte, error) {
	var payload string
	err := s.db.QueryRow(
		"SELECT payload FROM meter_snapshots WHERE meter_id = ?", key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

func (s *SQLiteSnapshotStore) Save(key string, payload []byte) error {
	_, err := s.db.Exec(
		"INSERT INTO meter_snapshots (meter_id, payload, updated_at) "+
			"VALUES (?, ?, ?) "+
			"ON CONFLICT(meter_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at",
		key, string(payload), time.Now().Unix(),
	)
	return err
}

func (s *SQLiteSnapshotStore) Close() error {
	return s.db.Close()
}
