package blockio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	blocks "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS blocks (
	cid    TEXT PRIMARY KEY,
	data   BLOB NOT NULL,
	pinned INTEGER NOT NULL DEFAULT 0
);`

// SQLiteStore persists blocks in a single-table SQLite database. Suitable
// for a single-node replica that must survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, b blocks.Block) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO blocks (cid, data) VALUES (?, ?)`,
		b.Cid().KeyString(), b.RawData())
	if err != nil {
		return fmt.Errorf("put block: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, c cid.Cid) (blocks.Block, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM blocks WHERE cid = ?`, c.KeyString()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get block: %w", err)
	}
	return blocks.NewBlockWithCid(data, c)
}

func (s *SQLiteStore) Pin(ctx context.Context, c cid.Cid) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE blocks SET pinned = 1 WHERE cid = ?`, c.KeyString())
	if err != nil {
		return fmt.Errorf("pin block: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
