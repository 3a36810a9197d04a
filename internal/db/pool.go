// Package db opens the embedded (SQLite) or external (PostgreSQL) database
// and pairs the connections into a writer/reader pool.
package db

import "github.com/jmoiron/sqlx"

// Pool pairs the write and read connection pools behind one handle.
//
// SQLite runs in WAL mode with a single-connection writer, so reads go to a
// separate read-only pool that snapshots around the writer. PostgreSQL pools
// internally; both sides may be the same *sqlx.DB.
type Pool struct {
	writer *sqlx.DB
	reader *sqlx.DB
}

// NewPool pairs a writer and a reader into a Pool. The Pool owns both and
// closes them on Close.
func NewPool(writer, reader *sqlx.DB) *Pool {
	return &Pool{writer: writer, reader: reader}
}

// Writer returns the pool for statements and transactions that mutate state.
func (p *Pool) Writer() *sqlx.DB { return p.writer }

// Reader returns the pool for SELECT queries.
func (p *Pool) Reader() *sqlx.DB { return p.reader }

// Close closes both sides, tolerating a shared underlying connection.
func (p *Pool) Close() error {
	err := p.writer.Close()
	if p.reader != p.writer {
		if rErr := p.reader.Close(); err == nil {
			err = rErr
		}
	}
	return err
}
