package store

import (
	"github.com/opensourcewtf/waaah/internal/db"
	"github.com/opensourcewtf/waaah/internal/store/sqlite"
)

// Ensure the SQLite implementation satisfies the Store interface.
var _ Store = (*sqlite.Store)(nil)

// Provide builds the store on top of a writer/reader pool. The pool owns the
// connections; the returned cleanup closes it.
func Provide(pool *db.Pool) (*sqlite.Store, func() error, error) {
	st, err := sqlite.NewWithDB(pool.Writer(), pool.Reader())
	if err != nil {
		_ = pool.Close()
		return nil, nil, err
	}
	return st, pool.Close, nil
}
