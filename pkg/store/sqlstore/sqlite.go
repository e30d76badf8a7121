package sqlstore

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nwnotary/notary-server/pkg/store"
)

// OpenSQLite opens (creating if necessary) an embedded, file-based store at
// path. Passing ":memory:" works for tests but note that each pooled
// connection would see its own empty database; callers that need a shared
// in-memory instance should pass a "file::memory:?cache=shared" DSN instead
// and call (*Store).DB().SetMaxOpenConns(1).
func OpenSQLite(path string, clock store.Clock) (*Store, error) {
	return open("sqlite3", path, sqliteDialect, clock)
}

// DB exposes the underlying *sql.DB for callers that need to tune pool
// settings (see OpenSQLite's :memory: caveat).
func (s *Store) DB() *sql.DB { return s.db }
