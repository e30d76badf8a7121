package sqlstore

import (
	_ "github.com/lib/pq"

	"github.com/nwnotary/notary-server/pkg/store"
)

// OpenPostgres opens a remote store at dsn (a "postgres://" URL or
// keyword/value connection string, per lib/pq).
func OpenPostgres(dsn string, clock store.Clock) (*Store, error) {
	return open("postgres", dsn, postgresDialect, clock)
}
