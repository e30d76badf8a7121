// Package sqlstore implements store.ObservationStore on top of
// database/sql, supporting both an embedded, file-based backend
// (github.com/mattn/go-sqlite3) and a remote backend
// (github.com/lib/pq), per the specification's note that the store should
// support "an embedded file-based, remote SQL" pair of deployments. The
// two only differ in DSN, driver name and placeholder/upsert syntax,
// captured by the small dialect type below; the query logic itself is
// shared.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"

	"github.com/nwnotary/notary-server/pkg/observation"
	"github.com/nwnotary/notary-server/pkg/store"
)

// dialect hides the handful of syntax differences between the SQL
// backends this package supports.
type dialect struct {
	// placeholder returns the driver's bind-parameter syntax for the
	// n-th (1-indexed) parameter of a query.
	placeholder func(n int) string
	// upsertService returns a statement that inserts a service row,
	// doing nothing if it already exists.
	upsertService string
	// createSchema is the DDL run once at Open.
	createSchema []string
}

var sqliteDialect = dialect{
	placeholder:   func(int) string { return "?" },
	upsertService: "INSERT OR IGNORE INTO services (name) VALUES (?)",
	createSchema: []string{
		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS observations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			service_id INTEGER NOT NULL REFERENCES services(id),
			key TEXT NOT NULL,
			start_ts INTEGER NOT NULL,
			end_ts INTEGER NOT NULL,
			UNIQUE(service_id, key, start_ts),
			UNIQUE(service_id, key, end_ts)
		)`,
		`CREATE INDEX IF NOT EXISTS observations_end_idx ON observations(end_ts)`,
		`CREATE INDEX IF NOT EXISTS observations_service_key_idx ON observations(service_id, key)`,
	},
}

var postgresDialect = dialect{
	placeholder:   func(n int) string { return fmt.Sprintf("$%d", n) },
	upsertService: "INSERT INTO services (name) VALUES ($1) ON CONFLICT (name) DO NOTHING",
	createSchema: []string{
		`CREATE TABLE IF NOT EXISTS services (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS observations (
			id BIGSERIAL PRIMARY KEY,
			service_id BIGINT NOT NULL REFERENCES services(id),
			key TEXT NOT NULL,
			start_ts BIGINT NOT NULL,
			end_ts BIGINT NOT NULL,
			UNIQUE(service_id, key, start_ts),
			UNIQUE(service_id, key, end_ts)
		)`,
		`CREATE INDEX IF NOT EXISTS observations_end_idx ON observations(end_ts)`,
		`CREATE INDEX IF NOT EXISTS observations_service_key_idx ON observations(service_id, key)`,
	},
}

// Store is a database/sql-backed ObservationStore.
type Store struct {
	db      *sql.DB
	dialect dialect
	clock   store.Clock
}

var (
	_ store.ObservationStore = (*Store)(nil)
	_ store.TupleExporter    = (*Store)(nil)
	_ store.TupleImporter    = (*Store)(nil)
)

func open(driverName, dsn string, d dialect, clock store.Clock) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driverName, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", driverName, err)
	}
	for _, stmt := range d.createSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlstore: create schema: %w", err)
		}
	}
	if clock == nil {
		clock = store.SystemClock
	}
	return &Store{db: db, dialect: d, clock: clock}, nil
}

// Close releases the underlying *sql.DB.
func (s *Store) Close() error { return s.db.Close() }

func wrapUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", observation.ErrStoreUnavailable, err)
}

// InsertService registers service if it doesn't already exist.
func (s *Store) InsertService(ctx context.Context, service observation.Service) error {
	_, err := s.db.ExecContext(ctx, s.dialect.upsertService, service.ID())
	return wrapUnavailable(err)
}

// InsertBulkServices registers every service in services that doesn't
// already exist, inside one transaction.
func (s *Store) InsertBulkServices(ctx context.Context, services []observation.Service) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapUnavailable(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.upsertService)
	if err != nil {
		return wrapUnavailable(err)
	}
	defer stmt.Close()

	for _, svc := range services {
		if _, err := stmt.ExecContext(ctx, svc.ID()); err != nil {
			return wrapUnavailable(err)
		}
	}
	return wrapUnavailable(tx.Commit())
}

// serviceIDTx returns the internal row id for a service name, inserting it
// first if necessary. Must run inside tx.
func (s *Store) serviceIDTx(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	if _, err := tx.ExecContext(ctx, s.dialect.upsertService, name); err != nil {
		return 0, err
	}
	var id int64
	row := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT id FROM services WHERE name = %s", s.dialect.placeholder(1)), name)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// ReportObservation applies the continuity algorithm inside a single
// transaction, so concurrent reports for the same service serialize
// correctly (a write lock on the service's row, taken before the most
// recent observation is read, provides the ordering spec §5 requires).
func (s *Store) ReportObservation(ctx context.Context, service observation.Service, key observation.Key) (store.Decision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Decision{}, wrapUnavailable(err)
	}
	defer tx.Rollback()

	svcID, err := s.serviceIDTx(ctx, tx, service.ID())
	if err != nil {
		return store.Decision{}, wrapUnavailable(err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE services SET name = name WHERE id = %s`, s.dialect.placeholder(1)),
		svcID); err != nil {
		return store.Decision{}, wrapUnavailable(err)
	}

	var mostRecent *observation.Observation
	row := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT key, start_ts, end_ts FROM observations WHERE service_id = %s ORDER BY end_ts DESC LIMIT 1`,
			s.dialect.placeholder(1)),
		svcID)
	var mrKey string
	var mrStart, mrEnd int64
	switch err := row.Scan(&mrKey, &mrStart, &mrEnd); err {
	case nil:
		mostRecent = &observation.Observation{Service: service, Key: observation.Key(mrKey), Start: mrStart, End: mrEnd}
	case sql.ErrNoRows:
		mostRecent = nil
	default:
		return store.Decision{}, wrapUnavailable(err)
	}

	now := s.clock.Now().Unix()
	decision := store.Decide(mostRecent, service, key, now)

	switch decision.Action {
	case store.ActionNoop:
		return decision, wrapUnavailable(tx.Commit())
	case store.ActionExtend:
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE observations SET end_ts = %s WHERE service_id = %s AND key = %s AND start_ts = %s`,
				s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3), s.dialect.placeholder(4)),
			decision.NewEnd, svcID, string(key), decision.ExtendStart)
		if err != nil {
			return decision, wrapUnavailable(err)
		}
	case store.ActionOpenNew:
		if decision.ClosePrev {
			_, err := tx.ExecContext(ctx,
				fmt.Sprintf(`UPDATE observations SET end_ts = %s WHERE service_id = %s AND key = %s AND start_ts = %s`,
					s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3), s.dialect.placeholder(4)),
				decision.PrevNewEnd, svcID, string(decision.PrevKey), decision.PrevStart)
			if err != nil {
				return decision, wrapUnavailable(err)
			}
		}
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO observations (service_id, key, start_ts, end_ts) VALUES (%s, %s, %s, %s)`,
				s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3), s.dialect.placeholder(4)),
			svcID, string(decision.NewObservation.Key), decision.NewObservation.Start, decision.NewObservation.End)
		if err != nil {
			// A racing duplicate insert violates the unique constraint;
			// that race means another goroutine already recorded this
			// exact span, so the intent is satisfied idempotently.
			return decision, wrapUnavailable(tx.Commit())
		}
	}
	return decision, wrapUnavailable(tx.Commit())
}

// GetObservations returns every observation recorded for service, ordered
// by (key, start).
func (s *Store) GetObservations(ctx context.Context, service observation.Service) ([]observation.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT o.key, o.start_ts, o.end_ts FROM observations o
			JOIN services sv ON sv.id = o.service_id
			WHERE sv.name = %s ORDER BY o.key, o.start_ts`, s.dialect.placeholder(1)),
		service.ID())
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	defer rows.Close()

	out := []observation.Observation{}
	for rows.Next() {
		var key string
		var start, end int64
		if err := rows.Scan(&key, &start, &end); err != nil {
			return nil, wrapUnavailable(err)
		}
		out = append(out, observation.Observation{Service: service, Key: observation.Key(key), Start: start, End: end})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable(err)
	}
	return out, nil
}

// CountServices returns the total number of known services.
func (s *Store) CountServices(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM services`).Scan(&n)
	return n, wrapUnavailable(err)
}

// CountObservations returns the total number of observation rows.
func (s *Store) CountObservations(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations`).Scan(&n)
	return n, wrapUnavailable(err)
}

// GetAllServiceNames returns the ID of every known service.
func (s *Store) GetAllServiceNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM services ORDER BY name`)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	defer rows.Close()
	return scanNames(rows)
}

// GetNewestServiceNames returns the ID of every service with an
// observation ending after endLimit.
func (s *Store) GetNewestServiceNames(ctx context.Context, endLimit int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT sv.name FROM services sv
			JOIN observations o ON o.service_id = sv.id
			WHERE o.end_ts > %s ORDER BY sv.name`, s.dialect.placeholder(1)),
		endLimit)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	defer rows.Close()
	return scanNames(rows)
}

// GetOldestServiceNames returns the ID of every service whose most recent
// observation ends at or before endLimit.
func (s *Store) GetOldestServiceNames(ctx context.Context, endLimit int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT sv.name FROM services sv
			WHERE (SELECT MAX(o.end_ts) FROM observations o WHERE o.service_id = sv.id) <= %s
			ORDER BY sv.name`, s.dialect.placeholder(1)),
		endLimit)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	defer rows.Close()
	return scanNames(rows)
}

func scanNames(rows *sql.Rows) ([]string, error) {
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrapUnavailable(err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable(err)
	}
	return names, nil
}

// ExportTuples writes every observation as a tuple-file stream, ordered by
// service name then (key, start) for a stable diff-able output.
func (s *Store) ExportTuples(ctx context.Context, w io.Writer) error {
	names, err := s.GetAllServiceNames(ctx)
	if err != nil {
		return err
	}
	sort.Strings(names)
	if _, err := fmt.Fprintln(w, "# network notary export"); err != nil {
		return err
	}
	for _, name := range names {
		svc, err := observation.ParseServiceID(name)
		if err != nil {
			return err
		}
		obs, err := s.GetObservations(ctx, svc)
		if err != nil {
			return err
		}
		for _, o := range obs {
			if err := store.WriteTuple(w, name, o); err != nil {
				return err
			}
		}
	}
	return nil
}

// ImportTuples loads a tuple-file stream, inserting rows directly
// (bypassing the continuity algorithm, since historical rows carry their
// own Start/End rather than "now").
func (s *Store) ImportTuples(ctx context.Context, r io.Reader) error {
	rows, err := store.ReadTuples(r)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapUnavailable(err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		svc, err := observation.ParseServiceID(row.ServiceID)
		if err != nil {
			return err
		}
		svcID, err := s.serviceIDTx(ctx, tx, svc.ID())
		if err != nil {
			return wrapUnavailable(err)
		}
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO observations (service_id, key, start_ts, end_ts) VALUES (%s, %s, %s, %s)`,
				s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3), s.dialect.placeholder(4)),
			svcID, string(row.Key), row.Start, row.End)
		if err != nil {
			// Idempotent in aggregate: a row that already exists from a
			// prior import is not an error.
			continue
		}
	}
	return wrapUnavailable(tx.Commit())
}
