// Package store defines the ObservationStore contract and the continuity
// algorithm shared by every backend (pkg/store/sqlstore,
// pkg/store/memstore). Backends own persistence; this package owns the
// rules that decide whether a fresh sighting extends a span or opens a new
// one, so that rule lives in exactly one place no matter which backend is
// configured.
package store

import (
	"context"
	"io"
	"time"

	"github.com/nwnotary/notary-server/pkg/observation"
)

// UpdateLimit is the maximum gap, in seconds, across which a fresh sighting
// of a key may extend a prior observation's end time. 48 hours tolerates
// routine scan jitter while still refusing to assert continuous presence
// across a genuine outage.
const UpdateLimit = 48 * 60 * 60

// Clock abstracts "now" so the continuity algorithm (and anything that
// calls ReportObservation) can be driven deterministically in tests,
// instead of depending on wall-clock time directly.
type Clock interface {
	Now() time.Time
}

// systemClock is the production Clock, backed by time.Now.
type systemClock struct{}

// Now returns the current wall-clock time.
func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default, real-time Clock.
var SystemClock Clock = systemClock{}

// ObservationStore persists (service, key, start, end) rows and answers
// queries over them. All methods are safe for concurrent use; per-service
// ReportObservation calls are internally serialized so the continuity
// algorithm's read-modify-write stays correct under concurrent scanning
// and on-demand probing of the same service.
type ObservationStore interface {
	// ReportObservation applies the continuity algorithm for a sighting
	// of key at service, as of the store's Clock. It either extends the
	// most recent observation for (service, key) or opens a new one, and
	// may also close out the previous key's span. The returned Decision
	// records which of those happened, so callers (the scanner's metrics
	// wiring in particular) can tell a plain extension apart from a key
	// rotation without re-deriving it. Returns
	// observation.ErrStoreUnavailable on transient failure.
	ReportObservation(ctx context.Context, service observation.Service, key observation.Key) (Decision, error)

	// GetObservations returns every observation recorded for service,
	// ordered by (key, start). A service with no observations returns an
	// empty, non-nil slice and a nil error.
	GetObservations(ctx context.Context, service observation.Service) ([]observation.Observation, error)

	// InsertService registers service if it doesn't already exist. Idempotent.
	InsertService(ctx context.Context, service observation.Service) error

	// InsertBulkServices registers every service in services that doesn't
	// already exist. Idempotent in aggregate.
	InsertBulkServices(ctx context.Context, services []observation.Service) error

	// CountServices returns the total number of known services.
	CountServices(ctx context.Context) (int, error)

	// CountObservations returns the total number of observation rows.
	CountObservations(ctx context.Context) (int, error)

	// GetAllServiceNames returns the ID of every known service.
	GetAllServiceNames(ctx context.Context) ([]string, error)

	// GetNewestServiceNames returns the ID of every service with at least
	// one observation whose End is strictly after endLimit.
	GetNewestServiceNames(ctx context.Context, endLimit int64) ([]string, error)

	// GetOldestServiceNames returns the ID of every service whose most
	// recent observation's End is at or before endLimit.
	GetOldestServiceNames(ctx context.Context, endLimit int64) ([]string, error)

	// Close releases any resources held by the backend.
	Close() error
}

// TupleExporter is implemented by stores that can dump their full content
// as the newline-separated tuple-file format named in the specification's
// external-interfaces section, for offline backup or migration between
// backends.
type TupleExporter interface {
	ExportTuples(ctx context.Context, w io.Writer) error
}

// TupleImporter is implemented by stores that can load the tuple-file
// format produced by TupleExporter.
type TupleImporter interface {
	ImportTuples(ctx context.Context, r io.Reader) error
}
