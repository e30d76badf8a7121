// Package admission guards on-demand probing against unbounded fanout: a
// bounded semaphore caps total concurrent probes, and an in-flight set
// collapses duplicate requests for the same service onto the probe
// already running for it.
package admission

import (
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrLimitExceeded is returned by TryAdmit when every permit is already
// held.
var ErrLimitExceeded = errors.New("admission: probe limit exceeded")

// ErrDuplicate is returned by TryAdmit when the service already has a
// probe in flight.
var ErrDuplicate = errors.New("admission: probe already in flight for this service")

// DefaultProbeLimit is the default number of concurrent on-demand probes
// the gate admits.
const DefaultProbeLimit = 10

// Admission is the handle returned by a successful TryAdmit. Release must
// be called exactly once, on every exit path of the probe that obtained
// it.
type Admission struct {
	gate    *Gate
	service string
}

// Release removes the admission's service from the in-flight set and
// returns its permit to the semaphore.
func (a Admission) Release() {
	a.gate.release(a.service)
}

// Gate bounds concurrent on-demand probes to a fixed permit count and
// prevents more than one in-flight probe per service.
type Gate struct {
	sem   *semaphore.Weighted
	mu    sync.Mutex
	inFl  map[string]struct{}
	limit int64
}

// New returns a Gate admitting at most limit concurrent probes.
func New(limit int) *Gate {
	if limit <= 0 {
		limit = DefaultProbeLimit
	}
	return &Gate{
		sem:   semaphore.NewWeighted(int64(limit)),
		inFl:  make(map[string]struct{}),
		limit: int64(limit),
	}
}

// TryAdmit attempts to admit a probe for service. It never blocks: if the
// gate is at capacity it returns ErrLimitExceeded, and if a probe for
// service is already running it returns ErrDuplicate.
func (g *Gate) TryAdmit(service string) (Admission, error) {
	if !g.sem.TryAcquire(1) {
		return Admission{}, ErrLimitExceeded
	}

	g.mu.Lock()
	if _, dup := g.inFl[service]; dup {
		g.mu.Unlock()
		g.sem.Release(1)
		return Admission{}, ErrDuplicate
	}
	g.inFl[service] = struct{}{}
	g.mu.Unlock()

	return Admission{gate: g, service: service}, nil
}

func (g *Gate) release(service string) {
	g.mu.Lock()
	delete(g.inFl, service)
	g.mu.Unlock()
	g.sem.Release(1)
}

// InFlight reports how many services currently have a probe in flight.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFl)
}
