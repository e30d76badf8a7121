// Package memstore is an in-memory ObservationStore, used for unit tests
// across the rest of the module and for the --cache-only operating mode,
// where an operator runs the HTTP surface without wiring persistent
// storage. It is grounded on the teacher's historical backend/membk
// package (present in the retrieval pack as a test file only) and on the
// same "simplest possible backend satisfying the storage interface" shape
// seen elsewhere in the pack's storage layers: a mutex and a couple of
// maps, nothing clever.
package memstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/nwnotary/notary-server/pkg/observation"
	"github.com/nwnotary/notary-server/pkg/store"
)

type serviceRecord struct {
	service      observation.Service
	observations []observation.Observation
}

// Store is a sync.Mutex-guarded, in-memory ObservationStore.
type Store struct {
	clock store.Clock

	mu       sync.Mutex
	services map[string]*serviceRecord
}

// New creates an empty Store. If clock is nil, store.SystemClock is used.
func New(clock store.Clock) *Store {
	if clock == nil {
		clock = store.SystemClock
	}
	return &Store{clock: clock, services: make(map[string]*serviceRecord)}
}

var _ store.ObservationStore = (*Store)(nil)
var _ store.TupleExporter = (*Store)(nil)
var _ store.TupleImporter = (*Store)(nil)

// Close is a no-op; Store holds no external resources.
func (s *Store) Close() error { return nil }

// InsertService registers service if it isn't already known.
func (s *Store) InsertService(_ context.Context, service observation.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertServiceLocked(service)
	return nil
}

func (s *Store) insertServiceLocked(service observation.Service) *serviceRecord {
	id := service.ID()
	rec, ok := s.services[id]
	if !ok {
		rec = &serviceRecord{service: service}
		s.services[id] = rec
	}
	return rec
}

// InsertBulkServices registers every service in services that isn't
// already known.
func (s *Store) InsertBulkServices(_ context.Context, services []observation.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range services {
		s.insertServiceLocked(svc)
	}
	return nil
}

// ReportObservation applies the continuity algorithm for a sighting of key
// at service.
func (s *Store) ReportObservation(_ context.Context, service observation.Service, key observation.Key) (store.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.insertServiceLocked(service)
	now := s.clock.Now().Unix()

	var mostRecent *observation.Observation
	for i := range rec.observations {
		o := &rec.observations[i]
		if mostRecent == nil || o.End > mostRecent.End {
			mostRecent = o
		}
	}

	decision := store.Decide(mostRecent, service, key, now)
	switch decision.Action {
	case store.ActionNoop:
		return decision, nil
	case store.ActionExtend:
		for i := range rec.observations {
			if rec.observations[i].Key == key && rec.observations[i].Start == decision.ExtendStart {
				rec.observations[i].End = decision.NewEnd
				break
			}
		}
	case store.ActionOpenNew:
		if decision.ClosePrev {
			for i := range rec.observations {
				if rec.observations[i].Key == decision.PrevKey && rec.observations[i].Start == decision.PrevStart {
					rec.observations[i].End = decision.PrevNewEnd
					break
				}
			}
		}
		rec.observations = append(rec.observations, decision.NewObservation)
	}
	return decision, nil
}

// GetObservations returns every observation recorded for service, ordered
// by (key, start).
func (s *Store) GetObservations(_ context.Context, service observation.Service) ([]observation.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.services[service.ID()]
	if !ok {
		return []observation.Observation{}, nil
	}
	out := make([]observation.Observation, len(rec.observations))
	copy(out, rec.observations)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

// CountServices returns the total number of known services.
func (s *Store) CountServices(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.services), nil
}

// CountObservations returns the total number of observation rows.
func (s *Store) CountObservations(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.services {
		n += len(rec.observations)
	}
	return n, nil
}

// GetAllServiceNames returns the ID of every known service.
func (s *Store) GetAllServiceNames(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.services))
	for id := range s.services {
		names = append(names, id)
	}
	sort.Strings(names)
	return names, nil
}

// GetNewestServiceNames returns the ID of every service with an
// observation ending after endLimit.
func (s *Store) GetNewestServiceNames(_ context.Context, endLimit int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for id, rec := range s.services {
		for _, o := range rec.observations {
			if o.End > endLimit {
				names = append(names, id)
				break
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// GetOldestServiceNames returns the ID of every service whose most recent
// observation ends at or before endLimit.
func (s *Store) GetOldestServiceNames(_ context.Context, endLimit int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for id, rec := range s.services {
		if len(rec.observations) == 0 {
			continue
		}
		newest := rec.observations[0].End
		for _, o := range rec.observations[1:] {
			if o.End > newest {
				newest = o.End
			}
		}
		if newest <= endLimit {
			names = append(names, id)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ExportTuples writes every observation as a tuple-file stream.
func (s *Store) ExportTuples(_ context.Context, w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintln(w, "# network notary export"); err != nil {
		return err
	}
	ids := make([]string, 0, len(s.services))
	for id := range s.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rec := s.services[id]
		for _, o := range rec.observations {
			if err := store.WriteTuple(w, id, o); err != nil {
				return err
			}
		}
	}
	return nil
}

// ImportTuples loads a tuple-file stream, inserting rows directly (not via
// ReportObservation/the continuity algorithm, since historical rows carry
// their own Start/End and must not be reinterpreted relative to "now").
func (s *Store) ImportTuples(_ context.Context, r io.Reader) error {
	rows, err := store.ReadTuples(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		svc, err := observation.ParseServiceID(row.ServiceID)
		if err != nil {
			return err
		}
		rec := s.insertServiceLocked(svc)
		rec.observations = append(rec.observations, observation.Observation{
			Service: svc,
			Key:     row.Key,
			Start:   row.Start,
			End:     row.End,
		})
	}
	return nil
}
