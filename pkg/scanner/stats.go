package scanner

import "sync/atomic"

// Stats tallies probe outcomes across one scan pass, broken down by the
// failure taxonomy in spec §4.6. It is independent of pkg/metrics (whose
// Recorder the Pool reports start/stop/failure/key-update events to as
// they happen): Stats is the pass's own running total, and its fields are
// updated atomically so a caller on another goroutine can call Snapshot
// for a consistent read while the pass is still in flight.
type Stats struct {
	Attempted   int64
	Succeeded   int64
	Timeout     int64
	TLSAlert    int64
	ConnRefused int64
	ConnReset   int64
	NoRoute     int64
	DNSFailure  int64
	InvalidFP   int64
	Other       int64
}

func (s *Stats) recordSuccess() {
	atomic.AddInt64(&s.Attempted, 1)
	atomic.AddInt64(&s.Succeeded, 1)
}

func (s *Stats) recordFailure(counter *int64) {
	atomic.AddInt64(&s.Attempted, 1)
	atomic.AddInt64(counter, 1)
}

// Snapshot returns a copy of s safe to read without further
// synchronization.
func (s *Stats) Snapshot() Stats {
	return Stats{
		Attempted:   atomic.LoadInt64(&s.Attempted),
		Succeeded:   atomic.LoadInt64(&s.Succeeded),
		Timeout:     atomic.LoadInt64(&s.Timeout),
		TLSAlert:    atomic.LoadInt64(&s.TLSAlert),
		ConnRefused: atomic.LoadInt64(&s.ConnRefused),
		ConnReset:   atomic.LoadInt64(&s.ConnReset),
		NoRoute:     atomic.LoadInt64(&s.NoRoute),
		DNSFailure:  atomic.LoadInt64(&s.DNSFailure),
		InvalidFP:   atomic.LoadInt64(&s.InvalidFP),
		Other:       atomic.LoadInt64(&s.Other),
	}
}
