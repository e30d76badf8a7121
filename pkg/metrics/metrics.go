// Package metrics implements the rate-limited event recorder described
// in spec §4.8: every event category is a counter, recording itself is
// throttled so a misbehaving caller can't turn metrics into a load
// source, and the destination (Prometheus or structured logs) is chosen
// once at startup and is exclusive.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Event is one of the notary's recordable event categories.
type Event string

const (
	EventGetObservationsForService  Event = "GetObservationsForService"
	EventScanForNewService          Event = "ScanForNewService"
	EventProbeLimitExceeded         Event = "ProbeLimitExceeded"
	EventServiceScanStart           Event = "ServiceScanStart"
	EventServiceScanStop            Event = "ServiceScanStop"
	EventServiceScanFailure         Event = "ServiceScanFailure"
	EventOnDemandServiceScanFailure Event = "OnDemandServiceScanFailure"
	EventCacheHit                   Event = "CacheHit"
	EventCacheMiss                  Event = "CacheMiss"
	EventTypeUnknown                Event = "EventTypeUnknown"
	EventServiceScanKeyUpdated      Event = "ServiceScanKeyUpdated"
	EventServiceScanPrevKeyUpdated  Event = "ServiceScanPrevKeyUpdated"
)

var allEvents = []Event{
	EventGetObservationsForService, EventScanForNewService, EventProbeLimitExceeded,
	EventServiceScanStart, EventServiceScanStop, EventServiceScanFailure,
	EventOnDemandServiceScanFailure, EventCacheHit, EventCacheMiss, EventTypeUnknown,
	EventServiceScanKeyUpdated, EventServiceScanPrevKeyUpdated,
}

var knownEvents = func() map[Event]struct{} {
	m := make(map[Event]struct{}, len(allEvents))
	for _, e := range allEvents {
		m[e] = struct{}{}
	}
	return m
}()

// Recorder records event occurrences, rate-limited so repeated calls in
// a tight loop can't degrade the service.
type Recorder struct {
	limiter *rate.Limiter

	mu      sync.Mutex
	skipped map[Event]int64

	destination destination
}

type destination interface {
	record(e Event)
}

// New returns a Recorder that records at most limit events/second,
// logging skipped-event counts once a second. Events go to reg when it is
// non-nil and to log otherwise (a nil log discards them); the two
// destinations are exclusive per spec §4.8.
func New(limit rate.Limit, reg prometheus.Registerer, log *zap.Logger) *Recorder {
	r := &Recorder{
		limiter: rate.NewLimiter(limit, 1),
		skipped: make(map[Event]int64, len(allEvents)),
	}
	if reg != nil {
		r.destination = newPromDestination(reg)
	} else {
		if log == nil {
			log = zap.NewNop()
		}
		r.destination = &logDestination{log: log}
	}
	go r.summarizeSkipped(log)
	return r
}

// Record tallies one occurrence of e, or silently counts it as skipped
// if the recorder's internal rate limit has been exhausted. An e outside
// the documented event taxonomy (e.g. a caller-constructed Event value)
// is recorded as EventTypeUnknown instead, so a mistyped or unexpected
// category can't blow up a Prometheus destination's label cardinality.
func (r *Recorder) Record(e Event) {
	if _, ok := knownEvents[e]; !ok {
		e = EventTypeUnknown
	}
	if !r.limiter.Allow() {
		r.mu.Lock()
		r.skipped[e]++
		r.mu.Unlock()
		return
	}
	r.destination.record(e)
}

func (r *Recorder) summarizeSkipped(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		r.mu.Lock()
		if len(r.skipped) == 0 {
			r.mu.Unlock()
			continue
		}
		snapshot := r.skipped
		r.skipped = make(map[Event]int64, len(allEvents))
		r.mu.Unlock()

		for e, n := range snapshot {
			log.Debug("metrics events dropped by rate limit", zap.String("event", string(e)), zap.Int64("count", n))
		}
	}
}

type logDestination struct {
	log *zap.Logger
}

func (d *logDestination) record(e Event) {
	d.log.Info("notary event", zap.String("event", string(e)))
}
