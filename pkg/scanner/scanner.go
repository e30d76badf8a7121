// Package scanner implements the rate-paced worker pool that walks a
// service list, probes each one, and feeds the results to an
// ObservationStore.
package scanner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nwnotary/notary-server/pkg/metrics"
	"github.com/nwnotary/notary-server/pkg/observation"
	"github.com/nwnotary/notary-server/pkg/probe"
	"github.com/nwnotary/notary-server/pkg/store"
)

// Config configures one scan pass.
type Config struct {
	// Rate is the number of probes launched per second.
	Rate int
	// ProbeTimeout bounds each individual probe.
	ProbeTimeout time.Duration
	// SNI enables SNI on TLS probes.
	SNI bool
}

// Pool walks a service list, launching Config.Rate probes per second and
// flushing their results to the store in batches, per spec §4.6. Its
// internal bookkeeping (in-flight batch, accumulated Stats) is owned by a
// single goroutine draining an action channel, the same shape as the
// teacher's historical connection-manager actor loop, generalized here
// from "manage peer dial attempts" to "manage probe dispatch and
// statistics accumulation".
type Pool struct {
	cfg     Config
	store   store.ObservationStore
	log     *zap.Logger
	metrics *metrics.Recorder

	tlsProbe probe.Prober
	sshProbe probe.Prober

	actionch chan func()
	stats    Stats
}

// New returns a Pool that writes results to st, logs via log, and reports
// the per-pass events named in spec §4.8 to rec (nil is accepted and
// turns metrics recording into a no-op, matching pkg/httpapi's Handler).
func New(cfg Config, st store.ObservationStore, log *zap.Logger, rec *metrics.Recorder) *Pool {
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		cfg:      cfg,
		store:    st,
		log:      log,
		metrics:  rec,
		tlsProbe: &probe.TLSProbe{Timeout: cfg.ProbeTimeout, SNI: cfg.SNI},
		sshProbe: &probe.SSHProbe{Timeout: cfg.ProbeTimeout},
		actionch: make(chan func(), 256),
	}
}

func (p *Pool) recordMetric(e metrics.Event) {
	if p.metrics != nil {
		p.metrics.Record(e)
	}
}

// Run walks services in batches of Config.Rate, launching one batch per
// second, until the list is exhausted or ctx is done, and returns the
// accumulated Stats. Each batch's probes run concurrently; results are
// flushed to the store as they land before the next batch launches.
func (p *Pool) Run(ctx context.Context, services []observation.Service) Stats {
	p.recordMetric(metrics.EventServiceScanStart)
	defer p.recordMetric(metrics.EventServiceScanStop)

	p.actionch = make(chan func(), 256)
	p.stats = Stats{}
	done := make(chan struct{})
	go p.loop(done)
	defer func() {
		close(p.actionch)
		<-done
	}()

	limiter := rate.NewLimiter(rate.Limit(p.cfg.Rate), p.cfg.Rate)

	idx := 0
	for idx < len(services) {
		if ctx.Err() != nil {
			return p.stats.Snapshot()
		}

		batch := services[idx:min(idx+p.cfg.Rate, len(services))]
		idx += len(batch)

		if err := limiter.WaitN(ctx, len(batch)); err != nil {
			return p.stats.Snapshot()
		}

		results := make(chan probeResult, len(batch))
		for _, svc := range batch {
			svc := svc
			go func() { results <- p.probeOne(ctx, svc) }()
		}
		for range batch {
			p.deliver(ctx, <-results)
		}
	}
	return p.stats.Snapshot()
}

type probeResult struct {
	service observation.Service
	key     observation.Key
	err     error
}

func (p *Pool) probeOne(ctx context.Context, svc observation.Service) probeResult {
	prober := p.tlsProbe
	if svc.Type == observation.ServiceTypeSSH {
		prober = p.sshProbe
	}
	key, err := prober.Probe(ctx, svc)
	return probeResult{service: svc, key: key, err: err}
}

// deliver routes a probe outcome through the actor loop so stats updates
// and the store write for a given result never race with a concurrent
// scan pass's bookkeeping.
func (p *Pool) deliver(ctx context.Context, res probeResult) {
	errCh := make(chan error, 1)
	p.actionch <- func() {
		if res.err != nil {
			p.recordFailure(res.err)
			errCh <- nil
			return
		}
		p.stats.recordSuccess()
		decision, err := p.store.ReportObservation(ctx, res.service, res.key)
		if err == nil {
			p.recordContinuity(decision)
		}
		errCh <- err
	}
	if err := <-errCh; err != nil {
		p.log.Warn("failed to record observation",
			zap.String("service", res.service.ID()), zap.Error(err))
	}
}

// recordContinuity reports the continuity algorithm's decision for one
// sighting: a fresh span (key rotation or first sighting) is
// ServiceScanKeyUpdated, and closing out the previous key's span on
// rotation is additionally ServiceScanPrevKeyUpdated. A plain extension
// or no-op is not itself a "change" and is not recorded.
func (p *Pool) recordContinuity(decision store.Decision) {
	if decision.Action != store.ActionOpenNew {
		return
	}
	p.recordMetric(metrics.EventServiceScanKeyUpdated)
	if decision.ClosePrev {
		p.recordMetric(metrics.EventServiceScanPrevKeyUpdated)
	}
}

func (p *Pool) recordFailure(err error) {
	p.recordMetric(metrics.EventServiceScanFailure)

	var probeErr *probe.Error
	if !errors.As(err, &probeErr) {
		p.stats.recordFailure(&p.stats.Other)
		return
	}
	switch probeErr.Kind {
	case probe.KindTimeout:
		p.stats.recordFailure(&p.stats.Timeout)
	case probe.KindTLSAlert:
		p.stats.recordFailure(&p.stats.TLSAlert)
	case probe.KindConnRefused:
		p.stats.recordFailure(&p.stats.ConnRefused)
	case probe.KindConnReset:
		p.stats.recordFailure(&p.stats.ConnReset)
	case probe.KindNoRoute:
		p.stats.recordFailure(&p.stats.NoRoute)
	case probe.KindDNSFailure:
		p.stats.recordFailure(&p.stats.DNSFailure)
	case probe.KindInvalidFingerprint:
		p.stats.recordFailure(&p.stats.InvalidFP)
	default:
		p.stats.recordFailure(&p.stats.Other)
	}
}

func (p *Pool) loop(done chan struct{}) {
	defer close(done)
	for f := range p.actionch {
		f()
	}
}
