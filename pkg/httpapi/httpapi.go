// Package httpapi implements NotaryHTTP: the single query endpoint that
// wraps cache → store → admission → probe → sign, per spec §4.7.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nwnotary/notary-server/pkg/admission"
	"github.com/nwnotary/notary-server/pkg/cache"
	"github.com/nwnotary/notary-server/pkg/metrics"
	"github.com/nwnotary/notary-server/pkg/observation"
	"github.com/nwnotary/notary-server/pkg/probe"
	"github.com/nwnotary/notary-server/pkg/signer"
	"github.com/nwnotary/notary-server/pkg/store"
	"github.com/nwnotary/notary-server/pkg/xmlreply"
)

var errNoObservations = errors.New("httpapi: no observations for service")

// infoPage is served for a query request with no parameters at all, per
// spec §4.7; it carries no service data and is not signed.
const infoPage = `<!DOCTYPE html>
<html><head><title>Network Notary</title></head>
<body><p>This is a network notary server. Query it with
<code>/?host=HOST&amp;port=PORT&amp;service_type=TYPE</code> (service_type 1
for SSH, 2 for TLS). The public signing key is published at
<a href="/index.html">/index.html</a>.</p></body></html>
`

// Handler serves the notary's query endpoint and its public-key page.
type Handler struct {
	Store     store.ObservationStore
	Cache     cache.Cache
	Admission *admission.Gate
	Signer    *signer.Signer
	Metrics   *metrics.Recorder
	Log       *zap.Logger

	TLSProbe probe.Prober
	SSHProbe probe.Prober

	CacheTTL time.Duration

	// PublicKeyPEM is served verbatim at GET /index.html; never included
	// in a query response body.
	PublicKeyPEM []byte
}

var _ http.Handler = (*Handler)(nil)

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/index.html":
		h.serveIndex(w, r)
	case "/":
		h.serveQuery(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) serveIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Write(h.PublicKeyPEM)
}

func (h *Handler) serveQuery(w http.ResponseWriter, r *http.Request) {
	if r.URL.RawQuery == "" {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(infoPage))
		return
	}

	svc, err := parseQuery(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	body, hit, err := h.Cache.GetOrCompute(r.Context(), svc.ID(), h.CacheTTL, func(ctx context.Context) ([]byte, error) {
		return h.computeReply(ctx, svc)
	})
	if err != nil {
		h.log().Warn("httpapi: failed to build reply", zap.String("service", svc.ID()), zap.Error(err))
	}

	switch {
	case err == nil && hit:
		h.recordMetric(metrics.EventCacheHit)
		w.Header().Set("Content-Type", "text/xml")
		w.Write(body)
	case err == nil:
		h.recordMetric(metrics.EventCacheMiss)
		w.Header().Set("Content-Type", "text/xml")
		w.Write(body)
	case errors.Is(err, errNoObservations):
		h.recordMetric(metrics.EventCacheMiss)
		h.recordMetric(metrics.EventScanForNewService)
		h.launchOnDemandProbe(svc)
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, observation.ErrStoreUnavailable):
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

// computeReply is the cache-miss path: read observations, sign, and
// render XML. If the service has no observations yet it returns
// errNoObservations so the caller can trigger an on-demand probe
// without caching the absence.
func (h *Handler) computeReply(ctx context.Context, svc observation.Service) ([]byte, error) {
	h.recordMetric(metrics.EventGetObservationsForService)
	obs, err := h.Store.GetObservations(ctx, svc)
	if err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		return nil, errNoObservations
	}

	sig, records, err := h.Signer.Sign(svc, obs)
	if err != nil {
		h.log().Error("httpapi: signing failed", zap.String("service", svc.ID()), zap.Error(err))
		return nil, err
	}
	return xmlreply.Render(sig, records)
}

// launchOnDemandProbe admits svc for an on-demand probe (if capacity and
// dedup allow) and runs it asynchronously; the HTTP response has already
// been decided (404) by the time this returns, per spec §4.1's scenario
// 1 ("client is told to retry").
func (h *Handler) launchOnDemandProbe(svc observation.Service) {
	adm, err := h.Admission.TryAdmit(svc.ID())
	if err != nil {
		if errors.Is(err, admission.ErrLimitExceeded) {
			h.recordMetric(metrics.EventProbeLimitExceeded)
		}
		return
	}

	go func() {
		defer adm.Release()

		ctx := context.Background()
		prober := h.TLSProbe
		if svc.Type == observation.ServiceTypeSSH {
			prober = h.SSHProbe
		}

		key, err := prober.Probe(ctx, svc)
		if err != nil {
			h.recordMetric(metrics.EventOnDemandServiceScanFailure)
			h.log().Debug("on-demand probe failed", zap.String("service", svc.ID()), zap.Error(err))
			return
		}
		if _, err := h.Store.ReportObservation(ctx, svc, key); err != nil {
			h.log().Warn("on-demand probe: failed to record observation", zap.String("service", svc.ID()), zap.Error(err))
		}
	}()
}

func (h *Handler) recordMetric(e metrics.Event) {
	if h.Metrics != nil {
		h.Metrics.Record(e)
	}
}

func (h *Handler) log() *zap.Logger {
	if h.Log != nil {
		return h.Log
	}
	return zap.NewNop()
}

// queryParams are the only query parameters the endpoint accepts; any
// other key present yields 400, per spec §4.7.
var queryParams = map[string]struct{}{
	"host": {}, "port": {}, "service_type": {},
}

func parseQuery(r *http.Request) (observation.Service, error) {
	q := r.URL.Query()
	for k := range q {
		if _, ok := queryParams[k]; !ok {
			return observation.Service{}, fmt.Errorf("httpapi: unknown query parameter %q", k)
		}
	}

	host := q.Get("host")
	portStr := q.Get("port")
	typeStr := q.Get("service_type")
	if host == "" || portStr == "" || typeStr == "" {
		return observation.Service{}, errors.New("httpapi: host, port and service_type are required")
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return observation.Service{}, errors.New("httpapi: invalid port")
	}
	typeInt, err := strconv.Atoi(typeStr)
	if err != nil {
		return observation.Service{}, errors.New("httpapi: invalid service_type")
	}

	svc := observation.Service{Host: host, Port: port, Type: observation.ServiceType(typeInt)}
	if err := svc.Validate(); err != nil {
		return observation.Service{}, err
	}
	return svc, nil
}
