package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nwnotary/notary-server/pkg/admission"
	"github.com/nwnotary/notary-server/pkg/cache"
	"github.com/nwnotary/notary-server/pkg/cache/lru"
	"github.com/nwnotary/notary-server/pkg/cache/memcache"
	"github.com/nwnotary/notary-server/pkg/cache/redis"
	"github.com/nwnotary/notary-server/pkg/config"
	"github.com/nwnotary/notary-server/pkg/httpapi"
	"github.com/nwnotary/notary-server/pkg/metrics"
	"github.com/nwnotary/notary-server/pkg/observation"
	"github.com/nwnotary/notary-server/pkg/probe"
	"github.com/nwnotary/notary-server/pkg/scanner"
	"github.com/nwnotary/notary-server/pkg/signer"
	"github.com/nwnotary/notary-server/pkg/store"
	"github.com/nwnotary/notary-server/pkg/store/memstore"
	"github.com/nwnotary/notary-server/pkg/store/sqlstore"
)

// buildStore opens the ObservationStore backend named by cfg.Store.Backend.
func buildStore(cfg config.Store, clock store.Clock) (store.ObservationStore, error) {
	switch cfg.Backend {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "notary.db"
		}
		return sqlstore.OpenSQLite(path, clock)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("store: postgres backend requires a DSN")
		}
		return sqlstore.OpenPostgres(cfg.DSN, clock)
	case "memory":
		return memstore.New(clock), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}

// buildCache constructs the reply cache backend named by cfg.Backend.
func buildCache(cfg config.Cache) (cache.Cache, error) {
	switch cfg.Backend {
	case "", "lru":
		maxBytes := cfg.MaxBytes
		if maxBytes <= 0 {
			maxBytes = 64 << 20
		}
		return lru.New(int(maxBytes))
	case "memcache":
		if len(cfg.Servers) == 0 {
			return nil, fmt.Errorf("cache: memcache backend requires Servers")
		}
		return memcache.New(cfg.Servers...), nil
	case "redis":
		if len(cfg.Servers) == 0 {
			return nil, fmt.Errorf("cache: redis backend requires Servers")
		}
		client := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: cfg.Servers})
		return redis.New(client), nil
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}

// Components holds everything Build assembles so callers (the server
// command, tests) can reach individual pieces without re-wiring them.
type Components struct {
	Handler *httpapi.Handler
	Scanner *scanner.Pool
	Store   store.ObservationStore
	Metrics *metrics.Recorder
}

// Build wires a full set of notary Components from cfg: store, cache,
// admission gate, probes, signer, metrics recorder, scanner pool and the
// HTTP handler that ties cache → store → admission → probe → sign
// together. The returned teardown func closes the store and, if a
// Prometheus registry was created, has nothing further to release (the
// registry has no open resources of its own).
func Build(cfg config.Config, log *zap.Logger) (*Components, func(), error) {
	storeCfg := cfg.Store
	if cfg.Cache.CacheOnly {
		storeCfg.Backend = "memory"
	}
	st, err := buildStore(storeCfg, store.SystemClock)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	teardown := func() { _ = st.Close() }

	c, err := buildCache(cfg.Cache)
	if err != nil {
		teardown()
		return nil, nil, fmt.Errorf("opening cache: %w", err)
	}

	privKey, err := signer.LoadPrivateKey(cfg.Keys.PrivateKeyPath)
	if err != nil {
		teardown()
		return nil, nil, fmt.Errorf("loading signing key: %w", err)
	}
	pubPEM, err := signer.LoadPublicKeyPEM(cfg.Keys.PublicKeyPath)
	if err != nil {
		teardown()
		return nil, nil, fmt.Errorf("loading public key: %w", err)
	}

	var reg prometheus.Registerer
	if cfg.Prometheus.Enabled {
		r := prometheus.NewRegistry()
		reg = r
		if len(cfg.Prometheus.Addresses) > 0 {
			metrics.NewServer(cfg.Prometheus.Addresses[0], r, log).Start()
		}
	}
	rec := metrics.New(rate.Limit(1), reg, log)

	gate := admission.New(cfg.Admission.ProbeLimit)

	handler := &httpapi.Handler{
		Store:     st,
		Cache:     c,
		Admission: gate,
		Signer:    signer.New(privKey),
		Metrics:   rec,
		Log:       log,
		TLSProbe:  &probe.TLSProbe{Timeout: cfg.Admission.ProbeTimeout, SNI: cfg.Admission.SNI},
		SSHProbe:  &probe.SSHProbe{Timeout: cfg.Admission.ProbeTimeout},
		CacheTTL:  cfg.HTTP.CacheExpiry,

		PublicKeyPEM: pubPEM,
	}

	pool := scanner.New(scanner.Config{
		Rate:         cfg.Scanner.Rate,
		ProbeTimeout: cfg.Scanner.ProbeTimeout,
		SNI:          cfg.Scanner.SNI,
	}, st, log, rec)

	return &Components{Handler: handler, Scanner: pool, Store: st, Metrics: rec}, teardown, nil
}

// LoadServiceList reads the newline-separated service-ID file format
// named in the specification's external-interfaces section ("#"-prefixed
// comment lines ignored).
func LoadServiceList(path string) ([]observation.Service, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening service list: %w", err)
	}
	defer f.Close()

	var services []observation.Service
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		svc, err := observation.ParseServiceID(line)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading service list: %w", err)
	}
	return services, nil
}
