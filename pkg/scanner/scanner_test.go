package scanner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nwnotary/notary-server/internal/testnotary"
	"github.com/nwnotary/notary-server/pkg/observation"
	"github.com/nwnotary/notary-server/pkg/scanner"
	"github.com/nwnotary/notary-server/pkg/store/memstore"
)

func TestRunProbesUnreachableServicesWithoutCrashing(t *testing.T) {
	clock := testnotary.NewFakeClock(time.Unix(1000, 0).UTC())
	st := memstore.New(clock)

	pool := scanner.New(scanner.Config{Rate: 5, ProbeTimeout: 500 * time.Millisecond}, st, nil, nil)

	services := []observation.Service{
		{Host: "127.0.0.1", Port: 1, Type: observation.ServiceTypeTLS},
		{Host: "127.0.0.1", Port: 2, Type: observation.ServiceTypeTLS},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats := pool.Run(ctx, services)
	require.Equal(t, int64(2), stats.Attempted)
	require.Equal(t, int64(0), stats.Succeeded)
}

func TestRunRespectsContextCancellation(t *testing.T) {
	clock := testnotary.NewFakeClock(time.Unix(1000, 0).UTC())
	st := memstore.New(clock)
	pool := scanner.New(scanner.Config{Rate: 1}, st, nil, nil)

	services := make([]observation.Service, 20)
	for i := range services {
		services[i] = observation.Service{Host: "127.0.0.1", Port: i + 1, Type: observation.ServiceTypeTLS}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats := pool.Run(ctx, services)
	require.LessOrEqual(t, stats.Attempted, int64(1))
}
