package memstore_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/nwnotary/notary-server/internal/testnotary"
	"github.com/nwnotary/notary-server/pkg/observation"
	"github.com/nwnotary/notary-server/pkg/store"
	"github.com/nwnotary/notary-server/pkg/store/memstore"
	"github.com/stretchr/testify/require"
)

func TestStoreConformance(t *testing.T) {
	testnotary.RunStoreConformance(t, func(clock *testnotary.FakeClock) store.ObservationStore {
		return memstore.New(clock)
	})
}

func TestExportImportRoundTrip(t *testing.T) {
	clock := testnotary.NewFakeClock(time.Unix(1000, 0).UTC())
	src := memstore.New(clock)
	ctx := context.Background()

	svc := observation.Service{Host: "example.com", Port: 443, Type: observation.ServiceTypeTLS}
	_, err := src.ReportObservation(ctx, svc, "aa:bb:cc")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = src.ReportObservation(ctx, svc, "aa:bb:cc")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, src.ExportTuples(ctx, &buf))

	dst := memstore.New(clock)
	require.NoError(t, dst.ImportTuples(ctx, bytes.NewReader(buf.Bytes())))

	srcCount, _ := src.CountObservations(ctx)
	dstCount, _ := dst.CountObservations(ctx)
	require.Equal(t, srcCount, dstCount)

	srcNames, _ := src.GetAllServiceNames(ctx)
	dstNames, _ := dst.GetAllServiceNames(ctx)
	require.Equal(t, srcNames, dstNames)
}
