package sqlstore_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nwnotary/notary-server/internal/testnotary"
	"github.com/nwnotary/notary-server/pkg/observation"
	"github.com/nwnotary/notary-server/pkg/store"
	"github.com/nwnotary/notary-server/pkg/store/sqlstore"
)

var sqliteInstanceSeq int

// newSQLite opens a shared in-memory sqlite database scoped to a single
// connection, so every call in a test sees the same schema and rows instead
// of each pooled connection getting its own empty :memory: database. Each
// call gets its own named instance so independent stores in the same test
// (e.g. an export source and an import destination) don't collide.
func newSQLite(t *testing.T, clock *testnotary.FakeClock) *sqlstore.Store {
	t.Helper()
	sqliteInstanceSeq++
	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", t.Name(), sqliteInstanceSeq)
	s, err := sqlstore.OpenSQLite(dsn, clock)
	require.NoError(t, err)
	s.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreConformance(t *testing.T) {
	testnotary.RunStoreConformance(t, func(clock *testnotary.FakeClock) store.ObservationStore {
		return newSQLite(t, clock)
	})
}

func TestExportImportRoundTrip(t *testing.T) {
	clock := testnotary.NewFakeClock(time.Unix(1000, 0).UTC())
	src := newSQLite(t, clock)
	ctx := context.Background()

	svc := observation.Service{Host: "example.com", Port: 443, Type: observation.ServiceTypeTLS}
	_, err := src.ReportObservation(ctx, svc, "aa:bb:cc")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = src.ReportObservation(ctx, svc, "aa:bb:cc")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, src.ExportTuples(ctx, &buf))

	dst := newSQLite(t, clock)
	require.NoError(t, dst.ImportTuples(ctx, bytes.NewReader(buf.Bytes())))

	srcCount, _ := src.CountObservations(ctx)
	dstCount, _ := dst.CountObservations(ctx)
	require.Equal(t, srcCount, dstCount)

	srcNames, _ := src.GetAllServiceNames(ctx)
	dstNames, _ := dst.GetAllServiceNames(ctx)
	require.Equal(t, srcNames, dstNames)
}
