package testnotary

import (
	"context"
	"testing"
	"time"

	"github.com/nwnotary/notary-server/pkg/observation"
	"github.com/nwnotary/notary-server/pkg/store"
	"github.com/stretchr/testify/require"
)

// RunStoreConformance exercises the scenarios from the specification's
// testable-properties section against any store.ObservationStore
// implementation, driven by the given FakeClock. Backends call this from
// their own _test.go with their own constructor, so the same behavioral
// contract is checked against every backend.
func RunStoreConformance(t *testing.T, newStore func(*FakeClock) store.ObservationStore) {
	t.Helper()

	t.Run("fresh service then continuity then rotation", func(t *testing.T) {
		clock := NewFakeClock(unixTime(100))
		s := newStore(clock)
		defer s.Close()
		ctx := context.Background()
		svc := observation.Service{Host: "foo", Port: 443, Type: observation.ServiceTypeTLS}

		_, err := s.ReportObservation(ctx, svc, "aa")
		require.NoError(t, err)
		clock.Set(unixTime(150))
		_, err = s.ReportObservation(ctx, svc, "aa")
		require.NoError(t, err)

		obs, err := s.GetObservations(ctx, svc)
		require.NoError(t, err)
		require.Len(t, obs, 1)
		require.Equal(t, int64(100), obs[0].Start)
		require.Equal(t, int64(150), obs[0].End)

		clock.Set(unixTime(200))
		_, err = s.ReportObservation(ctx, svc, "bb")
		require.NoError(t, err)

		obs, err = s.GetObservations(ctx, svc)
		require.NoError(t, err)
		require.Len(t, obs, 2)
		require.Equal(t, observation.Key("aa"), obs[0].Key)
		require.Equal(t, int64(100), obs[0].Start)
		require.Equal(t, int64(199), obs[0].End)
		require.Equal(t, observation.Key("bb"), obs[1].Key)
		require.Equal(t, int64(200), obs[1].Start)
		require.Equal(t, int64(200), obs[1].End)
	})

	t.Run("rotation after update limit leaves no backfill", func(t *testing.T) {
		clock := NewFakeClock(unixTime(100))
		s := newStore(clock)
		defer s.Close()
		ctx := context.Background()
		svc := observation.Service{Host: "bar", Port: 443, Type: observation.ServiceTypeTLS}

		_, err := s.ReportObservation(ctx, svc, "aa")
		require.NoError(t, err)
		clock.Set(unixTime(150))
		_, err = s.ReportObservation(ctx, svc, "aa")
		require.NoError(t, err)

		farFuture := int64(100) + int64(200*60*60)
		clock.Set(unixTime(farFuture))
		_, err = s.ReportObservation(ctx, svc, "bb")
		require.NoError(t, err)

		obs, err := s.GetObservations(ctx, svc)
		require.NoError(t, err)
		require.Len(t, obs, 2)
		require.Equal(t, observation.Key("aa"), obs[0].Key)
		require.Equal(t, int64(150), obs[0].End, "no backfill: prior span must stay exactly as last reported")
		require.Equal(t, observation.Key("bb"), obs[1].Key)
		require.Equal(t, farFuture, obs[1].Start)
	})

	t.Run("duplicate report within a second is a no-op", func(t *testing.T) {
		clock := NewFakeClock(unixTime(1000))
		s := newStore(clock)
		defer s.Close()
		ctx := context.Background()
		svc := observation.Service{Host: "baz", Port: 443, Type: observation.ServiceTypeTLS}

		_, err := s.ReportObservation(ctx, svc, "aa")
		require.NoError(t, err)
		_, err = s.ReportObservation(ctx, svc, "aa")
		require.NoError(t, err)

		obs, err := s.GetObservations(ctx, svc)
		require.NoError(t, err)
		require.Len(t, obs, 1)
		require.Equal(t, int64(1000), obs[0].Start)
		require.Equal(t, int64(1000), obs[0].End)
	})

	t.Run("empty service has no observations", func(t *testing.T) {
		s := newStore(NewFakeClock(unixTime(0)))
		defer s.Close()
		obs, err := s.GetObservations(context.Background(), observation.Service{Host: "nowhere", Port: 443, Type: observation.ServiceTypeTLS})
		require.NoError(t, err)
		require.Empty(t, obs)
	})

	t.Run("counts and name queries", func(t *testing.T) {
		clock := NewFakeClock(unixTime(10))
		s := newStore(clock)
		defer s.Close()
		ctx := context.Background()

		svcOld := observation.Service{Host: "old", Port: 443, Type: observation.ServiceTypeTLS}
		svcNew := observation.Service{Host: "new", Port: 443, Type: observation.ServiceTypeTLS}

		_, err := s.ReportObservation(ctx, svcOld, "aa")
		require.NoError(t, err)
		clock.Set(unixTime(10000))
		_, err = s.ReportObservation(ctx, svcNew, "bb")
		require.NoError(t, err)

		n, err := s.CountServices(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		n, err = s.CountObservations(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		names, err := s.GetAllServiceNames(ctx)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{svcOld.ID(), svcNew.ID()}, names)

		newest, err := s.GetNewestServiceNames(ctx, 1000)
		require.NoError(t, err)
		require.Equal(t, []string{svcNew.ID()}, newest)

		oldest, err := s.GetOldestServiceNames(ctx, 1000)
		require.NoError(t, err)
		require.Equal(t, []string{svcOld.ID()}, oldest)
	})

	t.Run("insert bulk services is idempotent", func(t *testing.T) {
		s := newStore(NewFakeClock(unixTime(0)))
		defer s.Close()
		ctx := context.Background()
		svcs := []observation.Service{
			{Host: "a", Port: 443, Type: observation.ServiceTypeTLS},
			{Host: "b", Port: 22, Type: observation.ServiceTypeSSH},
		}
		require.NoError(t, s.InsertBulkServices(ctx, svcs))
		require.NoError(t, s.InsertBulkServices(ctx, svcs))
		n, err := s.CountServices(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, n)
	})
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
