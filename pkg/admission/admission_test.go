package admission_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nwnotary/notary-server/pkg/admission"
)

func TestTryAdmitRejectsDuplicate(t *testing.T) {
	g := admission.New(10)

	a, err := g.TryAdmit("host:443,tls")
	require.NoError(t, err)

	_, err = g.TryAdmit("host:443,tls")
	require.ErrorIs(t, err, admission.ErrDuplicate)

	a.Release()
	_, err = g.TryAdmit("host:443,tls")
	require.NoError(t, err)
}

func TestTryAdmitRejectsAtLimit(t *testing.T) {
	g := admission.New(2)

	a1, err := g.TryAdmit("svc1")
	require.NoError(t, err)
	a2, err := g.TryAdmit("svc2")
	require.NoError(t, err)

	_, err = g.TryAdmit("svc3")
	require.ErrorIs(t, err, admission.ErrLimitExceeded)

	a1.Release()
	a3, err := g.TryAdmit("svc3")
	require.NoError(t, err)

	a2.Release()
	a3.Release()
}

func TestInFlightCount(t *testing.T) {
	g := admission.New(5)
	require.Equal(t, 0, g.InFlight())

	a, err := g.TryAdmit("svc")
	require.NoError(t, err)
	require.Equal(t, 1, g.InFlight())

	a.Release()
	require.Equal(t, 0, g.InFlight())
}

func TestZeroOrNegativeLimitUsesDefault(t *testing.T) {
	g := admission.New(0)
	admitted := 0
	var releases []admission.Admission
	for i := 0; i < admission.DefaultProbeLimit; i++ {
		a, err := g.TryAdmit(string(rune('a' + i)))
		require.NoError(t, err)
		releases = append(releases, a)
		admitted++
	}
	_, err := g.TryAdmit("overflow")
	require.ErrorIs(t, err, admission.ErrLimitExceeded)
	require.Equal(t, admission.DefaultProbeLimit, admitted)

	for _, a := range releases {
		a.Release()
	}
}
