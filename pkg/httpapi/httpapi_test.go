package httpapi_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nwnotary/notary-server/pkg/admission"
	"github.com/nwnotary/notary-server/pkg/cache/lru"
	"github.com/nwnotary/notary-server/pkg/httpapi"
	"github.com/nwnotary/notary-server/pkg/observation"
	"github.com/nwnotary/notary-server/pkg/signer"
	"github.com/nwnotary/notary-server/pkg/store"
	"github.com/nwnotary/notary-server/pkg/store/memstore"
)

type stubProbe struct {
	key observation.Key
	err error
}

func (p *stubProbe) Probe(context.Context, observation.Service) (observation.Key, error) {
	return p.key, p.err
}

func newHandler(t *testing.T, probe *stubProbe) (*httpapi.Handler, store.ObservationStore) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	c, err := lru.New(1 << 20)
	require.NoError(t, err)

	st := memstore.New(nil)

	return &httpapi.Handler{
		Store:     st,
		Cache:     c,
		Admission: admission.New(10),
		Signer:    signer.New(key),
		TLSProbe:  probe,
		SSHProbe:  probe,
		CacheTTL:  time.Minute,
	}, st
}

func TestServeQueryMissingParamsReturnsBadRequest(t *testing.T) {
	h, _ := newHandler(t, &stubProbe{})

	req := httptest.NewRequest(http.MethodGet, "/?host=example.com", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServeQueryExtraParamReturnsBadRequest(t *testing.T) {
	h, _ := newHandler(t, &stubProbe{})

	req := httptest.NewRequest(http.MethodGet, "/?host=example.com&port=443&service_type=2&extra=1", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServeQueryEmptyRequestReturnsInfoPage(t *testing.T) {
	h, _ := newHandler(t, &stubProbe{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Network Notary")
}

func TestServeQueryAdmissionLimitReturnsNotFoundWithoutProbe(t *testing.T) {
	probe := &stubProbe{key: "aa:bb:cc"}
	h, st := newHandler(t, probe)
	h.Admission = admission.New(1)

	svcA := observation.Service{Host: "a.example.com", Port: 443, Type: observation.ServiceTypeTLS}
	adm, err := h.Admission.TryAdmit(svcA.ID())
	require.NoError(t, err)
	defer adm.Release()

	req := httptest.NewRequest(http.MethodGet, "/?host=b.example.com&port=443&service_type=2", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)

	time.Sleep(20 * time.Millisecond)
	obs, err := st.GetObservations(context.Background(), observation.Service{Host: "b.example.com", Port: 443, Type: observation.ServiceTypeTLS})
	require.NoError(t, err)
	require.Empty(t, obs, "admission limit should have prevented the on-demand probe from running")
}

func TestServeQueryUnknownServiceTriggersProbeAndReturnsNotFound(t *testing.T) {
	probe := &stubProbe{key: "aa:bb:cc"}
	h, st := newHandler(t, probe)

	req := httptest.NewRequest(http.MethodGet, "/?host=example.com&port=443&service_type=2", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)

	require.Eventually(t, func() bool {
		obs, err := st.GetObservations(context.Background(), observation.Service{Host: "example.com", Port: 443, Type: observation.ServiceTypeTLS})
		return err == nil && len(obs) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestServeQueryReturnsSignedXMLWhenObservationsExist(t *testing.T) {
	h, st := newHandler(t, &stubProbe{})

	svc := observation.Service{Host: "example.com", Port: 443, Type: observation.ServiceTypeTLS}
	_, err := st.ReportObservation(context.Background(), svc, "aa:bb:cc:dd:ee:ff:00:11:22:33:44:55:66:77:88:99")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/?host=example.com&port=443&service_type=2", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "notary_reply")
	require.Contains(t, w.Body.String(), "aa:bb:cc:dd:ee:ff:00:11:22:33:44:55:66:77:88:99")
}

func TestServeQueryCachesSubsequentReads(t *testing.T) {
	h, st := newHandler(t, &stubProbe{})
	svc := observation.Service{Host: "example.com", Port: 443, Type: observation.ServiceTypeTLS}
	_, err := st.ReportObservation(context.Background(), svc, "aa:bb:cc:dd:ee:ff:00:11:22:33:44:55:66:77:88:99")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/?host=example.com&port=443&service_type=2", nil)
	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, req)
	require.Equal(t, http.StatusOK, w1.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/?host=example.com&port=443&service_type=2", nil)
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)
	require.Equal(t, w1.Body.String(), w2.Body.String())
}

func TestServeIndexServesPublicKeyPEM(t *testing.T) {
	h, _ := newHandler(t, &stubProbe{})
	h.PublicKeyPEM = []byte("-----BEGIN PUBLIC KEY-----\n...\n-----END PUBLIC KEY-----\n")

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, h.PublicKeyPEM, w.Body.Bytes())
}
