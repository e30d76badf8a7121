package probe_test

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nwnotary/notary-server/pkg/observation"
	"github.com/nwnotary/notary-server/pkg/probe"
)

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "notary-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func startTLSServer(t *testing.T, cert tls.Certificate) (host string, port int) {
	t.Helper()
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_ = conn.(*tls.Conn).Handshake()
			}()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func TestTLSProbeReturnsLeafFingerprint(t *testing.T) {
	cert := selfSignedCert(t)
	host, port := startTLSServer(t, cert)

	p := &probe.TLSProbe{Timeout: 5 * time.Second}
	svc := observation.Service{Host: host, Port: port, Type: observation.ServiceTypeTLS}

	key, err := p.Probe(context.Background(), svc)
	require.NoError(t, err)

	sum := md5.Sum(cert.Certificate[0])
	require.Equal(t, colonHexForTest(sum[:]), string(key))
}

func colonHexForTest(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 0, len(b)*3)
	for i, c := range b {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, hextable[c>>4], hextable[c&0x0f])
	}
	return string(out)
}

func TestTLSProbeConnRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close() // nothing listening now

	p := &probe.TLSProbe{Timeout: 2 * time.Second}
	svc := observation.Service{Host: "127.0.0.1", Port: addr.Port, Type: observation.ServiceTypeTLS}

	_, err = p.Probe(context.Background(), svc)
	require.Error(t, err)
}

func TestSSHProbeMissingBinary(t *testing.T) {
	p := &probe.SSHProbe{Timeout: time.Second, KeyscanPath: "/nonexistent/ssh-keyscan-binary"}
	svc := observation.Service{Host: "127.0.0.1", Port: 22, Type: observation.ServiceTypeSSH}

	_, err := p.Probe(context.Background(), svc)
	require.Error(t, err)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "CONNECTING", probe.StateConnecting.String())
	require.Equal(t, "DONE", probe.StateDone.String())
}
