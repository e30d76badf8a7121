package probe

import (
	"context"
	"crypto/md5"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/nwnotary/notary-server/pkg/observation"
)

// TLSProbe extracts the leaf certificate's DER fingerprint from a TLS
// handshake, optionally retrying once without SNI if the server alerts
// on an SNI-equipped ClientHello.
type TLSProbe struct {
	// Timeout bounds total wall time for one Probe call.
	Timeout time.Duration
	// SNI enables sending a ServerName in the ClientHello when the host
	// is a DNS name rather than an IP literal.
	SNI bool
}

var _ Prober = (*TLSProbe)(nil)

// Probe dials service.Host:service.Port and returns the lowercase
// colon-separated hex MD5 of the leaf certificate's DER encoding.
func (p *TLSProbe) Probe(ctx context.Context, service observation.Service) (observation.Key, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	useSNI := p.SNI && net.ParseIP(service.Host) == nil

	der, err := p.handshake(ctx, service, useSNI)
	if err != nil {
		var probeErr *Error
		if useSNI && errors.As(err, &probeErr) && probeErr.Kind == KindTLSAlert {
			der, err = p.handshake(ctx, service, false)
		}
		if err != nil {
			return "", err
		}
	}

	sum := md5.Sum(der)
	return observation.Key(colonHex(sum[:])), nil
}

func (p *TLSProbe) handshake(ctx context.Context, service observation.Service, sni bool) ([]byte, error) {
	state := StateConnecting
	addr := net.JoinHostPort(service.Host, strconv.Itoa(service.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classify(state, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	var leafDER []byte
	cfg := &tls.Config{
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) > 0 {
				leafDER = rawCerts[0]
			}
			return nil
		},
	}
	if sni {
		cfg.ServerName = service.Host
	}

	state = StateHelloSent
	tlsConn := tls.Client(conn, cfg)
	defer tlsConn.Close()

	state = StateReadingRecords
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, classify(state, err)
	}

	state = StateDone
	if leafDER == nil {
		return nil, newError(KindOther, state, fmt.Errorf("no certificate presented"))
	}
	return leafDER, nil
}

func colonHex(b []byte) string {
	s := hex.EncodeToString(b)
	out := make([]byte, 0, len(s)+len(s)/2)
	for i := 0; i < len(s); i += 2 {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, s[i], s[i+1])
	}
	return string(out)
}
