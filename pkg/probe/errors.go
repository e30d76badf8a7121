package probe

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"reflect"
)

// Kind classifies why a probe failed to produce a fingerprint. Every
// failure is non-fatal to the caller: it simply means no observation was
// recorded this round.
type Kind int

const (
	KindTimeout Kind = iota
	KindTLSAlert
	KindConnRefused
	KindConnReset
	KindNoRoute
	KindDNSFailure
	KindInvalidFingerprint
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "Timeout"
	case KindTLSAlert:
		return "TLSAlert"
	case KindConnRefused:
		return "ConnRefused"
	case KindConnReset:
		return "ConnReset"
	case KindNoRoute:
		return "NoRoute"
	case KindDNSFailure:
		return "DNSFailure"
	case KindInvalidFingerprint:
		return "InvalidFingerprint"
	default:
		return "Other"
	}
}

// Error wraps a probe failure with its classification and, for TLS
// alerts, the alert's description code. AlertLevel is not populated by
// classify and stays zero.
type Error struct {
	Kind       Kind
	AlertLevel uint8
	AlertCode  uint8
	Phase      State
	Underlying error
}

func (e *Error) Error() string {
	if e.Kind == KindTLSAlert {
		return fmt.Sprintf("probe: %s during %s (level=%d code=%d): %v", e.Kind, e.Phase, e.AlertLevel, e.AlertCode, e.Underlying)
	}
	return fmt.Sprintf("probe: %s during %s: %v", e.Kind, e.Phase, e.Underlying)
}

func (e *Error) Unwrap() error { return e.Underlying }

func newError(kind Kind, phase State, err error) *Error {
	return &Error{Kind: kind, Phase: phase, Underlying: err}
}

// classify maps a raw error from net/crypto-tls/os-exec into a Kind,
// inspecting the well-known sentinel/wrapper types the standard library
// uses for these failure modes.
func classify(phase State, err error) *Error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindTimeout, phase, err)
	}

	var recErr tls.RecordHeaderError
	if errors.As(err, &recErr) {
		return newError(KindOther, phase, err)
	}

	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		e := newError(KindTLSAlert, phase, err)
		e.AlertCode = uint8(alertErr)
		return e
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "remote error" {
			// crypto/tls reports an alert received from the peer as a
			// *net.OpError with Op "remote error" wrapping the alert code.
			e := newError(KindTLSAlert, phase, err)
			if v := reflect.ValueOf(opErr.Err); v.Kind() == reflect.Uint8 {
				e.AlertCode = uint8(v.Uint())
			}
			return e
		}
		switch {
		case errors.Is(opErr.Err, os.ErrDeadlineExceeded):
			return newError(KindTimeout, phase, err)
		case isConnRefused(opErr):
			return newError(KindConnRefused, phase, err)
		case isConnReset(opErr):
			return newError(KindConnReset, phase, err)
		case isNoRoute(opErr):
			return newError(KindNoRoute, phase, err)
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return newError(KindDNSFailure, phase, err)
	}

	return newError(KindOther, phase, err)
}
