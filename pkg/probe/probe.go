// Package probe implements the TLS and SSH fingerprint probes: the
// "minimal TLS handshake parser" and SSH key-scan wrapper the rest of the
// system treats as commodity interfaces.
package probe

import (
	"context"

	"github.com/nwnotary/notary-server/pkg/observation"
)

// State is a probe's position in its handshake state machine, captured
// for logging and metrics even when the underlying library (crypto/tls)
// performs the actual record loop internally.
type State int

const (
	StateConnecting State = iota
	StateHelloSent
	StateReadingRecords
	StateDone
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateHelloSent:
		return "HELLO_SENT"
	case StateReadingRecords:
		return "READING_RECORDS"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Prober fetches the current fingerprint for a service. Both TLSProbe and
// SSHProbe satisfy this; ScannerPool and the on-demand HTTP path are
// agnostic to which one they're driving.
type Prober interface {
	Probe(ctx context.Context, service observation.Service) (observation.Key, error)
}
