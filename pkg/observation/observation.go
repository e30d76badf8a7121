// Package observation holds the core value types of the Network Notary:
// the services it watches and the key-sighting timespans it has recorded
// for them. Nothing in this package touches storage; it exists so that
// every other package (store, signer, xmlreply, httpapi) can agree on a
// single, ORM-free representation of "what the notary knows".
package observation

import (
	"fmt"
	"strconv"
	"strings"
)

// ServiceType identifies the protocol a Service is probed with.
type ServiceType int

// Known service types, matching the wire encoding used in a service ID
// string ("host:port,type").
const (
	ServiceTypeSSH ServiceType = 1
	ServiceTypeTLS ServiceType = 2
)

// Valid reports whether t is one of the known service types.
func (t ServiceType) Valid() bool {
	return t == ServiceTypeSSH || t == ServiceTypeTLS
}

func (t ServiceType) String() string {
	switch t {
	case ServiceTypeSSH:
		return "ssh"
	case ServiceTypeTLS:
		return "ssl"
	default:
		return "unknown"
	}
}

// Service identifies a network endpoint by host, port and service type.
// Its canonical textual form is "host:port,type" and is used as the
// primary key of the observation store.
type Service struct {
	Host string
	Port int
	Type ServiceType
}

// ID returns the canonical "host:port,type" identity string for s.
func (s Service) ID() string {
	return fmt.Sprintf("%s:%d,%d", s.Host, s.Port, int(s.Type))
}

func (s Service) String() string { return s.ID() }

// ParseServiceID parses the canonical "host:port,type" form produced by
// ID. It is the inverse of Service.ID.
func ParseServiceID(id string) (Service, error) {
	hostPort, typStr, ok := strings.Cut(id, ",")
	if !ok {
		return Service{}, fmt.Errorf("observation: malformed service id %q: missing service type", id)
	}
	i := strings.LastIndex(hostPort, ":")
	if i < 0 {
		return Service{}, fmt.Errorf("observation: malformed service id %q: missing port", id)
	}
	host, portStr := hostPort[:i], hostPort[i+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Service{}, fmt.Errorf("observation: malformed service id %q: bad port: %w", id, err)
	}
	typ, err := strconv.Atoi(typStr)
	if err != nil {
		return Service{}, fmt.Errorf("observation: malformed service id %q: bad type: %w", id, err)
	}
	svc := Service{Host: host, Port: port, Type: ServiceType(typ)}
	if err := svc.Validate(); err != nil {
		return Service{}, err
	}
	return svc, nil
}

// Validate reports whether s has a non-empty host, an in-range port and a
// known service type.
func (s Service) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("observation: empty host")
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("observation: port %d out of range [1,65535]", s.Port)
	}
	if !s.Type.Valid() {
		return fmt.Errorf("observation: unknown service type %d", int(s.Type))
	}
	return nil
}

// Key is a fingerprint: the lowercase colon-separated hex MD5 of a TLS
// leaf certificate's DER encoding, or an ssh-keygen-style fingerprint for
// SSH services.
type Key string

// Observation is a single (service, key, start, end) row: an assertion
// that the notary witnessed key at service continuously across
// [Start, End] (inclusive, Unix seconds).
type Observation struct {
	Service Service
	Key     Key
	Start   int64
	End     int64
}

// Validate enforces the invariants from the data model: start and end
// must be non-negative and ordered.
func (o Observation) Validate() error {
	if o.Start < 0 {
		return fmt.Errorf("observation: negative start %d", o.Start)
	}
	if o.End < o.Start {
		return fmt.Errorf("observation: end %d before start %d", o.End, o.Start)
	}
	return nil
}
