// Package signer implements the notary's canonical byte packing and
// RSA-MD5 signature over a service's observation history. The packed
// byte layout and the reversed-key-record ordering are historical wire
// invariants preserved for compatibility with deployed clients; they are
// not revisited here even where a cleaner layout would be preferable.
package signer

import (
	"crypto"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/nwnotary/notary-server/pkg/observation"
)

// SigType is the signature algorithm identifier carried in the XML
// wrapper's sig_type attribute.
const SigType = "rsa-md5"

// WireVersion is the XML wrapper's version attribute.
const WireVersion = "1"

// KeyRecord is one key's worth of observations, in the order keys are
// emitted in the XML body.
type KeyRecord struct {
	Key          observation.Key
	Observations []observation.Observation
}

// Signer packs a service's observations into the canonical byte layout
// and signs it with an RSA private key.
type Signer struct {
	key *rsa.PrivateKey
}

// New returns a Signer using key for signing.
func New(key *rsa.PrivateKey) *Signer {
	return &Signer{key: key}
}

// Sign groups obs by key (preserving first-seen order, matching the
// order the caller will render as XML), packs them per the wire layout,
// and returns the base64-standard-encoded RSA-MD5 signature together
// with the key records in their original (non-reversed) order for the
// caller's XML rendering.
func (s *Signer) Sign(service observation.Service, obs []observation.Observation) (sig string, records []KeyRecord, err error) {
	records = groupByKey(obs)

	packed, err := pack(service, records)
	if err != nil {
		return "", nil, err
	}

	digest := md5.Sum(packed)
	raw, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.MD5, digest[:])
	if err != nil {
		return "", nil, fmt.Errorf("signer: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), records, nil
}

// SignRaw RSA-MD5-signs an arbitrary byte string with the same key and
// algorithm as Sign, for callers that need the signature primitive over a
// payload other than a service's packed observation history (e.g. the
// sign-list command's notary-address bootstrap bundle).
func (s *Signer) SignRaw(data []byte) (string, error) {
	digest := md5.Sum(data)
	raw, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.MD5, digest[:])
	if err != nil {
		return "", fmt.Errorf("signer: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// groupByKey buckets obs by Key, in first-seen order, with each bucket's
// spans sorted by Start ascending.
func groupByKey(obs []observation.Observation) []KeyRecord {
	order := []observation.Key{}
	byKey := map[observation.Key][]observation.Observation{}
	for _, o := range obs {
		if _, seen := byKey[o.Key]; !seen {
			order = append(order, o.Key)
		}
		byKey[o.Key] = append(byKey[o.Key], o)
	}

	records := make([]KeyRecord, 0, len(order))
	for _, k := range order {
		spans := byKey[k]
		sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
		records = append(records, KeyRecord{Key: k, Observations: spans})
	}
	return records
}

// pack builds signed_bytes := service_id ‖ 0x00 ‖ reversed_key_records,
// per spec §4.2. Key records are packed in the reverse of records' order
// — the historical quirk that must be preserved for signature
// compatibility.
func pack(service observation.Service, records []KeyRecord) ([]byte, error) {
	var packed []byte
	for i := len(records) - 1; i >= 0; i-- {
		rec, err := packKeyRecord(records[i])
		if err != nil {
			return nil, err
		}
		packed = append(packed, rec...)
	}

	out := make([]byte, 0, len(service.ID())+1+len(packed))
	out = append(out, service.ID()...)
	out = append(out, 0x00)
	out = append(out, packed...)
	return out, nil
}

// packKeyRecord builds header(5B) ‖ fingerprint(16B) ‖ timespans for one
// key record.
func packKeyRecord(rec KeyRecord) ([]byte, error) {
	fp, err := decodeFingerprint(rec.Key)
	if err != nil {
		return nil, err
	}

	n := len(rec.Observations)
	header := []byte{byte(n >> 8 & 0xff), byte(n & 0xff), 0x00, 0x10, 0x03}

	out := make([]byte, 0, len(header)+len(fp)+8*n)
	out = append(out, header...)
	out = append(out, fp...)
	for _, o := range rec.Observations {
		var buf [8]byte
		binary.BigEndian.PutUint32(buf[0:4], uint32(o.Start))
		binary.BigEndian.PutUint32(buf[4:8], uint32(o.End))
		out = append(out, buf[:]...)
	}
	return out, nil
}

// decodeFingerprint turns a lowercase colon-separated hex key (16 bytes)
// into its raw bytes.
func decodeFingerprint(key observation.Key) ([]byte, error) {
	parts := strings.Split(string(key), ":")
	if len(parts) != 16 {
		return nil, fmt.Errorf("signer: fingerprint %q does not have 16 octets", key)
	}
	out := make([]byte, 16)
	for i, p := range parts {
		var b int
		if _, err := fmt.Sscanf(p, "%02x", &b); err != nil {
			return nil, fmt.Errorf("signer: invalid fingerprint octet %q: %w", p, err)
		}
		out[i] = byte(b)
	}
	return out, nil
}
