package signer_test

import (
	"crypto"
	"crypto/md5"
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nwnotary/notary-server/internal/testnotary"
	"github.com/nwnotary/notary-server/pkg/observation"
	"github.com/nwnotary/notary-server/pkg/signer"
)

func mustFingerprint(t *testing.T, colonHex string) []byte {
	t.Helper()
	raw, err := hex.DecodeString(strings.ReplaceAll(colonHex, ":", ""))
	require.NoError(t, err)
	require.Len(t, raw, 16)
	return raw
}

func TestSignReversesKeyRecordOrder(t *testing.T) {
	key := testnotary.MustRSAKey()
	s := signer.New(key)

	svc := observation.Service{Host: "example.com", Port: 443, Type: observation.ServiceTypeTLS}
	obs := []observation.Observation{
		{Service: svc, Key: "aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa", Start: 100, End: 200},
		{Service: svc, Key: "bb:bb:bb:bb:bb:bb:bb:bb:bb:bb:bb:bb:bb:bb:bb:bb", Start: 300, End: 300},
	}

	sig, records, err := s.Sign(svc, obs)
	require.NoError(t, err)
	require.NotEmpty(t, sig)
	require.Len(t, records, 2)
	require.Equal(t, observation.Key("aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa"), records[0].Key, "records keep original XML-body order")
	require.Equal(t, observation.Key("bb:bb:bb:bb:bb:bb:bb:bb:bb:bb:bb:bb:bb:bb:bb:bb"), records[1].Key)

	// Re-derive the packed bytes by hand, in reverse record order, and
	// confirm the signature verifies against them.
	packed := append([]byte{}, svc.ID()...)
	packed = append(packed, 0x00)
	packed = append(packed, packKeyRecordForTest(t, records[1])...)
	packed = append(packed, packKeyRecordForTest(t, records[0])...)

	digest := md5.Sum(packed)
	sigBytes, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	require.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.MD5, digest[:], sigBytes))
}

func packKeyRecordForTest(t *testing.T, rec signer.KeyRecord) []byte {
	t.Helper()
	fp := mustFingerprint(t, string(rec.Key))
	n := len(rec.Observations)
	out := []byte{byte(n >> 8 & 0xff), byte(n & 0xff), 0x00, 0x10, 0x03}
	out = append(out, fp...)
	for _, o := range rec.Observations {
		var buf [8]byte
		binary.BigEndian.PutUint32(buf[0:4], uint32(o.Start))
		binary.BigEndian.PutUint32(buf[4:8], uint32(o.End))
		out = append(out, buf[:]...)
	}
	return out
}
