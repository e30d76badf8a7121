package xmlreply_test

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nwnotary/notary-server/pkg/observation"
	"github.com/nwnotary/notary-server/pkg/signer"
	"github.com/nwnotary/notary-server/pkg/xmlreply"
)

func TestRenderProducesExpectedShape(t *testing.T) {
	records := []signer.KeyRecord{
		{
			Key: "aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa",
			Observations: []observation.Observation{
				{Start: 100, End: 200},
			},
		},
	}

	out, err := xmlreply.Render("c2lnbmF0dXJl", records)
	require.NoError(t, err)

	var parsed struct {
		XMLName xml.Name `xml:"notary_reply"`
		Version string   `xml:"version,attr"`
		SigType string   `xml:"sig_type,attr"`
		Sig     string   `xml:"sig,attr"`
		Keys    []struct {
			Type        string `xml:"type,attr"`
			Fingerprint string `xml:"fp,attr"`
			Timestamps  []struct {
				Start int64 `xml:"start,attr"`
				End   int64 `xml:"end,attr"`
			} `xml:"timestamp"`
		} `xml:"key"`
	}
	require.NoError(t, xml.Unmarshal(out, &parsed))

	require.Equal(t, "1", parsed.Version)
	require.Equal(t, "rsa-md5", parsed.SigType)
	require.Equal(t, "c2lnbmF0dXJl", parsed.Sig)
	require.Len(t, parsed.Keys, 1)
	require.Equal(t, "ssl", parsed.Keys[0].Type)
	require.Equal(t, "aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa:aa", parsed.Keys[0].Fingerprint)
	require.Len(t, parsed.Keys[0].Timestamps, 1)
	require.Equal(t, int64(100), parsed.Keys[0].Timestamps[0].Start)
	require.Equal(t, int64(200), parsed.Keys[0].Timestamps[0].End)
}
