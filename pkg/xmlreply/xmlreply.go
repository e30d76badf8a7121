// Package xmlreply renders a service's signed observation history as the
// <notary_reply> XML document deployed clients parse, per spec §4.2/§6.
package xmlreply

import (
	"encoding/xml"
	"fmt"

	"github.com/nwnotary/notary-server/pkg/signer"
)

// keyType is the constant "type" attribute on every <key> element,
// inherited unchanged from the historical wire format regardless of
// whether the underlying probe was TLS or SSH.
const keyType = "ssl"

type timestampXML struct {
	XMLName xml.Name `xml:"timestamp"`
	Start   int64    `xml:"start,attr"`
	End     int64    `xml:"end,attr"`
}

type keyXML struct {
	XMLName     xml.Name       `xml:"key"`
	Type        string         `xml:"type,attr"`
	Fingerprint string         `xml:"fp,attr"`
	Timestamps  []timestampXML `xml:"timestamp"`
}

type replyXML struct {
	XMLName xml.Name `xml:"notary_reply"`
	Version string   `xml:"version,attr"`
	SigType string   `xml:"sig_type,attr"`
	Sig     string   `xml:"sig,attr"`
	Keys    []keyXML `xml:"key"`
}

// Render builds the <notary_reply> document for records (in their
// original, non-reversed order) signed as sig.
func Render(sig string, records []signer.KeyRecord) ([]byte, error) {
	reply := replyXML{
		Version: signer.WireVersion,
		SigType: signer.SigType,
		Sig:     sig,
	}
	for _, rec := range records {
		kx := keyXML{Type: keyType, Fingerprint: string(rec.Key)}
		for _, o := range rec.Observations {
			kx.Timestamps = append(kx.Timestamps, timestampXML{Start: o.Start, End: o.End})
		}
		reply.Keys = append(reply.Keys, kx)
	}

	body, err := xml.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("xmlreply: marshal: %w", err)
	}
	out := make([]byte, 0, len(xml.Header)+len(body))
	out = append(out, xml.Header...)
	out = append(out, body...)
	return out, nil
}
