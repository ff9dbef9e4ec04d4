package auc

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// SPML names and namespaces expected by the provisioning gateway.
const (
	spmlNamespace       = "urn:siemens:names:prov:gw:SPML:2:0"
	subscriberNamespace = "urn:siemens:names:prov:gw:SUBSCRIBER:1:0"
	xsiNamespace        = "http://www.w3.org/2001/XMLSchema-instance"
	subscriberVersion   = "SUBSCRIBER_v10"
)

// The gateway matches on literal prefixes, so element and attribute names
// carry them verbatim instead of going through xml.Name namespaces.
type batchRequest struct {
	XMLName         xml.Name     `xml:"spml:batchRequest"`
	Language        string       `xml:"language,attr"`
	Execution       string       `xml:"execution,attr"`
	Processing      string       `xml:"processing,attr"`
	XMLNSSpml       string       `xml:"xmlns:spml,attr"`
	XMLNSSubscriber string       `xml:"xmlns:subscriber,attr"`
	XMLNSXsi        string       `xml:"xmlns:xsi,attr"`
	OnError         string       `xml:"onError,attr"`
	Version         string       `xml:"version"`
	Requests        []addRequest `xml:"request"`
}

type addRequest struct {
	Type    string           `xml:"xsi:type,attr"`
	Version string           `xml:"version"`
	Object  subscriberObject `xml:"object"`
}

type subscriberObject struct {
	Type       string  `xml:"xsi:type,attr"`
	Identifier string  `xml:"identifier"`
	Auc        aucData `xml:"auc"`
}

type aucData struct {
	IMSI   string `xml:"imsi"`
	EncKey string `xml:"encKey"`
	AlgoID int    `xml:"algoId"`
	KdbID  string `xml:"kdbId"`
	Acsub  int    `xml:"acsub"`
}

// Encode renders the batch as an SPML batch request document.
func (b *Batch) Encode() ([]byte, error) {
	doc := batchRequest{
		Language:        "en_us",
		Execution:       "synchronous",
		Processing:      "parallel",
		XMLNSSpml:       spmlNamespace,
		XMLNSSubscriber: subscriberNamespace,
		XMLNSXsi:        xsiNamespace,
		OnError:         "resume",
		Version:         subscriberVersion,
		Requests:        make([]addRequest, 0, len(b.Entries)),
	}
	for _, e := range b.Entries {
		doc.Requests = append(doc.Requests, addRequest{
			Type:    "spml:AddRequest",
			Version: subscriberVersion,
			Object: subscriberObject{
				Type:       "subscriber:Subscriber",
				Identifier: e.Identifier,
				Auc: aucData{
					IMSI:   e.Identifier,
					EncKey: e.Key,
					AlgoID: e.AlgorithmID,
					KdbID:  e.KeyBucket,
					Acsub:  e.AccessSubscription,
				},
			},
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode spml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode spml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
