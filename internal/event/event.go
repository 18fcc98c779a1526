// Package event defines the VCP event record: an immutable header +
// payload pair with computed security fields. Field names follow the
// VCP wire format (one canonical-JSON object per log line).
package event

import "encoding/json"

const (
	// Genesis is the predecessor digest of the first event in a chain:
	// 64 zero hex characters, matching the SHA-256 output width.
	Genesis = "0000000000000000000000000000000000000000000000000000000000000000"

	HashAlgorithm      = "SHA-256"
	SignatureAlgorithm = "ED25519"

	Version     = "1.1"
	DefaultTier = "SILVER"
)

type Header struct {
	EventID            string `json:"EventID"`
	TraceID            string `json:"TraceID"`
	SequenceNumber     uint64 `json:"SequenceNumber"`
	EventType          string `json:"EventType"`
	EventTypeCode      int    `json:"EventTypeCode,omitempty"`
	Timestamp          int64  `json:"Timestamp"`
	TimestampPrecision string `json:"TimestampPrecision,omitempty"`
	Producer           string `json:"Producer,omitempty"`
	VCPVersion         string `json:"VCPVersion"`
	Tier               string `json:"Tier"`
}

// Payload is opaque to the integrity layer beyond being serializable.
type Payload map[string]interface{}

type Security struct {
	PrevHash           string `json:"PrevHash,omitempty"`
	EventHash          string `json:"EventHash"`
	HashAlgorithm      string `json:"HashAlgorithm,omitempty"`
	Signature          string `json:"Signature,omitempty"`
	SignatureAlgorithm string `json:"SignatureAlgorithm,omitempty"`
	KeyID              string `json:"KeyID,omitempty"`
	MerkleRoot         string `json:"MerkleRoot,omitempty"`
	MerkleIndex        *int   `json:"MerkleIndex,omitempty"`
	AnchorReference    string `json:"AnchorReference,omitempty"`
}

type Event struct {
	Header   Header   `json:"Header"`
	Payload  Payload  `json:"Payload"`
	Security Security `json:"Security"`
}

// Clone returns a deep copy. Events are append-only once persisted;
// mutation for test fixtures or re-chaining must go through a copy.
func (e Event) Clone() Event {
	out := e
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err == nil {
			var p Payload
			if json.Unmarshal(raw, &p) == nil {
				out.Payload = p
			}
		}
	}
	if e.Security.MerkleIndex != nil {
		idx := *e.Security.MerkleIndex
		out.Security.MerkleIndex = &idx
	}
	return out
}
