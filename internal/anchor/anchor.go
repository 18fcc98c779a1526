// Package anchor produces and checks Merkle anchors: periodic,
// immutable snapshots of the chain's Merkle root over a contiguous
// event range. Anchors are what gets handed to external timestamping
// services; their external validity is out of scope here.
package anchor

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/veritaschain/vcp/internal/canonical"
	"github.com/veritaschain/vcp/internal/event"
	"github.com/veritaschain/vcp/internal/hash"
	"github.com/veritaschain/vcp/internal/sign"
)

// Algorithm identifies the aggregation scheme carried in every anchor.
const Algorithm = "RFC6962_SHA256"

type Anchor struct {
	VCPVersion    string `json:"VCPVersion"`
	Tier          string `json:"Tier"`
	Algorithm     string `json:"Algorithm"`
	Root          string `json:"Root"`
	LeafCount     int    `json:"LeafCount"`
	EventCount    int    `json:"EventCount"`
	FirstSequence uint64 `json:"FirstSequence"`
	LastSequence  uint64 `json:"LastSequence"`
	Timestamp     string `json:"Timestamp"`

	// ObjectHash is the canonical digest of the anchor minus the three
	// computed fields; Signature covers ObjectHash.
	ObjectHash string `json:"ObjectHash,omitempty"`
	Signature  string `json:"Signature,omitempty"`
	KeyID      string `json:"KeyID,omitempty"`
}

// Build computes an anchor over a contiguous slice of events. The
// Merkle root is taken over the stored event hashes in log order.
func Build(events []event.Event, policy hash.OddNodePolicy, signer sign.Signer) (*Anchor, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("no events to anchor")
	}

	digests := make([]string, len(events))
	for i, ev := range events {
		digests[i] = ev.Security.EventHash
	}

	root, err := hash.MerkleRoot(digests, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to compute merkle root: %w", err)
	}

	a := &Anchor{
		VCPVersion:    event.Version,
		Tier:          events[0].Header.Tier,
		Algorithm:     Algorithm,
		Root:          root,
		LeafCount:     len(digests),
		EventCount:    len(events),
		FirstSequence: events[0].Header.SequenceNumber,
		LastSequence:  events[len(events)-1].Header.SequenceNumber,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	}

	if signer != nil && signer.Enabled() {
		if err := a.Sign(signer); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// objectDigest hashes the anchor with its computed fields blanked.
func (a *Anchor) objectDigest() (string, error) {
	unsigned := *a
	unsigned.ObjectHash = ""
	unsigned.Signature = ""
	unsigned.KeyID = ""

	data, err := canonical.Marshal(unsigned)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize anchor: %w", err)
	}
	return hash.HexDigest(data), nil
}

// Sign sets ObjectHash and signs it.
func (a *Anchor) Sign(signer sign.Signer) error {
	objHash, err := a.objectDigest()
	if err != nil {
		return err
	}
	digest, err := hash.DecodeDigest(objHash)
	if err != nil {
		return err
	}
	sig, err := signer.Sign(digest)
	if err != nil {
		return fmt.Errorf("failed to sign anchor: %w", err)
	}
	a.ObjectHash = objHash
	a.Signature = sig
	a.KeyID = signer.KeyID()
	return nil
}

// VerifySignature recomputes the object hash and checks the signature
// against a hex public key. Returns (false, nil) for a bad signature
// and an error only for malformed input.
func (a *Anchor) VerifySignature(publicKeyHex string) (bool, error) {
	if a.Signature == "" {
		return false, fmt.Errorf("anchor is unsigned")
	}
	objHash, err := a.objectDigest()
	if err != nil {
		return false, err
	}
	if a.ObjectHash != "" && a.ObjectHash != objHash {
		return false, nil
	}
	digest, err := hash.DecodeDigest(objHash)
	if err != nil {
		return false, err
	}
	return sign.Verify(publicKeyHex, a.Signature, digest)
}

// WriteFile persists the anchor as indented JSON.
func (a *Anchor) WriteFile(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal anchor: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write anchor file: %w", err)
	}
	return nil
}

// ReadFile loads an anchor file.
func ReadFile(path string) (*Anchor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read anchor file: %w", err)
	}
	var a Anchor
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse anchor file: %w", err)
	}
	return &a, nil
}
