// Package hash computes VCP event digests and RFC 6962 Merkle roots.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/veritaschain/vcp/internal/canonical"
	"github.com/veritaschain/vcp/internal/event"
)

// DigestSize is the raw digest width in bytes. Hex digests are twice
// this length.
const DigestSize = sha256.Size

// InvalidPredecessorError reports a predecessor digest that is not a
// well-formed hex digest of the expected width.
type InvalidPredecessorError struct {
	PrevHash string
	Reason   string
}

func (e *InvalidPredecessorError) Error() string {
	return fmt.Sprintf("invalid predecessor hash %q: %s", truncate(e.PrevHash), e.Reason)
}

func truncate(s string) string {
	if len(s) > 16 {
		return s[:16] + "..."
	}
	return s
}

// HexDigest returns the hex-encoded SHA-256 of raw bytes.
func HexDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DecodeDigest hex-decodes a digest and checks its width.
func DecodeDigest(hexDigest string) ([]byte, error) {
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return nil, &InvalidPredecessorError{PrevHash: hexDigest, Reason: "not hex"}
	}
	if len(raw) != DigestSize {
		return nil, &InvalidPredecessorError{
			PrevHash: hexDigest,
			Reason:   fmt.Sprintf("want %d bytes, got %d", DigestSize, len(raw)),
		}
	}
	return raw, nil
}

// ComputeEventHash derives an event digest from its header, payload
// and predecessor digest:
//
//	SHA-256( canonical(header) || canonical(payload) || prevHashBytes )
//
// The Security block is deliberately excluded from the input; the hash
// covers only header, payload and predecessor. prevHash must be a
// 64-character hex digest (event.Genesis for the first event).
func ComputeEventHash(header event.Header, payload event.Payload, prevHash string) (string, error) {
	prevBytes, err := DecodeDigest(prevHash)
	if err != nil {
		return "", err
	}

	headerBytes, err := canonical.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize header: %w", err)
	}

	if payload == nil {
		payload = event.Payload{}
	}
	payloadBytes, err := canonical.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}

	h := sha256.New()
	h.Write(headerBytes)
	h.Write(payloadBytes)
	h.Write(prevBytes)
	return hex.EncodeToString(h.Sum(nil)), nil
}
