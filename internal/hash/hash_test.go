package hash

import (
	"errors"
	"strings"
	"testing"

	"github.com/veritaschain/vcp/internal/event"
)

func testHeader(seq uint64) event.Header {
	return event.Header{
		EventID:        "evt-001",
		TraceID:        "trace-001",
		SequenceNumber: seq,
		EventType:      "ORD",
		Timestamp:      1700000000000,
		VCPVersion:     event.Version,
		Tier:           event.DefaultTier,
	}
}

func TestComputeEventHashDeterministic(t *testing.T) {
	header := testHeader(1)
	payload := event.Payload{"VCP_TRADE": map[string]interface{}{"OrderID": "42"}}

	h1, err := ComputeEventHash(header, payload, event.Genesis)
	if err != nil {
		t.Fatalf("ComputeEventHash failed: %v", err)
	}
	h2, err := ComputeEventHash(header, payload, event.Genesis)
	if err != nil {
		t.Fatalf("ComputeEventHash failed: %v", err)
	}

	if h1 != h2 {
		t.Error("same input should produce same hash")
	}
	if len(h1) != DigestSize*2 {
		t.Errorf("expected hash length %d, got %d", DigestSize*2, len(h1))
	}
}

func TestComputeEventHashPredecessorBinding(t *testing.T) {
	header := testHeader(2)
	payload := event.Payload{"k": "v"}

	other := strings.Repeat("ab", DigestSize)

	h1, err := ComputeEventHash(header, payload, event.Genesis)
	if err != nil {
		t.Fatalf("ComputeEventHash failed: %v", err)
	}
	h2, err := ComputeEventHash(header, payload, other)
	if err != nil {
		t.Fatalf("ComputeEventHash failed: %v", err)
	}

	if h1 == h2 {
		t.Error("different predecessors should produce different hashes")
	}
}

func TestComputeEventHashPayloadSensitivity(t *testing.T) {
	header := testHeader(1)

	h1, err := ComputeEventHash(header, event.Payload{"amount": "100"}, event.Genesis)
	if err != nil {
		t.Fatalf("ComputeEventHash failed: %v", err)
	}
	h2, err := ComputeEventHash(header, event.Payload{"amount": "101"}, event.Genesis)
	if err != nil {
		t.Fatalf("ComputeEventHash failed: %v", err)
	}

	if h1 == h2 {
		t.Error("payload change should change the hash")
	}
}

func TestComputeEventHashNilPayload(t *testing.T) {
	header := testHeader(1)

	h1, err := ComputeEventHash(header, nil, event.Genesis)
	if err != nil {
		t.Fatalf("ComputeEventHash failed: %v", err)
	}
	h2, err := ComputeEventHash(header, event.Payload{}, event.Genesis)
	if err != nil {
		t.Fatalf("ComputeEventHash failed: %v", err)
	}

	if h1 != h2 {
		t.Error("nil payload should hash like an empty payload")
	}
}

func TestComputeEventHashInvalidPredecessor(t *testing.T) {
	header := testHeader(1)

	cases := []string{
		"",
		"zz",
		"abcd",
		strings.Repeat("0", 63),
		strings.Repeat("0", 66),
		"not-hex-at-all-not-hex-at-all-not-hex-at-all-not-hex-at-all-nope",
	}

	for _, prev := range cases {
		_, err := ComputeEventHash(header, nil, prev)
		if err == nil {
			t.Errorf("expected error for predecessor %q", prev)
			continue
		}
		var pe *InvalidPredecessorError
		if !errors.As(err, &pe) {
			t.Errorf("expected InvalidPredecessorError for %q, got %T", prev, err)
		}
	}
}

func TestDecodeDigest(t *testing.T) {
	raw, err := DecodeDigest(event.Genesis)
	if err != nil {
		t.Fatalf("DecodeDigest failed: %v", err)
	}
	if len(raw) != DigestSize {
		t.Errorf("expected %d bytes, got %d", DigestSize, len(raw))
	}
	for _, b := range raw {
		if b != 0 {
			t.Error("genesis should decode to all zero bytes")
			break
		}
	}
}

func TestHexDigest(t *testing.T) {
	// SHA-256 of the empty string, a fixed vector.
	got := HexDigest(nil)
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
