// Package sign provides the optional signature layer: Ed25519 over
// 32-byte event or anchor digests. Signing strengthens the hash-chain
// guarantee but is never required for it; a chain without signatures
// still verifies, with the signature checks reported as skipped.
package sign

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Signer signs raw digests. Implementations: Ed25519Signer and
// NoopSigner, selected at construction so callers never branch on
// signature availability.
type Signer interface {
	Sign(digest []byte) (string, error)
	PublicKey() string
	KeyID() string
	Algorithm() string
	Enabled() bool
}

// Ed25519Signer holds a private key exclusively owned by the producer.
type Ed25519Signer struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	keyID string
}

// NewEd25519Signer generates a fresh key pair.
func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Ed25519Signer{priv: priv, pub: pub, keyID: keyID}, nil
}

// NewEd25519SignerFromSeed reconstructs a signer from a 32-byte seed.
func NewEd25519SignerFromSeed(seed []byte, keyID string) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed size: want %d, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{
		priv:  priv,
		pub:   priv.Public().(ed25519.PublicKey),
		keyID: keyID,
	}, nil
}

func (s *Ed25519Signer) Sign(digest []byte) (string, error) {
	sig := ed25519.Sign(s.priv, digest)
	return hex.EncodeToString(sig), nil
}

func (s *Ed25519Signer) PublicKey() string {
	return hex.EncodeToString(s.pub)
}

func (s *Ed25519Signer) KeyID() string {
	return s.keyID
}

func (s *Ed25519Signer) Algorithm() string {
	return "ED25519"
}

func (s *Ed25519Signer) Enabled() bool {
	return true
}

// Seed exposes the private seed for persistence. Never transmitted.
func (s *Ed25519Signer) Seed() []byte {
	return s.priv.Seed()
}

// NoopSigner is the capability-off implementation: events and anchors
// are produced unsigned.
type NoopSigner struct{}

func (NoopSigner) Sign([]byte) (string, error) { return "", nil }
func (NoopSigner) PublicKey() string           { return "" }
func (NoopSigner) KeyID() string               { return "" }
func (NoopSigner) Algorithm() string           { return "NONE" }
func (NoopSigner) Enabled() bool               { return false }

// Verify checks a hex signature over a raw digest against a hex public
// key. Verification is pure: no state, no side effects.
func Verify(publicKeyHex, signatureHex string, digest []byte) (bool, error) {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return false, fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key size: %d", len(pub))
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return false, fmt.Errorf("invalid signature size: %d", len(sig))
	}
	return ed25519.Verify(ed25519.PublicKey(pub), digest, sig), nil
}
