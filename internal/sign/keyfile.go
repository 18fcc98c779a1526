package sign

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// PublicKeyInfo is the freely distributed half of a key pair.
type PublicKeyInfo struct {
	KeyID     string `json:"KeyID"`
	Algorithm string `json:"Algorithm"`
	PublicKey string `json:"PublicKey"`
}

type privateKeyFile struct {
	KeyID     string `json:"KeyID"`
	Algorithm string `json:"Algorithm"`
	Seed      string `json:"Seed"`
}

// SavePublicKey writes the public key JSON consumed by verifiers.
func SavePublicKey(s *Ed25519Signer, path string) error {
	info := PublicKeyInfo{
		KeyID:     s.KeyID(),
		Algorithm: s.Algorithm(),
		PublicKey: s.PublicKey(),
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write public key file: %w", err)
	}
	return nil
}

// LoadPublicKey reads a verifier-side public key file.
func LoadPublicKey(path string) (*PublicKeyInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	var info PublicKeyInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse public key file: %w", err)
	}
	if info.PublicKey == "" {
		return nil, fmt.Errorf("public key file %s has no PublicKey field", path)
	}
	return &info, nil
}

// SavePrivateKey persists the signing seed, owner-readable only.
func SavePrivateKey(s *Ed25519Signer, path string) error {
	file := privateKeyFile{
		KeyID:     s.KeyID(),
		Algorithm: s.Algorithm(),
		Seed:      hex.EncodeToString(s.Seed()),
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write private key file: %w", err)
	}
	return nil
}

// LoadPrivateKey reconstructs a signer from a persisted seed.
func LoadPrivateKey(path string) (*Ed25519Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	var file privateKeyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse private key file: %w", err)
	}
	seed, err := hex.DecodeString(file.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key seed: %w", err)
	}
	return NewEd25519SignerFromSeed(seed, file.KeyID)
}
