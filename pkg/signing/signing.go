// Package signing provides Ed25519 key management and the manifest
// signing/verification used by pkg/publisher and pkg/client.
package signing

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/iannil/geofence-engine/pkg/distmodel"
)

const (
	// PublicKeySize is the size of an Ed25519 public key in bytes.
	PublicKeySize = ed25519.PublicKeySize

	// PrivateKeySize is the size of an Ed25519 private key in bytes.
	PrivateKeySize = ed25519.PrivateKeySize

	// SignatureSize is the size of an Ed25519 signature in bytes.
	SignatureSize = ed25519.SignatureSize
)

// KeyPair is an Ed25519 key pair plus its derived KeyID.
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
	KeyID      string
}

// GenerateKeyPair generates a new Ed25519 key pair using the system CSPRNG.
func GenerateKeyPair() (*KeyPair, error) {
	return GenerateKeyFromReader(rand.Reader)
}

// GenerateKeyFromReader generates a new Ed25519 key pair using r
// (rand.Reader in production, a deterministic reader in tests).
func GenerateKeyFromReader(r io.Reader) (*KeyPair, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("signing: generate key pair: %w", err)
	}
	return &KeyPair{PublicKey: publicKey, PrivateKey: privateKey, KeyID: computeKeyID(publicKey)}, nil
}

// DeriveKeyPair builds a KeyPair from existing keys, verifying they match.
func DeriveKeyPair(publicKey, privateKey []byte) (*KeyPair, error) {
	if len(publicKey) != PublicKeySize {
		return nil, fmt.Errorf("signing: invalid public key size: %d", len(publicKey))
	}
	if len(privateKey) != PrivateKeySize {
		return nil, fmt.Errorf("signing: invalid private key size: %d", len(privateKey))
	}
	derived := ed25519.PrivateKey(privateKey).Public().(ed25519.PublicKey)
	if !bytes.Equal(derived, publicKey) {
		return nil, fmt.Errorf("signing: public key does not match private key")
	}
	return &KeyPair{PublicKey: publicKey, PrivateKey: privateKey, KeyID: computeKeyID(publicKey)}, nil
}

// PublicKeyFromBytes builds a verify-only KeyPair holding just a public key.
func PublicKeyFromBytes(publicKey []byte) (*KeyPair, error) {
	if len(publicKey) != PublicKeySize {
		return nil, fmt.Errorf("signing: invalid public key size: %d", len(publicKey))
	}
	return &KeyPair{PublicKey: publicKey, KeyID: computeKeyID(publicKey)}, nil
}

// computeKeyID derives a stable identifier for a public key. Unlike the
// teacher's truncated-hash scheme, this uses a name-based UUID (v5-style,
// SHA-1 under the hood) over the key bytes, giving a standard, collision-
// resistant identifier format collaborators can index and log without
// inventing their own truncation convention.
func computeKeyID(publicKey []byte) string {
	return uuid.NewSHA1(uuid.Nil, publicKey).String()
}

// Sign signs message with the key pair's private key. Panics if no
// private key is held (a verify-only KeyPair from PublicKeyFromBytes).
func (k *KeyPair) Sign(message []byte) []byte {
	if len(k.PrivateKey) == 0 {
		panic("signing: private key not available")
	}
	return ed25519.Sign(k.PrivateKey, message)
}

// Verify verifies signature over message against the key pair's public key.
func (k *KeyPair) Verify(message, signature []byte) bool {
	return Verify(k.PublicKey, message, signature)
}

// Sign signs message with a raw private key.
func Sign(privateKey, message []byte) []byte {
	if len(privateKey) != PrivateKeySize {
		panic("signing: invalid private key size")
	}
	return ed25519.Sign(privateKey, message)
}

// Verify verifies signature over message with a raw public key.
func Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != PublicKeySize || len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}

// MarshalPublicKeyHex encodes a public key as a hex string.
func MarshalPublicKeyHex(publicKey []byte) string { return hex.EncodeToString(publicKey) }

// MarshalPrivateKeyHex encodes a private key as a hex string.
func MarshalPrivateKeyHex(privateKey []byte) string { return hex.EncodeToString(privateKey) }

// UnmarshalPublicKeyHex decodes a hex-encoded public key.
func UnmarshalPublicKeyHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("signing: invalid hex encoding: %w", err)
	}
	if len(key) != PublicKeySize {
		return nil, fmt.Errorf("signing: invalid public key size: %d", len(key))
	}
	return key, nil
}

// UnmarshalPrivateKeyHex decodes a hex-encoded private key.
func UnmarshalPrivateKeyHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("signing: invalid hex encoding: %w", err)
	}
	if len(key) != PrivateKeySize {
		return nil, fmt.Errorf("signing: invalid private key size: %d", len(key))
	}
	return key, nil
}

// ComputeSHA256 computes the SHA-256 hash of data.
func ComputeSHA256(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// VerifyHash reports whether data matches expectedHash.
func VerifyHash(data, expectedHash []byte) bool {
	return bytes.Equal(ComputeSHA256(data), expectedHash)
}

// SignManifest returns m with Signature and KeyID populated, computed
// over m's canonical JSON encoding with Signature cleared.
func SignManifest(kp *KeyPair, m distmodel.Manifest) (distmodel.Manifest, error) {
	m.KeyID = kp.KeyID
	unsigned := m.MarshalForSigning()
	data, err := json.Marshal(unsigned)
	if err != nil {
		return distmodel.Manifest{}, fmt.Errorf("signing: marshal manifest: %w", err)
	}
	m.Signature = kp.Sign(data)
	return m, nil
}

// VerifyManifest verifies m's signature against publicKey.
func VerifyManifest(publicKey []byte, m distmodel.Manifest) (bool, error) {
	unsigned := m.MarshalForSigning()
	data, err := json.Marshal(unsigned)
	if err != nil {
		return false, fmt.Errorf("signing: marshal manifest: %w", err)
	}
	return Verify(publicKey, data, m.Signature), nil
}
