// Package crypto implements secp256k1 ECDSA signing for transaction inputs.
//
// Key formats:
//   - Private keys: WIF (Wallet Import Format) or raw 32 bytes
//   - Public keys: compressed 33-byte or uncompressed 65-byte SEC encoding
//   - Signatures: strict DER, low-S, deterministic nonces (RFC 6979)
//
// The curve arithmetic and DER codec come from decred's secp256k1 module;
// this package only fixes the formats the transaction layer relies on.
package crypto

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// PrivateKey wraps a secp256k1 private key
type PrivateKey struct {
	key        *secp256k1.PrivateKey
	compressed bool
}

// PublicKey wraps a secp256k1 public key together with its serialization form
type PublicKey struct {
	key        *secp256k1.PublicKey
	compressed bool
}

// ParsePrivateKeyWIF parses a WIF-encoded private key.
// The compression flag of the WIF decides how the public key is serialized.
func ParsePrivateKeyWIF(wif string) (*PrivateKey, error) {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return nil, fmt.Errorf("failed to decode WIF: %w", err)
	}

	return &PrivateKey{key: decoded.PrivKey, compressed: decoded.CompressPubKey}, nil
}

// PrivateKeyFromBytes creates a private key from raw bytes
func PrivateKeyFromBytes(keyBytes []byte) (*PrivateKey, error) {
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(keyBytes))
	}

	key := secp256k1.PrivKeyFromBytes(keyBytes)
	if key.Key.IsZero() {
		return nil, fmt.Errorf("private key must not be zero")
	}
	return &PrivateKey{key: key, compressed: true}, nil
}

// GeneratePrivateKey creates a new random private key
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return &PrivateKey{key: key, compressed: true}, nil
}

// Sign creates a DER-encoded ECDSA signature over a 32-byte digest.
// The nonce is derived deterministically from the key and digest, and the
// S value is always in the lower half of the curve order.
func (pk *PrivateKey) Sign(hash [32]byte) []byte {
	sig := ecdsa.Sign(pk.key, hash[:])
	return sig.Serialize()
}

// SignCompact creates a 65-byte recoverable signature over a digest
func (pk *PrivateKey) SignCompact(hash [32]byte) []byte {
	return ecdsa.SignCompact(pk.key, hash[:], pk.compressed)
}

// PublicKey derives the public key
func (pk *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{key: pk.key.PubKey(), compressed: pk.compressed}
}

// Bytes returns the raw 32-byte private key
func (pk *PrivateKey) Bytes() []byte {
	return pk.key.Serialize()
}

// Compressed reports whether the derived public key serializes compressed
func (pk *PrivateKey) Compressed() bool {
	return pk.compressed
}

// WIF encodes the key for the given network
func (pk *PrivateKey) WIF(net *chaincfg.Params) (string, error) {
	wif, err := btcutil.NewWIF(pk.key, net, pk.compressed)
	if err != nil {
		return "", err
	}
	return wif.String(), nil
}

// Bytes returns the public key in its serialization form
func (pub *PublicKey) Bytes() []byte {
	if pub.compressed {
		return pub.key.SerializeCompressed()
	}
	return pub.key.SerializeUncompressed()
}

// SerializeCompressed returns the 33-byte compressed public key
func (pub *PublicKey) SerializeCompressed() [33]byte {
	var result [33]byte
	copy(result[:], pub.key.SerializeCompressed())
	return result
}

// Compressed reports whether Bytes returns the compressed form
func (pub *PublicKey) Compressed() bool {
	return pub.compressed
}

// String returns the hex encoding of Bytes
func (pub *PublicKey) String() string {
	return hex.EncodeToString(pub.Bytes())
}

// Equal compares serialized forms
func (pub *PublicKey) Equal(other *PublicKey) bool {
	if pub == nil || other == nil {
		return pub == other
	}
	return bytes.Equal(pub.Bytes(), other.Bytes())
}

// ParsePublicKey parses a compressed or uncompressed public key
func ParsePublicKey(pubKeyBytes []byte) (*PublicKey, error) {
	if len(pubKeyBytes) != 33 && len(pubKeyBytes) != 65 {
		return nil, fmt.Errorf("public key must be 33 or 65 bytes, got %d", len(pubKeyBytes))
	}

	pubKey, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return &PublicKey{key: pubKey, compressed: len(pubKeyBytes) == 33}, nil
}

// ParsePublicKeyHex parses a hex-encoded public key
func ParsePublicKeyHex(s string) (*PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid public key hex: %w", err)
	}
	return ParsePublicKey(raw)
}

// RecoverCompact recovers the public key from a 65-byte compact signature
func RecoverCompact(signature []byte, hash [32]byte) (*PublicKey, error) {
	key, compressed, err := ecdsa.RecoverCompact(signature, hash[:])
	if err != nil {
		return nil, err
	}
	return &PublicKey{key: key, compressed: compressed}, nil
}

// VerifySignature verifies a DER-encoded ECDSA signature
func VerifySignature(pubkey *PublicKey, hash [32]byte, signature []byte) bool {
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}

	return sig.Verify(hash[:], pubkey.key)
}

// IsDERSignature reports whether b parses as a strict DER signature
func IsDERSignature(b []byte) bool {
	_, err := ecdsa.ParseDERSignature(b)
	return err == nil
}
