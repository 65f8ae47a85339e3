// Package message signs and verifies text messages with a private key,
// using the compact recoverable signature format of Bitcoin wallets.
//
// The signed digest is double SHA-256 over the magic prefix and the message,
// each preceded by its varint length. Signatures are 65 bytes, base64
// encoded: a recovery header byte followed by R and S.
package message

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/encoding"
)

// MagicPrefix is prepended to every message before hashing.
const MagicPrefix = "Bitcoin Signed Message:\n"

var ErrUnsupportedAddress = errors.New("message: only pay-to-public-key-hash addresses can verify messages")

// MagicHash returns the digest signed for msg
func MagicHash(msg []byte) [32]byte {
	w := encoding.NewWriter()
	w.WriteVarBytes([]byte(MagicPrefix))
	w.WriteVarBytes(msg)
	return crypto.Sha256d(w.Bytes())
}

// Sign signs msg with key and returns the base64 compact signature
func Sign(key *crypto.PrivateKey, msg []byte) string {
	sig := key.SignCompact(MagicHash(msg))
	return base64.StdEncoding.EncodeToString(sig)
}

// Recover returns the public key that produced signature over msg
func Recover(msg []byte, signature string) (*crypto.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, fmt.Errorf("message: invalid signature encoding: %w", err)
	}
	if len(raw) != 65 {
		return nil, fmt.Errorf("message: signature must be 65 bytes, got %d", len(raw))
	}
	pub, err := crypto.RecoverCompact(raw, MagicHash(msg))
	if err != nil {
		return nil, fmt.Errorf("message: recovering public key: %w", err)
	}
	return pub, nil
}

// Verify reports whether signature over msg was made by the key behind
// address. A malformed signature is an error; a well formed signature by
// another key returns false.
func Verify(address btcutil.Address, msg []byte, signature string) (bool, error) {
	pkh, ok := address.(*btcutil.AddressPubKeyHash)
	if !ok {
		return false, ErrUnsupportedAddress
	}
	pub, err := Recover(msg, signature)
	if err != nil {
		return false, err
	}
	return bytes.Equal(crypto.Hash160(pub.Bytes()), pkh.ScriptAddress()), nil
}
