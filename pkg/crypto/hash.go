package crypto

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // HASH160 is consensus defined
)

// Sha256d returns SHA-256(SHA-256(b)).
func Sha256d(b []byte) [32]byte {
	return chainhash.DoubleHashH(b)
}

// Hash160 returns RIPEMD-160(SHA-256(b)).
func Hash160(b []byte) []byte {
	sum := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(sum[:])
	return h.Sum(nil)
}
