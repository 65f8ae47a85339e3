package script

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/suffix-labs/bchtx/pkg/crypto"
)

// Empty returns an empty script
func Empty() []byte {
	return []byte{}
}

// BuildPublicKeyOut builds <pubkey> OP_CHECKSIG
func BuildPublicKeyOut(pubkey []byte) []byte {
	s, _ := txscript.NewScriptBuilder().
		AddData(pubkey).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	return s
}

// BuildPublicKeyHashOut builds a P2PKH script for a 20-byte key hash
func BuildPublicKeyHashOut(pubKeyHash []byte) []byte {
	s, _ := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(pubKeyHash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	return s
}

// BuildPublicKeyHashOutForKey builds a P2PKH script paying to pubkey
func BuildPublicKeyHashOutForKey(pubkey []byte) []byte {
	return BuildPublicKeyHashOut(crypto.Hash160(pubkey))
}

// BuildScriptHashOut builds a P2SH script committing to redeemScript
func BuildScriptHashOut(redeemScript []byte) []byte {
	s, _ := txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(crypto.Hash160(redeemScript)).
		AddOp(txscript.OP_EQUAL).
		Script()
	return s
}

// BuildMultisigOut builds <m> <pubkey>... <n> OP_CHECKMULTISIG.
// The keys are emitted in the order given.
func BuildMultisigOut(pubkeys [][]byte, threshold int) ([]byte, error) {
	if threshold < 1 || threshold > len(pubkeys) {
		return nil, fmt.Errorf("threshold %d out of range for %d public keys", threshold, len(pubkeys))
	}
	if len(pubkeys) > 16 {
		return nil, fmt.Errorf("at most 16 public keys allowed, got %d", len(pubkeys))
	}

	b := txscript.NewScriptBuilder().AddInt64(int64(threshold))
	for _, key := range pubkeys {
		b.AddData(key)
	}
	return b.AddInt64(int64(len(pubkeys))).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
}

// BuildDataOut builds OP_RETURN followed by one push per data element.
// Empty elements are skipped, so BuildDataOut() is a bare OP_RETURN.
func BuildDataOut(data ...[]byte) ([]byte, error) {
	b := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN)
	for _, d := range data {
		if len(d) == 0 {
			continue
		}
		b.AddFullData(d)
	}
	s, err := b.Script()
	if err != nil {
		return nil, err
	}
	if len(s) > MaxDataOutSize {
		return nil, fmt.Errorf("data output is %d bytes, limit is %d", len(s), MaxDataOutSize)
	}
	return s, nil
}

// BuildPublicKeyIn builds the P2PK unlocking script: <sig||sighash>
func BuildPublicKeyIn(signature []byte) []byte {
	s, _ := txscript.NewScriptBuilder().AddData(signature).Script()
	return s
}

// BuildPublicKeyHashIn builds the P2PKH unlocking script: <sig||sighash> <pubkey>
func BuildPublicKeyHashIn(signature, pubkey []byte) []byte {
	s, _ := txscript.NewScriptBuilder().
		AddData(signature).
		AddData(pubkey).
		Script()
	return s
}

// BuildMultisigIn builds OP_0 <sig>... for a bare multisig spend.
// The leading OP_0 is consumed by OP_CHECKMULTISIG's extra pop.
func BuildMultisigIn(signatures [][]byte) []byte {
	b := txscript.NewScriptBuilder().AddOp(txscript.OP_0)
	for _, sig := range signatures {
		b.AddData(sig)
	}
	s, _ := b.Script()
	return s
}

// BuildP2SHIn builds <sig>... <redeemScript>. The leading OP_0 is only
// pushed when the redeem script ends in a CHECKMULTISIG opcode.
func BuildP2SHIn(signatures [][]byte, redeemScript []byte) ([]byte, error) {
	if EndsWithCheckMultisig(redeemScript) {
		return BuildP2SHMultisigIn(signatures, redeemScript)
	}
	b := txscript.NewScriptBuilder()
	for _, sig := range signatures {
		b.AddData(sig)
	}
	return b.AddData(redeemScript).Script()
}

// BuildP2SHMultisigIn builds OP_0 <sig>... <redeemScript>
func BuildP2SHMultisigIn(signatures [][]byte, redeemScript []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder().AddOp(txscript.OP_0)
	for _, sig := range signatures {
		b.AddData(sig)
	}
	return b.AddData(redeemScript).Script()
}
