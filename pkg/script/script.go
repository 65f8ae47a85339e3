// Package script classifies and builds the standard locking and unlocking
// script templates a transaction needs to know about.
//
// Supported templates:
//   - P2PK:     <pubkey> OP_CHECKSIG
//   - P2PKH:    OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG
//   - P2SH:     OP_HASH160 <20 bytes> OP_EQUAL
//   - Multisig: <m> <pubkey>... <n> OP_CHECKMULTISIG
//   - Data:     OP_RETURN <push>...
//
// Parsing is delegated to btcd's txscript tokenizer. Every function here is
// pure, so classifiers may be called concurrently from any number of
// transaction builders.
package script

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// Class identifies a standard locking script template
type Class int

const (
	Unknown Class = iota
	PublicKeyOut
	PublicKeyHashOut
	ScriptHashOut
	MultisigOut
	DataOut
)

// MaxDataOutSize is the largest data carrier script relayed by default
// (OP_RETURN plus 220 bytes of pushes and their opcodes).
const MaxDataOutSize = 223

var classNames = map[Class]string{
	Unknown:          "unknown",
	PublicKeyOut:     "pubkey",
	PublicKeyHashOut: "pubkeyhash",
	ScriptHashOut:    "scripthash",
	MultisigOut:      "multisig",
	DataOut:          "nulldata",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// ErrNotMatched is returned by accessors when the script is not of the
// template the accessor reads from.
var ErrNotMatched = errors.New("script does not match template")

// Classify returns the template a locking script matches. Scripts that do not
// parse classify as Unknown.
func Classify(s []byte) Class {
	if IsDataOut(s) {
		return DataOut
	}
	switch txscript.GetScriptClass(s) {
	case txscript.PubKeyTy:
		return PublicKeyOut
	case txscript.PubKeyHashTy:
		return PublicKeyHashOut
	case txscript.ScriptHashTy:
		return ScriptHashOut
	case txscript.MultiSigTy:
		return MultisigOut
	default:
		return Unknown
	}
}

func IsPublicKeyOut(s []byte) bool     { return Classify(s) == PublicKeyOut }
func IsPublicKeyHashOut(s []byte) bool { return Classify(s) == PublicKeyHashOut }
func IsScriptHashOut(s []byte) bool    { return Classify(s) == ScriptHashOut }
func IsMultisigOut(s []byte) bool      { return Classify(s) == MultisigOut }

// IsDataOut reports whether s is an OP_RETURN data carrier: OP_RETURN
// followed only by data pushes, within MaxDataOutSize.
func IsDataOut(s []byte) bool {
	if len(s) == 0 || s[0] != txscript.OP_RETURN || len(s) > MaxDataOutSize {
		return false
	}
	tok := txscript.MakeScriptTokenizer(0, s[1:])
	for tok.Next() {
		if tok.Opcode() > txscript.OP_16 {
			return false
		}
	}
	return tok.Err() == nil
}

// chunk is a single parsed opcode with its pushed data
type chunk struct {
	opcode byte
	data   []byte
}

func parse(s []byte) ([]chunk, error) {
	var chunks []chunk
	tok := txscript.MakeScriptTokenizer(0, s)
	for tok.Next() {
		chunks = append(chunks, chunk{opcode: tok.Opcode(), data: tok.Data()})
	}
	if err := tok.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// EndsWithCheckMultisig reports whether the last opcode of s is
// OP_CHECKMULTISIG or OP_CHECKMULTISIGVERIFY.
func EndsWithCheckMultisig(s []byte) bool {
	chunks, err := parse(s)
	if err != nil || len(chunks) == 0 {
		return false
	}
	op := chunks[len(chunks)-1].opcode
	return op == txscript.OP_CHECKMULTISIG || op == txscript.OP_CHECKMULTISIGVERIFY
}

// Validate returns an error if s cannot be tokenized
func Validate(s []byte) error {
	_, err := parse(s)
	return err
}

func isPush(c chunk) bool {
	return c.opcode <= txscript.OP_PUSHDATA4 && c.data != nil
}

func isTxSignature(b []byte) bool {
	// DER: 0x30 <len> ... plus one sighash type byte.
	return len(b) >= 9 && len(b) <= 73 && b[0] == 0x30
}

func isPublicKey(b []byte) bool {
	switch len(b) {
	case 33:
		return b[0] == 0x02 || b[0] == 0x03
	case 65:
		return b[0] == 0x04
	}
	return false
}

// IsPublicKeyIn reports whether s is a P2PK unlocking script: <sig>
func IsPublicKeyIn(s []byte) bool {
	chunks, err := parse(s)
	if err != nil || len(chunks) != 1 {
		return false
	}
	return isPush(chunks[0]) && isTxSignature(chunks[0].data)
}

// IsPublicKeyHashIn reports whether s is a P2PKH unlocking script: <sig> <pubkey>
func IsPublicKeyHashIn(s []byte) bool {
	chunks, err := parse(s)
	if err != nil || len(chunks) != 2 {
		return false
	}
	return isPush(chunks[0]) && isTxSignature(chunks[0].data) &&
		isPush(chunks[1]) && isPublicKey(chunks[1].data)
}

// PublicKeyHash returns the 20-byte hash locked by a P2PKH script
func PublicKeyHash(s []byte) ([]byte, error) {
	if !IsPublicKeyHashOut(s) {
		return nil, ErrNotMatched
	}
	return append([]byte(nil), s[3:23]...), nil
}

// PublicKey returns the key locked by a P2PK script
func PublicKey(s []byte) ([]byte, error) {
	if !IsPublicKeyOut(s) {
		return nil, ErrNotMatched
	}
	chunks, err := parse(s)
	if err != nil {
		return nil, err
	}
	return chunks[0].data, nil
}

// ScriptHash returns the 20-byte hash locked by a P2SH script
func ScriptHash(s []byte) ([]byte, error) {
	if !IsScriptHashOut(s) {
		return nil, ErrNotMatched
	}
	return append([]byte(nil), s[2:22]...), nil
}

// Multisig returns the threshold and public keys of a bare multisig script
func Multisig(s []byte) (int, [][]byte, error) {
	if !IsMultisigOut(s) {
		return 0, nil, ErrNotMatched
	}
	_, threshold, err := txscript.CalcMultiSigStats(s)
	if err != nil {
		return 0, nil, err
	}
	keys, err := txscript.PushedData(s)
	if err != nil {
		return 0, nil, err
	}
	return threshold, keys, nil
}

// PushedData returns every data push in s
func PushedData(s []byte) ([][]byte, error) {
	return txscript.PushedData(s)
}

// RemoveCodeSeparators returns s without its OP_CODESEPARATOR opcodes
func RemoveCodeSeparators(s []byte) ([]byte, error) {
	out := make([]byte, 0, len(s))
	tok := txscript.MakeScriptTokenizer(0, s)
	start := int32(0)
	for tok.Next() {
		end := tok.ByteIndex()
		if tok.Opcode() != txscript.OP_CODESEPARATOR {
			out = append(out, s[start:end]...)
		}
		start = end
	}
	if err := tok.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Disasm returns the human readable form of s
func Disasm(s []byte) string {
	str, err := txscript.DisasmString(s)
	if err != nil {
		return str + " [error]"
	}
	return str
}

// Equal compares two scripts byte for byte
func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// DecodeAddress parses a base58 address for the given network
func DecodeAddress(addr string, params *chaincfg.Params) (btcutil.Address, error) {
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if !decoded.IsForNet(params) {
		return nil, fmt.Errorf("address %q is not for network %s", addr, params.Name)
	}
	return decoded, nil
}

// FromAddress builds the locking script paying to addr
func FromAddress(addr btcutil.Address) ([]byte, error) {
	return txscript.PayToAddrScript(addr)
}

// ToAddress extracts the single address a standard locking script pays to
func ToAddress(s []byte, params *chaincfg.Params) (btcutil.Address, error) {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(s, params)
	if err != nil {
		return nil, err
	}
	if len(addrs) != 1 {
		return nil, ErrNotMatched
	}
	return addrs[0], nil
}
