package transaction

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/suffix-labs/bchtx/pkg/crypto"
)

// Signature is a signature over one input, as produced by GetSignatures and
// consumed by an input's AddSignature.
type Signature struct {
	PublicKey   *crypto.PublicKey
	PrevTxID    chainhash.Hash
	OutputIndex uint32
	InputIndex  int
	Signature   []byte // DER encoding, without the sighash type byte
	SigType     SigHashType
}

// TxFormat returns the signature as it appears in an unlocking script:
// DER followed by the sighash type byte.
func (s *Signature) TxFormat() []byte {
	out := make([]byte, 0, len(s.Signature)+1)
	out = append(out, s.Signature...)
	return append(out, byte(s.SigType))
}

// ParseTxSignature splits an unlocking script signature into its DER part
// and sighash type.
func ParseTxSignature(b []byte) ([]byte, SigHashType, error) {
	if len(b) < 2 {
		return nil, 0, fmt.Errorf("signature too short: %d bytes", len(b))
	}
	der := b[:len(b)-1]
	if !crypto.IsDERSignature(der) {
		return nil, 0, fmt.Errorf("signature is not strict DER")
	}
	return append([]byte(nil), der...), SigHashType(b[len(b)-1]), nil
}

// SignatureObject is the JSON form of a Signature
type SignatureObject struct {
	PublicKey   string      `json:"publicKey"`
	PrevTxID    string      `json:"prevTxId"`
	OutputIndex uint32      `json:"outputIndex"`
	InputIndex  int         `json:"inputIndex"`
	Signature   string      `json:"signature"`
	SigType     SigHashType `json:"sigtype"`
}

// ToObject returns the JSON form
func (s *Signature) ToObject() *SignatureObject {
	return &SignatureObject{
		PublicKey:   s.PublicKey.String(),
		PrevTxID:    s.PrevTxID.String(),
		OutputIndex: s.OutputIndex,
		InputIndex:  s.InputIndex,
		Signature:   hex.EncodeToString(s.Signature),
		SigType:     s.SigType,
	}
}

// SignatureFromObject parses the JSON form
func SignatureFromObject(obj *SignatureObject) (*Signature, error) {
	pub, err := crypto.ParsePublicKeyHex(obj.PublicKey)
	if err != nil {
		return nil, &Error{Code: ErrInvalidArgument, Message: "invalid signature public key", Cause: err}
	}
	prev, err := chainhash.NewHashFromStr(obj.PrevTxID)
	if err != nil {
		return nil, &Error{Code: ErrInvalidArgument, Message: "invalid signature prevTxId", Cause: err}
	}
	der, err := hex.DecodeString(obj.Signature)
	if err != nil {
		return nil, &Error{Code: ErrInvalidArgument, Message: "invalid signature hex", Cause: err}
	}
	return &Signature{
		PublicKey:   pub,
		PrevTxID:    *prev,
		OutputIndex: obj.OutputIndex,
		InputIndex:  obj.InputIndex,
		Signature:   der,
		SigType:     obj.SigType,
	}, nil
}
