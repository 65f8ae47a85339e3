package transaction

import (
	"bytes"

	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/script"
)

// Signature push (1 + 72) plus compressed public key push (1 + 33).
const publicKeyHashInputMaxSize = 73 + 34

// PublicKeyHashInput spends a pay-to-public-key-hash output.
type PublicKeyHashInput struct {
	*BaseInput
}

// NewPublicKeyHashInput creates a P2PKH input. The spent output must be known.
func NewPublicKeyHashInput(p InputParams) (*PublicKeyHashInput, error) {
	base, err := NewInput(p)
	if err != nil {
		return nil, err
	}
	if base.output == nil || !script.IsPublicKeyHashOut(base.output.script) {
		return nil, inputError(-1, ErrUnsupportedScript, "output is not pay-to-public-key-hash")
	}
	return &PublicKeyHashInput{BaseInput: base}, nil
}

func (in *PublicKeyHashInput) Kind() Kind { return KindPublicKeyHash }

// GetSignatures signs if HASH160 of the key's public key matches the output.
// hashData may carry that hash precomputed; nil computes it here.
func (in *PublicKeyHashInput) GetSignatures(tx *Transaction, key *crypto.PrivateKey, index int, sigtype SigHashType, hashData []byte) ([]*Signature, error) {
	if err := in.requireOutput(index); err != nil {
		return nil, err
	}
	if hashData == nil {
		hashData = crypto.Hash160(key.PublicKey().Bytes())
	}
	locked, err := script.PublicKeyHash(in.output.script)
	if err != nil {
		return nil, inputError(index, ErrUnsupportedScript, "output is not pay-to-public-key-hash")
	}
	if !bytes.Equal(hashData, locked) {
		return nil, nil
	}
	sig, err := in.signWith(tx, key, index, orDefault(sigtype), in.output.script)
	if err != nil {
		return nil, err
	}
	return []*Signature{sig}, nil
}

func (in *PublicKeyHashInput) AddSignature(tx *Transaction, sig *Signature) error {
	locked, err := script.PublicKeyHash(in.lockingScript())
	if err != nil || !bytes.Equal(locked, crypto.Hash160(sig.PublicKey.Bytes())) {
		return inputError(sig.InputIndex, ErrNoMatchingPublicKey, "signature key does not hash to the output")
	}
	ok, err := in.IsValidSignature(tx, sig)
	if err != nil {
		return err
	}
	if !ok {
		return inputError(sig.InputIndex, ErrInvalidSignature, "failed adding signature because it is invalid")
	}
	in.script = script.BuildPublicKeyHashIn(sig.TxFormat(), sig.PublicKey.Bytes())
	return nil
}

func (in *PublicKeyHashInput) ClearSignatures() error {
	in.script = script.Empty()
	return nil
}

func (in *PublicKeyHashInput) IsFullySigned() (bool, error) {
	return script.IsPublicKeyHashIn(in.script), nil
}

func (in *PublicKeyHashInput) IsValidSignature(tx *Transaction, sig *Signature) (bool, error) {
	return in.verifyWith(tx, sig, in.lockingScript())
}

func (in *PublicKeyHashInput) EstimateSize() int { return publicKeyHashInputMaxSize }

func (in *PublicKeyHashInput) Clone() Input {
	return &PublicKeyHashInput{BaseInput: in.cloneBase()}
}
