package transaction

import (
	"bytes"

	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/script"
)

// Unlocking script size of a P2PK spend: push opcode plus a 72 byte
// signature with its sighash byte.
const publicKeyInputMaxSize = 73

// PublicKeyInput spends a pay-to-public-key output.
type PublicKeyInput struct {
	*BaseInput
}

// NewPublicKeyInput creates a P2PK input. The spent output must be known.
func NewPublicKeyInput(p InputParams) (*PublicKeyInput, error) {
	base, err := NewInput(p)
	if err != nil {
		return nil, err
	}
	if base.output == nil || !script.IsPublicKeyOut(base.output.script) {
		return nil, inputError(-1, ErrUnsupportedScript, "output is not pay-to-public-key")
	}
	return &PublicKeyInput{BaseInput: base}, nil
}

func (in *PublicKeyInput) Kind() Kind { return KindPublicKey }

func (in *PublicKeyInput) GetSignatures(tx *Transaction, key *crypto.PrivateKey, index int, sigtype SigHashType, _ []byte) ([]*Signature, error) {
	if err := in.requireOutput(index); err != nil {
		return nil, err
	}
	locked, err := script.PublicKey(in.output.script)
	if err != nil {
		return nil, inputError(index, ErrUnsupportedScript, "output is not pay-to-public-key")
	}
	if !bytes.Equal(locked, key.PublicKey().Bytes()) {
		return nil, nil
	}
	sig, err := in.signWith(tx, key, index, orDefault(sigtype), in.output.script)
	if err != nil {
		return nil, err
	}
	return []*Signature{sig}, nil
}

func (in *PublicKeyInput) AddSignature(tx *Transaction, sig *Signature) error {
	if locked, err := script.PublicKey(in.lockingScript()); err != nil || !bytes.Equal(locked, sig.PublicKey.Bytes()) {
		return inputError(sig.InputIndex, ErrNoMatchingPublicKey, "signature key is not locked by the output")
	}
	ok, err := in.IsValidSignature(tx, sig)
	if err != nil {
		return err
	}
	if !ok {
		return inputError(sig.InputIndex, ErrInvalidSignature, "signature invalid")
	}
	in.script = script.BuildPublicKeyIn(sig.TxFormat())
	return nil
}

func (in *PublicKeyInput) ClearSignatures() error {
	in.script = script.Empty()
	return nil
}

func (in *PublicKeyInput) IsFullySigned() (bool, error) {
	return script.IsPublicKeyIn(in.script), nil
}

func (in *PublicKeyInput) IsValidSignature(tx *Transaction, sig *Signature) (bool, error) {
	return in.verifyWith(tx, sig, in.lockingScript())
}

func (in *PublicKeyInput) EstimateSize() int { return publicKeyInputMaxSize }

func (in *PublicKeyInput) Clone() Input {
	return &PublicKeyInput{BaseInput: in.cloneBase()}
}
