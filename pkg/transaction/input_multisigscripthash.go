package transaction

import (
	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/script"
)

const (
	scriptHashOpcodesSize   = 7  // OP_0, redeem script push prefix (<=3), m, n, OP_CHECKMULTISIG
	scriptHashSignatureSize = 74 // push (1) + DER (<=72) + sighash (1)
	scriptHashPubKeySize    = 34 // push (1) + compressed key (33)
)

// MultiSigScriptHashInput spends a P2SH output whose redeem script is an
// m-of-n multisig.
type MultiSigScriptHashInput struct {
	*BaseInput
	*signatureSlots

	redeemScript []byte
}

// NewMultiSigScriptHashInput creates a P2SH multisig input. The redeem
// script built from the sorted keys must hash to the spent output.
func NewMultiSigScriptHashInput(p InputParams, pubkeys []*crypto.PublicKey, threshold int) (*MultiSigScriptHashInput, error) {
	base, err := NewInput(p)
	if err != nil {
		return nil, err
	}
	if base.output == nil {
		return nil, inputError(-1, ErrMissingPreviousOutput, "multisig input requires the spent output")
	}
	slots := newSignatureSlots(pubkeys, threshold)
	redeem, err := script.BuildMultisigOut(slots.keyBytes(), threshold)
	if err != nil || !script.Equal(script.BuildScriptHashOut(redeem), base.output.script) {
		return nil, inputError(-1, ErrInvalidPublicKeys, "provided public keys don't hash to the provided output")
	}
	return &MultiSigScriptHashInput{BaseInput: base, signatureSlots: slots, redeemScript: redeem}, nil
}

func (in *MultiSigScriptHashInput) Kind() Kind { return KindMultiSigScriptHash }

// RedeemScript returns the multisig script committed to by the output
func (in *MultiSigScriptHashInput) RedeemScript() []byte {
	return in.redeemScript
}

func (in *MultiSigScriptHashInput) GetSignatures(tx *Transaction, key *crypto.PrivateKey, index int, sigtype SigHashType, _ []byte) ([]*Signature, error) {
	return in.sign(in.BaseInput, tx, key, index, sigtype, in.redeemScript)
}

func (in *MultiSigScriptHashInput) AddSignature(tx *Transaction, sig *Signature) error {
	if err := in.add(in.BaseInput, tx, sig, in.redeemScript); err != nil {
		return err
	}
	return in.updateScript()
}

func (in *MultiSigScriptHashInput) updateScript() error {
	s, err := script.BuildP2SHMultisigIn(in.txSignatures(), in.redeemScript)
	if err != nil {
		return inputError(-1, ErrInvalidArgument, "building unlocking script: %v", err)
	}
	in.script = s
	return nil
}

func (in *MultiSigScriptHashInput) ClearSignatures() error {
	in.clear()
	return in.updateScript()
}

func (in *MultiSigScriptHashInput) IsFullySigned() (bool, error) {
	return in.signatureSlots.IsFullySigned()
}

func (in *MultiSigScriptHashInput) IsValidSignature(tx *Transaction, sig *Signature) (bool, error) {
	return in.verifyWith(tx, sig, in.redeemScript)
}

func (in *MultiSigScriptHashInput) EstimateSize() int {
	return scriptHashOpcodesSize +
		in.threshold*scriptHashSignatureSize +
		len(in.publicKeys)*scriptHashPubKeySize
}

func (in *MultiSigScriptHashInput) Clone() Input {
	return &MultiSigScriptHashInput{
		BaseInput:      in.cloneBase(),
		signatureSlots: in.signatureSlots.clone(),
		redeemScript:   cloneBytes(in.redeemScript),
	}
}

func (in *MultiSigScriptHashInput) ToObject() *InputObject {
	obj := in.BaseInput.ToObject()
	in.fillObject(obj)
	return obj
}
