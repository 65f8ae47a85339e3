package transaction

import (
	"encoding/hex"

	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/script"
)

// ScriptHashInput spends a P2SH output with an arbitrary redeem script that
// any single one of its public keys can satisfy.
type ScriptHashInput struct {
	*BaseInput
	*signatureSlots

	redeemScript []byte
}

// NewScriptHashInput creates a P2SH input for redeemScript, which must hash
// to the spent output. pubkeys lists the keys allowed to sign.
func NewScriptHashInput(p InputParams, pubkeys []*crypto.PublicKey, redeemScript []byte) (*ScriptHashInput, error) {
	base, err := NewInput(p)
	if err != nil {
		return nil, err
	}
	if base.output == nil {
		return nil, inputError(-1, ErrMissingPreviousOutput, "script hash input requires the spent output")
	}
	if !script.Equal(script.BuildScriptHashOut(redeemScript), base.output.script) {
		return nil, inputError(-1, ErrInvalidPublicKeys, "provided redeemScript doesn't hash to the provided output")
	}
	return &ScriptHashInput{
		BaseInput:      base,
		signatureSlots: newSignatureSlots(pubkeys, 1),
		redeemScript:   cloneBytes(redeemScript),
	}, nil
}

func (in *ScriptHashInput) Kind() Kind { return KindScriptHash }

func (in *ScriptHashInput) RedeemScript() []byte {
	return in.redeemScript
}

func (in *ScriptHashInput) GetSignatures(tx *Transaction, key *crypto.PrivateKey, index int, sigtype SigHashType, _ []byte) ([]*Signature, error) {
	return in.sign(in.BaseInput, tx, key, index, sigtype, in.redeemScript)
}

func (in *ScriptHashInput) AddSignature(tx *Transaction, sig *Signature) error {
	if err := in.add(in.BaseInput, tx, sig, in.redeemScript); err != nil {
		return err
	}
	return in.updateScript()
}

func (in *ScriptHashInput) updateScript() error {
	s, err := script.BuildP2SHIn(in.txSignatures(), in.redeemScript)
	if err != nil {
		return inputError(-1, ErrInvalidArgument, "building unlocking script: %v", err)
	}
	in.script = s
	return nil
}

func (in *ScriptHashInput) ClearSignatures() error {
	in.clear()
	return in.updateScript()
}

func (in *ScriptHashInput) IsFullySigned() (bool, error) {
	return in.signatureSlots.IsFullySigned()
}

func (in *ScriptHashInput) IsValidSignature(tx *Transaction, sig *Signature) (bool, error) {
	return in.verifyWith(tx, sig, in.redeemScript)
}

func (in *ScriptHashInput) EstimateSize() int {
	return scriptHashOpcodesSize + scriptHashSignatureSize + len(in.publicKeys)*scriptHashPubKeySize
}

func (in *ScriptHashInput) Clone() Input {
	return &ScriptHashInput{
		BaseInput:      in.cloneBase(),
		signatureSlots: in.signatureSlots.clone(),
		redeemScript:   cloneBytes(in.redeemScript),
	}
}

func (in *ScriptHashInput) ToObject() *InputObject {
	obj := in.BaseInput.ToObject()
	in.fillObject(obj)
	obj.RedeemScript = hex.EncodeToString(in.redeemScript)
	return obj
}
