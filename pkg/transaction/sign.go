package transaction

import (
	klog "github.com/suffix-labs/bchtx/internal/log"
	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/script"
)

// GetSignatures returns every signature key can produce over the inputs of
// tx. Inputs key cannot satisfy contribute nothing; a generic input fails
// with ErrAbstractMethod. A zero sigtype selects ALL|FORKID.
func (tx *Transaction) GetSignatures(key *crypto.PrivateKey, sigtype SigHashType) ([]*Signature, error) {
	sigtype = orDefault(sigtype)
	hashData := crypto.Hash160(key.PublicKey().Bytes())

	var out []*Signature
	for i, in := range tx.inputs {
		sigs, err := in.GetSignatures(tx, key, i, sigtype, hashData)
		if err != nil {
			return nil, err
		}
		out = append(out, sigs...)
	}
	return out, nil
}

// ApplySignature adds sig to the input it was made for
func (tx *Transaction) ApplySignature(sig *Signature) error {
	if sig.InputIndex < 0 || sig.InputIndex >= len(tx.inputs) {
		return newError(ErrInvalidIndex, "invalid index: %d is not between 0, %d", sig.InputIndex, len(tx.inputs))
	}
	return tx.inputs[sig.InputIndex].AddSignature(tx, sig)
}

// Sign signs every input each key can satisfy. All spent outputs must be
// attached. Signing stops at the first error; signatures already applied
// are kept.
func (tx *Transaction) Sign(keys []*crypto.PrivateKey, sigtype SigHashType) error {
	if !tx.HasAllUtxoInfo() {
		return newError(ErrMissingPreviousOutput, "cannot sign because an input is not defined")
	}
	for _, key := range keys {
		sigs, err := tx.GetSignatures(key, sigtype)
		if err != nil {
			return err
		}
		for _, sig := range sigs {
			if err := tx.ApplySignature(sig); err != nil {
				return err
			}
		}
		klog.Signer.Debug().
			Str("pubkey", key.PublicKey().String()).
			Int("signatures", len(sigs)).
			Msg("Applied signatures")
	}
	return nil
}

// IsFullySigned reports whether every input is fully signed. A generic
// input makes the question unanswerable and returns ErrUnableToVerify.
func (tx *Transaction) IsFullySigned() (bool, error) {
	for i, in := range tx.inputs {
		if in.Kind() == KindGeneric {
			return false, unableToVerify(i)
		}
	}
	for _, in := range tx.inputs {
		ok, err := in.IsFullySigned()
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// IsValidSignature checks sig against the input it names
func (tx *Transaction) IsValidSignature(sig *Signature) (bool, error) {
	if sig.InputIndex < 0 || sig.InputIndex >= len(tx.inputs) {
		return false, newError(ErrInvalidIndex, "invalid index: %d is not between 0, %d", sig.InputIndex, len(tx.inputs))
	}
	in := tx.inputs[sig.InputIndex]
	if in.Kind() == KindGeneric {
		return false, unableToVerify(sig.InputIndex)
	}
	return in.IsValidSignature(tx, sig)
}

func unableToVerify(index int) *InputError {
	return inputError(index, ErrUnableToVerify,
		"unrecognized script kind, or not enough information to execute script. "+
			"This usually happens when creating a transaction from a serialized transaction")
}

// InputSignatures returns the signatures input index currently carries.
// Single key inputs are read back from their unlocking script; multisig
// inputs report their filled key slots.
func (tx *Transaction) InputSignatures(index int) ([]*Signature, error) {
	if index < 0 || index >= len(tx.inputs) {
		return nil, newError(ErrInvalidIndex, "invalid index: %d is not between 0, %d", index, len(tx.inputs))
	}
	switch in := tx.inputs[index].(type) {
	case *PublicKeyHashInput:
		if !script.IsPublicKeyHashIn(in.script) {
			return nil, nil
		}
		pushes, _ := script.PushedData(in.script)
		pub, err := crypto.ParsePublicKey(pushes[1])
		if err != nil {
			return nil, inputError(index, ErrInvalidArgument, "unlocking script key: %v", err)
		}
		return scriptSignature(in.BaseInput, index, pushes[0], pub)
	case *PublicKeyInput:
		if !script.IsPublicKeyIn(in.script) {
			return nil, nil
		}
		pushes, _ := script.PushedData(in.script)
		locked, err := script.PublicKey(in.lockingScript())
		if err != nil {
			return nil, inputError(index, ErrUnsupportedScript, "output is not pay-to-public-key")
		}
		pub, err := crypto.ParsePublicKey(locked)
		if err != nil {
			return nil, inputError(index, ErrInvalidArgument, "locked key: %v", err)
		}
		return scriptSignature(in.BaseInput, index, pushes[0], pub)
	case *MultiSigInput:
		return in.filled(), nil
	case *MultiSigScriptHashInput:
		return in.filled(), nil
	case *ScriptHashInput:
		return in.filled(), nil
	}
	return nil, unableToVerify(index)
}

func scriptSignature(in *BaseInput, index int, raw []byte, pub *crypto.PublicKey) ([]*Signature, error) {
	der, sigtype, err := ParseTxSignature(raw)
	if err != nil {
		return nil, inputError(index, ErrInvalidSignature, "unlocking script signature: %v", err)
	}
	return []*Signature{{
		PublicKey:   pub,
		PrevTxID:    in.PrevTxID,
		OutputIndex: in.OutputIndex,
		InputIndex:  index,
		Signature:   der,
		SigType:     sigtype,
	}}, nil
}
