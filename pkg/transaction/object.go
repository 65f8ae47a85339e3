package transaction

import (
	"encoding/hex"
	"encoding/json"

	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/script"
)

// Object is the JSON form of a Transaction. Unlike the wire encoding it
// carries spent outputs, partial multisig signatures, and the change and
// fee settings, so a transaction under construction can be handed between
// parties.
type Object struct {
	Hash         string          `json:"hash"`
	Version      int32           `json:"version"`
	Inputs       []*InputObject  `json:"inputs"`
	Outputs      []*OutputObject `json:"outputs"`
	LockTime     uint32          `json:"nLockTime"`
	ChangeScript string          `json:"changeScript,omitempty"`
	ChangeIndex  *int            `json:"changeIndex,omitempty"`
	Fee          *int64          `json:"fee,omitempty"`
}

// ToObject returns the JSON form
func (tx *Transaction) ToObject() *Object {
	obj := &Object{
		Hash:     tx.ID(),
		Version:  tx.Version,
		Inputs:   make([]*InputObject, len(tx.inputs)),
		Outputs:  make([]*OutputObject, len(tx.outputs)),
		LockTime: tx.LockTime,
	}
	for i, in := range tx.inputs {
		obj.Inputs[i] = in.ToObject()
	}
	for i, out := range tx.outputs {
		obj.Outputs[i] = out.ToObject()
	}
	if tx.changeScript != nil {
		obj.ChangeScript = hex.EncodeToString(tx.changeScript)
	}
	if tx.changeIndex >= 0 {
		idx := tx.changeIndex
		obj.ChangeIndex = &idx
	}
	if tx.fee != nil {
		fee := *tx.fee
		obj.Fee = &fee
	}
	return obj
}

// FromObject rebuilds a transaction from its JSON form. Inputs with a spent
// output come back typed, the others generic.
func FromObject(obj *Object) (*Transaction, error) {
	tx := New()
	for i, iobj := range obj.Inputs {
		in, err := inputFromObject(iobj)
		if err != nil {
			if e, ok := err.(*InputError); ok {
				e.InputIndex = i
			}
			return nil, err
		}
		tx.inputs = append(tx.inputs, in)
	}
	for _, oo := range obj.Outputs {
		out, err := OutputFromObject(oo)
		if err != nil {
			return nil, err
		}
		tx.outputs = append(tx.outputs, out)
	}

	if obj.ChangeScript != "" {
		s, err := hex.DecodeString(obj.ChangeScript)
		if err != nil {
			return nil, &Error{Code: ErrInvalidArgument, Message: "invalid change script hex", Cause: err}
		}
		tx.changeScript = s
	}
	if obj.ChangeIndex != nil {
		tx.changeIndex = *obj.ChangeIndex
	}
	if obj.Fee != nil {
		fee := *obj.Fee
		tx.fee = &fee
	}
	tx.LockTime = obj.LockTime
	tx.Version = obj.Version

	if err := tx.checkRestoredSignatures(); err != nil {
		return nil, err
	}
	if err := tx.checkConsistency(obj.Hash); err != nil {
		return nil, err
	}
	return tx, nil
}

// checkRestoredSignatures verifies the signature slots carried by the object
// form against the rebuilt transaction and regenerates the unlocking scripts
// from them.
func (tx *Transaction) checkRestoredSignatures() error {
	for i, in := range tx.inputs {
		var slots *signatureSlots
		var rebuild func() error
		switch v := in.(type) {
		case *MultiSigInput:
			slots, rebuild = v.signatureSlots, func() error { v.updateScript(); return nil }
		case *MultiSigScriptHashInput:
			slots, rebuild = v.signatureSlots, v.updateScript
		case *ScriptHashInput:
			slots, rebuild = v.signatureSlots, v.updateScript
		default:
			continue
		}
		b := in.Base()
		for _, sig := range slots.filled() {
			if sig.InputIndex != i || sig.PrevTxID != b.PrevTxID || sig.OutputIndex != b.OutputIndex {
				return inputError(i, ErrInconsistentObject, "signature of %s does not belong to input %d", sig.PublicKey, i)
			}
			valid, err := in.IsValidSignature(tx, sig)
			if err != nil {
				return err
			}
			if !valid {
				return inputError(i, ErrInconsistentObject, "signature of %s is invalid", sig.PublicKey)
			}
		}
		if err := rebuild(); err != nil {
			return err
		}
	}
	return nil
}

func (tx *Transaction) checkConsistency(hash string) error {
	if tx.changeIndex >= 0 {
		if tx.changeScript == nil {
			return newError(ErrInconsistentObject, "change script missing")
		}
		if tx.changeIndex >= len(tx.outputs) {
			return newError(ErrInconsistentObject, "change output missing")
		}
		if !script.Equal(tx.outputs[tx.changeIndex].script, tx.changeScript) {
			return newError(ErrInconsistentObject, "script in argument does not match script in transaction")
		}
	}
	if hash != "" && hash != tx.ID() {
		return newError(ErrInconsistentObject, "hash in argument does not match transaction hash")
	}
	return nil
}

func inputFromObject(obj *InputObject) (Input, error) {
	p, err := obj.params()
	if err != nil {
		return nil, err
	}
	witnesses, err := obj.witnesses()
	if err != nil {
		return nil, err
	}

	var in Input
	if p.Output == nil {
		in, err = NewInput(p)
	} else {
		in, err = typedInputFromObject(obj, p)
	}
	if err != nil {
		return nil, err
	}
	if len(witnesses) > 0 {
		in.Base().SetWitnesses(witnesses)
	}
	return in, nil
}

func typedInputFromObject(obj *InputObject, p InputParams) (Input, error) {
	locking := p.Output.script
	switch {
	case script.IsPublicKeyHashOut(locking):
		return NewPublicKeyHashInput(p)
	case script.IsScriptHashOut(locking) && obj.RedeemScript != "":
		redeem, err := hex.DecodeString(obj.RedeemScript)
		if err != nil {
			return nil, &Error{Code: ErrInvalidArgument, Message: "invalid redeem script hex", Cause: err}
		}
		keys, err := parsePublicKeys(obj.PublicKeys)
		if err != nil {
			return nil, err
		}
		in, err := NewScriptHashInput(p, keys, redeem)
		if err != nil {
			return nil, err
		}
		return in, restoreSignatures(in.signatureSlots, obj.Signatures)
	case script.IsScriptHashOut(locking) && len(obj.PublicKeys) > 0 && obj.Threshold > 0:
		keys, err := parsePublicKeys(obj.PublicKeys)
		if err != nil {
			return nil, err
		}
		in, err := NewMultiSigScriptHashInput(p, keys, obj.Threshold)
		if err != nil {
			return nil, err
		}
		return in, restoreSignatures(in.signatureSlots, obj.Signatures)
	case script.IsMultisigOut(locking) && len(obj.PublicKeys) > 0 && obj.Threshold > 0:
		keys, err := parsePublicKeys(obj.PublicKeys)
		if err != nil {
			return nil, err
		}
		in, err := NewMultiSigInput(p, keys, obj.Threshold)
		if err != nil {
			return nil, err
		}
		return in, restoreSignatures(in.signatureSlots, obj.Signatures)
	case script.IsPublicKeyOut(locking):
		return NewPublicKeyInput(p)
	}
	return nil, inputError(-1, ErrUnsupportedScript, "unsupported output script %s", hex.EncodeToString(locking))
}

func parsePublicKeys(hexKeys []string) ([]*crypto.PublicKey, error) {
	keys := make([]*crypto.PublicKey, len(hexKeys))
	for i, h := range hexKeys {
		k, err := crypto.ParsePublicKeyHex(h)
		if err != nil {
			return nil, &Error{Code: ErrInvalidPublicKeys, Message: "invalid public key " + h, Cause: err}
		}
		keys[i] = k
	}
	return keys, nil
}

func restoreSignatures(slots *signatureSlots, objs []*SignatureObject) error {
	if len(objs) == 0 {
		return nil
	}
	sigs := make([]*Signature, len(objs))
	for i, so := range objs {
		if so == nil {
			continue
		}
		sig, err := SignatureFromObject(so)
		if err != nil {
			return err
		}
		sigs[i] = sig
	}
	return slots.restore(sigs)
}

// MarshalJSON encodes the object form
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(tx.ToObject())
}

// UnmarshalJSON decodes the object form
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	parsed, err := FromObject(&obj)
	if err != nil {
		return err
	}
	*tx = *parsed
	return nil
}
