package transaction

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/script"
)

// UnspentOutput identifies a spendable output and what it locks.
type UnspentOutput struct {
	TxID        chainhash.Hash // wire byte order
	OutputIndex uint32
	Script      []byte
	Satoshis    int64
}

// NewUnspentOutput parses a display hex txid and hex locking script
func NewUnspentOutput(txid string, outputIndex uint32, scriptHex string, satoshis int64) (UnspentOutput, error) {
	h, err := chainhash.NewHashFromStr(txid)
	if err != nil || len(txid) != 2*chainhash.HashSize {
		return UnspentOutput{}, &Error{Code: ErrInvalidArgument, Message: "invalid txid " + txid, Cause: err}
	}
	s, err := hex.DecodeString(scriptHex)
	if err != nil {
		return UnspentOutput{}, &Error{Code: ErrInvalidArgument, Message: "invalid script hex", Cause: err}
	}
	if satoshis < 0 {
		return UnspentOutput{}, newError(ErrInvalidArgument, "satoshis must be a natural number: %d", satoshis)
	}
	return UnspentOutput{TxID: *h, OutputIndex: outputIndex, Script: s, Satoshis: satoshis}, nil
}

func (u UnspentOutput) params() (InputParams, error) {
	out, err := NewOutput(u.Satoshis, u.Script)
	if err != nil {
		return InputParams{}, err
	}
	return InputParams{
		PrevTxID:    u.TxID,
		OutputIndex: u.OutputIndex,
		Script:      script.Empty(),
		Output:      out,
	}, nil
}

// input builds the single key input matching the locking script
func (u UnspentOutput) input() (Input, error) {
	p, err := u.params()
	if err != nil {
		return nil, err
	}
	switch script.Classify(u.Script) {
	case script.PublicKeyHashOut:
		return NewPublicKeyHashInput(p)
	case script.PublicKeyOut:
		return NewPublicKeyInput(p)
	default:
		return NewInput(p)
	}
}

func (u UnspentOutput) multisigInput(pubkeys []*crypto.PublicKey, threshold int) (Input, error) {
	p, err := u.params()
	if err != nil {
		return nil, err
	}
	if script.IsScriptHashOut(u.Script) {
		return NewMultiSigScriptHashInput(p, pubkeys, threshold)
	}
	return NewMultiSigInput(p, pubkeys, threshold)
}

// AttachOutput supplies the output spent by input index and replaces the
// input with the typed input for its locking script. pubkeys and threshold
// are needed for multisig outputs. Signatures already present in the
// unlocking script are kept: multisig signatures are matched to their keys
// by verification, and those that verify against no key are dropped.
func (tx *Transaction) AttachOutput(index int, out *Output, pubkeys []*crypto.PublicKey, threshold int) error {
	if index < 0 || index >= len(tx.inputs) {
		return newError(ErrInvalidIndex, "invalid index: %d is not between 0, %d", index, len(tx.inputs))
	}
	old := tx.inputs[index].Base()
	seq := old.SequenceNumber
	p := InputParams{
		PrevTxID:       old.PrevTxID,
		OutputIndex:    old.OutputIndex,
		SequenceNumber: &seq,
		Script:         old.script,
		Output:         out,
	}

	var (
		in  Input
		err error
	)
	switch script.Classify(out.script) {
	case script.PublicKeyHashOut:
		in, err = NewPublicKeyHashInput(p)
	case script.PublicKeyOut:
		in, err = NewPublicKeyInput(p)
	case script.MultisigOut:
		var ms *MultiSigInput
		if ms, err = NewMultiSigInput(p, pubkeys, threshold); err == nil {
			err = tx.adoptSignatures(index, ms.BaseInput, ms.signatureSlots, ms.lockingScript(), false)
			if err == nil && len(old.script) > 0 {
				ms.updateScript()
			}
			in = ms
		}
	case script.ScriptHashOut:
		var mssh *MultiSigScriptHashInput
		if mssh, err = NewMultiSigScriptHashInput(p, pubkeys, threshold); err == nil {
			err = tx.adoptSignatures(index, mssh.BaseInput, mssh.signatureSlots, mssh.redeemScript, true)
			if err == nil && len(old.script) > 0 {
				err = mssh.updateScript()
			}
			in = mssh
		}
	default:
		err = inputError(index, ErrUnsupportedScript, "unsupported output script: %s", script.Disasm(out.script))
	}
	if err != nil {
		return err
	}
	in.Base().SetWitnesses(old.witnesses)
	tx.inputs[index] = in
	return nil
}

// adoptSignatures fills slots from the signatures pushed by the current
// unlocking script. For P2SH spends the trailing redeem script push is
// skipped.
func (tx *Transaction) adoptSignatures(index int, base *BaseInput, slots *signatureSlots, subscript []byte, p2sh bool) error {
	if len(base.script) == 0 {
		return nil
	}
	pushes, err := script.PushedData(base.script)
	if err != nil {
		return inputError(index, ErrInvalidArgument, "unlocking script does not parse: %v", err)
	}
	if p2sh && len(pushes) > 0 {
		pushes = pushes[:len(pushes)-1]
	}
	return slots.restore(NormalizeSignatures(tx, base, index, pushes, slots.publicKeys, subscript))
}
