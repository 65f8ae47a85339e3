package transaction

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/script"
)

// Transaction is a mutable transaction under construction or decoded
// from the wire.
type Transaction struct {
	Version  int32
	LockTime uint32

	inputs  []Input
	outputs []*Output

	fee          *int64 // explicit fee, nil when estimated
	feePerKb     int64  // 0 selects FeePerKb
	changeScript []byte
	changeIndex  int // -1 when there is no change output
}

// New returns an empty transaction with the current version
func New() *Transaction {
	return &Transaction{Version: CurrentVersion, changeIndex: -1}
}

// Inputs returns the inputs in order. The slice is a copy; the inputs
// themselves are shared.
func (tx *Transaction) Inputs() []Input {
	return append([]Input(nil), tx.inputs...)
}

// Outputs returns the outputs in order
func (tx *Transaction) Outputs() []*Output {
	return append([]*Output(nil), tx.outputs...)
}

// Input returns input i, nil if out of range
func (tx *Transaction) Input(i int) Input {
	if i < 0 || i >= len(tx.inputs) {
		return nil
	}
	return tx.inputs[i]
}

// Output returns output i, nil if out of range
func (tx *Transaction) Output(i int) *Output {
	if i < 0 || i >= len(tx.outputs) {
		return nil
	}
	return tx.outputs[i]
}

// mutate runs fn and rolls the transaction back to its prior state if fn
// fails. Input values obtained before a failed call are replaced.
func (tx *Transaction) mutate(fn func() error) error {
	snapshot := tx.Clone()
	if err := fn(); err != nil {
		*tx = *snapshot
		return err
	}
	return nil
}

// canClearSignatures fails if some input cannot reset its signature state
func (tx *Transaction) canClearSignatures() error {
	for i, in := range tx.inputs {
		if in.Kind() == KindGeneric {
			return inputError(i, ErrAbstractMethod,
				"input %d has an unrecognized spend type and cannot clear signatures", i)
		}
	}
	return nil
}

func (tx *Transaction) clearSignatures() error {
	for _, in := range tx.inputs {
		if err := in.ClearSignatures(); err != nil {
			return err
		}
	}
	return nil
}

// resetSignatures clears every typed input. Generic inputs keep their
// unlocking script since their signature state is unknown.
func (tx *Transaction) resetSignatures() error {
	for _, in := range tx.inputs {
		if in.Kind() == KindGeneric {
			continue
		}
		if err := in.ClearSignatures(); err != nil {
			return err
		}
	}
	return nil
}

func (tx *Transaction) hasInput(txid chainhash.Hash, index uint32) bool {
	for _, in := range tx.inputs {
		b := in.Base()
		if b.PrevTxID == txid && b.OutputIndex == index {
			return true
		}
	}
	return false
}

// From adds one input per unspent output. P2PKH and P2PK outputs become
// typed inputs, anything else a generic input. Outputs already spent by an
// input of this transaction are skipped.
func (tx *Transaction) From(utxos ...UnspentOutput) error {
	return tx.mutate(func() error {
		for _, u := range utxos {
			if tx.hasInput(u.TxID, u.OutputIndex) {
				continue
			}
			in, err := u.input()
			if err != nil {
				return err
			}
			if err := tx.uncheckedAddInput(in); err != nil {
				return err
			}
		}
		return nil
	})
}

// FromMultisig adds threshold-of-pubkeys inputs spending utxos. P2SH outputs
// become MultiSigScriptHash inputs, bare multisig outputs MultiSig inputs.
func (tx *Transaction) FromMultisig(utxos []UnspentOutput, pubkeys []*crypto.PublicKey, threshold int) error {
	if threshold < 1 || threshold > len(pubkeys) {
		return newError(ErrInvalidArgument,
			"number of required signatures must be between 1 and the number of public keys")
	}
	return tx.mutate(func() error {
		for _, u := range utxos {
			if tx.hasInput(u.TxID, u.OutputIndex) {
				continue
			}
			in, err := u.multisigInput(pubkeys, threshold)
			if err != nil {
				return err
			}
			if err := tx.uncheckedAddInput(in); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddInput appends in, which must carry its spent output
func (tx *Transaction) AddInput(in Input) error {
	if in.Base().output == nil {
		return newError(ErrNeedMoreInfo, "need information about the UTXO script and satoshis")
	}
	return tx.UncheckedAddInput(in)
}

// AddInputWithOutput attaches the spent output to in, if it has none, and
// appends it.
func (tx *Transaction) AddInputWithOutput(in Input, lockingScript []byte, satoshis int64) error {
	if in.Base().output == nil {
		out, err := NewOutput(satoshis, lockingScript)
		if err != nil {
			return err
		}
		in.Base().output = out
	}
	return tx.UncheckedAddInput(in)
}

// UncheckedAddInput appends in whether or not its spent output is known
func (tx *Transaction) UncheckedAddInput(in Input) error {
	return tx.mutate(func() error { return tx.uncheckedAddInput(in) })
}

func (tx *Transaction) uncheckedAddInput(in Input) error {
	tx.inputs = append(tx.inputs, in)
	return tx.updateChangeOutput()
}

// HasAllUtxoInfo reports whether every input carries its spent output
func (tx *Transaction) HasAllUtxoInfo() bool {
	for _, in := range tx.inputs {
		if in.Base().output == nil {
			return false
		}
	}
	return true
}

// RemoveInput removes the input spending txid:index
func (tx *Transaction) RemoveInput(txid chainhash.Hash, index uint32) error {
	for i, in := range tx.inputs {
		b := in.Base()
		if b.PrevTxID == txid && b.OutputIndex == index {
			return tx.RemoveInputAt(i)
		}
	}
	return newError(ErrInvalidIndex, "no input spends %s:%d", txid, index)
}

// RemoveInputAt removes input i
func (tx *Transaction) RemoveInputAt(i int) error {
	if i < 0 || i >= len(tx.inputs) {
		return newError(ErrInvalidIndex, "invalid index: %d is not between 0, %d", i, len(tx.inputs))
	}
	return tx.mutate(func() error {
		tx.inputs = append(tx.inputs[:i:i], tx.inputs[i+1:]...)
		return tx.updateChangeOutput()
	})
}

// To adds an output paying satoshis to addr
func (tx *Transaction) To(addr btcutil.Address, satoshis int64) error {
	s, err := script.FromAddress(addr)
	if err != nil {
		return &Error{Code: ErrInvalidArgument, Message: "unsupported address", Cause: err}
	}
	return tx.ToScript(s, satoshis)
}

// ToScript adds an output paying satoshis to a raw locking script
func (tx *Transaction) ToScript(lockingScript []byte, satoshis int64) error {
	out, err := NewOutput(satoshis, lockingScript)
	if err != nil {
		return err
	}
	return tx.AddOutput(out)
}

// AddData adds a zero value OP_RETURN output carrying data
func (tx *Transaction) AddData(data ...[]byte) error {
	s, err := script.BuildDataOut(data...)
	if err != nil {
		return &Error{Code: ErrInvalidArgument, Message: "invalid data output", Cause: err}
	}
	out, _ := NewOutput(0, s)
	return tx.AddOutput(out)
}

// AddOutput appends out
func (tx *Transaction) AddOutput(out *Output) error {
	if out == nil {
		return newError(ErrInvalidArgument, "output is nil")
	}
	return tx.mutate(func() error {
		tx.outputs = append(tx.outputs, out)
		return tx.updateChangeOutput()
	})
}

// ClearOutputs removes every output, including change
func (tx *Transaction) ClearOutputs() error {
	if err := tx.canClearSignatures(); err != nil {
		return err
	}
	return tx.mutate(func() error {
		tx.outputs = nil
		if err := tx.clearSignatures(); err != nil {
			return err
		}
		tx.changeIndex = -1
		return tx.updateChangeOutput()
	})
}

// RemoveOutput removes output i
func (tx *Transaction) RemoveOutput(i int) error {
	if i < 0 || i >= len(tx.outputs) {
		return newError(ErrInvalidIndex, "invalid index: %d is not between 0, %d", i, len(tx.outputs))
	}
	return tx.mutate(func() error {
		tx.removeOutput(i)
		return tx.updateChangeOutput()
	})
}

func (tx *Transaction) removeOutput(i int) {
	tx.outputs = append(tx.outputs[:i:i], tx.outputs[i+1:]...)
	switch {
	case tx.changeIndex == i:
		tx.changeIndex = -1
	case tx.changeIndex > i:
		tx.changeIndex--
	}
}

// IsCoinbase reports whether the only input is the null input
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.inputs) == 1 && tx.inputs[0].Base().IsNull()
}

// IsRBF reports whether some input signals replace-by-fee
func (tx *Transaction) IsRBF() bool {
	for _, in := range tx.inputs {
		if in.Base().SequenceNumber < MaxInt-1 {
			return true
		}
	}
	return false
}

// EnableRBF lowers every non signalling sequence number to
// DefaultRBFSeqNumber and clears the signatures of typed inputs.
func (tx *Transaction) EnableRBF() error {
	return tx.mutate(func() error {
		for _, in := range tx.inputs {
			b := in.Base()
			if b.SequenceNumber >= MaxInt-1 {
				b.SequenceNumber = DefaultRBFSeqNumber
			}
		}
		return tx.resetSignatures()
	})
}

// Hash returns the transaction hash in wire byte order, witnesses excluded
func (tx *Transaction) Hash() chainhash.Hash {
	return chainhash.DoubleHashH(tx.Bytes(true))
}

// ID returns the transaction id in display (reversed) hex
func (tx *Transaction) ID() string {
	return tx.Hash().String()
}

// WitnessHash returns the hash of the full encoding, witnesses included
func (tx *Transaction) WitnessHash() chainhash.Hash {
	return chainhash.DoubleHashH(tx.Bytes(false))
}

// HasWitnesses reports whether any input carries a witness stack
func (tx *Transaction) HasWitnesses() bool {
	for _, in := range tx.inputs {
		if in.Base().HasWitnesses() {
			return true
		}
	}
	return false
}

// ShallowCopy returns a copy rebuilt from the wire encoding. Spent outputs,
// change and fee settings are not carried over.
func (tx *Transaction) ShallowCopy() *Transaction {
	c, err := NewFromBytes(tx.Bytes(false))
	if err != nil {
		// The encoding of a Transaction always decodes.
		panic(err)
	}
	return c
}

// Clone returns a deep copy, including input signature state
func (tx *Transaction) Clone() *Transaction {
	c := &Transaction{
		Version:     tx.Version,
		LockTime:    tx.LockTime,
		feePerKb:    tx.feePerKb,
		changeIndex: tx.changeIndex,
	}
	if tx.fee != nil {
		fee := *tx.fee
		c.fee = &fee
	}
	if tx.changeScript != nil {
		c.changeScript = cloneBytes(tx.changeScript)
	}
	if tx.inputs != nil {
		c.inputs = make([]Input, len(tx.inputs))
		for i, in := range tx.inputs {
			c.inputs[i] = in.Clone()
		}
	}
	if tx.outputs != nil {
		c.outputs = make([]*Output, len(tx.outputs))
		for i, out := range tx.outputs {
			c.outputs[i] = out.Clone()
		}
	}
	return c
}

// Equal reports whether both transactions have the same wire encoding
func (tx *Transaction) Equal(other *Transaction) bool {
	return bytes.Equal(tx.Bytes(false), other.Bytes(false))
}
