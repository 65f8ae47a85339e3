package transaction

import (
	"github.com/btcsuite/btcd/btcutil"
	klog "github.com/suffix-labs/bchtx/internal/log"
	"github.com/suffix-labs/bchtx/pkg/script"
)

// Fee sets an explicit fee and rebalances change
func (tx *Transaction) Fee(amount int64) error {
	if amount < 0 {
		return newError(ErrInvalidArgument, "fee must be a natural number: %d", amount)
	}
	return tx.mutate(func() error {
		tx.fee = &amount
		return tx.updateChangeOutput()
	})
}

// FeePerKb sets the rate, in satoshis per 1000 bytes, used when the fee is
// estimated. Zero restores the default rate.
func (tx *Transaction) FeePerKb(rate int64) error {
	if rate < 0 {
		return newError(ErrInvalidArgument, "fee rate must be a natural number: %d", rate)
	}
	return tx.mutate(func() error {
		tx.feePerKb = rate
		return tx.updateChangeOutput()
	})
}

// Change sends the unspent value, minus the fee, back to addr
func (tx *Transaction) Change(addr btcutil.Address) error {
	s, err := script.FromAddress(addr)
	if err != nil {
		return &Error{Code: ErrInvalidArgument, Message: "unsupported change address", Cause: err}
	}
	return tx.ChangeScript(s)
}

// ChangeScript sets the locking script of the change output
func (tx *Transaction) ChangeScript(lockingScript []byte) error {
	if len(lockingScript) == 0 {
		return newError(ErrInvalidArgument, "change script is required")
	}
	return tx.mutate(func() error {
		tx.changeScript = cloneBytes(lockingScript)
		return tx.updateChangeOutput()
	})
}

// ChangeOutput returns the change output, nil if there is none
func (tx *Transaction) ChangeOutput() *Output {
	if tx.changeIndex < 0 || tx.changeIndex >= len(tx.outputs) {
		return nil
	}
	return tx.outputs[tx.changeIndex]
}

// ChangeIndex returns the position of the change output, -1 if absent
func (tx *Transaction) ChangeIndex() int {
	return tx.changeIndex
}

// InputAmount sums the values of the spent outputs
func (tx *Transaction) InputAmount() (int64, error) {
	var sum int64
	for i, in := range tx.inputs {
		out := in.Base().output
		if out == nil {
			return 0, inputError(i, ErrMissingPreviousOutput, "no previous output information")
		}
		sum += out.satoshis
	}
	return sum, nil
}

// OutputAmount sums the output values
func (tx *Transaction) OutputAmount() int64 {
	var sum int64
	for _, out := range tx.outputs {
		sum += out.satoshis
	}
	return sum
}

func (tx *Transaction) unspentValue() (int64, error) {
	in, err := tx.InputAmount()
	if err != nil {
		return 0, err
	}
	return in - tx.OutputAmount(), nil
}

// GetFee returns the fee this transaction pays or will pay: the explicit fee
// if set, the whole unspent value when there is no change destination,
// otherwise the size based estimate.
func (tx *Transaction) GetFee() (int64, error) {
	if tx.IsCoinbase() {
		return 0, nil
	}
	if tx.fee != nil {
		return *tx.fee, nil
	}
	if tx.changeScript == nil {
		return tx.unspentValue()
	}
	return tx.estimateFee()
}

func (tx *Transaction) estimateFee() (int64, error) {
	available, err := tx.unspentValue()
	if err != nil {
		return 0, err
	}
	return EstimateFee(tx.EstimateSize(), available, tx.feePerKb), nil
}

// EstimateSize returns the worst case serialized size once every input is
// signed.
func (tx *Transaction) EstimateSize() int {
	size := MaximumExtraSize
	for _, in := range tx.inputs {
		size += in.EstimateSize()
	}
	for _, out := range tx.outputs {
		size += len(out.script) + 9
	}
	return size
}

// EstimateFee returns ceil(size * rate / 1000). When available exceeds that
// fee, the size of a change output is added first. A zero rate selects
// FeePerKb.
func EstimateFee(size int, available, rate int64) int64 {
	if rate == 0 {
		rate = FeePerKb
	}
	fee := ceilDiv(int64(size)*rate, 1000)
	if available > fee {
		size += ChangeOutputMaxSize
	}
	return ceilDiv(int64(size)*rate, 1000)
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// updateChangeOutput recomputes the change output from scratch. Without a
// change destination it only drops the signatures of typed inputs.
func (tx *Transaction) updateChangeOutput() error {
	if tx.changeScript == nil {
		return tx.resetSignatures()
	}
	if err := tx.canClearSignatures(); err != nil {
		return err
	}
	if _, err := tx.InputAmount(); err != nil {
		return err
	}
	if err := tx.clearSignatures(); err != nil {
		return err
	}
	if tx.changeIndex >= 0 {
		tx.removeOutput(tx.changeIndex)
	}

	available, err := tx.unspentValue()
	if err != nil {
		return err
	}
	fee, err := tx.GetFee()
	if err != nil {
		return err
	}
	if change := available - fee; change > 0 {
		out, err := NewOutput(change, tx.changeScript)
		if err != nil {
			return err
		}
		tx.changeIndex = len(tx.outputs)
		tx.outputs = append(tx.outputs, out)
	} else {
		tx.changeIndex = -1
	}
	klog.Transaction.Debug().
		Int64("available", available).
		Int64("fee", fee).
		Int("change_index", tx.changeIndex).
		Msg("Change output updated")
	return nil
}
