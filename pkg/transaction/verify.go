package transaction

import (
	"fmt"
	"math/big"
)

// Verify runs the context free sanity checks a node applies before
// accepting a transaction. It returns nil for a sane transaction and an
// ErrSanityCheck error describing the first failure otherwise.
func (tx *Transaction) Verify() error {
	if len(tx.inputs) == 0 {
		return sanity("transaction txins empty")
	}
	if len(tx.outputs) == 0 {
		return sanity("transaction txouts empty")
	}

	maxMoney := big.NewInt(MaxMoney)
	total := new(big.Int)
	for _, out := range tx.outputs {
		if out.InvalidSatoshis() != "" {
			return sanity("Transaction output contains invalid amount")
		}
		if out.satoshisBN.Cmp(maxMoney) > 0 {
			return sanity("Transaction output contains too high satoshi amount")
		}
		total.Add(total, out.satoshisBN)
		if total.Cmp(maxMoney) > 0 {
			return sanity("Transaction output contains too high satoshi amount")
		}
	}

	if len(tx.Bytes(false)) > MaxBlockSize {
		return sanity("Transaction over the maximum block size")
	}

	seen := make(map[string]struct{}, len(tx.inputs))
	for _, in := range tx.inputs {
		b := in.Base()
		key := fmt.Sprintf("%s:%d", b.PrevTxID, b.OutputIndex)
		if _, dup := seen[key]; dup {
			return sanity("Transaction contains duplicate input")
		}
		seen[key] = struct{}{}
	}

	if tx.IsCoinbase() {
		n := len(tx.inputs[0].Base().script)
		if n < 2 || n > 100 {
			return sanity("Coinbase transaction script size invalid")
		}
	} else {
		for _, in := range tx.inputs {
			if in.Base().IsNull() {
				return sanity("Transaction has null input")
			}
		}
	}
	return nil
}

func sanity(msg string) *Error {
	return &Error{Code: ErrSanityCheck, Message: msg}
}
