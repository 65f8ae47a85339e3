package transaction

import (
	"bytes"
	"math/rand"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Sort applies the canonical BIP69 order: inputs by previous txid (display
// byte order) then output index, outputs by value then locking script.
// Signatures are cleared.
func (tx *Transaction) Sort() error {
	if err := tx.canClearSignatures(); err != nil {
		return err
	}
	return tx.mutate(func() error {
		err := tx.sortInputs(func(ins []Input) []Input {
			sorted := append([]Input(nil), ins...)
			sort.SliceStable(sorted, func(i, j int) bool {
				a, b := sorted[i].Base(), sorted[j].Base()
				if c := compareTxID(a.PrevTxID, b.PrevTxID); c != 0 {
					return c < 0
				}
				return a.OutputIndex < b.OutputIndex
			})
			return sorted
		})
		if err != nil {
			return err
		}
		return tx.sortOutputs(func(outs []*Output) []*Output {
			sorted := append([]*Output(nil), outs...)
			sort.SliceStable(sorted, func(i, j int) bool {
				a, b := sorted[i], sorted[j]
				if a.satoshis != b.satoshis {
					return a.satoshis < b.satoshis
				}
				return bytes.Compare(a.script, b.script) < 0
			})
			return sorted
		})
	})
}

// compareTxID orders hashes by their display (byte reversed) encoding
func compareTxID(a, b chainhash.Hash) int {
	for i := chainhash.HashSize - 1; i >= 0; i-- {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// SortInputs reorders the inputs with fn, which must return a permutation
// of its argument. Signatures are cleared.
func (tx *Transaction) SortInputs(fn func([]Input) []Input) error {
	if err := tx.canClearSignatures(); err != nil {
		return err
	}
	return tx.mutate(func() error { return tx.sortInputs(fn) })
}

func (tx *Transaction) sortInputs(fn func([]Input) []Input) error {
	sorted := fn(append([]Input(nil), tx.inputs...))
	if !isPermutation(tx.inputs, sorted) {
		return newError(ErrInvalidSorting, "invalid sorting: inputs must contain the same elements")
	}
	tx.inputs = sorted
	return tx.clearSignatures()
}

// SortOutputs reorders the outputs with fn, which must return a permutation
// of its argument. The change output keeps being tracked and signatures are
// cleared.
func (tx *Transaction) SortOutputs(fn func([]*Output) []*Output) error {
	if err := tx.canClearSignatures(); err != nil {
		return err
	}
	return tx.mutate(func() error { return tx.sortOutputs(fn) })
}

func (tx *Transaction) sortOutputs(fn func([]*Output) []*Output) error {
	sorted := fn(append([]*Output(nil), tx.outputs...))
	if !isPermutation(tx.outputs, sorted) {
		return newError(ErrInvalidSorting, "invalid sorting: outputs must contain the same elements")
	}
	if change := tx.ChangeOutput(); change != nil {
		for i, out := range sorted {
			if out == change {
				tx.changeIndex = i
				break
			}
		}
	}
	tx.outputs = sorted
	return tx.clearSignatures()
}

// ShuffleOutputs puts the outputs in random order
func (tx *Transaction) ShuffleOutputs() error {
	return tx.SortOutputs(func(outs []*Output) []*Output {
		rand.Shuffle(len(outs), func(i, j int) { outs[i], outs[j] = outs[j], outs[i] })
		return outs
	})
}

// isPermutation compares by identity
func isPermutation[T comparable](before, after []T) bool {
	if len(before) != len(after) {
		return false
	}
	seen := make(map[T]int, len(before))
	for _, v := range before {
		seen[v]++
	}
	for _, v := range after {
		if seen[v] == 0 {
			return false
		}
		seen[v]--
	}
	return true
}
