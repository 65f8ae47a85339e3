package roles

import (
	"bytes"
	"fmt"

	klog "github.com/suffix-labs/bchtx/internal/log"
	"github.com/suffix-labs/bchtx/pkg/transaction"
)

// CombineError reports why a copy could not be merged.
type CombineError struct {
	Copy       int // Index of the offending copy
	InputIndex int // -1 when the shapes differ
	Message    string
	Cause      error
}

func (e *CombineError) Error() string {
	msg := fmt.Sprintf("combine copy %d", e.Copy)
	if e.InputIndex >= 0 {
		msg += fmt.Sprintf(" input %d", e.InputIndex)
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CombineError) Unwrap() error { return e.Cause }

// Combiner merges signatures from independent copies of one transaction.
//
// The Combiner role enables parallel signing workflows:
//   - Each party signs its own copy of the unsigned transaction
//   - The Combiner re-applies every signature of every copy to the first
//
// Signatures are never copied blindly: each one goes through the input's
// AddSignature and is verified against the first copy.
type Combiner struct {
	txs []*transaction.Transaction
}

// NewCombiner creates a Combiner. All copies must represent the same
// transaction; the first one receives the merged signatures.
func NewCombiner(txs []*transaction.Transaction) *Combiner {
	return &Combiner{txs: txs}
}

// Combine merges all copies into the first one and returns it.
//
// Returns a *CombineError if:
//   - Copies differ in version, lock time, outpoints, sequences or outputs
//   - A signature fails verification
//   - Two copies hold different signatures for the same key
func (c *Combiner) Combine() (*transaction.Transaction, error) {
	if len(c.txs) == 0 {
		return nil, fmt.Errorf("no transactions to combine")
	}
	result := c.txs[0]
	for i := 1; i < len(c.txs); i++ {
		if err := c.mergeInto(result, c.txs[i], i); err != nil {
			return nil, err
		}
	}
	klog.Combiner.Debug().Int("copies", len(c.txs)).Str("txid", result.ID()).Msg("Combined signatures")
	return result, nil
}

func (c *Combiner) mergeInto(dst, src *transaction.Transaction, copyIndex int) error {
	if msg := incompatibility(dst, src); msg != "" {
		return &CombineError{Copy: copyIndex, InputIndex: -1, Message: msg}
	}
	for i := range src.Inputs() {
		if err := mergeInput(dst, src, i); err != nil {
			err.Copy = copyIndex
			return err
		}
	}
	return nil
}

// incompatibility describes the first structural difference between a and
// b, "" if they are copies of the same transaction.
func incompatibility(a, b *transaction.Transaction) string {
	if a.Version != b.Version {
		return fmt.Sprintf("incompatible versions: %d != %d", a.Version, b.Version)
	}
	if a.LockTime != b.LockTime {
		return fmt.Sprintf("incompatible lock times: %d != %d", a.LockTime, b.LockTime)
	}
	ai, bi := a.Inputs(), b.Inputs()
	if len(ai) != len(bi) {
		return fmt.Sprintf("incompatible input counts: %d != %d", len(ai), len(bi))
	}
	for i := range ai {
		x, y := ai[i].Base(), bi[i].Base()
		if x.PrevTxID != y.PrevTxID || x.OutputIndex != y.OutputIndex {
			return fmt.Sprintf("input %d spends a different outpoint", i)
		}
		if x.SequenceNumber != y.SequenceNumber {
			return fmt.Sprintf("input %d has different sequence numbers: %d != %d",
				i, x.SequenceNumber, y.SequenceNumber)
		}
	}
	ao, bo := a.Outputs(), b.Outputs()
	if len(ao) != len(bo) {
		return fmt.Sprintf("incompatible output counts: %d != %d", len(ao), len(bo))
	}
	for i := range ao {
		if !bytes.Equal(ao[i].Bytes(), bo[i].Bytes()) {
			return fmt.Sprintf("output %d differs", i)
		}
	}
	return ""
}

// mergeInput re-applies the signatures src holds for input i to dst.
func mergeInput(dst, src *transaction.Transaction, i int) *CombineError {
	fail := func(msg string, cause error) *CombineError {
		return &CombineError{InputIndex: i, Message: msg, Cause: cause}
	}

	srcSigs, err := src.InputSignatures(i)
	if err != nil {
		// Generic inputs: only identical unlocking scripts can be merged.
		if !bytes.Equal(src.Input(i).Base().Script(), dst.Input(i).Base().Script()) {
			return fail("conflicting unlocking scripts", err)
		}
		return nil
	}
	dstSigs, err := dst.InputSignatures(i)
	if err != nil {
		return fail("reading signatures", err)
	}

	for _, sig := range srcSigs {
		if existing := findByKey(dstSigs, sig); existing != nil {
			if !bytes.Equal(existing.Signature, sig.Signature) || existing.SigType != sig.SigType {
				return fail(fmt.Sprintf("conflicting signatures for public key %s", sig.PublicKey), nil)
			}
			continue
		}
		signed, err := dst.Input(i).IsFullySigned()
		if err != nil {
			return fail("reading signature state", err)
		}
		if signed {
			if len(dstSigs) == 1 && len(srcSigs) == 1 {
				return fail("conflicting unlocking scripts", nil)
			}
			// Threshold already met; extra signatures are not needed.
			continue
		}
		if err := dst.ApplySignature(sig); err != nil {
			return fail("applying signature", err)
		}
		dstSigs = append(dstSigs, sig)
	}
	return nil
}

func findByKey(sigs []*transaction.Signature, sig *transaction.Signature) *transaction.Signature {
	for _, s := range sigs {
		if s.PublicKey.Equal(sig.PublicKey) {
			return s
		}
	}
	return nil
}
