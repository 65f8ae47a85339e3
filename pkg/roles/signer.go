package roles

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	klog "github.com/suffix-labs/bchtx/internal/log"
	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/transaction"
)

// Signer adds signatures to the inputs of a transaction.
//
// The Signer role:
//   - Computes the signature hash of every input a key can satisfy
//   - Signs it with the deterministic ECDSA nonce
//   - Hands the signature to the input, which verifies and stores it
//
// Multiple signers can operate in parallel on independent copies of the
// same transaction. The Combiner then merges their signatures.
type Signer struct {
	tx      *transaction.Transaction
	sigtype transaction.SigHashType
}

// NewSigner creates a Signer. A zero sigtype selects ALL|FORKID.
func NewSigner(tx *transaction.Transaction, sigtype transaction.SigHashType) *Signer {
	return &Signer{tx: tx, sigtype: sigtype}
}

// Sign signs every input the keys can satisfy.
func (s *Signer) Sign(keys ...*crypto.PrivateKey) error {
	return s.tx.Sign(keys, s.sigtype)
}

// SignInput signs a single input with key.
//
// Returns an error if the index is out of bounds, the input lacks its
// spent output, or key cannot satisfy the input.
func (s *Signer) SignInput(index int, key *crypto.PrivateKey) error {
	inputs := s.tx.Inputs()
	if index < 0 || index >= len(inputs) {
		return fmt.Errorf("input index %d out of bounds (have %d inputs)", index, len(inputs))
	}
	in := inputs[index]
	hashData := crypto.Hash160(key.PublicKey().Bytes())
	sigs, err := in.GetSignatures(s.tx, key, index, s.sigtype, hashData)
	if err != nil {
		return fmt.Errorf("failed to sign input %d: %w", index, err)
	}
	if len(sigs) == 0 {
		return fmt.Errorf("key %s cannot sign input %d", key.PublicKey(), index)
	}
	for _, sig := range sigs {
		if err := s.tx.ApplySignature(sig); err != nil {
			return err
		}
	}
	return nil
}

// Finish returns the signed transaction.
//
// It can be passed to the Combiner when several parties sign, or to the
// TxExtractor once fully signed.
func (s *Signer) Finish() *transaction.Transaction {
	return s.tx
}

// SignParallel signs tx with every key concurrently. Each key signs its own
// copy and the copies are merged; tx itself is left untouched. The first
// failure cancels the remaining signers.
func SignParallel(ctx context.Context, tx *transaction.Transaction, keys []*crypto.PrivateKey, sigtype transaction.SigHashType) (*transaction.Transaction, error) {
	defer klog.Benchmark("sign_parallel")()

	copies := make([]*transaction.Transaction, len(keys))
	for i := range keys {
		copies[i] = tx.Clone()
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := NewSigner(copies[i], sigtype).Sign(key); err != nil {
				return fmt.Errorf("signer %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	klog.Signer.Debug().Int("signers", len(keys)).Str("txid", tx.ID()).Msg("Parallel signing complete")
	return NewCombiner(append([]*transaction.Transaction{tx.Clone()}, copies...)).Combine()
}
