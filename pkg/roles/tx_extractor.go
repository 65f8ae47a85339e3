package roles

import (
	"fmt"

	"github.com/suffix-labs/bchtx/pkg/transaction"
)

// TxExtractor produces the final transaction bytes.
//
// The Transaction Extractor role:
//   - Runs the consensus sanity checks (Verify)
//   - Runs the serialization policy checks not disabled by its options
//   - Serializes the transaction for broadcast
//
// This is the last role of the workflow.
type TxExtractor struct {
	tx   *transaction.Transaction
	opts transaction.SerializeOptions
}

// NewTxExtractor creates a Transaction Extractor with every policy check
// enabled.
func NewTxExtractor(tx *transaction.Transaction) *TxExtractor {
	return &TxExtractor{tx: tx}
}

// WithOptions relaxes policy checks.
func (e *TxExtractor) WithOptions(opts transaction.SerializeOptions) *TxExtractor {
	e.opts = opts
	return e
}

// Extract returns the raw transaction bytes ready for broadcast.
func (e *TxExtractor) Extract() ([]byte, error) {
	if err := e.tx.Verify(); err != nil {
		return nil, fmt.Errorf("transaction verification failed: %w", err)
	}
	if !e.opts.DisableAll {
		if err := e.tx.SerializationError(e.opts); err != nil {
			return nil, fmt.Errorf("transaction not ready for broadcast: %w", err)
		}
	}
	return e.tx.Bytes(false), nil
}

// ExtractHex is Extract hex encoded.
func (e *TxExtractor) ExtractHex() (string, error) {
	if _, err := e.Extract(); err != nil {
		return "", err
	}
	return e.tx.String(), nil
}
