// Package roles splits transaction construction into distinct
// responsibilities that can be carried out by different parties:
//   - Creator: initializes an empty transaction
//   - Constructor: adds inputs, payments, change and fee policy
//   - Signer: signs the inputs its keys can satisfy
//   - Combiner: merges signatures made on independent copies
//   - TxExtractor: checks policy and produces the final bytes
//
// A Transaction is not safe for concurrent use, so parallel signers each
// work on their own copy; the Combiner merges the copies by input index.
// SignParallel runs that fan-out and merge in one call.
package roles

import (
	"github.com/suffix-labs/bchtx/pkg/transaction"
)

// Creator initializes a transaction with no inputs or outputs.
//
// The Creator sets the transaction-wide fields all parties must agree on.
// Inputs and outputs are added by the Constructor.
type Creator struct {
	version  int32
	lockTime *uint32
}

// NewCreator creates a Creator for transactions of the given version.
// Zero selects transaction.CurrentVersion.
func NewCreator(version int32) *Creator {
	if version == 0 {
		version = transaction.CurrentVersion
	}
	return &Creator{version: version}
}

// WithLockTime sets the raw nLockTime value.
//
// Values below transaction.NLockTimeBlockHeightLimit are block heights,
// others UNIX timestamps. The Constructor marks inputs non-final so the
// lock time is enforced.
func (c *Creator) WithLockTime(lockTime uint32) *Creator {
	c.lockTime = &lockTime
	return c
}

// Create returns the empty transaction.
func (c *Creator) Create() *transaction.Transaction {
	tx := transaction.New()
	tx.Version = c.version
	if c.lockTime != nil {
		tx.LockTime = *c.lockTime
	}
	return tx
}
