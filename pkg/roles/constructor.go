package roles

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/suffix-labs/bchtx/pkg/bip21"
	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/transaction"
)

// ErrNotModifiable is returned when a Constructor is asked to change a
// transaction that already carries signatures.
var ErrNotModifiable = errors.New("transaction already signed, not modifiable")

// Constructor adds inputs and outputs to a transaction.
//
// Every change goes through the transaction's own mutators, so change and
// fee are rebalanced after each call. A transaction holding any signature
// is refused: mutating it would silently discard that work.
type Constructor struct {
	tx *transaction.Transaction
}

// NewConstructor creates a Constructor for a transaction made by Creator.
func NewConstructor(tx *transaction.Transaction) *Constructor {
	return &Constructor{tx: tx}
}

// AddUTXOs adds one input per unspent output.
func (c *Constructor) AddUTXOs(utxos ...transaction.UnspentOutput) error {
	if err := c.checkModifiable(); err != nil {
		return err
	}
	if err := c.tx.From(utxos...); err != nil {
		return err
	}
	c.applyLockTime()
	return nil
}

// AddMultisigUTXOs adds threshold-of-pubkeys inputs, bare or P2SH.
func (c *Constructor) AddMultisigUTXOs(utxos []transaction.UnspentOutput, pubkeys []*crypto.PublicKey, threshold int) error {
	if err := c.checkModifiable(); err != nil {
		return err
	}
	if err := c.tx.FromMultisig(utxos, pubkeys, threshold); err != nil {
		return err
	}
	c.applyLockTime()
	return nil
}

// AddPayment adds an output for a payment request. The request must carry
// an amount.
func (c *Constructor) AddPayment(p *bip21.Payment) error {
	if p.Amount == nil {
		return fmt.Errorf("payment to %s has no amount", p.Address.EncodeAddress())
	}
	return c.AddOutput(p.Address, p.Satoshis())
}

// AddOutput adds an output paying satoshis to addr.
func (c *Constructor) AddOutput(addr btcutil.Address, satoshis int64) error {
	if err := c.checkModifiable(); err != nil {
		return err
	}
	return c.tx.To(addr, satoshis)
}

// AddScriptOutput adds an output locked by a raw script.
func (c *Constructor) AddScriptOutput(lockingScript []byte, satoshis int64) error {
	if err := c.checkModifiable(); err != nil {
		return err
	}
	return c.tx.ToScript(lockingScript, satoshis)
}

// AddData adds an OP_RETURN output carrying data.
func (c *Constructor) AddData(data ...[]byte) error {
	if err := c.checkModifiable(); err != nil {
		return err
	}
	return c.tx.AddData(data...)
}

// SetChange sends the unspent value above the fee back to addr.
func (c *Constructor) SetChange(addr btcutil.Address) error {
	if err := c.checkModifiable(); err != nil {
		return err
	}
	return c.tx.Change(addr)
}

// SetFee fixes the fee. Zero is a valid fee.
func (c *Constructor) SetFee(satoshis int64) error {
	if err := c.checkModifiable(); err != nil {
		return err
	}
	return c.tx.Fee(satoshis)
}

// SetFeePerKb sets the rate used to estimate the fee.
func (c *Constructor) SetFeePerKb(rate int64) error {
	if err := c.checkModifiable(); err != nil {
		return err
	}
	return c.tx.FeePerKb(rate)
}

// Sort applies BIP69 ordering to inputs and outputs.
func (c *Constructor) Sort() error {
	if err := c.checkModifiable(); err != nil {
		return err
	}
	return c.tx.Sort()
}

// Finish returns the constructed transaction, ready for the Signer.
func (c *Constructor) Finish() *transaction.Transaction {
	return c.tx
}

func (c *Constructor) checkModifiable() error {
	for i := range c.tx.Inputs() {
		sigs, err := c.tx.InputSignatures(i)
		if err != nil {
			// Signature state of generic inputs is unknown.
			continue
		}
		if len(sigs) > 0 {
			return fmt.Errorf("input %d: %w", i, ErrNotModifiable)
		}
	}
	return nil
}

// applyLockTime marks new inputs non-final when a lock time is set.
func (c *Constructor) applyLockTime() {
	if c.tx.LockTime == 0 {
		return
	}
	for _, in := range c.tx.Inputs() {
		b := in.Base()
		if b.SequenceNumber == transaction.DefaultSeqNumber {
			b.SequenceNumber = transaction.DefaultLockTimeSeqNumber
		}
	}
}
