// Package api provides the high-level public API for building and signing
// Bitcoin Cash transactions.
//
// This is the main entry point for applications using the bchtx library.
// Transactions travel between calls as JSON documents, the object form that
// keeps spent outputs and partial signatures which raw bytes cannot carry:
//
//  1. ProposeTransaction - Creates a transaction from inputs and payments
//  2. GetSighash - Computes the signature hash for an input
//  3. AppendSignature - Signs a single input with one key
//  4. Sign - Signs every input a set of keys can satisfy
//  5. Combine - Merges documents holding partial signatures
//  6. FinalizeAndExtract - Checks and extracts the broadcastable transaction
//  7. ParseTransaction / SerializeTransaction - Document encoding/decoding
//
// Payment request URIs and signed messages are exposed alongside.
package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/suffix-labs/bchtx/pkg/bip21"
	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/message"
	"github.com/suffix-labs/bchtx/pkg/roles"
	"github.com/suffix-labs/bchtx/pkg/script"
	"github.com/suffix-labs/bchtx/pkg/transaction"
)

// Input is an unspent output to spend.
type Input struct {
	UTXO transaction.UnspentOutput

	// PublicKeys and Threshold describe a multisig output, bare or P2SH.
	// Leave both empty for pay-to-public-key(-hash) outputs.
	PublicKeys []*crypto.PublicKey
	Threshold  int
}

// Output is an explicit output.
type Output struct {
	Script   []byte
	Satoshis int64
}

// TransactionProposal contains everything needed to build a transaction.
type TransactionProposal struct {
	Inputs   []Input
	Payments []*bip21.Payment // each must carry an amount
	Outputs  []Output
	Data     [][]byte // one OP_RETURN output

	Change   btcutil.Address // optional
	Fee      *int64          // fixed fee, nil to estimate
	FeePerKb int64           // 0 keeps the default rate

	Version  int32   // 0 selects the current version
	LockTime *uint32 // optional nLockTime
	Sort     bool    // apply BIP69 ordering last
}

// ============================================================================
// API Function 1: ProposeTransaction
// ============================================================================

// ProposeTransaction builds a transaction from a proposal.
//
// This function:
//  1. Creates a new transaction using the Creator role
//  2. Adds inputs, outputs, change and fee using the Constructor role
//
// Parameters:
//   - proposal: Transaction inputs, outputs, and metadata
//
// Returns:
//   - Transaction document ready for signing
//   - Error if construction fails
func ProposeTransaction(proposal *TransactionProposal) ([]byte, error) {
	tx, err := propose(proposal)
	if err != nil {
		return nil, err
	}
	return SerializeTransaction(tx)
}

func propose(proposal *TransactionProposal) (*transaction.Transaction, error) {
	creator := roles.NewCreator(proposal.Version)
	if proposal.LockTime != nil {
		creator.WithLockTime(*proposal.LockTime)
	}
	c := roles.NewConstructor(creator.Create())

	for i, in := range proposal.Inputs {
		var err error
		if len(in.PublicKeys) > 0 {
			err = c.AddMultisigUTXOs([]transaction.UnspentOutput{in.UTXO}, in.PublicKeys, in.Threshold)
		} else {
			err = c.AddUTXOs(in.UTXO)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to add input %d: %w", i, err)
		}
	}
	for _, p := range proposal.Payments {
		if err := c.AddPayment(p); err != nil {
			return nil, fmt.Errorf("failed to add payment: %w", err)
		}
	}
	for i, out := range proposal.Outputs {
		if err := c.AddScriptOutput(out.Script, out.Satoshis); err != nil {
			return nil, fmt.Errorf("failed to add output %d: %w", i, err)
		}
	}
	if len(proposal.Data) > 0 {
		if err := c.AddData(proposal.Data...); err != nil {
			return nil, fmt.Errorf("failed to add data output: %w", err)
		}
	}
	if proposal.FeePerKb > 0 {
		if err := c.SetFeePerKb(proposal.FeePerKb); err != nil {
			return nil, err
		}
	}
	if proposal.Fee != nil {
		if err := c.SetFee(*proposal.Fee); err != nil {
			return nil, err
		}
	}
	if proposal.Change != nil {
		if err := c.SetChange(proposal.Change); err != nil {
			return nil, fmt.Errorf("failed to set change: %w", err)
		}
	}
	if proposal.Sort {
		if err := c.Sort(); err != nil {
			return nil, err
		}
	}
	return c.Finish(), nil
}

// ============================================================================
// API Function 2: GetSighash
// ============================================================================

// GetSighash computes the signature hash for an input.
//
// This is the 32-byte digest an external signer signs. A zero sigtype
// selects ALL|FORKID.
//
// Parameters:
//   - doc: Transaction document
//   - inputIndex: Index of the input to sign (0-based)
//   - sigtype: Signature hash type
//
// Returns:
//   - 32-byte signature hash
//   - Error if computation fails
func GetSighash(doc []byte, inputIndex int, sigtype transaction.SigHashType) ([32]byte, error) {
	tx, err := ParseTransaction(doc)
	if err != nil {
		return [32]byte{}, err
	}
	sighash, err := tx.InputSighash(inputIndex, sigtype)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to compute sighash: %w", err)
	}
	return sighash, nil
}

// ============================================================================
// API Function 3: AppendSignature
// ============================================================================

// AppendSignature signs one input with privateKey.
//
// Multiple parties can call this function independently on copies of the
// same document. Combine later merges their signatures.
//
// Returns:
//   - Transaction document with the signature added
//   - Error if signing fails
func AppendSignature(doc []byte, inputIndex int, privateKey *crypto.PrivateKey, sigtype transaction.SigHashType) ([]byte, error) {
	tx, err := ParseTransaction(doc)
	if err != nil {
		return nil, err
	}
	signer := roles.NewSigner(tx, sigtype)
	if err := signer.SignInput(inputIndex, privateKey); err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	return SerializeTransaction(signer.Finish())
}

// ============================================================================
// API Function 4: Sign
// ============================================================================

// Sign signs every input the keys can satisfy, one signer per key.
func Sign(ctx context.Context, doc []byte, keys []*crypto.PrivateKey, sigtype transaction.SigHashType) ([]byte, error) {
	tx, err := ParseTransaction(doc)
	if err != nil {
		return nil, err
	}
	signed, err := roles.SignParallel(ctx, tx, keys, sigtype)
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	return SerializeTransaction(signed)
}

// ============================================================================
// API Function 5: Combine
// ============================================================================

// Combine merges documents holding partial signatures.
//
// All documents must describe the same transaction (same inputs, outputs,
// and sequence numbers). Every signature is verified before it is merged.
//
// Returns:
//   - Combined transaction document
//   - Error if the documents conflict
func Combine(docs [][]byte) ([]byte, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("no transactions to combine")
	}
	txs := make([]*transaction.Transaction, len(docs))
	for i, doc := range docs {
		tx, err := ParseTransaction(doc)
		if err != nil {
			return nil, fmt.Errorf("invalid transaction %d: %w", i, err)
		}
		txs[i] = tx
	}
	combined, err := roles.NewCombiner(txs).Combine()
	if err != nil {
		return nil, fmt.Errorf("combination failed: %w", err)
	}
	return SerializeTransaction(combined)
}

// ============================================================================
// API Function 6: FinalizeAndExtract
// ============================================================================

// FinalizeAndExtract checks a fully signed document and returns the raw
// transaction, ready to broadcast.
//
// opts relaxes individual policy checks; the zero value enables them all.
func FinalizeAndExtract(doc []byte, opts transaction.SerializeOptions) ([]byte, error) {
	tx, err := ParseTransaction(doc)
	if err != nil {
		return nil, err
	}
	raw, err := roles.NewTxExtractor(tx).WithOptions(opts).Extract()
	if err != nil {
		return nil, fmt.Errorf("transaction extraction failed: %w", err)
	}
	return raw, nil
}

// ============================================================================
// API Functions 7a & 7b: ParseTransaction / SerializeTransaction
// ============================================================================

// ParseTransaction decodes a transaction document. Besides the JSON object
// form it accepts a raw transaction in hex; inputs decoded that way are
// generic until AttachInputs supplies their spent outputs.
func ParseTransaction(doc []byte) (*transaction.Transaction, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		tx := transaction.New()
		if err := json.Unmarshal(trimmed, tx); err != nil {
			return nil, fmt.Errorf("invalid transaction document: %w", err)
		}
		return tx, nil
	}
	tx, err := transaction.NewFromHex(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return tx, nil
}

// SerializeTransaction encodes tx as a document.
func SerializeTransaction(tx *transaction.Transaction) ([]byte, error) {
	doc, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return doc, nil
}

// AttachInputs supplies spent outputs to a transaction decoded from raw
// bytes. Each input is matched to its transaction input by outpoint.
func AttachInputs(tx *transaction.Transaction, inputs []Input) error {
	for _, in := range inputs {
		index := -1
		for i, txin := range tx.Inputs() {
			b := txin.Base()
			if b.PrevTxID == in.UTXO.TxID && b.OutputIndex == in.UTXO.OutputIndex {
				index = i
				break
			}
		}
		if index < 0 {
			return fmt.Errorf("no input spends %s:%d", in.UTXO.TxID, in.UTXO.OutputIndex)
		}
		out, err := transaction.NewOutput(in.UTXO.Satoshis, in.UTXO.Script)
		if err != nil {
			return err
		}
		if err := tx.AttachOutput(index, out, in.PublicKeys, in.Threshold); err != nil {
			return fmt.Errorf("input %d: %w", index, err)
		}
	}
	return nil
}

// ============================================================================
// Helper functions
// ============================================================================

// ParseUTXO parses an unspent output written as
// txid:vout:satoshis:scripthex.
func ParseUTXO(spec string) (transaction.UnspentOutput, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 4 {
		return transaction.UnspentOutput{}, fmt.Errorf("utxo %q: want txid:vout:satoshis:script", spec)
	}
	vout, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return transaction.UnspentOutput{}, fmt.Errorf("utxo %q: output index: %w", spec, err)
	}
	sats, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return transaction.UnspentOutput{}, fmt.Errorf("utxo %q: satoshis: %w", spec, err)
	}
	return transaction.NewUnspentOutput(parts[0], uint32(vout), parts[3], sats)
}

// ParsePublicKeys decodes hex public keys.
func ParsePublicKeys(hexKeys []string) ([]*crypto.PublicKey, error) {
	keys := make([]*crypto.PublicKey, len(hexKeys))
	for i, h := range hexKeys {
		b, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("public key %d: %w", i, err)
		}
		if keys[i], err = crypto.ParsePublicKey(b); err != nil {
			return nil, fmt.Errorf("public key %d: %w", i, err)
		}
	}
	return keys, nil
}

// NetworkParams returns the chain parameters for mainnet, testnet or regtest.
func NetworkParams(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(name) {
	case "", "mainnet", "main", "livenet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "test", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, fmt.Errorf("unknown network %q", name)
}

// ParsePaymentRequest parses a bitcoincash: payment request URI.
func ParsePaymentRequest(uri string, params *chaincfg.Params) (*bip21.Payment, error) {
	return bip21.Parse(uri, params)
}

// SignMessage signs msg with the Bitcoin signed message scheme.
func SignMessage(key *crypto.PrivateKey, msg string) string {
	return message.Sign(key, []byte(msg))
}

// VerifyMessage checks a signed message against a P2PKH address.
func VerifyMessage(address string, msg, signature string, params *chaincfg.Params) (bool, error) {
	addr, err := script.DecodeAddress(address, params)
	if err != nil {
		return false, err
	}
	return message.Verify(addr, []byte(msg), signature)
}
