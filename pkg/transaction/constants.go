// Package transaction implements the transaction model: typed inputs and
// outputs, the signature hash protocol, fee and change balancing, canonical
// ordering, and the byte-exact wire encoding.
//
// A Transaction moves through these stages:
//  1. Populated: inputs (From, AddInput) and outputs (To, AddData, AddOutput)
//  2. Balanced: fee policy and change destination (Fee, FeePerKb, Change)
//  3. Signed: every input carries its unlocking script (Sign, ApplySignature)
//  4. Serialized: policy checks pass (Serialize)
//
// Any mutation of inputs, outputs, fee or change clears existing signatures,
// moving a signed transaction back to stage 2.
//
// A Transaction is not safe for concurrent use. Concurrent signers must work
// on independent copies (see Clone) and merge the results by input index.
package transaction

import "fmt"

const (
	// Minimum value of an output for it not to be considered dust.
	DustAmount = 546

	// Allowed factor between the realized and the estimated fee.
	FeeSecurityMargin = 150

	// Maximum amount of satoshis in circulation.
	MaxMoney = 21_000_000 * 100_000_000

	// Lock times below this value are block heights, above are timestamps.
	NLockTimeBlockHeightLimit = 500_000_000

	// Largest representable lock time.
	NLockTimeMaxValue = 0xffffffff

	// Default fee rate in satoshis per kilobyte.
	FeePerKb = 20_000

	// Upper bound for the size of a change output.
	ChangeOutputMaxSize = 20 + 4 + 34 + 4

	// Version, counts and lock time overhead used in size estimates.
	MaximumExtraSize = 4 + 9 + 9 + 4

	// Largest serialized transaction accepted by Verify.
	MaxBlockSize = 1_000_000

	// Version of newly created transactions.
	CurrentVersion = 1

	// Largest integer exactly representable by a float64.
	MaxSafeInteger = 0x1fffffffffffff
)

// Sequence numbers
const (
	MaxInt                   = 0xffffffff
	DefaultSeqNumber         = MaxInt
	DefaultLockTimeSeqNumber = MaxInt - 1
	DefaultRBFSeqNumber      = MaxInt - 2
)

// SigHashType selects which parts of a transaction a signature commits to.
//
// The low five bits select the base mode (ALL, NONE, SINGLE); ForkID selects
// the amount-committing digest; AnyoneCanPay restricts the digest to the
// input being signed.
type SigHashType uint32

const (
	SigHashAll          SigHashType = 0x01
	SigHashNone         SigHashType = 0x02
	SigHashSingle       SigHashType = 0x03
	SigHashForkID       SigHashType = 0x40
	SigHashAnyoneCanPay SigHashType = 0x80

	sigHashMask = 0x1f

	// DefaultSigHashType is used whenever a caller passes zero.
	DefaultSigHashType = SigHashAll | SigHashForkID
)

// Base returns the base selector (ALL, NONE or SINGLE).
func (t SigHashType) Base() SigHashType {
	return t & sigHashMask
}

// HasForkID reports whether the amount-committing digest is selected.
func (t SigHashType) HasForkID() bool {
	return t&SigHashForkID != 0
}

// AnyoneCanPay reports whether only the signed input is committed to.
func (t SigHashType) AnyoneCanPay() bool {
	return t&SigHashAnyoneCanPay != 0
}

func (t SigHashType) String() string {
	var s string
	switch t.Base() {
	case SigHashAll:
		s = "ALL"
	case SigHashNone:
		s = "NONE"
	case SigHashSingle:
		s = "SINGLE"
	default:
		s = fmt.Sprintf("0x%02x", uint32(t.Base()))
	}
	if t.HasForkID() {
		s += "|FORKID"
	}
	if t.AnyoneCanPay() {
		s += "|ANYONECANPAY"
	}
	return s
}

func orDefault(t SigHashType) SigHashType {
	if t == 0 {
		return DefaultSigHashType
	}
	return t
}
