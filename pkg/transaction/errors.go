package transaction

import (
	"errors"
	"fmt"
)

// Error is returned for transaction-level failures: bad arguments, missing
// UTXO information, invalid mutations and failed consistency checks.
type Error struct {
	Code    string // Error code (e.g., ErrInvalidIndex, ErrNeedMoreInfo)
	Message string // Human-readable error message
	Cause   error  // Underlying error (if any)
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transaction error [%s]: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("transaction error [%s]: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error     { return e.Cause }
func (e *Error) ErrorCode() string { return e.Code }

// InputError is returned when an operation on a single input fails.
//
// This covers constructing typed inputs, signing, and adding signatures.
type InputError struct {
	InputIndex int    // Index of the input in its transaction, -1 if not yet added
	Code       string // Error code (e.g., ErrInvalidSignature)
	Message    string // Human-readable error message
	Cause      error  // Underlying error (if any)
}

func (e *InputError) Error() string {
	if e.InputIndex < 0 {
		return fmt.Sprintf("input error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("input error at input %d [%s]: %s", e.InputIndex, e.Code, e.Message)
}

func (e *InputError) Unwrap() error     { return e.Cause }
func (e *InputError) ErrorCode() string { return e.Code }

// SighashError is returned when a signature hash cannot be computed.
type SighashError struct {
	InputIndex int    // Index of the input being signed
	Code       string // Error code (e.g., ErrSighashSingleNoOutput)
	Message    string // Human-readable error message
	Cause      error  // Underlying error (if any)
}

func (e *SighashError) Error() string {
	return fmt.Sprintf("sighash error at input %d [%s]: %s", e.InputIndex, e.Code, e.Message)
}

func (e *SighashError) Unwrap() error     { return e.Cause }
func (e *SighashError) ErrorCode() string { return e.Code }

// SerializationError is returned by checked serialization when one of the
// enabled policy checks fails.
type SerializationError struct {
	Code    string // Error code (e.g., ErrFeeTooLarge, ErrDustOutputs)
	Message string // Human-readable error message
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error [%s]: %s", e.Code, e.Message)
}

func (e *SerializationError) ErrorCode() string { return e.Code }

// Code returns the code of the first coded error in err's chain, or "" if
// there is none.
func Code(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ""
}

// Error codes used throughout the transaction package.
const (
	ErrInvalidArgument       = "INVALID_ARGUMENT"           // Argument is out of range or malformed
	ErrMalformedTransaction  = "MALFORMED_TRANSACTION"      // Wire bytes could not be decoded
	ErrMissingScript         = "MISSING_SCRIPT"             // Input constructed without a script
	ErrUnsupportedScript     = "UNSUPPORTED_SCRIPT"         // Locking script matches no known template
	ErrMissingPreviousOutput = "MISSING_PREVIOUS_OUTPUT"    // Spent output not attached to the input
	ErrNeedMoreInfo          = "NEED_MORE_INFO"             // Input added without UTXO script and value
	ErrAbstractMethod        = "ABSTRACT_METHOD_INVOKED"    // Signing capability on an unrecognized input
	ErrUnableToVerify        = "UNABLE_TO_VERIFY_SIGNATURE" // Signature state of an input cannot be established
	ErrInvalidSignature      = "INVALID_SIGNATURE"          // Signature fails sighash verification
	ErrNoMatchingPublicKey   = "NO_MATCHING_PUBLIC_KEY"     // Signature key is not part of the input
	ErrAllSignaturesAdded    = "ALL_SIGNATURES_ADDED"       // Threshold already met
	ErrDuplicateSignature    = "DUPLICATE_SIGNATURE"        // Key slot already holds a signature
	ErrInvalidPublicKeys     = "INVALID_PUBLIC_KEYS"        // Keys or redeem script don't match the locking script
	ErrInvalidSorting        = "INVALID_SORTING"            // New output order is not a permutation
	ErrInvalidIndex          = "INVALID_INDEX"              // Input or output index out of range
	ErrLockTimeTooEarly      = "LOCKTIME_TOO_EARLY"         // Date lock below the block height limit
	ErrBlockHeightTooHigh    = "BLOCK_HEIGHT_TOO_HIGH"      // Height lock above the block height limit
	ErrNLockTimeOutOfRange   = "NLOCKTIME_OUT_OF_RANGE"     // Lock time does not fit in 32 bits
	ErrInconsistentObject    = "INCONSISTENT_OBJECT"        // Object form disagrees with itself
	ErrSanityCheck           = "SANITY_CHECK_FAILED"        // Verify() rejected the transaction

	ErrInputIndexOutOfRange  = "INPUT_INDEX_OUT_OF_RANGE" // Sighash for a missing input
	ErrSighashSingleNoOutput = "SIGHASH_SINGLE_NO_OUTPUT" // SIGHASH_SINGLE without a matching output
	ErrMalformedSubscript    = "MALFORMED_SUBSCRIPT"      // Subscript does not tokenize

	ErrInvalidSatoshis        = "INVALID_SATOSHIS"          // An output value is invalid
	ErrInvalidOutputAmountSum = "INVALID_OUTPUT_AMOUNT_SUM" // Outputs spend more than the inputs
	ErrFeeDifferent           = "FEE_DIFFERENT"             // Explicit fee differs from the unspent value
	ErrFeeTooLarge            = "FEE_TOO_LARGE"             // Fee above the security margin
	ErrFeeTooSmall            = "FEE_TOO_SMALL"             // Fee below the security margin
	ErrChangeAddressMissing   = "CHANGE_ADDRESS_MISSING"    // Fee too large and no change destination
	ErrDustOutputs            = "DUST_OUTPUTS"              // An output is below the dust threshold
	ErrMissingSignatures      = "MISSING_SIGNATURES"        // Some input is not fully signed
)

func newError(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func inputError(index int, code, format string, args ...interface{}) *InputError {
	return &InputError{InputIndex: index, Code: code, Message: fmt.Sprintf(format, args...)}
}

func abstractMethod(name string) *InputError {
	return inputError(-1, ErrAbstractMethod,
		"%s: unrecognized script kind, the input must be reconstructed with its spent output before it can be signed or validated", name)
}
