package transaction

import (
	"encoding/hex"
	"errors"
	"fmt"

	klog "github.com/suffix-labs/bchtx/internal/log"
	"github.com/suffix-labs/bchtx/pkg/encoding"
	"github.com/suffix-labs/bchtx/pkg/script"
)

// Bytes returns the wire encoding. The witness section is written when some
// input carries witnesses and noWitness is false.
func (tx *Transaction) Bytes(noWitness bool) []byte {
	w := encoding.NewWriter()
	withWitness := tx.HasWitnesses() && !noWitness

	w.WriteInt32LE(tx.Version)
	if withWitness {
		w.WriteUint8(0x00).WriteUint8(0x01)
	}
	w.WriteVarInt(uint64(len(tx.inputs)))
	for _, in := range tx.inputs {
		in.Base().writeTo(w)
	}
	w.WriteVarInt(uint64(len(tx.outputs)))
	for _, out := range tx.outputs {
		out.writeTo(w)
	}
	if withWitness {
		for _, in := range tx.inputs {
			stack := in.Base().witnesses
			w.WriteVarInt(uint64(len(stack)))
			for _, item := range stack {
				w.WriteVarBytes(item)
			}
		}
	}
	w.WriteUint32LE(tx.LockTime)
	return w.Bytes()
}

// String returns the hex wire encoding without any policy check
func (tx *Transaction) String() string {
	return hex.EncodeToString(tx.Bytes(false))
}

// UncheckedSerialize is String, for symmetry with Serialize
func (tx *Transaction) UncheckedSerialize() string {
	return tx.String()
}

// SerializeOptions disables individual policy checks of Serialize.
type SerializeOptions struct {
	DisableAll                 bool
	DisableSmallFees           bool
	DisableLargeFees           bool
	DisableIsFullySigned       bool
	DisableDustOutputs         bool
	DisableMoreOutputThanInput bool
}

// Serialize returns the hex encoding after running the policy checks not
// disabled by opts.
func (tx *Transaction) Serialize(opts SerializeOptions) (string, error) {
	if opts.DisableAll {
		return tx.UncheckedSerialize(), nil
	}
	return tx.CheckedSerialize(opts)
}

// CheckedSerialize runs the policy checks and serializes
func (tx *Transaction) CheckedSerialize(opts SerializeOptions) (string, error) {
	if err := tx.SerializationError(opts); err != nil {
		klog.Transaction.Debug().Err(err).Str("txid", tx.ID()).Msg("Serialization refused")
		return "", err
	}
	return tx.UncheckedSerialize(), nil
}

// InvalidSatoshis reports whether some output value is invalid
func (tx *Transaction) InvalidSatoshis() bool {
	for _, out := range tx.outputs {
		if out.InvalidSatoshis() != "" {
			return true
		}
	}
	return false
}

// SerializationError returns the first policy check that fails, nil if the
// transaction is safe to broadcast. Policy failures are *SerializationError.
func (tx *Transaction) SerializationError(opts SerializeOptions) error {
	if tx.InvalidSatoshis() {
		return &SerializationError{Code: ErrInvalidSatoshis, Message: "output satoshis are invalid"}
	}

	unspent, err := tx.unspentValue()
	if err != nil {
		return err
	}
	if unspent < 0 {
		if !opts.DisableMoreOutputThanInput {
			return &SerializationError{Code: ErrInvalidOutputAmountSum,
				Message: "output satoshis exceed input satoshis"}
		}
	} else if err := tx.feeError(opts, unspent); err != nil {
		return err
	}

	if err := tx.dustError(opts); err != nil {
		return err
	}
	if !opts.DisableIsFullySigned {
		signed, err := tx.IsFullySigned()
		if err != nil {
			return err
		}
		if !signed {
			return &SerializationError{Code: ErrMissingSignatures, Message: "some inputs have not been fully signed"}
		}
	}
	return nil
}

func (tx *Transaction) feeError(opts SerializeOptions, unspent int64) error {
	if tx.fee != nil && *tx.fee != unspent {
		return &SerializationError{Code: ErrFeeDifferent,
			Message: fmt.Sprintf("unspent value is %d but specified fee is %d", unspent, *tx.fee)}
	}

	estimate, err := tx.estimateFee()
	if err != nil {
		return err
	}
	if !opts.DisableLargeFees {
		maximum := FeeSecurityMargin * estimate
		if unspent > maximum {
			if tx.changeScript == nil {
				return &SerializationError{Code: ErrChangeAddressMissing,
					Message: "fee is too large and no change address was provided"}
			}
			return &SerializationError{Code: ErrFeeTooLarge,
				Message: fmt.Sprintf("expected less than %d but got %d", maximum, unspent)}
		}
	}
	if !opts.DisableSmallFees {
		minimum := ceilDiv(estimate, FeeSecurityMargin)
		if unspent < minimum {
			return &SerializationError{Code: ErrFeeTooSmall,
				Message: fmt.Sprintf("expected more than %d but got %d", minimum, unspent)}
		}
	}
	return nil
}

func (tx *Transaction) dustError(opts SerializeOptions) error {
	if opts.DisableDustOutputs {
		return nil
	}
	for _, out := range tx.outputs {
		if out.satoshis < DustAmount && !script.IsDataOut(out.script) {
			return &SerializationError{Code: ErrDustOutputs, Message: "dust amount detected in one output"}
		}
	}
	return nil
}

// NewFromHex decodes a hex wire encoding
func NewFromHex(s string) (*Transaction, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, &Error{Code: ErrMalformedTransaction, Message: "invalid transaction hex", Cause: err}
	}
	return NewFromBytes(b)
}

// NewFromBytes decodes a wire encoding, witness section included. Inputs
// come back generic: the wire format does not say what they spend. Trailing
// bytes are rejected.
func NewFromBytes(b []byte) (*Transaction, error) {
	if len(b) == 0 {
		return nil, newError(ErrMalformedTransaction, "no transaction data received")
	}
	tx, err := readTransaction(encoding.NewReader(b))
	if err != nil {
		return nil, &Error{Code: ErrMalformedTransaction, Message: "decoding transaction", Cause: err}
	}
	return tx, nil
}

func readTransaction(r *encoding.Reader) (*Transaction, error) {
	tx := New()

	version, err := r.ReadInt32LE()
	if err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	tx.Version = version

	count, err := r.ReadVarInt()
	if err != nil {
		return nil, fmt.Errorf("reading input count: %w", err)
	}
	hasWitnesses := false
	if count == 0 {
		if flag, err := r.PeekByte(); err == nil && flag != 0 {
			if flag != 0x01 {
				return nil, fmt.Errorf("unsupported witness flag 0x%02x", flag)
			}
			_, _ = r.ReadByte()
			hasWitnesses = true
			if count, err = r.ReadVarInt(); err != nil {
				return nil, fmt.Errorf("reading input count: %w", err)
			}
		}
	}

	// Every input takes at least 41 bytes.
	tx.inputs = make([]Input, 0, min(count, uint64(r.Len()/41)))
	for i := uint64(0); i < count; i++ {
		in, err := readInput(r)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		tx.inputs = append(tx.inputs, in)
	}

	count, err = r.ReadVarInt()
	if err != nil {
		return nil, fmt.Errorf("reading output count: %w", err)
	}
	tx.outputs = make([]*Output, 0, min(count, uint64(r.Len()/9)))
	for i := uint64(0); i < count; i++ {
		out, err := readOutput(r)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		tx.outputs = append(tx.outputs, out)
	}

	if hasWitnesses {
		for i, in := range tx.inputs {
			stack, err := readWitnessStack(r)
			if err != nil {
				return nil, fmt.Errorf("witness %d: %w", i, err)
			}
			in.Base().witnesses = stack
		}
		if !tx.HasWitnesses() {
			return nil, errors.New("witness flag set but every witness stack is empty")
		}
	}

	if tx.LockTime, err = r.ReadUint32LE(); err != nil {
		return nil, fmt.Errorf("reading lock time: %w", err)
	}
	if !r.Finished() {
		return nil, fmt.Errorf("%d trailing bytes after transaction", r.Len())
	}
	return tx, nil
}

func readWitnessStack(r *encoding.Reader) ([][]byte, error) {
	n, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		return nil, errors.New("witness item count exceeds remaining data")
	}
	stack := make([][]byte, 0, n)
	for j := uint64(0); j < n; j++ {
		item, err := r.ReadVarBytes()
		if err != nil {
			return nil, err
		}
		stack = append(stack, item)
	}
	return stack, nil
}
