package transaction

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/suffix-labs/bchtx/pkg/encoding"
	"github.com/suffix-labs/bchtx/pkg/script"
)

// Output is a value locked by a script.
//
// The value is held twice: as an int64 and as an arbitrary precision integer
// read straight from the wire. The two must agree; a mismatch means the wire
// value did not fit the native type.
type Output struct {
	satoshis   int64
	satoshisBN *big.Int
	script     []byte
}

// NewOutput creates an output of satoshis locked by lockingScript
func NewOutput(satoshis int64, lockingScript []byte) (*Output, error) {
	if satoshis < 0 {
		return nil, newError(ErrInvalidArgument, "output satoshis is not a natural number: %d", satoshis)
	}
	return &Output{
		satoshis:   satoshis,
		satoshisBN: big.NewInt(satoshis),
		script:     cloneBytes(lockingScript),
	}, nil
}

// NewOutputFromHex creates an output with a hex-encoded locking script
func NewOutputFromHex(satoshis int64, scriptHex string) (*Output, error) {
	s, err := hex.DecodeString(scriptHex)
	if err != nil {
		return nil, &Error{Code: ErrInvalidArgument, Message: "invalid output script hex", Cause: err}
	}
	return NewOutput(satoshis, s)
}

// NewOutputFromBig creates an output whose native value is the (possibly
// truncated) conversion of v. Used by the wire decoder.
func NewOutputFromBig(v *big.Int, lockingScript []byte) *Output {
	return &Output{
		satoshis:   v.Int64(),
		satoshisBN: new(big.Int).Set(v),
		script:     cloneBytes(lockingScript),
	}
}

// Satoshis returns the native value
func (o *Output) Satoshis() int64 {
	return o.satoshis
}

// SatoshisBig returns a copy of the arbitrary precision value
func (o *Output) SatoshisBig() *big.Int {
	return new(big.Int).Set(o.satoshisBN)
}

// SetSatoshis replaces the value, keeping both representations in sync
func (o *Output) SetSatoshis(satoshis int64) error {
	if satoshis < 0 {
		return newError(ErrInvalidArgument, "output satoshis is not a natural number: %d", satoshis)
	}
	o.satoshis = satoshis
	o.satoshisBN = big.NewInt(satoshis)
	return nil
}

// Script returns the locking script
func (o *Output) Script() []byte {
	return o.script
}

// SetScript replaces the locking script
func (o *Output) SetScript(lockingScript []byte) {
	o.script = cloneBytes(lockingScript)
}

// Class classifies the locking script. Unparseable scripts are Unknown.
func (o *Output) Class() script.Class {
	return script.Classify(o.script)
}

// InvalidSatoshis returns the reason the value is invalid, or "" if it is
// valid.
func (o *Output) InvalidSatoshis() string {
	if o.satoshis > MaxSafeInteger {
		return "transaction txout satoshis greater than max safe integer"
	}
	if !o.satoshisBN.IsInt64() || o.satoshisBN.Int64() != o.satoshis {
		return "transaction txout satoshis has corrupted value"
	}
	if o.satoshis < 0 {
		return "transaction txout negative"
	}
	if o.satoshis > MaxMoney {
		return "transaction txout satoshis greater than max money"
	}
	return ""
}

// Size returns the serialized size
func (o *Output) Size() int {
	return 8 + encoding.VarIntSize(uint64(len(o.script))) + len(o.script)
}

// Clone returns a deep copy
func (o *Output) Clone() *Output {
	return &Output{
		satoshis:   o.satoshis,
		satoshisBN: new(big.Int).Set(o.satoshisBN),
		script:     cloneBytes(o.script),
	}
}

func (o *Output) String() string {
	return fmt.Sprintf("<Output (%d sats) %s>", o.satoshis, script.Disasm(o.script))
}

func (o *Output) writeTo(w *encoding.Writer) {
	w.WriteUint64LEBig(o.satoshisBN)
	w.WriteVarBytes(o.script)
}

// Bytes returns the wire encoding: value (u64 LE), script length, script
func (o *Output) Bytes() []byte {
	w := encoding.NewWriter()
	o.writeTo(w)
	return w.Bytes()
}

func readOutput(r *encoding.Reader) (*Output, error) {
	value, err := r.ReadUint64LEBig()
	if err != nil {
		return nil, fmt.Errorf("reading value: %w", err)
	}
	s, err := r.ReadVarBytes()
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return NewOutputFromBig(value, s), nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append([]byte{}, b...)
}

// OutputObject is the JSON form of an Output
type OutputObject struct {
	Satoshis int64  `json:"satoshis"`
	Script   string `json:"script"`
}

// ToObject returns the JSON form
func (o *Output) ToObject() *OutputObject {
	return &OutputObject{Satoshis: o.satoshis, Script: hex.EncodeToString(o.script)}
}

// OutputFromObject parses the JSON form
func OutputFromObject(obj *OutputObject) (*Output, error) {
	return NewOutputFromHex(obj.Satoshis, obj.Script)
}
