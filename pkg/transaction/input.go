package transaction

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/encoding"
	"github.com/suffix-labs/bchtx/pkg/script"
)

// Kind identifies the spend template an Input knows how to satisfy.
type Kind int

const (
	KindGeneric Kind = iota
	KindPublicKey
	KindPublicKeyHash
	KindMultiSig
	KindMultiSigScriptHash
	KindScriptHash
)

func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindPublicKey:
		return "publickey"
	case KindPublicKeyHash:
		return "publickeyhash"
	case KindMultiSig:
		return "multisig"
	case KindMultiSigScriptHash:
		return "multisigscripthash"
	case KindScriptHash:
		return "scripthash"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Input is a reference to a previous output together with the script that
// unlocks it.
//
// The signing capabilities (GetSignatures, AddSignature, ClearSignatures,
// IsFullySigned) are only available on typed inputs. A
// generic input, e.g. one decoded from wire bytes, returns an
// ErrAbstractMethod error from all of them: its spend condition is unknown
// until the spent output is attached.
type Input interface {
	// Base returns the fields shared by every input kind.
	Base() *BaseInput

	Kind() Kind

	// GetSignatures signs this input with key if key can satisfy it.
	// hashData is the HASH160 of key's public key, precomputed for batches.
	GetSignatures(tx *Transaction, key *crypto.PrivateKey, index int, sigtype SigHashType, hashData []byte) ([]*Signature, error)

	// AddSignature verifies sig against tx and rebuilds the unlocking script.
	AddSignature(tx *Transaction, sig *Signature) error

	// ClearSignatures drops every signature and resets the unlocking script.
	ClearSignatures() error

	IsFullySigned() (bool, error)
	IsValidSignature(tx *Transaction, sig *Signature) (bool, error)

	// EstimateSize is the worst case unlocking script size used for fee
	// estimation before signatures exist.
	EstimateSize() int

	// Clone returns a deep copy.
	Clone() Input

	ToObject() *InputObject
}

// InputParams holds the fields needed to construct any input kind.
type InputParams struct {
	PrevTxID       chainhash.Hash
	OutputIndex    uint32
	SequenceNumber *uint32 // nil selects DefaultSeqNumber
	Script         []byte  // required, script.Empty() for unsigned inputs
	Output         *Output // the spent output, if known
}

// BaseInput carries the fields common to all inputs. On its own it is the
// generic input kind.
type BaseInput struct {
	PrevTxID       chainhash.Hash
	OutputIndex    uint32
	SequenceNumber uint32

	script    []byte
	output    *Output
	witnesses [][]byte
}

// NewInput creates a generic input
func NewInput(p InputParams) (*BaseInput, error) {
	if p.Script == nil {
		return nil, inputError(-1, ErrMissingScript, "need a script to create an input")
	}
	seq := uint32(DefaultSeqNumber)
	if p.SequenceNumber != nil {
		seq = *p.SequenceNumber
	}
	return &BaseInput{
		PrevTxID:       p.PrevTxID,
		OutputIndex:    p.OutputIndex,
		SequenceNumber: seq,
		script:         cloneBytes(p.Script),
		output:         p.Output,
	}, nil
}

func (in *BaseInput) Base() *BaseInput { return in }
func (in *BaseInput) Kind() Kind       { return KindGeneric }

// Script returns the unlocking script
func (in *BaseInput) Script() []byte {
	return in.script
}

// SetScript replaces the unlocking script
func (in *BaseInput) SetScript(s []byte) {
	in.script = cloneBytes(s)
}

// Output returns the spent output, nil if unknown
func (in *BaseInput) Output() *Output {
	return in.output
}

// SetOutput attaches the spent output
func (in *BaseInput) SetOutput(o *Output) {
	in.output = o
}

// IsNull reports whether this is the coinbase sentinel input
func (in *BaseInput) IsNull() bool {
	return in.PrevTxID == (chainhash.Hash{}) && in.OutputIndex == 0xffffffff
}

// IsFinal reports whether the sequence number is not the maximum
func (in *BaseInput) IsFinal() bool {
	return in.SequenceNumber != MaxInt
}

func (in *BaseInput) HasWitnesses() bool {
	return len(in.witnesses) > 0
}

func (in *BaseInput) Witnesses() [][]byte {
	return in.witnesses
}

func (in *BaseInput) SetWitnesses(w [][]byte) {
	in.witnesses = make([][]byte, len(w))
	for i, item := range w {
		in.witnesses[i] = cloneBytes(item)
	}
}

func (in *BaseInput) GetSignatures(*Transaction, *crypto.PrivateKey, int, SigHashType, []byte) ([]*Signature, error) {
	return nil, abstractMethod("GetSignatures")
}

func (in *BaseInput) AddSignature(*Transaction, *Signature) error {
	return abstractMethod("AddSignature")
}

func (in *BaseInput) ClearSignatures() error {
	return abstractMethod("ClearSignatures")
}

func (in *BaseInput) IsFullySigned() (bool, error) {
	return false, abstractMethod("IsFullySigned")
}

// IsValidSignature verifies sig against the spent output's locking script
func (in *BaseInput) IsValidSignature(tx *Transaction, sig *Signature) (bool, error) {
	return in.verifyWith(tx, sig, in.lockingScript())
}

// EstimateSize of a generic input is its current serialized size
func (in *BaseInput) EstimateSize() int {
	return in.Size()
}

// Size returns the serialized size, witnesses excluded
func (in *BaseInput) Size() int {
	return 32 + 4 + encoding.VarIntSize(uint64(len(in.script))) + len(in.script) + 4
}

func (in *BaseInput) Clone() Input {
	return in.cloneBase()
}

func (in *BaseInput) cloneBase() *BaseInput {
	c := &BaseInput{
		PrevTxID:       in.PrevTxID,
		OutputIndex:    in.OutputIndex,
		SequenceNumber: in.SequenceNumber,
		script:         cloneBytes(in.script),
	}
	if in.output != nil {
		c.output = in.output.Clone()
	}
	if in.witnesses != nil {
		c.SetWitnesses(in.witnesses)
	}
	return c
}

func (in *BaseInput) writeTo(w *encoding.Writer) {
	w.Write(in.PrevTxID[:])
	w.WriteUint32LE(in.OutputIndex)
	w.WriteVarBytes(in.script)
	w.WriteUint32LE(in.SequenceNumber)
}

// readInput decodes a single input. The spend type cannot be known from wire
// bytes alone, so the result is always a generic input.
func readInput(r *encoding.Reader) (*BaseInput, error) {
	prev, err := r.ReadBytes(chainhash.HashSize)
	if err != nil {
		return nil, fmt.Errorf("reading prevout txid: %w", err)
	}
	index, err := r.ReadUint32LE()
	if err != nil {
		return nil, fmt.Errorf("reading prevout index: %w", err)
	}
	s, err := r.ReadVarBytes()
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	seq, err := r.ReadUint32LE()
	if err != nil {
		return nil, fmt.Errorf("reading sequence: %w", err)
	}

	in := &BaseInput{OutputIndex: index, SequenceNumber: seq, script: s}
	copy(in.PrevTxID[:], prev)
	return in, nil
}

// verifyWith checks sig against subscript and the spent output's value
func (in *BaseInput) verifyWith(tx *Transaction, sig *Signature, subscript []byte) (bool, error) {
	if in.output == nil || subscript == nil {
		return false, inputError(sig.InputIndex, ErrMissingPreviousOutput, "spent output is not attached")
	}
	return tx.VerifySignature(sig.Signature, sig.PublicKey, sig.SigType, sig.InputIndex, subscript, in.output.satoshisBN)
}

// signWith produces a Signature for this input over subscript
func (in *BaseInput) signWith(tx *Transaction, key *crypto.PrivateKey, index int, sigtype SigHashType, subscript []byte) (*Signature, error) {
	der, err := tx.signInput(key, sigtype, index, subscript, in.output.satoshisBN)
	if err != nil {
		return nil, err
	}
	return &Signature{
		PublicKey:   key.PublicKey(),
		PrevTxID:    in.PrevTxID,
		OutputIndex: in.OutputIndex,
		InputIndex:  index,
		Signature:   der,
		SigType:     sigtype,
	}, nil
}

func (in *BaseInput) requireOutput(index int) error {
	if in.output == nil {
		return inputError(index, ErrMissingPreviousOutput, "malformed output found when signing transaction")
	}
	return nil
}

// InputObject is the JSON form of an Input
type InputObject struct {
	PrevTxID       string             `json:"prevTxId"`
	OutputIndex    uint32             `json:"outputIndex"`
	SequenceNumber uint32             `json:"sequenceNumber"`
	Script         string             `json:"script"`
	ScriptString   string             `json:"scriptString,omitempty"`
	Output         *OutputObject      `json:"output,omitempty"`
	Witnesses      []string           `json:"witnesses,omitempty"`
	Threshold      int                `json:"threshold,omitempty"`
	PublicKeys     []string           `json:"publicKeys,omitempty"`
	Signatures     []*SignatureObject `json:"signatures,omitempty"`
	RedeemScript   string             `json:"redeemScript,omitempty"`
}

func (in *BaseInput) ToObject() *InputObject {
	obj := &InputObject{
		PrevTxID:       in.PrevTxID.String(),
		OutputIndex:    in.OutputIndex,
		SequenceNumber: in.SequenceNumber,
		Script:         hex.EncodeToString(in.script),
	}
	if len(in.script) > 0 && !in.IsNull() && script.Validate(in.script) == nil {
		obj.ScriptString = script.Disasm(in.script)
	}
	if in.output != nil {
		obj.Output = in.output.ToObject()
	}
	for _, w := range in.witnesses {
		obj.Witnesses = append(obj.Witnesses, hex.EncodeToString(w))
	}
	return obj
}

// params converts the object's shared fields into InputParams
func (obj *InputObject) params() (InputParams, error) {
	var p InputParams
	prev, err := chainhash.NewHashFromStr(obj.PrevTxID)
	if err != nil {
		return p, &Error{Code: ErrInvalidArgument, Message: "invalid prevTxId", Cause: err}
	}
	s, err := hex.DecodeString(obj.Script)
	if err != nil {
		return p, &Error{Code: ErrInvalidArgument, Message: "invalid input script hex", Cause: err}
	}
	if s == nil {
		s = []byte{}
	}
	seq := obj.SequenceNumber
	p = InputParams{
		PrevTxID:       *prev,
		OutputIndex:    obj.OutputIndex,
		SequenceNumber: &seq,
		Script:         s,
	}
	if obj.Output != nil {
		out, err := OutputFromObject(obj.Output)
		if err != nil {
			return p, err
		}
		p.Output = out
	}
	return p, nil
}

func (obj *InputObject) witnesses() ([][]byte, error) {
	var out [][]byte
	for _, w := range obj.Witnesses {
		b, err := hex.DecodeString(w)
		if err != nil {
			return nil, &Error{Code: ErrInvalidArgument, Message: "invalid witness hex", Cause: err}
		}
		out = append(out, b)
	}
	return out, nil
}

func (in *BaseInput) lockingScript() []byte {
	if in.output == nil {
		return nil
	}
	return in.output.script
}
