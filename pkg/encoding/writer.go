package encoding

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/btcsuite/btcd/wire"
)

// Writer accumulates wire-encoded values. Writes to the underlying buffer
// cannot fail, so the methods return the Writer for chaining.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Write appends raw bytes.
func (w *Writer) Write(b []byte) *Writer {
	w.buf.Write(b)
	return w
}

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(b byte) *Writer {
	w.buf.WriteByte(b)
	return w
}

// WriteReverse appends b in reverse order without modifying b.
func (w *Writer) WriteReverse(b []byte) *Writer {
	for i := len(b) - 1; i >= 0; i-- {
		w.buf.WriteByte(b[i])
	}
	return w
}

// WriteUint32LE appends a little-endian uint32.
func (w *Writer) WriteUint32LE(v uint32) *Writer {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
	return w
}

// WriteInt32LE appends a little-endian int32.
func (w *Writer) WriteInt32LE(v int32) *Writer {
	return w.WriteUint32LE(uint32(v))
}

// WriteUint64LE appends a little-endian uint64.
func (w *Writer) WriteUint64LE(v uint64) *Writer {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
	return w
}

// WriteUint64LEBig appends the low 64 bits of v as a little-endian uint64.
func (w *Writer) WriteUint64LEBig(v *big.Int) *Writer {
	if v.Sign() < 0 {
		// Two's complement, matching a cast of the native value.
		return w.WriteUint64LE(uint64(v.Int64()))
	}
	return w.WriteUint64LE(v.Uint64())
}

// WriteVarInt appends a CompactSize integer.
func (w *Writer) WriteVarInt(v uint64) *Writer {
	_ = wire.WriteVarInt(&w.buf, 0, v)
	return w
}

// WriteVarBytes appends a varint length followed by b.
func (w *Writer) WriteVarBytes(b []byte) *Writer {
	w.WriteVarInt(uint64(len(b)))
	w.buf.Write(b)
	return w
}

// VarIntSize returns the encoded size of a CompactSize integer.
func VarIntSize(v uint64) int {
	return wire.VarIntSerializeSize(v)
}
