// Package encoding implements the byte cursor used by the transaction wire
// format.
//
// Reader and Writer cover the primitives a serialized transaction is made of:
//   - Little-endian fixed width integers (int32, uint32, uint64)
//   - Variable length integers (CompactSize: 1, 3, 5 or 9 bytes)
//   - Reversed byte sequences (hashes are stored little-endian on the wire)
//   - Length-prefixed byte strings
//
// The varint encoding is delegated to btcd's wire package so the thresholds
// (0xfd, 0xffff, 0xffffffff) and canonical-form checks match the reference
// node implementation.
package encoding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/btcsuite/btcd/wire"
)

// ErrUnexpectedEOF is returned when a read runs past the end of the buffer.
var ErrUnexpectedEOF = errors.New("unexpected end of buffer")

// Reader is a sequential cursor over a byte slice.
type Reader struct {
	r *bytes.Reader
}

// NewReader creates a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{r: bytes.NewReader(data)}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return r.r.Len()
}

// Finished reports whether every byte has been consumed.
func (r *Reader) Finished() bool {
	return r.r.Len() == 0
}

// Pos returns the current offset.
func (r *Reader) Pos() int {
	return int(r.r.Size()) - r.r.Len()
}

// PeekByte returns the next byte without consuming it.
func (r *Reader) PeekByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, ErrUnexpectedEOF
	}
	_ = r.r.UnreadByte()
	return b, nil
}

// ReadByte consumes a single byte.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, ErrUnexpectedEOF
	}
	return b, nil
}

// ReadUint32LE reads a little-endian uint32.
func (r *Reader) ReadUint32LE() (uint32, error) {
	var v uint32
	if err := binary.Read(r.r, binary.LittleEndian, &v); err != nil {
		return 0, ErrUnexpectedEOF
	}
	return v, nil
}

// ReadInt32LE reads a little-endian int32.
func (r *Reader) ReadInt32LE() (int32, error) {
	var v int32
	if err := binary.Read(r.r, binary.LittleEndian, &v); err != nil {
		return 0, ErrUnexpectedEOF
	}
	return v, nil
}

// ReadUint64LE reads a little-endian uint64.
func (r *Reader) ReadUint64LE() (uint64, error) {
	var v uint64
	if err := binary.Read(r.r, binary.LittleEndian, &v); err != nil {
		return 0, ErrUnexpectedEOF
	}
	return v, nil
}

// ReadUint64LEBig reads a little-endian uint64 into an arbitrary precision
// integer, so values above the int64 range survive unchanged.
func (r *Reader) ReadUint64LEBig() (*big.Int, error) {
	v, err := r.ReadUint64LE()
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(v), nil
}

// ReadVarInt reads a CompactSize integer.
func (r *Reader) ReadVarInt() (uint64, error) {
	v, err := wire.ReadVarInt(r.r, 0)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrUnexpectedEOF
		}
		return 0, err
	}
	return v, nil
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.r.Len() {
		return nil, ErrUnexpectedEOF
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, ErrUnexpectedEOF
	}
	return buf, nil
}

// ReadReverse reads n bytes and returns them in reverse order.
func (r *Reader) ReadReverse(n int) ([]byte, error) {
	buf, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	Reverse(buf)
	return buf, nil
}

// ReadVarBytes reads a varint length followed by that many bytes.
func (r *Reader) ReadVarBytes() ([]byte, error) {
	n, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.r.Len()) {
		return nil, fmt.Errorf("length prefix %d exceeds remaining %d bytes: %w", n, r.r.Len(), ErrUnexpectedEOF)
	}
	return r.ReadBytes(int(n))
}

// Reverse reverses b in place.
func Reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
