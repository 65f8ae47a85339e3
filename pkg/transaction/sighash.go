package transaction

import (
	"math/big"

	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/encoding"
	"github.com/suffix-labs/bchtx/pkg/script"
)

// SignatureHash computes the digest a signature over input index commits to.
//
// With SigHashForkID set the amount-committing preimage is used and amount
// must be the value of the spent output. Without it the legacy preimage is
// built and amount is ignored.
func SignatureHash(tx *Transaction, sigtype SigHashType, index int, subscript []byte, amount *big.Int) ([32]byte, error) {
	if index < 0 || index >= len(tx.inputs) {
		return [32]byte{}, &SighashError{InputIndex: index, Code: ErrInputIndexOutOfRange,
			Message: "input index out of range"}
	}
	if err := script.Validate(subscript); err != nil {
		return [32]byte{}, &SighashError{InputIndex: index, Code: ErrMalformedSubscript,
			Message: "subscript does not parse", Cause: err}
	}
	if sigtype.Base() == SigHashSingle && index >= len(tx.outputs) {
		return [32]byte{}, &SighashError{InputIndex: index, Code: ErrSighashSingleNoOutput,
			Message: "no output at the index of the signed input"}
	}

	var preimage []byte
	if sigtype.HasForkID() {
		if amount == nil {
			return [32]byte{}, &SighashError{InputIndex: index, Code: ErrMissingPreviousOutput,
				Message: "forkid digest requires the spent amount"}
		}
		preimage = forkIDPreimage(tx, sigtype, index, subscript, amount)
	} else {
		stripped, err := script.RemoveCodeSeparators(subscript)
		if err != nil {
			return [32]byte{}, &SighashError{InputIndex: index, Code: ErrMalformedSubscript,
				Message: "subscript does not parse", Cause: err}
		}
		preimage = legacyPreimage(tx, sigtype, index, stripped)
	}
	return crypto.Sha256d(preimage), nil
}

// legacyPreimage serializes a modified copy of the transaction: every
// unlocking script emptied except the signed one, which carries subscript.
func legacyPreimage(tx *Transaction, sigtype SigHashType, index int, subscript []byte) []byte {
	base := sigtype.Base()
	w := encoding.NewWriter()
	w.WriteInt32LE(tx.Version)

	writeIn := func(i int, s []byte, seq uint32) {
		in := tx.inputs[i].Base()
		w.Write(in.PrevTxID[:])
		w.WriteUint32LE(in.OutputIndex)
		w.WriteVarBytes(s)
		w.WriteUint32LE(seq)
	}
	if sigtype.AnyoneCanPay() {
		w.WriteVarInt(1)
		writeIn(index, subscript, tx.inputs[index].Base().SequenceNumber)
	} else {
		w.WriteVarInt(uint64(len(tx.inputs)))
		for i, in := range tx.inputs {
			seq := in.Base().SequenceNumber
			if i == index {
				writeIn(i, subscript, seq)
				continue
			}
			if base == SigHashNone || base == SigHashSingle {
				seq = 0
			}
			writeIn(i, nil, seq)
		}
	}

	switch base {
	case SigHashNone:
		w.WriteVarInt(0)
	case SigHashSingle:
		w.WriteVarInt(uint64(index + 1))
		for i := 0; i < index; i++ {
			w.WriteUint64LE(0xffffffffffffffff)
			w.WriteVarInt(0)
		}
		tx.outputs[index].writeTo(w)
	default:
		w.WriteVarInt(uint64(len(tx.outputs)))
		for _, out := range tx.outputs {
			out.writeTo(w)
		}
	}

	w.WriteUint32LE(tx.LockTime)
	w.WriteUint32LE(uint32(sigtype))
	return w.Bytes()
}

// forkIDPreimage builds the amount-committing preimage of the replay
// protected digest.
func forkIDPreimage(tx *Transaction, sigtype SigHashType, index int, subscript []byte, amount *big.Int) []byte {
	base := sigtype.Base()
	var hashPrevouts, hashSequence, hashOutputs [32]byte

	if !sigtype.AnyoneCanPay() {
		w := encoding.NewWriter()
		for _, in := range tx.inputs {
			b := in.Base()
			w.Write(b.PrevTxID[:])
			w.WriteUint32LE(b.OutputIndex)
		}
		hashPrevouts = crypto.Sha256d(w.Bytes())
	}

	if !sigtype.AnyoneCanPay() && base != SigHashSingle && base != SigHashNone {
		w := encoding.NewWriter()
		for _, in := range tx.inputs {
			w.WriteUint32LE(in.Base().SequenceNumber)
		}
		hashSequence = crypto.Sha256d(w.Bytes())
	}

	switch {
	case base != SigHashSingle && base != SigHashNone:
		w := encoding.NewWriter()
		for _, out := range tx.outputs {
			out.writeTo(w)
		}
		hashOutputs = crypto.Sha256d(w.Bytes())
	case base == SigHashSingle && index < len(tx.outputs):
		hashOutputs = crypto.Sha256d(tx.outputs[index].Bytes())
	}

	in := tx.inputs[index].Base()
	w := encoding.NewWriter()
	w.WriteInt32LE(tx.Version)
	w.Write(hashPrevouts[:])
	w.Write(hashSequence[:])
	w.Write(in.PrevTxID[:])
	w.WriteUint32LE(in.OutputIndex)
	w.WriteVarBytes(subscript)
	w.WriteUint64LEBig(amount)
	w.WriteUint32LE(in.SequenceNumber)
	w.Write(hashOutputs[:])
	w.WriteUint32LE(tx.LockTime)
	w.WriteUint32LE(uint32(sigtype))
	return w.Bytes()
}

// signInput returns the DER signature of key over the digest of input index
func (tx *Transaction) signInput(key *crypto.PrivateKey, sigtype SigHashType, index int, subscript []byte, amount *big.Int) ([]byte, error) {
	hash, err := SignatureHash(tx, sigtype, index, subscript, amount)
	if err != nil {
		return nil, err
	}
	return key.Sign(hash), nil
}

// VerifySignature checks a DER signature of pubkey over the digest of input
// index. A digest that cannot be computed is returned as an error.
func (tx *Transaction) VerifySignature(der []byte, pub *crypto.PublicKey, sigtype SigHashType, index int, subscript []byte, amount *big.Int) (bool, error) {
	hash, err := SignatureHash(tx, sigtype, index, subscript, amount)
	if err != nil {
		return false, err
	}
	return crypto.VerifySignature(pub, hash, der), nil
}

// InputSighash computes the digest a signature for input index must cover.
// The subscript is the redeem script for script hash inputs and the spent
// locking script otherwise, so the spent output must be attached.
func (tx *Transaction) InputSighash(index int, sigtype SigHashType) ([32]byte, error) {
	if index < 0 || index >= len(tx.inputs) {
		return [32]byte{}, &SighashError{InputIndex: index, Code: ErrInputIndexOutOfRange,
			Message: "input index out of range"}
	}
	in := tx.inputs[index]
	base := in.Base()
	if err := base.requireOutput(index); err != nil {
		return [32]byte{}, err
	}
	subscript := base.lockingScript()
	switch in := in.(type) {
	case *MultiSigScriptHashInput:
		subscript = in.RedeemScript()
	case *ScriptHashInput:
		subscript = in.RedeemScript()
	}
	return SignatureHash(tx, orDefault(sigtype), index, subscript, base.output.satoshisBN)
}
