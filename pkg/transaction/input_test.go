package transaction

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/script"
)

// multisigScript returns the m-of-n locking script over keys in canonical order
func multisigScript(t *testing.T, threshold int, keys ...*crypto.PrivateKey) []byte {
	t.Helper()
	s, err := script.BuildMultisigOut(newSignatureSlots(pubkeys(keys...), threshold).keyBytes(), threshold)
	require.NoError(t, err)
	return s
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "generic", KindGeneric.String())
	assert.Equal(t, "multisigscripthash", KindMultiSigScriptHash.String())
}

func TestNewInputRequiresScript(t *testing.T) {
	_, err := NewInput(InputParams{PrevTxID: txid(1)})
	assert.Equal(t, ErrMissingScript, Code(err))

	seq := uint32(7)
	in, err := NewInput(InputParams{PrevTxID: txid(1), Script: script.Empty(), SequenceNumber: &seq})
	require.NoError(t, err)
	assert.Equal(t, uint32(7), in.SequenceNumber)
	assert.False(t, in.IsFinal())

	in, err = NewInput(InputParams{PrevTxID: txid(1), Script: script.Empty()})
	require.NoError(t, err)
	assert.Equal(t, uint32(DefaultSeqNumber), in.SequenceNumber)
	assert.True(t, in.IsFinal())
}

func TestGenericInputIsAbstract(t *testing.T) {
	in, err := NewInput(InputParams{PrevTxID: txid(1), Script: script.Empty()})
	require.NoError(t, err)

	_, err = in.GetSignatures(New(), privKey(t, 1), 0, SigHashAll, nil)
	assert.Equal(t, ErrAbstractMethod, Code(err))
	assert.Equal(t, ErrAbstractMethod, Code(in.AddSignature(New(), &Signature{})))
	assert.Equal(t, ErrAbstractMethod, Code(in.ClearSignatures()))
	_, err = in.IsFullySigned()
	assert.Equal(t, ErrAbstractMethod, Code(err))
	assert.Equal(t, in.Size(), in.EstimateSize())
}

func TestTypedInputsCheckTheirOutput(t *testing.T) {
	k1 := privKey(t, 1)
	wrong, err := NewOutput(1_000, script.BuildPublicKeyOut(k1.PublicKey().Bytes()))
	require.NoError(t, err)
	p := InputParams{PrevTxID: txid(1), Script: script.Empty(), Output: wrong}

	_, err = NewPublicKeyHashInput(p)
	assert.Equal(t, ErrUnsupportedScript, Code(err))
	_, err = NewMultiSigInput(p, pubkeys(k1), 1)
	assert.Equal(t, ErrInvalidPublicKeys, Code(err))
	_, err = NewMultiSigScriptHashInput(p, pubkeys(k1), 1)
	assert.Equal(t, ErrInvalidPublicKeys, Code(err))
	_, err = NewScriptHashInput(p, pubkeys(k1), script.BuildPublicKeyOut(k1.PublicKey().Bytes()))
	assert.Equal(t, ErrInvalidPublicKeys, Code(err))

	p.Output = nil
	_, err = NewMultiSigInput(p, pubkeys(k1), 1)
	assert.Equal(t, ErrMissingPreviousOutput, Code(err))
}

func TestBareMultisigSpend(t *testing.T) {
	k1, k2, k3 := privKey(t, 1), privKey(t, 2), privKey(t, 3)
	locking := multisigScript(t, 2, k1, k2, k3)

	tx := New()
	// Keys are given out of order; slots follow the sorted order.
	require.NoError(t, tx.FromMultisig([]UnspentOutput{utxo(locking, 0x44, 1, 100_000)}, pubkeys(k3, k1, k2), 2))
	require.NoError(t, tx.ToScript(p2pkh(k1), 90_000))

	in, ok := tx.Input(0).(*MultiSigInput)
	require.True(t, ok)
	assert.Equal(t, KindMultiSig, in.Kind())
	assert.Equal(t, 1+2*73, in.EstimateSize())
	assert.Equal(t, 2, in.CountMissingSignatures())

	require.NoError(t, tx.Sign([]*crypto.PrivateKey{k2}, SigHashAll))
	assert.Equal(t, 1, in.CountSignatures())
	assert.Len(t, in.PublicKeysWithoutSignature(), 2)
	signed, err := tx.IsFullySigned()
	require.NoError(t, err)
	assert.False(t, signed)

	require.NoError(t, tx.Sign([]*crypto.PrivateKey{k1}, SigHashAll))
	signed, err = tx.IsFullySigned()
	require.NoError(t, err)
	assert.True(t, signed)

	pushes, err := script.PushedData(in.Script())
	require.NoError(t, err)
	require.Len(t, pushes, 3)
	assert.Empty(t, pushes[0])
	execute(t, tx, 0, locking, 100_000)

	// A third key finds no free slot.
	extra, err := tx.GetSignatures(k3, SigHashAll)
	require.NoError(t, err)
	require.Len(t, extra, 1)
	assert.Equal(t, ErrAllSignaturesAdded, Code(tx.ApplySignature(extra[0])))
}

func TestMultisigSignatureChecks(t *testing.T) {
	k1, k2, k3 := privKey(t, 1), privKey(t, 2), privKey(t, 3)
	locking := multisigScript(t, 2, k1, k2)

	tx := New()
	require.NoError(t, tx.FromMultisig([]UnspentOutput{utxo(locking, 0x44, 0, 100_000)}, pubkeys(k1, k2), 2))
	require.NoError(t, tx.ToScript(p2pkh(k1), 90_000))

	sigs, err := tx.GetSignatures(k1, 0)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	require.NoError(t, tx.ApplySignature(sigs[0]))
	assert.Equal(t, ErrDuplicateSignature, Code(tx.ApplySignature(sigs[0])))

	foreign := *sigs[0]
	foreign.PublicKey = k3.PublicKey()
	assert.Equal(t, ErrNoMatchingPublicKey, Code(tx.ApplySignature(&foreign)))

	forged := *sigs[0]
	forged.PublicKey = k2.PublicKey()
	assert.Equal(t, ErrInvalidSignature, Code(tx.ApplySignature(&forged)))

	none, err := tx.GetSignatures(k3, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.Equal(t, ErrInvalidArgument, Code(tx.FromMultisig(nil, pubkeys(k1), 2)))
}

func TestMultisigScriptHashSpend(t *testing.T) {
	k1, k2, k3 := privKey(t, 1), privKey(t, 2), privKey(t, 3)
	redeem := multisigScript(t, 2, k1, k2, k3)
	locking := script.BuildScriptHashOut(redeem)

	tx := New()
	require.NoError(t, tx.FromMultisig([]UnspentOutput{utxo(locking, 0x55, 0, 200_000)}, pubkeys(k1, k2, k3), 2))
	require.NoError(t, tx.ToScript(p2pkh(k1), 190_000))

	in, ok := tx.Input(0).(*MultiSigScriptHashInput)
	require.True(t, ok)
	assert.Equal(t, redeem, in.RedeemScript())
	assert.Equal(t, 7+2*74+3*34, in.EstimateSize())

	require.NoError(t, tx.Sign([]*crypto.PrivateKey{k1, k3}, SigHashAll))
	signed, err := tx.IsFullySigned()
	require.NoError(t, err)
	assert.True(t, signed)

	pushes, err := script.PushedData(in.Script())
	require.NoError(t, err)
	require.Len(t, pushes, 4)
	assert.Equal(t, redeem, pushes[3])
	execute(t, tx, 0, locking, 200_000)

	// Signatures commit to the amount under FORKID.
	require.NoError(t, in.ClearSignatures())
	require.NoError(t, tx.Sign([]*crypto.PrivateKey{k2, k3}, 0))
	for _, sig := range in.Signatures() {
		if sig == nil {
			continue
		}
		ok, err := tx.IsValidSignature(sig)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestScriptHashSpend(t *testing.T) {
	k1 := privKey(t, 1)
	redeem := script.BuildPublicKeyOut(k1.PublicKey().Bytes())
	locking := script.BuildScriptHashOut(redeem)
	out, err := NewOutput(30_000, locking)
	require.NoError(t, err)

	in, err := NewScriptHashInput(InputParams{PrevTxID: txid(0x66), Script: script.Empty(), Output: out},
		pubkeys(k1), redeem)
	require.NoError(t, err)
	assert.Equal(t, 7+74+34, in.EstimateSize())

	tx := New()
	require.NoError(t, tx.AddInput(in))
	require.NoError(t, tx.ToScript(p2pkh(k1), 25_000))
	require.NoError(t, tx.Sign([]*crypto.PrivateKey{k1}, SigHashAll))

	signed, err := tx.IsFullySigned()
	require.NoError(t, err)
	assert.True(t, signed)
	execute(t, tx, 0, locking, 30_000)

	// <sig> <redeem> with nothing left over for OP_CHECKSIG
	pushes, err := script.PushedData(tx.Input(0).Base().Script())
	require.NoError(t, err)
	require.Len(t, pushes, 2)
	assert.Equal(t, redeem, pushes[1])
	flags := txscript.ScriptBip16 | txscript.ScriptVerifyCleanStack | txscript.ScriptVerifyStrictEncoding
	vm, err := txscript.NewEngine(locking, toMsgTx(t, tx), 0, flags, nil, nil, 30_000,
		txscript.NewCannedPrevOutputFetcher(locking, 30_000))
	require.NoError(t, err)
	require.NoError(t, vm.Execute())

	obj := in.ToObject()
	assert.Equal(t, 1, obj.Threshold)
	assert.NotEmpty(t, obj.RedeemScript)
}

func TestInputCloneIsIndependent(t *testing.T) {
	k1, k2 := privKey(t, 1), privKey(t, 2)
	tx := New()
	require.NoError(t, tx.FromMultisig([]UnspentOutput{utxo(multisigScript(t, 1, k1, k2), 0x44, 0, 100_000)},
		pubkeys(k1, k2), 1))
	require.NoError(t, tx.ToScript(p2pkh(k1), 90_000))

	c := tx.Input(0).Clone().(*MultiSigInput)
	require.NoError(t, tx.Sign([]*crypto.PrivateKey{k1}, 0))
	assert.Equal(t, 1, tx.Input(0).(*MultiSigInput).CountSignatures())
	assert.Equal(t, 0, c.CountSignatures())
}

func TestAttachOutput(t *testing.T) {
	k1, k2, k3 := privKey(t, 1), privKey(t, 2), privKey(t, 3)

	t.Run("p2pkh", func(t *testing.T) {
		raw := simpleTx(t, 50_000, 40_000).Bytes(false)
		tx, err := NewFromBytes(raw)
		require.NoError(t, err)

		err = tx.Sign([]*crypto.PrivateKey{k1}, 0)
		assert.Equal(t, ErrMissingPreviousOutput, Code(err))
		_, err = tx.IsFullySigned()
		assert.Equal(t, ErrUnableToVerify, Code(err))

		out, err := NewOutput(50_000, p2pkh(k1))
		require.NoError(t, err)
		require.NoError(t, tx.AttachOutput(0, out, nil, 0))
		assert.Equal(t, KindPublicKeyHash, tx.Input(0).Kind())

		require.NoError(t, tx.Sign([]*crypto.PrivateKey{k1}, 0))
		signed, err := tx.IsFullySigned()
		require.NoError(t, err)
		assert.True(t, signed)
	})

	t.Run("partial p2sh multisig", func(t *testing.T) {
		redeem := multisigScript(t, 2, k1, k2, k3)
		locking := script.BuildScriptHashOut(redeem)
		tx := New()
		require.NoError(t, tx.FromMultisig([]UnspentOutput{utxo(locking, 0x55, 0, 200_000)}, pubkeys(k1, k2, k3), 2))
		require.NoError(t, tx.ToScript(p2pkh(k1), 190_000))
		require.NoError(t, tx.Sign([]*crypto.PrivateKey{k3}, 0))

		decoded, err := NewFromBytes(tx.Bytes(false))
		require.NoError(t, err)
		out, err := NewOutput(200_000, locking)
		require.NoError(t, err)
		require.NoError(t, decoded.AttachOutput(0, out, pubkeys(k1, k2, k3), 2))

		in := decoded.Input(0).(*MultiSigScriptHashInput)
		assert.Equal(t, 1, in.CountSignatures())
		assert.Equal(t, tx.String(), decoded.String())

		require.NoError(t, decoded.Sign([]*crypto.PrivateKey{k1}, 0))
		signed, err := decoded.IsFullySigned()
		require.NoError(t, err)
		assert.True(t, signed)
	})

	t.Run("unsupported", func(t *testing.T) {
		tx, err := NewFromBytes(simpleTx(t, 50_000, 40_000).Bytes(false))
		require.NoError(t, err)
		out, err := NewOutput(50_000, []byte{0x51})
		require.NoError(t, err)
		assert.Equal(t, ErrUnsupportedScript, Code(tx.AttachOutput(0, out, nil, 0)))
		assert.Equal(t, ErrInvalidIndex, Code(tx.AttachOutput(3, out, nil, 0)))
	})
}
