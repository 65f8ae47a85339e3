package roles

import (
	"bytes"
	"context"
	"encoding/hex"
	"sort"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	klog "github.com/suffix-labs/bchtx/internal/log"
	"github.com/suffix-labs/bchtx/pkg/bip21"
	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/script"
	"github.com/suffix-labs/bchtx/pkg/transaction"
)

func key(t *testing.T, n byte) *crypto.PrivateKey {
	t.Helper()
	raw := make([]byte, 32)
	raw[31] = n
	k, err := crypto.PrivateKeyFromBytes(raw)
	require.NoError(t, err)
	return k
}

func address(t *testing.T, k *crypto.PrivateKey) btcutil.Address {
	t.Helper()
	addr, err := btcutil.NewAddressPubKeyHash(crypto.Hash160(k.PublicKey().Bytes()), &chaincfg.MainNetParams)
	require.NoError(t, err)
	return addr
}

func hashOf(n byte) chainhash.Hash {
	var h chainhash.Hash
	for i := range h {
		h[i] = n
	}
	return h
}

// redeemScript returns the m-of-n multisig script over keys sorted the way
// multisig inputs sort them.
func redeemScript(t *testing.T, threshold int, keys []*crypto.PublicKey) []byte {
	t.Helper()
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		raw[i] = k.Bytes()
	}
	sort.Slice(raw, func(i, j int) bool { return hex.EncodeToString(raw[i]) < hex.EncodeToString(raw[j]) })
	s, err := script.BuildMultisigOut(raw, threshold)
	require.NoError(t, err)
	return s
}

type spent struct {
	pkScript []byte
	amount   int64
}

// fixture spends a P2PKH output of key 1 and a 2-of-3 P2SH output of keys
// 2, 3 and 4, paying key 5 and returning change to key 1.
func fixture(t *testing.T) (*transaction.Transaction, map[chainhash.Hash]spent) {
	t.Helper()
	k1 := key(t, 1)
	signers := []*crypto.PublicKey{key(t, 2).PublicKey(), key(t, 3).PublicKey(), key(t, 4).PublicKey()}

	p2pkh := script.BuildPublicKeyHashOutForKey(k1.PublicKey().Bytes())
	p2sh := script.BuildScriptHashOut(redeemScript(t, 2, signers))
	prev := map[chainhash.Hash]spent{
		hashOf(0x11): {p2pkh, 300_000},
		hashOf(0x22): {p2sh, 700_000},
	}

	tx := NewCreator(2).Create()
	c := NewConstructor(tx)
	require.NoError(t, c.AddUTXOs(transaction.UnspentOutput{TxID: hashOf(0x11), Script: p2pkh, Satoshis: 300_000}))
	require.NoError(t, c.AddMultisigUTXOs([]transaction.UnspentOutput{
		{TxID: hashOf(0x22), OutputIndex: 1, Script: p2sh, Satoshis: 700_000},
	}, signers, 2))

	payment, err := bip21.Parse("bitcoincash:"+address(t, key(t, 5)).EncodeAddress()+"?amount=0.005&label=rent",
		&chaincfg.MainNetParams)
	require.NoError(t, err)
	require.NoError(t, c.AddPayment(payment))
	require.NoError(t, c.SetChange(address(t, k1)))
	require.NoError(t, c.Sort())
	return c.Finish(), prev
}

// execute runs every input through btcd's script interpreter
func execute(t *testing.T, raw []byte, prev map[chainhash.Hash]spent) {
	t.Helper()
	msg := wire.NewMsgTx(wire.TxVersion)
	require.NoError(t, msg.Deserialize(bytes.NewReader(raw)))
	flags := txscript.ScriptBip16 | txscript.ScriptVerifyStrictEncoding | txscript.ScriptVerifyDERSignatures
	for i, in := range msg.TxIn {
		p := prev[in.PreviousOutPoint.Hash]
		vm, err := txscript.NewEngine(p.pkScript, msg, i, flags, nil, nil, p.amount,
			txscript.NewCannedPrevOutputFetcher(p.pkScript, p.amount))
		require.NoError(t, err)
		require.NoError(t, vm.Execute(), "input %d", i)
	}
}

func TestEndToEnd(t *testing.T) {
	tx, prev := fixture(t)
	unsigned := tx.String()

	signed, err := SignParallel(context.Background(), tx,
		[]*crypto.PrivateKey{key(t, 1), key(t, 2), key(t, 4)}, transaction.SigHashAll)
	require.NoError(t, err)
	assert.Equal(t, unsigned, tx.String(), "the input transaction is not signed in place")

	full, err := signed.IsFullySigned()
	require.NoError(t, err)
	assert.True(t, full)

	raw, err := NewTxExtractor(signed).Extract()
	require.NoError(t, err)
	execute(t, raw, prev)

	// Signing the copies one after the other gives the same result.
	a, b, c := tx.Clone(), tx.Clone(), tx.Clone()
	require.NoError(t, NewSigner(a, transaction.SigHashAll).Sign(key(t, 1)))
	require.NoError(t, NewSigner(b, transaction.SigHashAll).Sign(key(t, 4)))
	require.NoError(t, NewSigner(c, transaction.SigHashAll).Sign(key(t, 2)))
	combined, err := NewCombiner([]*transaction.Transaction{a, b, c}).Combine()
	require.NoError(t, err)
	assert.Equal(t, signed.String(), combined.String())
}

func TestForkIDWorkflow(t *testing.T) {
	tx, _ := fixture(t)
	signed, err := SignParallel(context.Background(), tx,
		[]*crypto.PrivateKey{key(t, 3), key(t, 1), key(t, 4)}, 0)
	require.NoError(t, err)

	hexTx, err := NewTxExtractor(signed).ExtractHex()
	require.NoError(t, err)
	assert.Equal(t, signed.String(), hexTx)

	for i := range signed.Inputs() {
		sigs, err := signed.InputSignatures(i)
		require.NoError(t, err)
		for _, sig := range sigs {
			assert.Equal(t, transaction.DefaultSigHashType, sig.SigType)
			ok, err := signed.IsValidSignature(sig)
			require.NoError(t, err)
			assert.True(t, ok)
		}
	}
}

func TestSignParallelLogsDuration(t *testing.T) {
	var buf bytes.Buffer
	klog.SetOutput(&buf, "debug")
	defer klog.Init("info", false)

	tx, _ := fixture(t)
	_, err := SignParallel(context.Background(), tx, []*crypto.PrivateKey{key(t, 1)}, transaction.SigHashAll)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"operation":"sign_parallel"`)
}

func TestSignParallelErrors(t *testing.T) {
	tx, _ := fixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := SignParallel(ctx, tx, []*crypto.PrivateKey{key(t, 1)}, 0)
	assert.ErrorIs(t, err, context.Canceled)

	decoded, err := transaction.NewFromBytes(tx.Bytes(false))
	require.NoError(t, err)
	_, err = SignParallel(context.Background(), decoded, []*crypto.PrivateKey{key(t, 1)}, 0)
	assert.Equal(t, transaction.ErrMissingPreviousOutput, transaction.Code(err))
}

func TestCombinerErrors(t *testing.T) {
	_, err := NewCombiner(nil).Combine()
	assert.Error(t, err)

	t.Run("different outputs", func(t *testing.T) {
		tx, _ := fixture(t)
		other := tx.Clone()
		require.NoError(t, other.AddData([]byte("x")))

		_, err := NewCombiner([]*transaction.Transaction{tx, other}).Combine()
		var ce *CombineError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 1, ce.Copy)
		assert.Equal(t, -1, ce.InputIndex)
	})

	t.Run("different sequence", func(t *testing.T) {
		tx, _ := fixture(t)
		other := tx.Clone()
		require.NoError(t, other.EnableRBF())

		_, err := NewCombiner([]*transaction.Transaction{tx, other}).Combine()
		var ce *CombineError
		require.ErrorAs(t, err, &ce)
	})

	t.Run("conflicting signatures", func(t *testing.T) {
		tx, _ := fixture(t)
		a, b := tx.Clone(), tx.Clone()
		require.NoError(t, NewSigner(a, transaction.SigHashAll).Sign(key(t, 1)))
		require.NoError(t, NewSigner(b, 0).Sign(key(t, 1)))

		_, err := NewCombiner([]*transaction.Transaction{a, b}).Combine()
		var ce *CombineError
		require.ErrorAs(t, err, &ce)
		assert.Contains(t, ce.Message, "conflicting signatures")
	})

	t.Run("forged signature", func(t *testing.T) {
		tx, _ := fixture(t)
		a, b := tx.Clone(), tx.Clone()
		require.NoError(t, NewSigner(b, 0).Sign(key(t, 1)))

		// Relabel the FORKID signature as a legacy one.
		for i, in := range b.Inputs() {
			if in.Kind() != transaction.KindPublicKeyHash {
				continue
			}
			pushes, err := script.PushedData(in.Base().Script())
			require.NoError(t, err)
			forged := append([]byte(nil), pushes[0]...)
			forged[len(forged)-1] = byte(transaction.SigHashAll)
			b.Input(i).Base().SetScript(script.BuildPublicKeyHashIn(forged, pushes[1]))
		}

		_, err := NewCombiner([]*transaction.Transaction{a, b}).Combine()
		var ce *CombineError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, transaction.ErrInvalidSignature, transaction.Code(err))
	})
}

func TestCombinerSkipsSurplusSignatures(t *testing.T) {
	tx, _ := fixture(t)
	a, b := tx.Clone(), tx.Clone()
	require.NoError(t, NewSigner(a, 0).Sign(key(t, 1), key(t, 2), key(t, 3)))
	require.NoError(t, NewSigner(b, 0).Sign(key(t, 4)))

	combined, err := NewCombiner([]*transaction.Transaction{a, b}).Combine()
	require.NoError(t, err)
	assert.Equal(t, a.String(), combined.String())
}

func TestConstructor(t *testing.T) {
	t.Run("refuses signed transactions", func(t *testing.T) {
		tx, _ := fixture(t)
		require.NoError(t, NewSigner(tx, 0).Sign(key(t, 1)))
		err := NewConstructor(tx).AddOutput(address(t, key(t, 6)), 10_000)
		assert.ErrorIs(t, err, ErrNotModifiable)
	})

	t.Run("payment without amount", func(t *testing.T) {
		p, err := bip21.Parse("bitcoincash:"+address(t, key(t, 5)).EncodeAddress(), &chaincfg.MainNetParams)
		require.NoError(t, err)
		assert.Error(t, NewConstructor(transaction.New()).AddPayment(p))
	})

	t.Run("lock time marks inputs non final", func(t *testing.T) {
		tx := NewCreator(0).WithLockTime(650_000).Create()
		assert.Equal(t, int32(transaction.CurrentVersion), tx.Version)

		k1 := key(t, 1)
		c := NewConstructor(tx)
		require.NoError(t, c.AddUTXOs(transaction.UnspentOutput{
			TxID: hashOf(0x11), Script: script.BuildPublicKeyHashOutForKey(k1.PublicKey().Bytes()), Satoshis: 10_000,
		}))
		require.NoError(t, c.AddData([]byte("memo")))
		require.NoError(t, c.SetFee(1_000))
		require.NoError(t, c.SetFeePerKb(5_000))
		assert.Equal(t, uint32(transaction.DefaultLockTimeSeqNumber), c.Finish().Input(0).Base().SequenceNumber)
		height, _, locked := c.Finish().GetLockTime()
		assert.True(t, locked)
		assert.Equal(t, uint32(650_000), height)
	})
}

func TestSignInput(t *testing.T) {
	tx, _ := fixture(t)
	s := NewSigner(tx, 0)

	assert.Error(t, s.SignInput(5, key(t, 1)))
	assert.Error(t, s.SignInput(0, key(t, 9)))

	for i, in := range tx.Inputs() {
		if in.Kind() == transaction.KindPublicKeyHash {
			require.NoError(t, s.SignInput(i, key(t, 1)))
		}
	}
	signed, err := s.Finish().IsFullySigned()
	require.NoError(t, err)
	assert.False(t, signed)
}

func TestExtractorChecksPolicy(t *testing.T) {
	tx, _ := fixture(t)

	_, err := NewTxExtractor(tx).Extract()
	assert.Equal(t, transaction.ErrMissingSignatures, transaction.Code(err))

	raw, err := NewTxExtractor(tx).WithOptions(transaction.SerializeOptions{DisableIsFullySigned: true}).Extract()
	require.NoError(t, err)
	assert.Equal(t, tx.Bytes(false), raw)
}
