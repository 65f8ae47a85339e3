package transaction

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/script"
)

func TestP2PKHSpend(t *testing.T) {
	tx := simpleTx(t, 1_000_000, 999_000)

	fee, err := tx.GetFee()
	require.NoError(t, err)
	assert.EqualValues(t, 1_000, fee)

	signed, err := tx.IsFullySigned()
	require.NoError(t, err)
	assert.False(t, signed)

	require.NoError(t, tx.Sign([]*crypto.PrivateKey{privKey(t, 1)}, 0))

	signed, err = tx.IsFullySigned()
	require.NoError(t, err)
	assert.True(t, signed)
	assert.True(t, script.IsPublicKeyHashIn(tx.Input(0).Base().Script()))

	hexTx, err := tx.Serialize(SerializeOptions{})
	require.NoError(t, err)
	assert.Equal(t, tx.String(), hexTx)
	assert.NoError(t, tx.Verify())
}

func TestLegacySignatureExecutes(t *testing.T) {
	tx := simpleTx(t, 1_000_000, 999_000)
	require.NoError(t, tx.Sign([]*crypto.PrivateKey{privKey(t, 1)}, SigHashAll))
	execute(t, tx, 0, p2pkh(privKey(t, 1)), 1_000_000)
}

func TestSignWithUnrelatedKey(t *testing.T) {
	tx := simpleTx(t, 1_000_000, 999_000)
	require.NoError(t, tx.Sign([]*crypto.PrivateKey{privKey(t, 9)}, 0))

	signed, err := tx.IsFullySigned()
	require.NoError(t, err)
	assert.False(t, signed)
}

func TestDeterministicSigning(t *testing.T) {
	sign := func() string {
		tx := simpleTx(t, 1_000_000, 999_000)
		require.NoError(t, tx.Sign([]*crypto.PrivateKey{privKey(t, 1)}, 0))
		s, err := tx.Serialize(SerializeOptions{})
		require.NoError(t, err)
		return s
	}
	assert.Equal(t, sign(), sign())
}

func TestApplySignatureValidates(t *testing.T) {
	tx := simpleTx(t, 1_000_000, 999_000)
	sigs, err := tx.GetSignatures(privKey(t, 1), 0)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, DefaultSigHashType, sigs[0].SigType)

	ok, err := tx.IsValidSignature(sigs[0])
	require.NoError(t, err)
	assert.True(t, ok)

	tampered := *sigs[0]
	tampered.SigType = SigHashNone | SigHashForkID
	err = tx.ApplySignature(&tampered)
	assert.Equal(t, ErrInvalidSignature, Code(err))
	assert.Empty(t, tx.Input(0).Base().Script())

	require.NoError(t, tx.ApplySignature(sigs[0]))
	bad := *sigs[0]
	bad.InputIndex = 4
	assert.Equal(t, ErrInvalidIndex, Code(tx.ApplySignature(&bad)))
}

func TestMutationClearsSignatures(t *testing.T) {
	tests := []struct {
		name   string
		change bool
		mutate func(t *testing.T, tx *Transaction) error
	}{
		{"output with change", true, func(t *testing.T, tx *Transaction) error {
			return tx.ToScript(p2pkh(privKey(t, 3)), 100_000)
		}},
		{"output", false, func(t *testing.T, tx *Transaction) error {
			return tx.ToScript(p2pkh(privKey(t, 3)), 100_000)
		}},
		{"data output", false, func(t *testing.T, tx *Transaction) error {
			return tx.AddData([]byte("memo"))
		}},
		{"remove output", false, func(t *testing.T, tx *Transaction) error {
			return tx.RemoveOutput(0)
		}},
		{"add input", false, func(t *testing.T, tx *Transaction) error {
			return tx.From(utxo(p2pkh(privKey(t, 1)), 0xbb, 0, 5_000))
		}},
		{"unchecked add input", false, func(t *testing.T, tx *Transaction) error {
			in, err := NewPublicKeyHashInput(InputParams{
				PrevTxID: txid(0xcc), Script: script.Empty(), Output: mustOutput(t, p2pkh(privKey(t, 1)), 5_000),
			})
			require.NoError(t, err)
			return tx.UncheckedAddInput(in)
		}},
		{"fee", false, func(t *testing.T, tx *Transaction) error { return tx.Fee(600_000) }},
		{"fee per kb", false, func(t *testing.T, tx *Transaction) error { return tx.FeePerKb(2_000) }},
		{"rbf", false, func(t *testing.T, tx *Transaction) error { return tx.EnableRBF() }},
		{"lock height", false, func(t *testing.T, tx *Transaction) error { return tx.LockUntilBlockHeight(650_000) }},
		{"lock date", false, func(t *testing.T, tx *Transaction) error {
			return tx.LockUntilDate(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := simpleTx(t, 1_000_000, 400_000)
			if tt.change {
				require.NoError(t, tx.Change(address(t, privKey(t, 1))))
			}
			require.NoError(t, tx.Sign([]*crypto.PrivateKey{privKey(t, 1)}, 0))
			signed, err := tx.IsFullySigned()
			require.NoError(t, err)
			require.True(t, signed)

			require.NoError(t, tt.mutate(t, tx))
			signed, err = tx.IsFullySigned()
			require.NoError(t, err)
			assert.False(t, signed)
			assert.Empty(t, tx.Input(0).Base().Script())

			err = tx.SerializationError(SerializeOptions{
				DisableSmallFees: true, DisableLargeFees: true,
				DisableDustOutputs: true, DisableMoreOutputThanInput: true,
			})
			assert.Equal(t, ErrMissingSignatures, Code(err))
		})
	}
}

func TestMutationKeepsGenericScripts(t *testing.T) {
	tx := coinbase(t, []byte{0x03, 0x01, 0x02, 0x03})
	require.NoError(t, tx.AddData([]byte("memo")))
	require.NoError(t, tx.EnableRBF())
	assert.Equal(t, []byte{0x03, 0x01, 0x02, 0x03}, tx.Input(0).Base().Script())
}

func mustOutput(t *testing.T, lockingScript []byte, satoshis int64) *Output {
	t.Helper()
	out, err := NewOutput(satoshis, lockingScript)
	require.NoError(t, err)
	return out
}

func TestChangeIsIdempotent(t *testing.T) {
	tx := simpleTx(t, 1_000_000, 500_000)
	addr := address(t, privKey(t, 1))

	require.NoError(t, tx.Change(addr))
	require.NoError(t, tx.Change(addr))

	require.Len(t, tx.Outputs(), 2)
	assert.Equal(t, 1, tx.ChangeIndex())
	change := tx.ChangeOutput()
	require.NotNil(t, change)
	assert.Equal(t, p2pkh(privKey(t, 1)), change.Script())

	// 167 bytes estimated before the change output, plus 62 for it, at 20 sat/byte.
	assert.EqualValues(t, 1_000_000-500_000-4_580, change.Satoshis())

	require.NoError(t, tx.Sign([]*crypto.PrivateKey{privKey(t, 1)}, 0))
	_, err := tx.Serialize(SerializeOptions{})
	assert.NoError(t, err)
}

func TestExplicitFee(t *testing.T) {
	tx := simpleTx(t, 1_000_000, 500_000)
	require.NoError(t, tx.Change(address(t, privKey(t, 1))))
	require.NoError(t, tx.Fee(10_000))

	fee, err := tx.GetFee()
	require.NoError(t, err)
	assert.EqualValues(t, 10_000, fee)

	in, err := tx.InputAmount()
	require.NoError(t, err)
	assert.EqualValues(t, 10_000, in-tx.OutputAmount())
	assert.EqualValues(t, 490_000, tx.ChangeOutput().Satoshis())
}

func TestChangeOmittedWhenNothingLeft(t *testing.T) {
	tx := simpleTx(t, 1_000_000, 999_000)
	require.NoError(t, tx.Change(address(t, privKey(t, 1))))

	assert.Nil(t, tx.ChangeOutput())
	assert.Equal(t, -1, tx.ChangeIndex())
	assert.Len(t, tx.Outputs(), 1)
}

func TestFeePerKb(t *testing.T) {
	tx := simpleTx(t, 1_000_000, 500_000)
	require.NoError(t, tx.FeePerKb(1_000))
	require.NoError(t, tx.Change(address(t, privKey(t, 1))))
	// 229 bytes at 1 sat/byte.
	assert.EqualValues(t, 500_000-229, tx.ChangeOutput().Satoshis())

	assert.Equal(t, ErrInvalidArgument, Code(tx.FeePerKb(-1)))
}

func TestEstimateFee(t *testing.T) {
	tests := []struct {
		size      int
		available int64
		rate      int64
		want      int64
	}{
		{size: 1000, available: 0, rate: 1000, want: 1000},
		{size: 1000, available: 2000, rate: 1000, want: 1062},
		{size: 167, available: 0, rate: 0, want: 3340},
		{size: 1, available: 0, rate: 1, want: 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateFee(tt.size, tt.available, tt.rate))
	}
}

func TestEstimateSize(t *testing.T) {
	tx := simpleTx(t, 1_000_000, 999_000)
	assert.Equal(t, MaximumExtraSize+publicKeyHashInputMaxSize+25+9, tx.EstimateSize())
}

func TestAddInputNeedsOutput(t *testing.T) {
	in, err := NewInput(InputParams{PrevTxID: txid(1), Script: script.Empty()})
	require.NoError(t, err)

	tx := New()
	assert.Equal(t, ErrNeedMoreInfo, Code(tx.AddInput(in)))

	require.NoError(t, tx.AddInputWithOutput(in, p2pkh(privKey(t, 1)), 5_000))
	amount, err := tx.InputAmount()
	require.NoError(t, err)
	assert.EqualValues(t, 5_000, amount)

	_, err = NewInput(InputParams{PrevTxID: txid(1)})
	assert.Equal(t, ErrMissingScript, Code(err))
}

func TestFromSkipsDuplicates(t *testing.T) {
	u := utxo(p2pkh(privKey(t, 1)), 0x10, 1, 5_000)
	tx := New()
	require.NoError(t, tx.From(u, u))
	require.NoError(t, tx.From(u))
	assert.Len(t, tx.Inputs(), 1)
	assert.Equal(t, KindPublicKeyHash, tx.Input(0).Kind())
}

func TestFromDispatchesOnScript(t *testing.T) {
	key := privKey(t, 1)
	tx := New()
	require.NoError(t, tx.From(
		utxo(p2pkh(key), 1, 0, 1_000),
		utxo(script.BuildPublicKeyOut(key.PublicKey().Bytes()), 2, 0, 1_000),
		utxo([]byte{txscript.OP_TRUE}, 3, 0, 1_000),
	))
	kinds := []Kind{KindPublicKeyHash, KindPublicKey, KindGeneric}
	for i, k := range kinds {
		assert.Equal(t, k, tx.Input(i).Kind())
	}

	_, err := tx.IsFullySigned()
	assert.Equal(t, ErrUnableToVerify, Code(err))
}

func TestPublicKeySpend(t *testing.T) {
	key := privKey(t, 1)
	lock := script.BuildPublicKeyOut(key.PublicKey().Bytes())
	tx := New()
	require.NoError(t, tx.From(utxo(lock, 1, 0, 100_000)))
	require.NoError(t, tx.ToScript(p2pkh(privKey(t, 2)), 90_000))
	require.NoError(t, tx.Sign([]*crypto.PrivateKey{key}, SigHashAll))

	signed, err := tx.IsFullySigned()
	require.NoError(t, err)
	assert.True(t, signed)
	assert.True(t, script.IsPublicKeyIn(tx.Input(0).Base().Script()))
	execute(t, tx, 0, lock, 100_000)
}

func TestRemoveInputAndOutput(t *testing.T) {
	tx := New()
	require.NoError(t, tx.From(
		utxo(p2pkh(privKey(t, 1)), 1, 0, 1_000),
		utxo(p2pkh(privKey(t, 1)), 2, 0, 2_000),
	))
	require.NoError(t, tx.ToScript(p2pkh(privKey(t, 2)), 500))

	require.NoError(t, tx.RemoveInput(txid(1), 0))
	require.Len(t, tx.Inputs(), 1)
	assert.Equal(t, txid(2), tx.Input(0).Base().PrevTxID)

	assert.Equal(t, ErrInvalidIndex, Code(tx.RemoveInput(txid(9), 0)))
	assert.Equal(t, ErrInvalidIndex, Code(tx.RemoveInputAt(5)))
	assert.Equal(t, ErrInvalidIndex, Code(tx.RemoveOutput(-1)))

	require.NoError(t, tx.RemoveOutput(0))
	assert.Empty(t, tx.Outputs())
}

func TestClearOutputs(t *testing.T) {
	tx := simpleTx(t, 1_000_000, 500_000)
	require.NoError(t, tx.Change(address(t, privKey(t, 1))))
	require.NoError(t, tx.ClearOutputs())

	// Only the recomputed change output remains.
	require.Len(t, tx.Outputs(), 1)
	assert.Equal(t, 0, tx.ChangeIndex())
}

func TestFailedMutationRollsBack(t *testing.T) {
	tx := simpleTx(t, 1_000_000, 500_000)
	before := tx.String()

	generic, err := NewInput(InputParams{PrevTxID: txid(7), Script: script.Empty()})
	require.NoError(t, err)
	require.NoError(t, tx.UncheckedAddInput(generic))

	err = tx.Change(address(t, privKey(t, 1)))
	assert.Error(t, err)
	assert.Nil(t, tx.ChangeOutput())
	assert.Len(t, tx.Outputs(), 1)

	require.NoError(t, tx.RemoveInputAt(1))
	assert.Equal(t, before, tx.String())
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T) *Transaction
		msg   string
	}{
		{"valid", func(t *testing.T) *Transaction { return simpleTx(t, 10_000, 9_000) }, ""},
		{"no inputs", func(t *testing.T) *Transaction {
			tx := New()
			require.NoError(t, tx.ToScript(p2pkh(privKey(t, 1)), 1_000))
			return tx
		}, "transaction txins empty"},
		{"no outputs", func(t *testing.T) *Transaction {
			tx := New()
			require.NoError(t, tx.From(utxo(p2pkh(privKey(t, 1)), 1, 0, 1_000)))
			return tx
		}, "transaction txouts empty"},
		{"output above max money", func(t *testing.T) *Transaction {
			return simpleTx(t, 10_000, MaxMoney+1)
		}, "Transaction output contains invalid amount"},
		{"outputs sum above max money", func(t *testing.T) *Transaction {
			tx := simpleTx(t, 10_000, MaxMoney)
			require.NoError(t, tx.ToScript(p2pkh(privKey(t, 3)), MaxMoney))
			return tx
		}, "Transaction output contains too high satoshi amount"},
		{"duplicate input", func(t *testing.T) *Transaction {
			tx := simpleTx(t, 10_000, 9_000)
			dup := tx.Input(0).Clone()
			require.NoError(t, tx.AddInput(dup))
			return tx
		}, "Transaction contains duplicate input"},
		{"coinbase script too short", func(t *testing.T) *Transaction {
			return coinbase(t, []byte{0x01})
		}, "Coinbase transaction script size invalid"},
		{"null input", func(t *testing.T) *Transaction {
			tx := simpleTx(t, 10_000, 9_000)
			null := coinbase(t, []byte{0x01, 0x02}).Input(0)
			require.NoError(t, tx.UncheckedAddInput(null))
			return tx
		}, "Transaction has null input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build(t).Verify()
			if tt.msg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, ErrSanityCheck, Code(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func coinbase(t *testing.T, sigScript []byte) *Transaction {
	t.Helper()
	in, err := NewInput(InputParams{OutputIndex: 0xffffffff, Script: sigScript})
	require.NoError(t, err)
	tx := New()
	require.NoError(t, tx.UncheckedAddInput(in))
	require.NoError(t, tx.ToScript(p2pkh(privKey(t, 1)), 625_000_000))
	return tx
}

func TestCoinbase(t *testing.T) {
	tx := coinbase(t, []byte{0x03, 0x01, 0x02, 0x03})
	assert.True(t, tx.IsCoinbase())
	assert.NoError(t, tx.Verify())

	fee, err := tx.GetFee()
	require.NoError(t, err)
	assert.Zero(t, fee)
}

func TestInvalidSatoshis(t *testing.T) {
	out, err := NewOutput(MaxMoney, nil)
	require.NoError(t, err)
	assert.Empty(t, out.InvalidSatoshis())

	require.NoError(t, out.SetSatoshis(MaxMoney+1))
	assert.NotEmpty(t, out.InvalidSatoshis())

	_, err = NewOutput(-1, nil)
	assert.Equal(t, ErrInvalidArgument, Code(err))
}

func TestSortBIP69(t *testing.T) {
	tx := New()
	var low, high [32]byte
	low[31], high[31] = 0x01, 0x02 // display order compares the last wire byte first
	high[0] = 0x00
	low[0] = 0xff

	require.NoError(t, tx.From(
		UnspentOutput{TxID: high, OutputIndex: 0, Script: p2pkh(privKey(t, 1)), Satoshis: 50_000},
		UnspentOutput{TxID: low, OutputIndex: 1, Script: p2pkh(privKey(t, 1)), Satoshis: 50_000},
		UnspentOutput{TxID: low, OutputIndex: 0, Script: p2pkh(privKey(t, 1)), Satoshis: 50_000},
	))
	require.NoError(t, tx.ToScript(p2pkh(privKey(t, 3)), 20_000))
	require.NoError(t, tx.ToScript(p2pkh(privKey(t, 2)), 10_000))
	require.NoError(t, tx.ToScript([]byte{txscript.OP_TRUE}, 10_000))
	require.NoError(t, tx.Change(address(t, privKey(t, 4))))
	change := tx.ChangeOutput()

	require.NoError(t, tx.Sort())

	var order [][2]interface{}
	for _, in := range tx.Inputs() {
		order = append(order, [2]interface{}{in.Base().PrevTxID[31], in.Base().OutputIndex})
	}
	assert.Equal(t, [][2]interface{}{{byte(1), uint32(0)}, {byte(1), uint32(1)}, {byte(2), uint32(0)}}, order)

	outs := tx.Outputs()
	for i := 1; i < len(outs); i++ {
		prev, cur := outs[i-1], outs[i]
		assert.True(t, prev.Satoshis() < cur.Satoshis() ||
			(prev.Satoshis() == cur.Satoshis() && bytes.Compare(prev.Script(), cur.Script()) <= 0))
	}
	assert.Same(t, change, tx.ChangeOutput())
	assert.Equal(t, []byte{txscript.OP_TRUE}, outs[0].Script())
}

func TestSortOutputsRejectsForeignOutputs(t *testing.T) {
	tx := simpleTx(t, 10_000, 9_000)
	err := tx.SortOutputs(func(outs []*Output) []*Output {
		return []*Output{outs[0].Clone()}
	})
	assert.Equal(t, ErrInvalidSorting, Code(err))

	err = tx.SortOutputs(func(outs []*Output) []*Output { return nil })
	assert.Equal(t, ErrInvalidSorting, Code(err))
}

func TestShuffleOutputsKeepsChange(t *testing.T) {
	tx := simpleTx(t, 1_000_000, 10_000)
	for i := 0; i < 5; i++ {
		require.NoError(t, tx.ToScript(p2pkh(privKey(t, byte(i+3))), int64(10_000+i)))
	}
	require.NoError(t, tx.Change(address(t, privKey(t, 1))))
	change := tx.ChangeOutput()

	require.NoError(t, tx.ShuffleOutputs())
	assert.Len(t, tx.Outputs(), 7)
	assert.Same(t, change, tx.ChangeOutput())
}

func TestLockTime(t *testing.T) {
	tx := simpleTx(t, 10_000, 9_000)
	_, _, locked := tx.GetLockTime()
	assert.False(t, locked)

	require.NoError(t, tx.LockUntilBlockHeight(650_000))
	height, _, locked := tx.GetLockTime()
	assert.True(t, locked)
	assert.EqualValues(t, 650_000, height)
	assert.EqualValues(t, DefaultLockTimeSeqNumber, tx.Input(0).Base().SequenceNumber)

	date := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, tx.LockUntilDate(date))
	_, at, locked := tx.GetLockTime()
	assert.True(t, locked)
	assert.True(t, date.Equal(at))

	assert.Equal(t, ErrBlockHeightTooHigh, Code(tx.LockUntilBlockHeight(NLockTimeBlockHeightLimit)))
	assert.Equal(t, ErrNLockTimeOutOfRange, Code(tx.LockUntilBlockHeight(-1)))
	assert.Equal(t, ErrLockTimeTooEarly, Code(tx.LockUntilDate(time.Unix(1_000, 0))))
	assert.Equal(t, ErrNLockTimeOutOfRange, Code(tx.LockUntilDate(time.Unix(1<<33, 0))))
}

func TestRBF(t *testing.T) {
	tx := simpleTx(t, 10_000, 9_000)
	assert.False(t, tx.IsRBF())

	require.NoError(t, tx.EnableRBF())
	assert.True(t, tx.IsRBF())
	assert.EqualValues(t, DefaultRBFSeqNumber, tx.Input(0).Base().SequenceNumber)
}

func TestCloneIsDeep(t *testing.T) {
	tx := simpleTx(t, 1_000_000, 999_000)
	c := tx.Clone()
	require.NoError(t, c.Sign([]*crypto.PrivateKey{privKey(t, 1)}, 0))

	assert.Empty(t, tx.Input(0).Base().Script())
	assert.NotEmpty(t, c.Input(0).Base().Script())
	assert.NotEqual(t, tx.ID(), c.ID())
}
