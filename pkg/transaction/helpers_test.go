package transaction

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/script"
)

// privKey returns the private key with scalar n
func privKey(t *testing.T, n byte) *crypto.PrivateKey {
	t.Helper()
	raw := make([]byte, 32)
	raw[31] = n
	key, err := crypto.PrivateKeyFromBytes(raw)
	require.NoError(t, err)
	return key
}

func p2pkh(key *crypto.PrivateKey) []byte {
	return script.BuildPublicKeyHashOutForKey(key.PublicKey().Bytes())
}

func address(t *testing.T, key *crypto.PrivateKey) btcutil.Address {
	t.Helper()
	addr, err := btcutil.NewAddressPubKeyHash(crypto.Hash160(key.PublicKey().Bytes()), &chaincfg.MainNetParams)
	require.NoError(t, err)
	return addr
}

func txid(n byte) chainhash.Hash {
	var h chainhash.Hash
	for i := range h {
		h[i] = n
	}
	return h
}

func utxo(lockingScript []byte, n byte, vout uint32, sats int64) UnspentOutput {
	return UnspentOutput{TxID: txid(n), OutputIndex: vout, Script: lockingScript, Satoshis: sats}
}

func pubkeys(keys ...*crypto.PrivateKey) []*crypto.PublicKey {
	out := make([]*crypto.PublicKey, len(keys))
	for i, k := range keys {
		out[i] = k.PublicKey()
	}
	return out
}

// simpleTx spends one P2PKH output of key 1 to key 2
func simpleTx(t *testing.T, in, out int64) *Transaction {
	t.Helper()
	tx := New()
	require.NoError(t, tx.From(utxo(p2pkh(privKey(t, 1)), 0xaa, 0, in)))
	require.NoError(t, tx.ToScript(p2pkh(privKey(t, 2)), out))
	return tx
}

func toMsgTx(t *testing.T, tx *Transaction) *wire.MsgTx {
	t.Helper()
	msg := wire.NewMsgTx(wire.TxVersion)
	require.NoError(t, msg.Deserialize(bytes.NewReader(tx.Bytes(false))))
	return msg
}

// execute runs input idx through btcd's script interpreter
func execute(t *testing.T, tx *Transaction, idx int, pkScript []byte, amount int64) {
	t.Helper()
	flags := txscript.ScriptBip16 |
		txscript.ScriptVerifyStrictEncoding |
		txscript.ScriptVerifyDERSignatures |
		txscript.ScriptVerifyLowS
	vm, err := txscript.NewEngine(pkScript, toMsgTx(t, tx), idx, flags, nil, nil, amount,
		txscript.NewCannedPrevOutputFetcher(pkScript, amount))
	require.NoError(t, err)
	require.NoError(t, vm.Execute())
}
