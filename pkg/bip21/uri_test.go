package bip21

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddress(t *testing.T, net *chaincfg.Params) btcutil.Address {
	t.Helper()
	addr, err := btcutil.NewAddressPubKeyHash(make([]byte, 20), net)
	require.NoError(t, err)
	return addr
}

func TestParse(t *testing.T) {
	addr := testAddress(t, &chaincfg.MainNetParams).EncodeAddress()

	tests := []struct {
		name     string
		uri      string
		satoshis int64
		label    string
		message  string
		extra    map[string]string
	}{
		{"address only", "bitcoincash:" + addr, 0, "", "", nil},
		{"amount", "bitcoincash:" + addr + "?amount=0.5", 50_000_000, "", "", nil},
		{"smallest unit", "bitcoincash:" + addr + "?amount=0.00000001", 1, "", "", nil},
		{"whole coins", "bitcoincash:" + addr + "?amount=21", 2_100_000_000, "", "", nil},
		{"label and message", "bitcoincash:" + addr + "?label=Coffee%20Shop&message=order+42",
			0, "Coffee Shop", "order 42", nil},
		{"upper case scheme", "BITCOINCASH:" + addr + "?amount=1.", 100_000_000, "", "", nil},
		{"unknown optional", "bitcoincash:" + addr + "?foo=bar", 0, "", "", map[string]string{"foo": "bar"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.uri, &chaincfg.MainNetParams)
			require.NoError(t, err)
			assert.Equal(t, addr, p.Address.EncodeAddress())
			assert.Equal(t, tt.satoshis, p.Satoshis())
			if tt.label != "" {
				require.NotNil(t, p.Label)
				assert.Equal(t, tt.label, *p.Label)
			}
			if tt.message != "" {
				require.NotNil(t, p.Message)
				assert.Equal(t, tt.message, *p.Message)
			}
			assert.Equal(t, tt.extra, p.Extra)
		})
	}
}

func TestParseErrors(t *testing.T) {
	addr := testAddress(t, &chaincfg.MainNetParams).EncodeAddress()
	testnet := testAddress(t, &chaincfg.TestNet3Params).EncodeAddress()

	tests := []struct {
		name string
		uri  string
		want error
	}{
		{"wrong scheme", "bitcoin:" + addr, ErrScheme},
		{"no scheme", addr, ErrScheme},
		{"no address", "bitcoincash:?amount=1", ErrMissingAddress},
		{"required extension", "bitcoincash:" + addr + "?req-somethingyoudontunderstand=1", ErrRequiredParam},
		{"duplicated", "bitcoincash:" + addr + "?amount=1&amount=2", ErrDuplicatedParam},
		{"bad amount", "bitcoincash:" + addr + "?amount=abc", nil},
		{"negative amount", "bitcoincash:" + addr + "?amount=-1", nil},
		{"too precise", "bitcoincash:" + addr + "?amount=0.000000001", nil},
		{"exponent", "bitcoincash:" + addr + "?amount=1e3", nil},
		{"too large", "bitcoincash:" + addr + "?amount=21000001", nil},
		{"wrong network", "bitcoincash:" + testnet, nil},
		{"garbage address", "bitcoincash:notanaddress", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.uri, &chaincfg.MainNetParams)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	amount := btcutil.Amount(12_345_000)
	label, message := "Alice & Bob", "rent, march"
	p := &Payment{
		Address: testAddress(t, &chaincfg.MainNetParams),
		Amount:  &amount,
		Label:   &label,
		Message: &message,
		Extra:   map[string]string{"z": "1", "a": "2"},
	}

	uri := p.Encode()
	assert.Contains(t, uri, "?amount=0.12345&label=Alice+%26+Bob&message=rent%2C+march&a=2&z=1")

	parsed, err := Parse(uri, &chaincfg.MainNetParams)
	require.NoError(t, err)
	assert.Equal(t, p.Address.EncodeAddress(), parsed.Address.EncodeAddress())
	assert.Equal(t, amount, *parsed.Amount)
	assert.Equal(t, label, *parsed.Label)
	assert.Equal(t, message, *parsed.Message)
	assert.Equal(t, p.Extra, parsed.Extra)
	assert.Equal(t, uri, parsed.Encode())
}

func TestLockingScript(t *testing.T) {
	p, err := Parse("bitcoincash:"+testAddress(t, &chaincfg.MainNetParams).EncodeAddress(), &chaincfg.MainNetParams)
	require.NoError(t, err)
	s, err := p.LockingScript()
	require.NoError(t, err)
	assert.Len(t, s, 25)
	assert.Equal(t, "bitcoincash:"+p.Address.EncodeAddress(), p.Encode())
}
