// Package bip21 implements "bitcoincash:" payment request URIs.
//
// URI Format:
//
//	bitcoincash:<address>?amount=<BCH>&label=<label>&message=<message>
//
// The address is a base58 legacy address. Amounts are decimal BCH with at
// most eight fractional digits. Parameters prefixed with "req-" are required
// extensions: a parser that does not understand one must reject the URI.
// Other unknown parameters are kept in Extra.
package bip21

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/suffix-labs/bchtx/pkg/script"
)

// Scheme is the URI scheme of a payment request, without the colon.
const Scheme = "bitcoincash"

var (
	ErrScheme          = errors.New("bip21: missing bitcoincash scheme")
	ErrMissingAddress  = errors.New("bip21: missing address")
	ErrRequiredParam   = errors.New("bip21: unsupported required parameter")
	ErrDuplicatedParam = errors.New("bip21: duplicated parameter")
)

// Payment is a single payment request.
type Payment struct {
	Address btcutil.Address
	Amount  *btcutil.Amount // nil lets the payer choose
	Label   *string
	Message *string
	Extra   map[string]string // Unknown optional parameters
}

// Parse parses a payment request URI. The address must belong to params.
//
// Example:
//
//	p, err := bip21.Parse("bitcoincash:1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2?amount=0.5", &chaincfg.MainNetParams)
func Parse(uri string, params *chaincfg.Params) (*Payment, error) {
	scheme, rest, ok := strings.Cut(uri, ":")
	if !ok || !strings.EqualFold(scheme, Scheme) {
		return nil, ErrScheme
	}
	rawAddress, query, _ := strings.Cut(rest, "?")
	if rawAddress == "" {
		return nil, ErrMissingAddress
	}

	address, err := script.DecodeAddress(rawAddress, params)
	if err != nil {
		return nil, fmt.Errorf("bip21: %w", err)
	}
	payment := &Payment{Address: address}

	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("bip21: failed to parse query: %w", err)
	}
	for key, vals := range values {
		if len(vals) > 1 {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatedParam, key)
		}
		val := vals[0]
		switch key {
		case "amount":
			amount, err := parseAmount(val)
			if err != nil {
				return nil, fmt.Errorf("bip21: invalid amount: %w", err)
			}
			payment.Amount = &amount
		case "label":
			payment.Label = &val
		case "message":
			payment.Message = &val
		default:
			if strings.HasPrefix(key, "req-") {
				return nil, fmt.Errorf("%w: %s", ErrRequiredParam, key)
			}
			if payment.Extra == nil {
				payment.Extra = make(map[string]string)
			}
			payment.Extra[key] = val
		}
	}
	return payment, nil
}

// parseAmount parses a decimal BCH amount into satoshis.
func parseAmount(s string) (btcutil.Amount, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if len(frac) > 8 {
		return 0, fmt.Errorf("more than 8 decimal places: %s", s)
	}
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a decimal number: %s", s)
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a valid number: %w", err)
	}
	amount, err := btcutil.NewAmount(f)
	if err != nil {
		return 0, err
	}
	if amount > btcutil.MaxSatoshi {
		return 0, fmt.Errorf("amount exceeds %v", btcutil.Amount(btcutil.MaxSatoshi))
	}
	return amount, nil
}

// Satoshis returns the requested amount, 0 if none is set.
func (p *Payment) Satoshis() int64 {
	if p.Amount == nil {
		return 0
	}
	return int64(*p.Amount)
}

// LockingScript returns the output script paying to the address.
func (p *Payment) LockingScript() ([]byte, error) {
	return script.FromAddress(p.Address)
}

// Encode creates the URI for p. This is the inverse of Parse; parameters
// are written in a fixed order.
func (p *Payment) Encode() string {
	uri := Scheme + ":" + p.Address.EncodeAddress()

	var params []string
	if p.Amount != nil {
		params = append(params, "amount="+formatAmount(*p.Amount))
	}
	if p.Label != nil {
		params = append(params, "label="+url.QueryEscape(*p.Label))
	}
	if p.Message != nil {
		params = append(params, "message="+url.QueryEscape(*p.Message))
	}
	extras := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		extras = append(extras, k)
	}
	sort.Strings(extras)
	for _, k := range extras {
		params = append(params, url.QueryEscape(k)+"="+url.QueryEscape(p.Extra[k]))
	}

	if len(params) > 0 {
		uri += "?" + strings.Join(params, "&")
	}
	return uri
}

// formatAmount formats satoshis as decimal BCH without trailing zeros.
func formatAmount(a btcutil.Amount) string {
	str := strconv.FormatFloat(a.ToBTC(), 'f', 8, 64)
	str = strings.TrimRight(str, "0")
	return strings.TrimRight(str, ".")
}
