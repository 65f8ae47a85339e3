package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/jessevdk/go-flags"
	klog "github.com/suffix-labs/bchtx/internal/log"
	"github.com/suffix-labs/bchtx/pkg/api"
	"github.com/suffix-labs/bchtx/pkg/bip21"
	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/script"
	"github.com/suffix-labs/bchtx/pkg/transaction"
)

// InputOptions describe the outputs a transaction spends.
type InputOptions struct {
	UTXOs      []string `long:"utxo" description:"spent output as txid:vout:satoshis:scripthex"`
	PublicKeys []string `long:"multisig-key" description:"hex public key of a multisig output"`
	Threshold  int      `long:"threshold" description:"signatures needed by multisig outputs"`
}

func (o *InputOptions) inputs() ([]api.Input, error) {
	keys, err := api.ParsePublicKeys(o.PublicKeys)
	if err != nil {
		return nil, err
	}
	inputs := make([]api.Input, 0, len(o.UTXOs))
	for _, spec := range o.UTXOs {
		u, err := api.ParseUTXO(spec)
		if err != nil {
			return nil, err
		}
		in := api.Input{UTXO: u}
		if script.IsMultisigOut(u.Script) || (script.IsScriptHashOut(u.Script) && len(keys) > 0) {
			in.PublicKeys, in.Threshold = keys, o.Threshold
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func cmdPropose(args []string) error {
	var opts struct {
		GlobalOptions
		InputOptions
		Payments []string `long:"pay" description:"bitcoincash: payment request with an amount"`
		Outputs  []string `long:"output" description:"explicit output as satoshis:scripthex"`
		Data     []string `long:"data" description:"hex data pushed by an OP_RETURN output"`
		Change   string   `long:"change" description:"change address"`
		Fee      *int64   `long:"fee" description:"fixed fee in satoshis"`
		FeePerKb int64    `long:"fee-per-kb" env:"BCHTX_FEE_PER_KB" description:"fee rate in satoshis per kilobyte"`
		Version  int32    `long:"tx-version" description:"transaction version"`
		LockTime *uint32  `long:"lock-time" description:"nLockTime, a block height or unix time"`
		Sort     bool     `long:"sort" description:"apply BIP69 ordering"`
	}
	if _, err := flags.ParseArgs(&opts, args); err != nil {
		return err
	}
	params, err := opts.setup()
	if err != nil {
		return err
	}

	proposal := &api.TransactionProposal{
		Fee:      opts.Fee,
		FeePerKb: opts.FeePerKb,
		Version:  opts.Version,
		LockTime: opts.LockTime,
		Sort:     opts.Sort,
	}
	if proposal.Inputs, err = opts.inputs(); err != nil {
		return err
	}
	for _, uri := range opts.Payments {
		p, err := api.ParsePaymentRequest(uri, params)
		if err != nil {
			return err
		}
		proposal.Payments = append(proposal.Payments, p)
	}
	for _, spec := range opts.Outputs {
		out, err := parseOutput(spec)
		if err != nil {
			return err
		}
		proposal.Outputs = append(proposal.Outputs, out)
	}
	for _, d := range opts.Data {
		b, err := hex.DecodeString(d)
		if err != nil {
			return fmt.Errorf("data %q: %w", d, err)
		}
		proposal.Data = append(proposal.Data, b)
	}
	if opts.Change != "" {
		if proposal.Change, err = script.DecodeAddress(opts.Change, params); err != nil {
			return err
		}
	}

	doc, err := api.ProposeTransaction(proposal)
	if err != nil {
		return err
	}
	return printDocument(doc)
}

func cmdDecode(args []string) error {
	var opts struct {
		GlobalOptions
		InputOptions
	}
	rest, err := flags.ParseArgs(&opts, args)
	if err != nil {
		return err
	}
	if _, err := opts.setup(); err != nil {
		return err
	}
	tx, err := loadTransaction(rest, 0)
	if err != nil {
		return err
	}
	inputs, err := opts.inputs()
	if err != nil {
		return err
	}
	if err := api.AttachInputs(tx, inputs); err != nil {
		return err
	}
	doc, err := api.SerializeTransaction(tx)
	if err != nil {
		return err
	}
	return printDocument(doc)
}

func cmdSighash(args []string) error {
	var opts struct {
		GlobalOptions
		Input   int    `long:"input" description:"index of the input" required:"true"`
		SigType string `long:"sigtype" description:"e.g. all|forkid, single|anyonecanpay|forkid" default:"all|forkid"`
	}
	rest, err := flags.ParseArgs(&opts, args)
	if err != nil {
		return err
	}
	if _, err := opts.setup(); err != nil {
		return err
	}
	sigtype, err := parseSigType(opts.SigType)
	if err != nil {
		return err
	}
	doc, err := readDocument(rest, 0)
	if err != nil {
		return err
	}
	sighash, err := api.GetSighash(doc, opts.Input, sigtype)
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(sighash[:]))
	return nil
}

func cmdSign(args []string) error {
	var opts struct {
		GlobalOptions
		InputOptions
		Keys    []string `long:"key" description:"WIF private key" required:"true"`
		Input   *int     `long:"input" description:"sign only this input, with the first key"`
		SigType string   `long:"sigtype" description:"e.g. all|forkid, none|anyonecanpay|forkid" default:"all|forkid"`
		Hex     bool     `long:"hex" description:"print the raw transaction instead of the document"`
	}
	rest, err := flags.ParseArgs(&opts, args)
	if err != nil {
		return err
	}
	if _, err := opts.setup(); err != nil {
		return err
	}
	sigtype, err := parseSigType(opts.SigType)
	if err != nil {
		return err
	}
	keys := make([]*crypto.PrivateKey, len(opts.Keys))
	for i, wif := range opts.Keys {
		if keys[i], err = crypto.ParsePrivateKeyWIF(wif); err != nil {
			return fmt.Errorf("key %d: %w", i, err)
		}
	}
	doc, err := documentWithInputs(rest, &opts.InputOptions)
	if err != nil {
		return err
	}

	var signed []byte
	if opts.Input != nil {
		signed, err = api.AppendSignature(doc, *opts.Input, keys[0], sigtype)
	} else {
		signed, err = api.Sign(context.Background(), doc, keys, sigtype)
	}
	if err != nil {
		return err
	}
	klog.CLI.Info().Int("keys", len(keys)).Str("sigtype", sigtype.String()).Msg("Signed transaction")
	if opts.Hex {
		tx, err := api.ParseTransaction(signed)
		if err != nil {
			return err
		}
		fmt.Println(tx.String())
		return nil
	}
	return printDocument(signed)
}

func cmdVerify(args []string) error {
	var opts struct {
		GlobalOptions
		InputOptions
	}
	rest, err := flags.ParseArgs(&opts, args)
	if err != nil {
		return err
	}
	if _, err := opts.setup(); err != nil {
		return err
	}
	doc, err := documentWithInputs(rest, &opts.InputOptions)
	if err != nil {
		return err
	}
	tx, err := api.ParseTransaction(doc)
	if err != nil {
		return err
	}
	if err := tx.Verify(); err != nil {
		return err
	}
	full, err := tx.IsFullySigned()
	if err != nil {
		return err
	}
	if !full {
		return fmt.Errorf("transaction %s is not fully signed", tx.ID())
	}
	if err := tx.SerializationError(transaction.SerializeOptions{}); err != nil {
		return err
	}
	fmt.Printf("%s: valid\n", tx.ID())
	return nil
}

// documentWithInputs reads document 0 and attaches any --utxo outputs.
func documentWithInputs(args []string, o *InputOptions) ([]byte, error) {
	doc, err := readDocument(args, 0)
	if err != nil || len(o.UTXOs) == 0 {
		return doc, err
	}
	tx, err := api.ParseTransaction(doc)
	if err != nil {
		return nil, err
	}
	inputs, err := o.inputs()
	if err != nil {
		return nil, err
	}
	if err := api.AttachInputs(tx, inputs); err != nil {
		return nil, err
	}
	return api.SerializeTransaction(tx)
}

func cmdCombine(args []string) error {
	var opts struct {
		GlobalOptions
	}
	rest, err := flags.ParseArgs(&opts, args)
	if err != nil {
		return err
	}
	if _, err := opts.setup(); err != nil {
		return err
	}
	if len(rest) < 1 {
		return fmt.Errorf("at least one document required")
	}
	docs := make([][]byte, len(rest))
	for i := range rest {
		if docs[i], err = readDocument(rest, i); err != nil {
			return err
		}
	}
	combined, err := api.Combine(docs)
	if err != nil {
		return err
	}
	return printDocument(combined)
}

func cmdExtract(args []string) error {
	var opts struct {
		GlobalOptions
		DisableAll                 bool `long:"disable-all" description:"skip every policy check"`
		DisableSmallFees           bool `long:"allow-small-fee"`
		DisableLargeFees           bool `long:"allow-large-fee"`
		DisableDustOutputs         bool `long:"allow-dust"`
		DisableMoreOutputThanInput bool `long:"allow-more-output-than-input"`
	}
	rest, err := flags.ParseArgs(&opts, args)
	if err != nil {
		return err
	}
	if _, err := opts.setup(); err != nil {
		return err
	}
	doc, err := readDocument(rest, 0)
	if err != nil {
		return err
	}
	raw, err := api.FinalizeAndExtract(doc, transaction.SerializeOptions{
		DisableAll:                 opts.DisableAll,
		DisableSmallFees:           opts.DisableSmallFees,
		DisableLargeFees:           opts.DisableLargeFees,
		DisableDustOutputs:         opts.DisableDustOutputs,
		DisableMoreOutputThanInput: opts.DisableMoreOutputThanInput,
	})
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(raw))
	return nil
}

func cmdParseURI(args []string) error {
	var opts struct {
		GlobalOptions
	}
	rest, err := flags.ParseArgs(&opts, args)
	if err != nil {
		return err
	}
	params, err := opts.setup()
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: bchtx parse-uri <uri>")
	}
	p, err := bip21.Parse(rest[0], params)
	if err != nil {
		return err
	}
	printPayment(os.Stdout, p, params)
	return nil
}

func cmdSignMessage(args []string) error {
	var opts struct {
		GlobalOptions
		Key string `long:"key" description:"WIF private key" required:"true"`
	}
	rest, err := flags.ParseArgs(&opts, args)
	if err != nil {
		return err
	}
	if _, err := opts.setup(); err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: bchtx sign-message --key WIF <message>")
	}
	key, err := crypto.ParsePrivateKeyWIF(opts.Key)
	if err != nil {
		return err
	}
	fmt.Println(api.SignMessage(key, rest[0]))
	return nil
}

func cmdVerifyMessage(args []string) error {
	var opts struct {
		GlobalOptions
		Address   string `long:"address" description:"P2PKH address of the signer" required:"true"`
		Signature string `long:"signature" description:"base64 compact signature" required:"true"`
	}
	rest, err := flags.ParseArgs(&opts, args)
	if err != nil {
		return err
	}
	params, err := opts.setup()
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: bchtx verify-message --address A --signature S <message>")
	}
	ok, err := api.VerifyMessage(opts.Address, rest[0], opts.Signature, params)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("signature does not match %s", opts.Address)
	}
	fmt.Println("valid")
	return nil
}

// parseSigType reads names joined by | or , such as "single|anyonecanpay|forkid".
func parseSigType(s string) (transaction.SigHashType, error) {
	var (
		sigtype transaction.SigHashType
		base    int
	)
	for _, part := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return r == '|' || r == ',' }) {
		switch strings.TrimSpace(part) {
		case "all":
			sigtype |= transaction.SigHashAll
			base++
		case "none":
			sigtype |= transaction.SigHashNone
			base++
		case "single":
			sigtype |= transaction.SigHashSingle
			base++
		case "anyonecanpay":
			sigtype |= transaction.SigHashAnyoneCanPay
		case "forkid":
			sigtype |= transaction.SigHashForkID
		default:
			return 0, fmt.Errorf("unknown sighash flag %q", part)
		}
	}
	if base != 1 {
		return 0, fmt.Errorf("sigtype %q needs exactly one of all, none, single", s)
	}
	return sigtype, nil
}

func parseOutput(spec string) (api.Output, error) {
	sats, scriptHex, ok := strings.Cut(spec, ":")
	if !ok {
		return api.Output{}, fmt.Errorf("output %q: want satoshis:scripthex", spec)
	}
	n, err := strconv.ParseInt(sats, 10, 64)
	if err != nil {
		return api.Output{}, fmt.Errorf("output %q: satoshis: %w", spec, err)
	}
	s, err := hex.DecodeString(scriptHex)
	if err != nil {
		return api.Output{}, fmt.Errorf("output %q: script: %w", spec, err)
	}
	return api.Output{Script: s, Satoshis: n}, nil
}

var stdin io.Reader = os.Stdin

// readDocument returns argument i, read from a file for @path and from
// stdin for -.
func readDocument(args []string, i int) ([]byte, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("transaction argument required")
	}
	arg := args[i]
	switch {
	case arg == "-":
		return io.ReadAll(stdin)
	case strings.HasPrefix(arg, "@"):
		return os.ReadFile(arg[1:])
	}
	return []byte(arg), nil
}

func loadTransaction(args []string, i int) (*transaction.Transaction, error) {
	doc, err := readDocument(args, i)
	if err != nil {
		return nil, err
	}
	return api.ParseTransaction(doc)
}

func printDocument(doc []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, doc, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err := os.Stdout.Write(out.Bytes())
	return err
}

func printPayment(w io.Writer, p *bip21.Payment, params *chaincfg.Params) {
	fmt.Fprintln(w, "Payment Request:")
	fmt.Fprintf(w, "  Network: %s\n", params.Name)
	fmt.Fprintf(w, "  Address: %s\n", p.Address.EncodeAddress())
	if p.Amount != nil {
		fmt.Fprintf(w, "  Amount:  %s (%d satoshis)\n", p.Amount.String(), p.Satoshis())
	} else {
		fmt.Fprintln(w, "  Amount:  (user specified)")
	}
	if p.Label != nil {
		fmt.Fprintf(w, "  Label:   %s\n", *p.Label)
	}
	if p.Message != nil {
		fmt.Fprintf(w, "  Message: %s\n", *p.Message)
	}
	for k, v := range p.Extra {
		fmt.Fprintf(w, "  %s: %s\n", k, v)
	}
	if s, err := p.LockingScript(); err == nil {
		fmt.Fprintf(w, "  Script:  %s\n", script.Disasm(s))
	}
	fmt.Fprintf(w, "\nRe-encoded URI:\n%s\n", p.Encode())
}
