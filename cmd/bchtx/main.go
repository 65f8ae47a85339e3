// bchtx CLI - Bitcoin Cash transaction builder
//
// Transactions are passed between commands as JSON documents that keep the
// spent outputs and partial signatures. Any document argument may be given
// inline, as @file, or as - for stdin.
//
// Example usage:
//
//	# Build a transaction paying a payment request
//	bchtx propose --utxo <txid>:<vout>:<satoshis>:<script> \
//	  --pay "bitcoincash:1Addr...?amount=0.01" --change 1Change... > tx.json
//
//	# Sign, each party on its own copy
//	bchtx sign --key <wif> @tx.json > a.json
//
//	# Merge and extract
//	bchtx combine @a.json @b.json | bchtx extract -
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/jessevdk/go-flags"
	klog "github.com/suffix-labs/bchtx/internal/log"
	"github.com/suffix-labs/bchtx/pkg/api"
)

const version = "v0.1.0"

// GlobalOptions are accepted by every command.
type GlobalOptions struct {
	Network  string `long:"network" env:"BCHTX_NETWORK" description:"mainnet, testnet or regtest" default:"mainnet"`
	LogLevel string `long:"log-level" env:"BCHTX_LOG_LEVEL" description:"debug, info, warn or error" default:"warn"`
	LogJSON  bool   `long:"log-json" env:"BCHTX_LOG_JSON" description:"log as JSON"`
}

// setup configures logging and resolves the network.
func (g *GlobalOptions) setup() (*chaincfg.Params, error) {
	klog.Init(g.LogLevel, g.LogJSON)
	return api.NetworkParams(g.Network)
}

type command func(args []string) error

var commands = map[string]command{
	"propose":        cmdPropose,
	"decode":         cmdDecode,
	"sighash":        cmdSighash,
	"sign":           cmdSign,
	"combine":        cmdCombine,
	"verify":         cmdVerify,
	"extract":        cmdExtract,
	"parse-uri":      cmdParseURI,
	"sign-message":   cmdSignMessage,
	"verify-message": cmdVerifyMessage,
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	switch name {
	case "version":
		fmt.Println("bchtx " + version)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}
	if err := cmd(os.Args[2:]); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) {
			// go-flags has already printed it.
			if flagErr.Type == flags.ErrHelp {
				return
			}
			os.Exit(2)
		}
		klog.CLI.Error().Err(err).Str("command", name).Msg("Command failed")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`bchtx - Bitcoin Cash transaction builder

Usage:
  bchtx <command> [options] [arguments]

Commands:
  propose                       Build a transaction document
  decode <tx>                   Print a raw transaction or document as JSON
  sighash --input N <doc>       Compute the signature hash of an input
  sign --key WIF <doc|hex>      Sign every input the keys can satisfy
                                (--utxo attaches spent outputs to a raw hex)
  combine <doc> <doc>...        Merge partially signed documents
  verify <doc|hex>              Run the sanity and policy checks
  extract <doc>                 Check a signed document and print raw hex
  parse-uri <uri>               Parse a bitcoincash: payment request
  sign-message --key WIF <msg>  Sign a message
  verify-message --address A --signature S <msg>
                                Verify a signed message
  version                       Show version information
  help                          Show this help message

Global options:
  --network    mainnet, testnet or regtest (env BCHTX_NETWORK)
  --log-level  debug, info, warn or error (env BCHTX_LOG_LEVEL)
  --log-json   log as JSON (env BCHTX_LOG_JSON)

Run "bchtx <command> --help" for the options of a command.`)
}
