package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"mrtcore/crypto"
	"mrtcore/native/oracle"
)

const attestUsage = `Usage: mrtcore-cli attest [flags]

Signs a price attestation for submission to the oracle aggregator.

Flags:
  -key string
        Path to the source signer keystore file (required)
  -symbol string
        Royalty asset symbol to attest, e.g. SONG-TSW-001 (required)
  -price string
        Observed price as a base-10 integer in the smallest unit (required)
  -confidence uint
        Source confidence score between 50 and 100 (default 95)
  -ts int
        Unix timestamp of the observation (default now)`

func runAttestCommand(args []string, stdout, stderr io.Writer) int {
	fs := newAttestFlagSet(stderr)
	keyPath := fs.String("key", "", "path to the signer keystore file")
	symbol := fs.String("symbol", "", "royalty asset symbol to attest")
	priceRaw := fs.String("price", "", "observed price as a base-10 integer")
	confidence := fs.Uint("confidence", 95, "source confidence score")
	ts := fs.Int64("ts", 0, "unix timestamp of the observation")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	if fs.NArg() > 0 {
		return printAttestError(stderr, fmt.Sprintf("unexpected argument %q", fs.Arg(0)))
	}
	if strings.TrimSpace(*keyPath) == "" {
		return printAttestError(stderr, "-key is required")
	}
	if strings.TrimSpace(*symbol) == "" {
		return printAttestError(stderr, "-symbol is required")
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(*priceRaw), 10)
	if !ok || price.Sign() <= 0 {
		return printAttestError(stderr, "-price must be a positive base-10 integer")
	}
	timestamp := *ts
	if timestamp == 0 {
		timestamp = time.Now().Unix()
	}

	key, err := loadKeystore(*keyPath)
	if err != nil {
		return printAttestError(stderr, fmt.Sprintf("load keystore: %v", err))
	}

	att, err := oracle.NewPriceAttestation(oracle.AttestationDomainV1, *symbol, price, uint32(*confidence), timestamp, nil)
	if err != nil {
		return printAttestError(stderr, err.Error())
	}
	if err := att.Sign(key.PrivateKey); err != nil {
		return printAttestError(stderr, fmt.Sprintf("sign attestation: %v", err))
	}

	message, err := att.CanonicalMessage()
	if err != nil {
		return printAttestError(stderr, err.Error())
	}
	id, err := att.ID()
	if err != nil {
		return printAttestError(stderr, err.Error())
	}
	signer, err := att.RecoverSigner()
	if err != nil {
		return printAttestError(stderr, fmt.Sprintf("recover signer: %v", err))
	}

	fmt.Fprintf(stdout, "Attestation %s\n", id)
	fmt.Fprintf(stdout, "  Message:   %s\n", message)
	fmt.Fprintf(stdout, "  Signature: 0x%s\n", hex.EncodeToString(att.Signature))
	fmt.Fprintf(stdout, "  Source:    %s\n", crypto.NewAddress(signer[:]).String())
	return 0
}

func newAttestFlagSet(stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("attest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, strings.TrimSpace(attestUsage))
	}
	return fs
}

func printAttestError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	fmt.Fprintln(w, "Run 'mrtcore-cli attest -h' for usage.")
	return 1
}
