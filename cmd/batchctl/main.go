// Command batchctl builds payout batches and mints caller tokens.
//
// Usage:
//
//	batchctl build -in entries.csv -asset 0x... -decimals 6 -out batch.json
//	batchctl verify -in batch.json
//	batchctl token -account 0x... -ttl 1h
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "build":
		err = runBuild(os.Args[2:], os.Stdout)
	case "verify":
		err = runVerify(os.Args[2:], os.Stdout)
	case "token":
		err = runToken(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		usage(os.Stdout)
		return
	default:
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "batchctl:", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: batchctl <build|verify|token> [flags]")
}

func runBuild(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	in := fs.String("in", "", "entry list, .json or .csv")
	out := fs.String("out", "", "output file (default stdout)")
	asset := fs.String("asset", "", "default asset address for entries without one")
	decimals := fs.Int("decimals", 0, "asset decimals used to scale amounts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("-in is required")
	}

	var defaultAsset common.Address
	if *asset != "" {
		if !common.IsHexAddress(*asset) {
			return fmt.Errorf("invalid -asset %q", *asset)
		}
		defaultAsset = common.HexToAddress(*asset)
	}

	f, err := os.Open(*in)
	if err != nil {
		return fmt.Errorf("failed to open entries: %w", err)
	}
	defer f.Close()

	entries, err := readEntries(f, *in, defaultAsset, int32(*decimals))
	if err != nil {
		return err
	}
	bundle, err := buildBundle(entries)
	if err != nil {
		return err
	}

	w := stdout
	if *out != "" {
		file, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer file.Close()
		w = file
	}
	return writeBundle(w, bundle)
}

func runVerify(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	in := fs.String("in", "", "bundle written by build")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("-in is required")
	}

	f, err := os.Open(*in)
	if err != nil {
		return fmt.Errorf("failed to open bundle: %w", err)
	}
	defer f.Close()

	bundle, err := readBundle(f)
	if err != nil {
		return err
	}
	if err := verifyBundle(bundle); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "ok: %d leaves verify against %s\n", len(bundle.Entries), bundle.Root.Hex())
	return nil
}

func runToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	account := fs.String("account", "", "caller account address")
	secret := fs.String("secret", os.Getenv("JWT_SECRET"), "signing secret (default $JWT_SECRET)")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !common.IsHexAddress(*account) {
		return fmt.Errorf("invalid -account %q", *account)
	}
	if len(*secret) < 32 {
		return fmt.Errorf("secret must be at least 32 bytes")
	}

	token, err := auth.NewJWTManager(*secret, *ttl).Generate(common.HexToAddress(*account))
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}
