package main

import (
	"flag"
	"fmt"
	"io"

	"impactbond/cmd/internal/passphrase"
	"impactbond/crypto"
)

const passphraseEnv = "BOND_KEYSTORE_PASSPHRASE"

func (c *cli) generateKey(args []string) int {
	fs := flag.NewFlagSet("generate-key", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	light := fs.Bool("light", false, "use light scrypt parameters (testing only)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(c.stderr, "generate-key: %v\n", err)
		return 2
	}
	path := "bond.keystore"
	if fs.NArg() > 1 {
		fmt.Fprintln(c.stderr, "generate-key: too many arguments")
		return 2
	}
	if fs.NArg() == 1 {
		path = fs.Arg(0)
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: generate key: %v\n", err)
		return 1
	}
	pass, err := passphrase.NewSource(passphraseEnv).Get()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	var opts []crypto.KeystoreOption
	if *light {
		opts = append(opts, crypto.WithLightScrypt())
	}
	addr, err := crypto.SaveToKeystore(path, key, pass, opts...)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	if err := c.print(map[string]any{"address": addr.String(), "keystore": path}); err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
