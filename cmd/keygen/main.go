// Command keygen derives the base58 keypair the bot reads from a BIP39
// mnemonic, or generates a fresh mnemonic.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"dex-sniper-bot-go/internal/wallet"

	"github.com/mr-tron/base58"
	bip39 "github.com/tyler-smith/go-bip39"
)

var (
	generate   = flag.Bool("new", false, "Generate a new 12-word mnemonic")
	passphrase = flag.String("passphrase", "", "Optional BIP39 passphrase")
)

func main() {
	flag.Parse()

	mnemonic, err := readMnemonic()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	account, err := wallet.AccountFromMnemonic(mnemonic, *passphrase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	if *generate {
		fmt.Printf("Mnemonic:    %s\n", mnemonic)
	}
	fmt.Printf("Public key:  %s\n", account.PublicKey.ToBase58())
	fmt.Printf("Private key: %s\n", base58.Encode(account.PrivateKey))
}

func readMnemonic() (string, error) {
	if *generate {
		entropy, err := bip39.NewEntropy(128)
		if err != nil {
			return "", fmt.Errorf("failed to generate entropy: %w", err)
		}
		return bip39.NewMnemonic(entropy)
	}

	if flag.NArg() > 0 {
		return strings.Join(flag.Args(), " "), nil
	}
	if m := os.Getenv("WALLET_MNEMONIC"); m != "" {
		return m, nil
	}

	fmt.Fprint(os.Stderr, "Mnemonic: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read mnemonic: %w", err)
	}
	return strings.TrimSpace(line), nil
}
