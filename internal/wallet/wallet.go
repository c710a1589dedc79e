package wallet

import (
	"context"
	"errors"
	"fmt"

	"dex-sniper-bot-go/pkg/utils"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	bip39 "github.com/tyler-smith/go-bip39"
)

// RPC is the subset of the chain client the wallet reads balances through
type RPC interface {
	GetBalance(ctx context.Context, owner solana.PublicKey) (uint64, error)
	GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error)
}

// Wallet holds the trading keypair and answers balance queries for it
type Wallet struct {
	account types.Account
	rpc     RPC
	logger  *logrus.Logger
}

// WalletConfig contains wallet configuration
type WalletConfig struct {
	PrivateKey string // base58 64-byte keypair
	Mnemonic   string // BIP39 phrase, used when PrivateKey is empty
	Passphrase string
	Network    string
}

// NewWallet creates a new wallet instance from a private key or mnemonic
func NewWallet(cfg WalletConfig, rpc RPC, logger *logrus.Logger) (*Wallet, error) {
	var (
		account types.Account
		err     error
	)
	switch {
	case cfg.PrivateKey != "":
		if !utils.IsValidSolanaPrivateKey(cfg.PrivateKey) {
			return nil, errors.New("invalid private key: expected base58 encoded 64-byte keypair")
		}
		account, err = types.AccountFromBase58(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
	case cfg.Mnemonic != "":
		account, err = AccountFromMnemonic(cfg.Mnemonic, cfg.Passphrase)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("private key or mnemonic is required")
	}

	w := &Wallet{
		account: account,
		rpc:     rpc,
		logger:  logger,
	}

	logger.WithFields(logrus.Fields{
		"public_key": w.Address(),
		"network":    cfg.Network,
	}).Info("Wallet initialized")

	return w, nil
}

// AccountFromMnemonic derives the keypair from the first 32 bytes of the
// BIP39 seed, the same derivation solana-keygen uses without a path.
func AccountFromMnemonic(mnemonic, passphrase string) (types.Account, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return types.Account{}, errors.New("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	account, err := types.AccountFromSeed(seed[:32])
	if err != nil {
		return types.Account{}, fmt.Errorf("failed to derive account: %w", err)
	}
	return account, nil
}

// PublicKey returns the wallet's public key
func (w *Wallet) PublicKey() solana.PublicKey {
	return solana.PublicKeyFromBytes(w.account.PublicKey.Bytes())
}

// Address returns the wallet's public key as base58 string
func (w *Wallet) Address() string {
	return w.account.PublicKey.ToBase58()
}

// PrivateKeyBase58 exports the 64-byte keypair in the format NewWallet reads
func (w *Wallet) PrivateKeyBase58() string {
	return base58.Encode(w.account.PrivateKey)
}

// SignMessage signs serialized transaction message bytes
func (w *Wallet) SignMessage(message []byte) (solana.Signature, error) {
	sig := w.account.Sign(message)
	if len(sig) != solana.SignatureLength {
		return solana.Signature{}, fmt.Errorf("unexpected signature length %d", len(sig))
	}
	return solana.SignatureFromBytes(sig), nil
}

// NativeBalance returns the wallet's SOL balance in lamports
func (w *Wallet) NativeBalance(ctx context.Context) (uint64, error) {
	balance, err := w.rpc.GetBalance(ctx, w.PublicKey())
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	w.logger.WithFields(logrus.Fields{
		"balance_lamports": balance,
		"balance_sol":      utils.ConvertLamportsToSOL(balance),
	}).Debug("Retrieved wallet balance")

	return balance, nil
}

// TokenBalance returns the raw amount of mint the wallet holds
func (w *Wallet) TokenBalance(ctx context.Context, mint string) (uint64, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint %s: %w", mint, err)
	}

	balance, err := w.rpc.GetTokenBalance(ctx, w.PublicKey(), mintKey)
	if err != nil {
		return 0, fmt.Errorf("failed to get token balance: %w", err)
	}

	w.logger.WithFields(logrus.Fields{
		"mint":    mint,
		"balance": balance,
	}).Debug("Retrieved token balance")

	return balance, nil
}
