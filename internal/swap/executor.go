package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dex-sniper-bot-go/internal/logger"
	"dex-sniper-bot-go/pkg/utils"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

var (
	// ErrBuildFailed means no transaction was broadcast.
	ErrBuildFailed = errors.New("swap build failed")
	// ErrSubmitFailed means the submission endpoint rejected the transaction.
	ErrSubmitFailed = errors.New("swap submission failed")
	// ErrTxFailed means the transaction landed and failed on chain.
	ErrTxFailed = errors.New("swap transaction failed on chain")
	// ErrTxExpired means the blockhash expired before the transaction was seen.
	ErrTxExpired = errors.New("swap transaction expired")
	// ErrTradeAmbiguous means the transaction was broadcast but its outcome is
	// unknown. It may still land; callers must not assume either result.
	ErrTradeAmbiguous = errors.New("swap outcome unknown")
)

// Signer signs transaction messages for the fee payer
type Signer interface {
	PublicKey() solana.PublicKey
	SignMessage(message []byte) (solana.Signature, error)
}

// Submitter broadcasts a signed transaction
type Submitter interface {
	SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
}

// Ledger answers confirmation queries
type Ledger interface {
	GetSignatureStatus(ctx context.Context, signature solana.Signature) (*rpc.SignatureStatusesResult, error)
	GetBlockHeight(ctx context.Context) (uint64, error)
}

// Builder turns a quote into an unsigned transaction
type Builder interface {
	BuildSwap(ctx context.Context, quote *Quote, userPublicKey string) (*SwapTransaction, error)
}

// ExecutorConfig bounds confirmation polling
type ExecutorConfig struct {
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Executor runs a quote to a confirmed on-chain swap
type Executor struct {
	builder   Builder
	signer    Signer
	submitter Submitter
	ledger    Ledger
	cfg       ExecutorConfig
	logger    *logger.Logger
}

// Result describes a confirmed swap
type Result struct {
	Signature solana.Signature
	InAmount  uint64
	OutAmount uint64
	Slot      uint64
}

// NewExecutor creates an executor
func NewExecutor(builder Builder, signer Signer, submitter Submitter, ledger Ledger, cfg ExecutorConfig, log *logger.Logger) *Executor {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Executor{
		builder:   builder,
		signer:    signer,
		submitter: submitter,
		ledger:    ledger,
		cfg:       cfg,
		logger:    log,
	}
}

// Execute builds, signs, submits and confirms a swap for quote. It never
// retries: a returned error is one of the sentinel outcomes above.
func (e *Executor) Execute(ctx context.Context, quote *Quote) (*Result, error) {
	built, err := e.builder.BuildSwap(ctx, quote, e.signer.PublicKey().String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}

	raw, signed, err := e.sign(built.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}

	sig, err := e.submitter.SendRawTransaction(ctx, raw)
	if err != nil {
		// only a JSON-RPC error response proves the node refused the transaction
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			return nil, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
		}
		e.logger.WithTransaction(signed.String()).WithError(err).Warn("⚠️ Submission outcome unknown, tracking signature")
		sig = signed
	}
	if sig.IsZero() {
		sig = signed
	}

	log := e.logger.WithTransaction(sig.String())
	log.WithField("last_valid_block_height", built.LastValidBlockHeight).Info("📤 Swap submitted, awaiting confirmation")

	slot, err := e.confirm(ctx, sig, built.LastValidBlockHeight)
	if err != nil {
		log.WithError(err).Warn("⚠️ Swap not confirmed")
		return nil, err
	}

	log.WithField("slot", slot).Info("✅ Swap confirmed")
	return &Result{
		Signature: sig,
		InAmount:  quote.InAmountUint(),
		OutAmount: quote.OutAmountUint(),
		Slot:      slot,
	}, nil
}

// sign decodes the base64 transaction and fills in the fee payer signature.
// The returned signature identifies the transaction on chain.
func (e *Executor) sign(encoded string) ([]byte, solana.Signature, error) {
	data, err := utils.DecodeBase64(encoded)
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("failed to decode transaction: %w", err)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(data))
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("failed to parse transaction: %w", err)
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("failed to serialize message: %w", err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	signer := e.signer.PublicKey()
	index := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(signer) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, solana.Signature{}, fmt.Errorf("wallet %s is not a signer of the swap transaction", signer)
	}

	sig, err := e.signer.SignMessage(message)
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	tx.Signatures[index] = sig

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return raw, tx.Signatures[0], nil
}

// confirm polls the signature until it is confirmed, fails, expires or the
// confirmation window closes.
func (e *Executor) confirm(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, err := e.ledger.GetSignatureStatus(ctx, sig)
		switch {
		case err != nil:
			e.logger.WithTransaction(sig.String()).WithError(err).Debug("Signature status query failed")
		case status != nil && status.Err != nil:
			return 0, fmt.Errorf("%w: %s: %v", ErrTxFailed, sig, status.Err)
		case status != nil && (status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			status.ConfirmationStatus == rpc.ConfirmationStatusFinalized):
			return status.Slot, nil
		case status == nil && lastValidBlockHeight > 0:
			height, err := e.ledger.GetBlockHeight(ctx)
			if err == nil && height > lastValidBlockHeight {
				return 0, fmt.Errorf("%w: %s: block height %d passed %d", ErrTxExpired, sig, height, lastValidBlockHeight)
			}
		}

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %s not confirmed within %s", ErrTradeAmbiguous, sig, e.cfg.ConfirmTimeout)
		case <-ticker.C:
		}
	}
}
