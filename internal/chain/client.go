// Package chain wraps the JSON-RPC node client used for native transfers and
// transaction confirmation. Swap routing does not go through here; that is the
// aggregator's job.
package chain

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
)

var (
	// ErrConfirmTimeout: the transaction was submitted but did not reach the
	// target commitment before the deadline. Gas may already be spent.
	ErrConfirmTimeout = errors.New("chain: confirmation timed out")
	// ErrTransactionRejected: the cluster processed the transaction and it
	// failed on-chain.
	ErrTransactionRejected = errors.New("chain: transaction rejected")
)

type Config struct {
	RPCURL         string
	ConfirmTimeout time.Duration // per WaitForConfirmation call
	PollInterval   time.Duration
}

type Client struct {
	rpc            *rpc.Client
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

func New(cfg Config) *Client {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 45 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Client{
		rpc:            rpc.New(cfg.RPCURL),
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
	}
}

type Confirmation struct {
	Signature solana.Signature
	Slot      uint64
}

func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, errors.Wrap(err, "get latest blockhash")
	}
	return out.Value.Blockhash, nil
}

func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	maxRetries := uint(3)
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight: true,
		MaxRetries:    &maxRetries,
	})
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "send transaction")
	}
	return sig, nil
}

func (c *Client) GetBalance(ctx context.Context, pub solana.PublicKey) (uint64, error) {
	out, err := c.rpc.GetBalance(ctx, pub, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, errors.Wrap(err, "get balance")
	}
	return out.Value, nil
}

// WaitForConfirmation polls signature status until the transaction is
// confirmed, rejected, or the deadline passes. No resubmission happens here;
// retry policy belongs to the caller.
func (c *Client) WaitForConfirmation(ctx context.Context, sig solana.Signature) (*Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return nil, errors.Wrapf(ErrTransactionRejected, "sig=%s err=%v", sig, st.Err)
			}
			switch st.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return &Confirmation{Signature: sig, Slot: st.Slot}, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ErrConfirmTimeout, "sig=%s", sig)
		case <-ticker.C:
		}
	}
}
