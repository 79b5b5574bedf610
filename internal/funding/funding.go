// Package funding stakes gas from the master wallet into freshly provisioned
// execution wallets. Funding is attempted exactly once per wallet, at creation
// time; the caller treats failures as non-fatal and trading proceeds.
package funding

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/pkg/errors"

	"github.com/volbot/volcluster/internal/chain"
	"github.com/volbot/volcluster/internal/keyvault"
	"github.com/volbot/volcluster/pkg/logger"
)

type Manager struct {
	chain *chain.Client
	vault *keyvault.Vault
}

func NewManager(c *chain.Client, v *keyvault.Vault) *Manager {
	return &Manager{chain: c, vault: v}
}

// Fund transfers lamports from the wallet behind masterHandle to target and
// waits for confirmation. The master secret is resolved per call and never
// cached; it is shared, read-only state across all bots.
func (m *Manager) Fund(ctx context.Context, masterHandle string, target solana.PublicKey, lamports uint64) (*chain.Confirmation, error) {
	master, err := m.vault.Resolve(masterHandle)
	if err != nil {
		return nil, errors.Wrap(err, "funding: resolve master")
	}
	masterPub := master.PublicKey()

	blockhash, err := m.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "funding: blockhash")
	}

	ix := system.NewTransferInstruction(lamports, masterPub, target).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(masterPub))
	if err != nil {
		return nil, errors.Wrap(err, "funding: build transfer")
	}
	if err := m.vault.SignTransaction(masterHandle, tx); err != nil {
		return nil, errors.Wrap(err, "funding: sign transfer")
	}

	sig, err := m.chain.SendTransaction(ctx, tx)
	if err != nil {
		return nil, errors.Wrap(err, "funding: submit transfer")
	}

	conf, err := m.chain.WaitForConfirmation(ctx, sig)
	if err != nil {
		return nil, errors.Wrap(err, "funding: confirm transfer")
	}

	logger.WithField("target", target.String()).
		Infof("funded %d lamports, sig=%s", lamports, sig)
	return conf, nil
}
