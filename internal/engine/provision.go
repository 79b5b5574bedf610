package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/volbot/volcluster/internal/domain"
	"github.com/volbot/volcluster/internal/keyvault"
	"github.com/volbot/volcluster/pkg/logger"
)

// keyedMutex serializes provisioning per bot id. Entries are never freed; the
// fleet is small and a stale mutex per bot is cheaper than refcounting.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// ensureWalletPool makes the bot's wallet pool exist at the size its tier
// dictates, creating and funding only the missing slots. Idempotent at slot
// granularity: a partially provisioned pool from an earlier failed cycle is
// completed here, never recreated. The per-bot mutex plus the (bot_id, slot)
// unique constraint guarantee at most one pool per bot even under concurrent
// first cycles; a race loser simply re-reads the winner's rows.
func (e *Engine) ensureWalletPool(ctx context.Context, bot *domain.Bot, plan domain.PlanID, settings *domain.MasterSettings) ([]domain.ExecutionWallet, error) {
	tier, ok := e.cfg.Tier(plan)
	if !ok {
		return nil, cycleErrf(KindConfiguration, "no tier policy for plan %q", plan)
	}

	wallets, err := e.store.ListWallets(ctx, bot.ID)
	if err != nil {
		return nil, cycleErr(KindInternal, errors.Wrap(err, "list wallets"))
	}
	if len(wallets) >= tier.WalletCount {
		return wallets, nil
	}

	unlock := e.provisionLocks.Lock(bot.ID)
	defer unlock()

	// re-read under the lock: another cycle may have provisioned while we
	// waited
	wallets, err = e.store.ListWallets(ctx, bot.ID)
	if err != nil {
		return nil, cycleErr(KindInternal, errors.Wrap(err, "list wallets"))
	}
	have := make(map[int]bool, len(wallets))
	for _, w := range wallets {
		have[w.Slot] = true
	}

	for slot := 0; slot < tier.WalletCount; slot++ {
		if have[slot] {
			continue
		}
		pub, handle, err := e.vault.Generate()
		if err != nil {
			return nil, cycleErr(KindInternal, errors.Wrapf(err, "generate keypair for slot %d", slot))
		}
		w := domain.ExecutionWallet{
			ID:           uuid.NewString(),
			BotID:        bot.ID,
			Slot:         slot,
			PublicKey:    pub.String(),
			SecretHandle: handle,
			Label:        fmt.Sprintf("Cluster Node %d", slot+1),
			IsActive:     true,
			CreatedAt:    time.Now(),
		}
		inserted, err := e.store.InsertWalletSlot(ctx, w)
		if err != nil {
			return nil, cycleErr(KindInternal, errors.Wrapf(err, "persist wallet slot %d", slot))
		}
		if !inserted {
			// lost the slot to a concurrent provisioner in another process;
			// its row is the pool member, our keypair is discarded
			continue
		}
		e.fundWallet(ctx, settings, w, pub)
	}

	wallets, err = e.store.ListWallets(ctx, bot.ID)
	if err != nil {
		return nil, cycleErr(KindInternal, errors.Wrap(err, "list wallets"))
	}
	return wallets, nil
}

// fundWallet stakes gas into a new wallet. Best-effort: a failure is logged
// and the wallet keeps its zero balance; trading is not blocked (the swap
// itself will fail and report normally if gas is actually short). Funding is
// never re-attempted on later cycles.
func (e *Engine) fundWallet(ctx context.Context, settings *domain.MasterSettings, w domain.ExecutionWallet, target solana.PublicKey) {
	stake := SOLToLamports(e.cfg.FundingStakeSOL)

	fctx := ctx
	if e.cfg.FundingTimeoutSec > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.FundingTimeoutSec)*time.Second)
		defer cancel()
	}

	if _, err := e.funder.Fund(fctx, settings.MasterSecretHandle, target, stake); err != nil {
		logger.WithFields(logrus.Fields{"bot": w.BotID, "wallet": w.PublicKey}).
			Warnf("funding failed (likely insufficient master balance), continuing: %v", err)
		return
	}
	if err := e.store.UpdateWalletBalance(ctx, w.ID, e.cfg.FundingStakeSOL); err != nil {
		logger.Warnf("funding succeeded but balance cache update failed for %s: %v", w.ID, err)
	}
}

// reconstitute filters the pool down to wallets whose signing capability can
// actually be restored from the stored handle. An undecodable handle is data
// corruption: the wallet is flagged inactive and the rest of the cluster
// keeps going.
func (e *Engine) reconstitute(ctx context.Context, wallets []domain.ExecutionWallet) []domain.ExecutionWallet {
	usable := wallets[:0]
	for _, w := range wallets {
		if !w.IsActive {
			continue
		}
		if _, err := e.vault.PublicKey(w.SecretHandle); err != nil {
			if errors.Is(err, keyvault.ErrKeyDecode) {
				logger.Errorf("wallet %s (%s) has corrupt key material, deactivating: %v", w.ID, w.PublicKey, err)
				if derr := e.store.DeactivateWallet(ctx, w.ID); derr != nil {
					logger.Errorf("deactivate wallet %s: %v", w.ID, derr)
				}
				continue
			}
			logger.Errorf("wallet %s key resolution failed: %v", w.ID, err)
			continue
		}
		usable = append(usable, w)
	}
	return usable
}
