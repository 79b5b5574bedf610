// Package engine is the cluster orchestrator: it drives one trade cycle for
// one bot end to end: load state, ensure the wallet pool, pick an executor,
// size the trade, run the swap through the aggregator and write back the
// bot's statistics. Each call is an independent unit of work; periodic
// triggering belongs to the caller.
package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/volbot/volcluster/internal/chain"
	"github.com/volbot/volcluster/internal/config"
	"github.com/volbot/volcluster/internal/domain"
	"github.com/volbot/volcluster/internal/keyvault"
	"github.com/volbot/volcluster/internal/swaprouter"
	"github.com/volbot/volcluster/pkg/logger"
)

// Store is the persistence surface the engine needs. *store.Store satisfies
// it.
type Store interface {
	GetBot(ctx context.Context, botID string) (*domain.Bot, error)
	SetBotStatus(ctx context.Context, botID string, status domain.BotStatus) error
	UpdateBotStats(ctx context.Context, botID string, stats domain.BotStats) error
	ListWallets(ctx context.Context, botID string) ([]domain.ExecutionWallet, error)
	InsertWalletSlot(ctx context.Context, w domain.ExecutionWallet) (bool, error)
	UpdateWalletBalance(ctx context.Context, walletID string, balanceSOL float64) error
	DeactivateWallet(ctx context.Context, walletID string) error
	GetMasterSettings(ctx context.Context) (*domain.MasterSettings, error)
}

// Vault is the signing capability. *keyvault.Vault satisfies it.
type Vault interface {
	Generate() (solana.PublicKey, string, error)
	PublicKey(handle string) (solana.PublicKey, error)
	SignTransaction(handle string, tx *solana.Transaction) error
}

// Funder stakes gas into new wallets. *funding.Manager satisfies it.
type Funder interface {
	Fund(ctx context.Context, masterHandle string, target solana.PublicKey, lamports uint64) (*chain.Confirmation, error)
}

// Router is the external swap aggregator. *swaprouter.Router satisfies it.
type Router interface {
	Quote(ctx context.Context, inputMint, outputMint string, amountBaseUnits uint64, slippageBps int) (*swaprouter.Quote, error)
	BuildTransaction(ctx context.Context, q *swaprouter.Quote, payer solana.PublicKey) (*swaprouter.UnsignedTransaction, error)
	Submit(ctx context.Context, tx *solana.Transaction) (*chain.Confirmation, error)
}

type Engine struct {
	store  Store
	vault  Vault
	funder Funder
	router Router
	params *ParamGenerator
	cfg    config.Config

	provisionLocks *keyedMutex
}

func New(cfg config.Config, st Store, v Vault, f Funder, r Router) *Engine {
	return &Engine{
		store:          st,
		vault:          v,
		funder:         f,
		router:         r,
		params:         NewParamGenerator(cfg),
		cfg:            cfg,
		provisionLocks: newKeyedMutex(),
	}
}

// CycleResult is what one successful cycle hands back to the caller.
type CycleResult struct {
	Signature         string      `json:"signature"`
	ExecutorPublicKey string      `json:"executor_public_key"`
	AmountSOL         float64     `json:"amount_sol"`
	VolumeEstimate    float64     `json:"volume_estimate"`
	Bot               *domain.Bot `json:"stats"`
}

// ExecuteCycle runs one trade cycle for botID against targetToken.
//
// Failures before the swap is confirmed leave the bot's statistics untouched.
// Wallet creation and funding are not rolled back on failure: a partial pool
// is valid state and is completed on the next attempt.
func (e *Engine) ExecuteCycle(ctx context.Context, botID, targetToken, planID string) (*CycleResult, error) {
	// 1. load bot + master settings; incomplete settings are a hard
	// precondition failure
	settings, err := e.store.GetMasterSettings(ctx)
	if err != nil {
		return nil, cycleErr(KindInternal, errors.Wrap(err, "load settings"))
	}
	if settings == nil || !settings.Complete() {
		return nil, cycleErrf(KindConfiguration, "cluster credentials are not configured")
	}

	bot, err := e.store.GetBot(ctx, botID)
	if err != nil {
		return nil, cycleErr(KindInternal, errors.Wrap(err, "load bot"))
	}
	if bot == nil {
		return nil, cycleErrf(KindBotNotFound, "bot %s not found", botID)
	}
	now := time.Now()
	if bot.Expired(now) {
		if bot.Status != domain.BotStatusExpired {
			if serr := e.store.SetBotStatus(ctx, bot.ID, domain.BotStatusExpired); serr != nil {
				logger.Errorf("mark bot %s expired: %v", bot.ID, serr)
			}
		}
		return nil, cycleErrf(KindBotExpired, "bot %s expired at %s", bot.ID, bot.ExpiresAt.Format(time.RFC3339))
	}

	plan := resolvePlan(planID, bot.PlanID)

	// 2. ensure the wallet pool exists and signing capability can be restored
	wallets, err := e.ensureWalletPool(ctx, bot, plan, settings)
	if err != nil {
		return nil, err
	}
	usable := e.reconstitute(ctx, wallets)
	if len(usable) == 0 {
		return nil, cycleErrf(KindKeyDecode, "no usable execution wallets for bot %s", bot.ID)
	}

	// 3. select the executor uniformly at random; no health check, a wallet
	// short on gas fails the swap and that is reported normally
	executor := usable[rand.Intn(len(usable))]
	executorPub, err := solana.PublicKeyFromBase58(executor.PublicKey)
	if err != nil {
		return nil, cycleErr(KindInternal, errors.Wrapf(err, "executor key %s", executor.PublicKey))
	}

	// 4. trade sizing
	params, err := e.params.Next(plan)
	if err != nil {
		return nil, cycleErr(KindConfiguration, err)
	}

	// 5. swap: quote -> build -> sign -> submit
	sctx := ctx
	if e.cfg.SwapTimeoutSec > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.SwapTimeoutSec)*time.Second)
		defer cancel()
	}
	conf, err := e.executeSwap(sctx, executor, executorPub, targetToken, params)
	if err != nil {
		return nil, err
	}

	// 6. statistics, applied as increments in the store so concurrent cycles
	// never lose each other's contribution. Profit is a placeholder drift
	// value, not realized P&L; do not present it as such.
	stats := domain.BotStats{
		Status:      domain.BotStatusActive,
		LastTradeAt: time.Now(),
		VolumeDelta: params.VolumeEstimate,
		ProfitDelta: rand.Float64() * 0.001,
		WalletCount: len(wallets),
	}
	if err := e.store.UpdateBotStats(ctx, bot.ID, stats); err != nil {
		return nil, cycleErr(KindInternal, errors.Wrap(err, "update stats"))
	}
	updated, err := e.store.GetBot(ctx, bot.ID)
	if err != nil {
		logger.Warnf("reload bot %s after cycle: %v", bot.ID, err)
		updated = bot
	}

	amountSOL, _ := params.AmountSOL.Float64()
	logger.WithFields(logrus.Fields{
		"bot":      bot.ID,
		"executor": executor.PublicKey,
		"sig":      conf.Signature.String(),
	}).Infof("cycle complete: %.4f SOL -> %s", amountSOL, targetToken)

	return &CycleResult{
		Signature:         conf.Signature.String(),
		ExecutorPublicKey: executor.PublicKey,
		AmountSOL:         amountSOL,
		VolumeEstimate:    params.VolumeEstimate,
		Bot:               updated,
	}, nil
}

func (e *Engine) executeSwap(ctx context.Context, executor domain.ExecutionWallet, executorPub solana.PublicKey, targetToken string, params TradeParams) (*chain.Confirmation, error) {
	quote, err := e.router.Quote(ctx, solana.SolMint.String(), targetToken, params.AmountLamports, e.cfg.SlippageBps)
	if err != nil {
		return nil, classifyRouterErr(err, "quote")
	}

	unsigned, err := e.router.BuildTransaction(ctx, quote, executorPub)
	if err != nil {
		return nil, classifyRouterErr(err, "build")
	}

	if err := e.vault.SignTransaction(executor.SecretHandle, unsigned.Tx); err != nil {
		if errors.Is(err, keyvault.ErrKeyDecode) {
			if derr := e.store.DeactivateWallet(ctx, executor.ID); derr != nil {
				logger.Errorf("deactivate wallet %s: %v", executor.ID, derr)
			}
			return nil, cycleErr(KindKeyDecode, err)
		}
		return nil, cycleErr(KindInternal, errors.Wrap(err, "sign swap"))
	}

	conf, err := e.router.Submit(ctx, unsigned.Tx)
	if err != nil {
		return nil, classifyRouterErr(err, "submit")
	}
	return conf, nil
}

func classifyRouterErr(err error, stage string) error {
	switch {
	case errors.Is(err, swaprouter.ErrRouteUnavailable):
		return cycleErr(KindRouteUnavailable, err)
	case errors.Is(err, chain.ErrConfirmTimeout):
		return cycleErr(KindSubmissionTimeout, err)
	case errors.Is(err, chain.ErrTransactionRejected):
		return cycleErr(KindTransactionRejected, err)
	case errors.Is(err, context.DeadlineExceeded):
		if stage == "submit" {
			return cycleErr(KindSubmissionTimeout, err)
		}
		return cycleErr(KindUpstream, err)
	default:
		return cycleErr(KindUpstream, err)
	}
}

// resolvePlan: the request's plan wins, an unrecognized value falls back to
// the bot's stored plan, then to basic.
func resolvePlan(requested string, stored domain.PlanID) domain.PlanID {
	if p, ok := domain.ParsePlanID(requested); ok {
		return p
	}
	if p, ok := domain.ParsePlanID(string(stored)); ok {
		return p
	}
	return domain.PlanBasic
}
