// Package config holds the engine tuning: plan tiers, trade amount ranges,
// the funding stake and network timeouts. Loaded from YAML, merged over
// defaults, passed explicitly into the orchestrator.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/volbot/volcluster/internal/domain"
)

// TierPolicy describes one service tier. Amount bounds are in SOL; the
// per-cycle volume estimate is a flat contribution in USD terms.
type TierPolicy struct {
	WalletCount    int     `yaml:"wallet_count"`
	AmountMinSOL   float64 `yaml:"amount_min_sol"`
	AmountMaxSOL   float64 `yaml:"amount_max_sol"`
	VolumePerCycle float64 `yaml:"volume_per_cycle"`
	CampaignDays   int     `yaml:"campaign_days"`
}

type Config struct {
	Tiers map[domain.PlanID]TierPolicy `yaml:"tiers"`

	FundingStakeSOL float64 `yaml:"funding_stake_sol"` // fixed per-wallet gas stake
	SlippageBps     int     `yaml:"slippage_bps"`

	// network call deadlines, seconds
	FundingTimeoutSec int `yaml:"funding_timeout_sec"`
	SwapTimeoutSec    int `yaml:"swap_timeout_sec"`
}

// Default returns the tier table shipped with the engine: basic 0.01-0.03
// SOL, pro 0.05-0.15, whale 0.2-0.7.
func Default() Config {
	return Config{
		Tiers: map[domain.PlanID]TierPolicy{
			domain.PlanBasic: {WalletCount: 1, AmountMinSOL: 0.01, AmountMaxSOL: 0.03, VolumePerCycle: 5, CampaignDays: 1},
			domain.PlanPro:   {WalletCount: 4, AmountMinSOL: 0.05, AmountMaxSOL: 0.15, VolumePerCycle: 25, CampaignDays: 7},
			domain.PlanWhale: {WalletCount: 10, AmountMinSOL: 0.2, AmountMaxSOL: 0.7, VolumePerCycle: 100, CampaignDays: 30},
		},
		FundingStakeSOL:   0.05,
		SlippageBps:       100,
		FundingTimeoutSec: 60,
		SwapTimeoutSec:    90,
	}
}

// Load reads a YAML file and merges it over Default. A missing path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	for _, plan := range []domain.PlanID{domain.PlanBasic, domain.PlanPro, domain.PlanWhale} {
		tier, ok := c.Tiers[plan]
		if !ok {
			return fmt.Errorf("config: tier %q missing", plan)
		}
		if tier.WalletCount <= 0 {
			return fmt.Errorf("config: tier %q wallet_count must be positive", plan)
		}
		if tier.AmountMinSOL <= 0 || tier.AmountMaxSOL < tier.AmountMinSOL {
			return fmt.Errorf("config: tier %q amount bounds invalid", plan)
		}
	}
	if c.FundingStakeSOL <= 0 {
		return fmt.Errorf("config: funding_stake_sol must be positive")
	}
	if c.SlippageBps <= 0 {
		return fmt.Errorf("config: slippage_bps must be positive")
	}
	return nil
}

func (c Config) Tier(plan domain.PlanID) (TierPolicy, bool) {
	t, ok := c.Tiers[plan]
	return t, ok
}
