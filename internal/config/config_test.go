package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/volbot/volcluster/internal/domain"
)

func TestDefaultTiers(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	basic, ok := cfg.Tier(domain.PlanBasic)
	if !ok || basic.WalletCount != 1 {
		t.Fatalf("basic tier: %+v ok=%v", basic, ok)
	}
	pro, _ := cfg.Tier(domain.PlanPro)
	if pro.WalletCount != 4 || pro.VolumePerCycle != 25 {
		t.Fatalf("pro tier: %+v", pro)
	}
	whale, _ := cfg.Tier(domain.PlanWhale)
	if whale.WalletCount != 10 || whale.AmountMaxSOL != 0.7 {
		t.Fatalf("whale tier: %+v", whale)
	}

	if _, ok := cfg.Tier(domain.PlanID("turbo")); ok {
		t.Fatal("unknown tier must not resolve")
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	yaml := `
tiers:
  whale:
    wallet_count: 20
    amount_min_sol: 0.5
    amount_max_sol: 2.0
    volume_per_cycle: 250
    campaign_days: 60
funding_stake_sol: 0.1
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	whale, _ := cfg.Tier(domain.PlanWhale)
	if whale.WalletCount != 20 || whale.AmountMaxSOL != 2.0 {
		t.Fatalf("override not applied: %+v", whale)
	}
	if cfg.FundingStakeSOL != 0.1 {
		t.Fatalf("funding stake override not applied: %f", cfg.FundingStakeSOL)
	}
	// untouched tiers keep their defaults
	basic, _ := cfg.Tier(domain.PlanBasic)
	if basic.WalletCount != 1 || basic.AmountMinSOL != 0.01 {
		t.Fatalf("basic tier lost defaults: %+v", basic)
	}
	if cfg.SlippageBps != 100 {
		t.Fatalf("slippage lost default: %d", cfg.SlippageBps)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if cfg.FundingStakeSOL != 0.05 {
		t.Fatalf("defaults not returned: %+v", cfg)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	yaml := `
tiers:
  basic:
    wallet_count: 0
    amount_min_sol: 0.01
    amount_max_sol: 0.03
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("zero wallet_count must be rejected")
	}
}
