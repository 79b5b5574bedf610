package domain

import "time"

// BotStatus is the campaign lifecycle state. The only transitions performed
// by the engine are initializing -> active (first successful cycle) and
// active -> expired (time-driven). failed is reserved for operator tooling.
type BotStatus string

const (
	BotStatusInitializing BotStatus = "initializing"
	BotStatusActive       BotStatus = "active"
	BotStatusExpired      BotStatus = "expired"
	BotStatusFailed       BotStatus = "failed"
)

// PlanID is the service tier of a campaign. It determines the wallet-pool
// size and the per-cycle trade amount range.
type PlanID string

const (
	PlanBasic PlanID = "basic"
	PlanPro   PlanID = "pro"
	PlanWhale PlanID = "whale"
)

func ParsePlanID(s string) (PlanID, bool) {
	switch PlanID(s) {
	case PlanBasic, PlanPro, PlanWhale:
		return PlanID(s), true
	}
	return "", false
}

// Bot is one volume-generation campaign against a target token.
//
// TotalVolumeGenerated and WalletCount are monotonically non-decreasing over
// the bot's life. Profit is a placeholder counter, not realized P&L; see
// engine.ExecuteCycle.
type Bot struct {
	ID                   string     `json:"id"`
	TargetToken          string     `json:"target_token"`
	PlanID               PlanID     `json:"plan_id"`
	Status               BotStatus  `json:"status"`
	ExpiresAt            time.Time  `json:"expires_at"`
	LastTradeAt          *time.Time `json:"last_trade_at,omitempty"`
	TotalVolumeGenerated float64    `json:"total_volume_generated"`
	Profit               float64    `json:"profit"`
	WalletCount          int        `json:"wallet_count"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (b *Bot) Expired(now time.Time) bool {
	return !b.ExpiresAt.IsZero() && now.After(b.ExpiresAt)
}

// BotStats is the statistics slice of a Bot mutated by one successful cycle.
// VolumeDelta and ProfitDelta are increments the store applies atomically so
// concurrent cycles for the same bot never lose each other's contribution;
// the remaining fields are absolute.
type BotStats struct {
	Status      BotStatus
	LastTradeAt time.Time
	VolumeDelta float64
	ProfitDelta float64
	WalletCount int
}
