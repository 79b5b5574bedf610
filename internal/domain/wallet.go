package domain

import "time"

// ExecutionWallet is one member of a bot's cluster. Exactly one secret per
// wallet; the secret itself lives in the key vault, only the opaque handle is
// persisted here. Balance is a best-effort cache of the value known after the
// last funding or spend event, not a source of truth for on-chain state.
type ExecutionWallet struct {
	ID           string    `json:"id"`
	BotID        string    `json:"bot_id"`
	Slot         int       `json:"slot"`
	PublicKey    string    `json:"public_key"`
	SecretHandle string    `json:"-"`
	Label        string    `json:"label"`
	BalanceSOL   float64   `json:"balance"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}
