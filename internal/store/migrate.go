package store

import (
	"context"
	"fmt"
	"time"
)

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`
CREATE TABLE IF NOT EXISTS volume_bots (
  id TEXT PRIMARY KEY,
  target_token TEXT NOT NULL,
  plan_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'initializing',
  expires_at TEXT NOT NULL,
  last_trade_at TEXT,
  total_volume_generated REAL NOT NULL DEFAULT 0,
  profit REAL NOT NULL DEFAULT 0,
  wallet_count INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS bot_wallets (
  id TEXT PRIMARY KEY,
  bot_id TEXT NOT NULL REFERENCES volume_bots(id) ON DELETE CASCADE,
  slot INTEGER NOT NULL,
  public_key TEXT NOT NULL,
  secret_handle TEXT NOT NULL,
  label TEXT NOT NULL,
  balance REAL NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL
);`,
		// slot-granular idempotency: concurrent provisioners may both try to
		// fill a slot, only one row can win
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bot_wallets_bot_slot ON bot_wallets(bot_id, slot);`,
		`CREATE INDEX IF NOT EXISTS idx_bot_wallets_bot ON bot_wallets(bot_id);`,
		`
CREATE TABLE IF NOT EXISTS bot_settings (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  rpc_url TEXT NOT NULL DEFAULT '',
  master_secret_handle TEXT NOT NULL DEFAULT '',
  aggregator_api_key TEXT NOT NULL DEFAULT '',
  updated_at TEXT NOT NULL
);`,
	}

	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate exec failed: %w", err)
		}
	}
	return nil
}
