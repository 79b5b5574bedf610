package store

import (
	"context"
	"fmt"
	"time"

	"github.com/volbot/volcluster/internal/domain"
)

// InsertWalletSlot records a freshly generated wallet for (bot, slot).
// The unique index on (bot_id, slot) makes this safe under concurrent
// provisioning: the loser's insert is ignored and inserted=false is returned,
// so the caller can discard its keypair and reuse the winner's.
func (s *Store) InsertWalletSlot(ctx context.Context, w domain.ExecutionWallet) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO bot_wallets (id,bot_id,slot,public_key,secret_handle,label,balance,is_active,created_at)
VALUES (?,?,?,?,?,?,?,?,?)
ON CONFLICT(bot_id, slot) DO NOTHING
`, w.ID, w.BotID, w.Slot, w.PublicKey, w.SecretHandle, w.Label, w.BalanceSOL,
		boolToInt(w.IsActive), w.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("insert wallet slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ListWallets(ctx context.Context, botID string) ([]domain.ExecutionWallet, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,bot_id,slot,public_key,secret_handle,label,balance,is_active,created_at
FROM bot_wallets WHERE bot_id=? ORDER BY slot ASC
`, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExecutionWallet
	for rows.Next() {
		var (
			w        domain.ExecutionWallet
			isActive int
			created  string
		)
		if err := rows.Scan(&w.ID, &w.BotID, &w.Slot, &w.PublicKey, &w.SecretHandle,
			&w.Label, &w.BalanceSOL, &isActive, &created); err != nil {
			return nil, err
		}
		w.IsActive = isActive == 1
		w.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, w)
	}
	return out, rows.Err()
}

// UpdateWalletBalance refreshes the cached balance after a funding event.
func (s *Store) UpdateWalletBalance(ctx context.Context, walletID string, balanceSOL float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE bot_wallets SET balance=? WHERE id=?`, balanceSOL, walletID)
	return err
}

// DeactivateWallet flags a wallet whose stored secret can no longer be
// decoded. The rest of the cluster keeps running.
func (s *Store) DeactivateWallet(ctx context.Context, walletID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE bot_wallets SET is_active=0 WHERE id=?`, walletID)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
