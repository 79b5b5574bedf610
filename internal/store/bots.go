package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/volbot/volcluster/internal/domain"
)

func (s *Store) InsertBot(ctx context.Context, b domain.Bot) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO volume_bots (id,target_token,plan_id,status,expires_at,total_volume_generated,profit,wallet_count,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
`, b.ID, b.TargetToken, string(b.PlanID), string(b.Status), b.ExpiresAt.Format(time.RFC3339Nano),
		b.TotalVolumeGenerated, b.Profit, b.WalletCount,
		b.CreatedAt.Format(time.RFC3339Nano), b.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert bot: %w", err)
	}
	return nil
}

func (s *Store) GetBot(ctx context.Context, botID string) (*domain.Bot, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,target_token,plan_id,status,expires_at,last_trade_at,total_volume_generated,profit,wallet_count,created_at,updated_at
FROM volume_bots WHERE id=?
`, botID)
	return scanBot(row)
}

func (s *Store) ListBots(ctx context.Context) ([]domain.Bot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,target_token,plan_id,status,expires_at,last_trade_at,total_volume_generated,profit,wallet_count,created_at,updated_at
FROM volume_bots ORDER BY created_at DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Bot
	for rows.Next() {
		b, err := scanBotRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// UpdateBotStats applies the post-cycle statistics in one statement. Volume
// and profit arrive as increments and are added inside the UPDATE itself, so
// cycles running concurrently for the same bot each land their contribution
// instead of overwriting one another.
func (s *Store) UpdateBotStats(ctx context.Context, botID string, stats domain.BotStats) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE volume_bots
SET status=?, last_trade_at=?,
    total_volume_generated=total_volume_generated+?,
    profit=profit+?,
    wallet_count=?, updated_at=?
WHERE id=?
`, string(stats.Status), stats.LastTradeAt.Format(time.RFC3339Nano),
		stats.VolumeDelta, stats.ProfitDelta, stats.WalletCount,
		time.Now().Format(time.RFC3339Nano), botID)
	if err != nil {
		return fmt.Errorf("update bot stats: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("update bot stats: bot %s not found", botID)
	}
	return nil
}

func (s *Store) SetBotStatus(ctx context.Context, botID string, status domain.BotStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE volume_bots SET status=?, updated_at=? WHERE id=?`,
		string(status), time.Now().Format(time.RFC3339Nano), botID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBot(row *sql.Row) (*domain.Bot, error) {
	b, err := scanBotRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func scanBotRows(r rowScanner) (*domain.Bot, error) {
	var (
		b           domain.Bot
		planID      string
		status      string
		expiresAt   string
		lastTradeAt sql.NullString
		createdAt   string
		updatedAt   string
	)
	if err := r.Scan(&b.ID, &b.TargetToken, &planID, &status, &expiresAt, &lastTradeAt,
		&b.TotalVolumeGenerated, &b.Profit, &b.WalletCount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	b.PlanID = domain.PlanID(planID)
	b.Status = domain.BotStatus(status)
	b.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expiresAt)
	if lastTradeAt.Valid && lastTradeAt.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, lastTradeAt.String); err == nil {
			b.LastTradeAt = &t
		}
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &b, nil
}
