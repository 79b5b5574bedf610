package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/volbot/volcluster/internal/domain"
)

// GetMasterSettings returns nil when no settings row exists yet.
func (s *Store) GetMasterSettings(ctx context.Context) (*domain.MasterSettings, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT rpc_url, master_secret_handle, aggregator_api_key, updated_at
FROM bot_settings WHERE id=1
`)
	var (
		m       domain.MasterSettings
		updated string
	)
	if err := row.Scan(&m.RPCURL, &m.MasterSecretHandle, &m.AggregatorAPIKey, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &m, nil
}

// UpsertMasterSettings is operator tooling; the engine itself never writes
// settings.
func (s *Store) UpsertMasterSettings(ctx context.Context, m domain.MasterSettings) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO bot_settings (id, rpc_url, master_secret_handle, aggregator_api_key, updated_at)
VALUES (1,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  rpc_url=excluded.rpc_url,
  master_secret_handle=excluded.master_secret_handle,
  aggregator_api_key=excluded.aggregator_api_key,
  updated_at=excluded.updated_at
`, m.RPCURL, m.MasterSecretHandle, m.AggregatorAPIKey, time.Now().Format(time.RFC3339Nano))
	return err
}
