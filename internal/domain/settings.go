package domain

import (
	"strings"
	"time"
)

// MasterSettings is the operator-managed singleton describing the funding
// source and aggregator credentials. The engine reads it, never writes it.
type MasterSettings struct {
	RPCURL             string    `json:"rpc_url"`
	MasterSecretHandle string    `json:"-"`
	AggregatorAPIKey   string    `json:"-"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Complete reports whether the settings satisfy the hard precondition for a
// cycle: RPC endpoint and master secret must both be present.
func (m *MasterSettings) Complete() bool {
	return m != nil &&
		strings.TrimSpace(m.RPCURL) != "" &&
		strings.TrimSpace(m.MasterSecretHandle) != ""
}
