package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/volbot/volcluster/internal/domain"
)

// masterVaultKey is the fixed vault slot for the operator's funding wallet.
const masterVaultKey = "master"

// handleSettingsGet never returns key material, only whether each credential
// is present plus the derived master public key.
func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMasterSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("db get: %v", err))
		return
	}
	out := map[string]any{
		"rpc_url":                  "",
		"master_wallet_configured": false,
		"master_public_key":        "",
		"api_key_configured":       false,
	}
	if m != nil {
		out["rpc_url"] = m.RPCURL
		out["api_key_configured"] = m.AggregatorAPIKey != ""
		if m.MasterSecretHandle != "" {
			out["master_wallet_configured"] = true
			if pub, perr := s.vault.PublicKey(m.MasterSecretHandle); perr == nil {
				out["master_public_key"] = pub.String()
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type updateSettingsRequest struct {
	RPCURL           string `json:"rpc_url"`
	MasterPrivateKey string `json:"master_private_key"`
	AggregatorAPIKey string `json:"aggregator_api_key"`
}

// handleSettingsPut replaces the cluster credentials. The master private key
// goes into the vault; only the opaque handle is persisted in sqlite. Fields
// left empty keep their current value.
func (s *Server) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	current, err := s.store.GetMasterSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("db get: %v", err))
		return
	}
	next := domain.MasterSettings{UpdatedAt: time.Now()}
	if current != nil {
		next.RPCURL = current.RPCURL
		next.MasterSecretHandle = current.MasterSecretHandle
		next.AggregatorAPIKey = current.AggregatorAPIKey
	}

	if v := strings.TrimSpace(req.RPCURL); v != "" {
		next.RPCURL = v
	}
	if v := strings.TrimSpace(req.AggregatorAPIKey); v != "" {
		next.AggregatorAPIKey = v
	}
	if v := strings.TrimSpace(req.MasterPrivateKey); v != "" {
		handle, ierr := s.vault.Import(masterVaultKey, v)
		if ierr != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("master key invalid: %v", ierr))
			return
		}
		next.MasterSecretHandle = handle
	}

	if err := s.store.UpsertMasterSettings(r.Context(), next); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("db upsert: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
