package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/volbot/volcluster/internal/domain"
	"github.com/volbot/volcluster/internal/engine"
)

type createBotRequest struct {
	TargetToken string `json:"target_token"`
	PlanID      string `json:"plan_id"`
}

func (s *Server) handleBotsCreate(w http.ResponseWriter, r *http.Request) {
	var req createBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.TargetToken = strings.TrimSpace(req.TargetToken)
	if req.TargetToken == "" {
		writeError(w, http.StatusBadRequest, "target_token is required")
		return
	}
	plan, ok := domain.ParsePlanID(req.PlanID)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown plan_id %q", req.PlanID))
		return
	}
	tier, ok := s.cluster.Tier(plan)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("no tier policy for plan %q", plan))
		return
	}

	now := time.Now()
	bot := domain.Bot{
		ID:          uuid.NewString(),
		TargetToken: req.TargetToken,
		PlanID:      plan,
		Status:      domain.BotStatusInitializing,
		ExpiresAt:   now.AddDate(0, 0, tier.CampaignDays),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertBot(r.Context(), bot); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("db insert: %v", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"bot": bot})
}

func (s *Server) handleBotsList(w http.ResponseWriter, r *http.Request) {
	bots, err := s.store.ListBots(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("db list: %v", err))
		return
	}
	if bots == nil {
		bots = []domain.Bot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bots": bots})
}

func (s *Server) handleBotGet(w http.ResponseWriter, r *http.Request) {
	botID := pathParam(r, "botID")
	bot, err := s.store.GetBot(r.Context(), botID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("db get: %v", err))
		return
	}
	if bot == nil {
		writeError(w, http.StatusNotFound, "bot not found")
		return
	}
	wallets, err := s.store.ListWallets(r.Context(), botID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("db wallets: %v", err))
		return
	}
	if wallets == nil {
		wallets = []domain.ExecutionWallet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bot": bot, "wallets": wallets})
}

type executeRequest struct {
	BotID       string `json:"bot_id"`
	TargetToken string `json:"target_token"`
	PlanID      string `json:"plan_id"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.BotID = strings.TrimSpace(req.BotID)
	req.TargetToken = strings.TrimSpace(req.TargetToken)
	if req.BotID == "" {
		writeError(w, http.StatusBadRequest, "bot_id is required")
		return
	}
	if req.TargetToken == "" {
		writeError(w, http.StatusBadRequest, "target_token is required")
		return
	}

	result, err := s.engine.ExecuteCycle(r.Context(), req.BotID, req.TargetToken, req.PlanID)
	if err != nil {
		kind := engine.KindOf(err)
		s.hub.Broadcast(CycleEvent{
			Type:      "cycle",
			BotID:     req.BotID,
			Status:    "failed",
			Kind:      string(kind),
			Error:     err.Error(),
			Timestamp: time.Now().UnixMilli(),
		})
		writeJSON(w, statusForKind(kind), map[string]any{"error": err.Error(), "kind": kind})
		return
	}

	s.hub.Broadcast(CycleEvent{
		Type:           "cycle",
		BotID:          req.BotID,
		Status:         "completed",
		Signature:      result.Signature,
		Executor:       result.ExecutorPublicKey,
		AmountSOL:      result.AmountSOL,
		VolumeEstimate: result.VolumeEstimate,
		Timestamp:      time.Now().UnixMilli(),
	})
	writeJSON(w, http.StatusOK, result)
}

func statusForKind(kind engine.Kind) int {
	switch kind {
	case engine.KindBotNotFound:
		return http.StatusNotFound
	case engine.KindBotExpired:
		return http.StatusGone
	case engine.KindRouteUnavailable, engine.KindUpstream, engine.KindFunding, engine.KindTransactionRejected:
		return http.StatusBadGateway
	case engine.KindSubmissionTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
