// Package server exposes the cluster over HTTP: bot CRUD, cycle execution,
// master settings and a websocket event stream.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/volbot/volcluster/internal/config"
	"github.com/volbot/volcluster/internal/engine"
	"github.com/volbot/volcluster/internal/keyvault"
	"github.com/volbot/volcluster/internal/store"
)

type Config struct {
	// AdminToken guards the settings endpoints when set. Empty disables the
	// check (local single-operator deployments).
	AdminToken string
}

// Cycler is the engine surface the server drives. *engine.Engine satisfies
// it.
type Cycler interface {
	ExecuteCycle(ctx context.Context, botID, targetToken, planID string) (*engine.CycleResult, error)
}

type Server struct {
	cfg     Config
	cluster config.Config
	store   *store.Store
	vault   *keyvault.Vault
	engine  Cycler
	hub     *Hub
}

func New(cfg Config, cluster config.Config, st *store.Store, v *keyvault.Vault, eng Cycler) *Server {
	return &Server{
		cfg:     cfg,
		cluster: cluster,
		store:   st,
		vault:   v,
		engine:  eng,
		hub:     NewHub(),
	}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.wrap(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	api := r.Group("/api")

	bots := api.Group("/volume-bots")
	bots.GET("", s.wrap(s.handleBotsList))
	bots.POST("", s.wrap(s.handleBotsCreate))
	bots.POST("/execute", s.wrap(s.handleExecute))
	bots.GET("/:botID", s.wrap(s.handleBotGet))

	settings := api.Group("/settings")
	settings.GET("", s.wrap(s.requireAdmin(s.handleSettingsGet)))
	settings.PUT("", s.wrap(s.requireAdmin(s.handleSettingsPut)))

	api.GET("/events", s.wrap(s.hub.HandleWebSocket))

	return r
}

type paramsKeyType string

const paramsKey paramsKeyType = "volcluster_path_params"

// wrap adapts net/http handlers to gin, injecting path params into request
// context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

func pathParam(r *http.Request, key string) string {
	m, _ := r.Context().Value(paramsKey).(map[string]string)
	return m[key]
}

func (s *Server) requireAdmin(h func(http.ResponseWriter, *http.Request)) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken != "" && r.Header.Get("X-Admin-Token") != s.cfg.AdminToken {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
