package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/volbot/volcluster/internal/chain"
	"github.com/volbot/volcluster/internal/config"
	"github.com/volbot/volcluster/internal/engine"
	"github.com/volbot/volcluster/internal/funding"
	"github.com/volbot/volcluster/internal/keyvault"
	"github.com/volbot/volcluster/internal/server"
	"github.com/volbot/volcluster/internal/store"
	"github.com/volbot/volcluster/internal/swaprouter"
	"github.com/volbot/volcluster/pkg/logger"
	"github.com/volbot/volcluster/pkg/secretstore"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		listenAddr = flag.String("listen", getenv("VOLCLUSTER_LISTEN", ":8080"), "HTTP listen address")
		dbPath     = flag.String("db", getenv("VOLCLUSTER_DB", "data/volcluster.db"), "SQLite db file path")
		vaultDir   = flag.String("vault", getenv("VOLCLUSTER_VAULT", "data/vault"), "key vault directory")
		cfgPath    = flag.String("config", getenv("VOLCLUSTER_CONFIG", ""), "tier config YAML (optional)")
		logFile    = flag.String("log-file", getenv("VOLCLUSTER_LOG_FILE", "logs/volcluster.log"), "log file path")
		logLevel   = flag.String("log-level", getenv("VOLCLUSTER_LOG_LEVEL", "info"), "log level")
		adminToken = flag.String("admin-token", getenv("VOLCLUSTER_ADMIN_TOKEN", ""), "token guarding the settings endpoints")
	)
	flag.Parse()

	if err := logger.Init(logger.Config{Level: *logLevel, OutputFile: *logFile}); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// VOLCLUSTER_VAULT_KEY enables Badger encryption at rest; without it the
	// vault is plaintext on disk.
	var vaultKey []byte
	if raw := os.Getenv("VOLCLUSTER_VAULT_KEY"); raw != "" {
		vaultKey, err = secretstore.ParseKey(raw)
		if err != nil {
			log.Fatalf("VOLCLUSTER_VAULT_KEY invalid: %v", err)
		}
	}
	secrets, err := secretstore.Open(secretstore.OpenOptions{Path: *vaultDir, EncryptionKey: vaultKey})
	if err != nil {
		log.Fatalf("open vault failed: %v", err)
	}
	defer secrets.Close()
	vault := keyvault.New(secrets)

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("open store failed: %v", err)
	}
	defer st.Close()

	// RPC URL and aggregator key live in bot_settings so operators can rotate
	// them without a restart of the deploy pipeline; read what is there now to
	// build the chain client.
	settings, err := st.GetMasterSettings(context.Background())
	if err != nil {
		log.Fatalf("read settings failed: %v", err)
	}
	rpcURL := getenv("VOLCLUSTER_RPC_URL", "https://api.mainnet-beta.solana.com")
	apiKey := ""
	if settings != nil {
		if settings.RPCURL != "" {
			rpcURL = settings.RPCURL
		}
		apiKey = settings.AggregatorAPIKey
	}

	chainClient := chain.New(chain.Config{RPCURL: rpcURL})
	funder := funding.NewManager(chainClient, vault)
	router := swaprouter.New(swaprouter.Config{APIKey: apiKey}, chainClient)
	eng := engine.New(cfg, st, vault, funder, router)

	srv := server.New(server.Config{AdminToken: *adminToken}, cfg, st, vault, eng)

	httpSrv := &http.Server{
		Addr:              *listenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("volcluster listening on %s", *listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server error: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)

	fmt.Println("server stopped")
}
