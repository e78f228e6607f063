package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"famfin-server/src/api"
	"famfin-server/src/config"
	"famfin-server/src/db"
	"famfin-server/src/logger"
	"famfin-server/src/plaid"
	"famfin-server/src/rules"

	"github.com/charmbracelet/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", "err", err)
	}
	logger.Setup(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("DB connection failed: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("DB migration failed: %v", err)
	}

	if err := db.InitCache(cfg.CacheMaxCost); err != nil {
		log.Fatal(err)
	}

	plaidClient, err := plaid.NewPlaidClient(cfg.Plaid.ClientID, cfg.Plaid.Secret, cfg.Plaid.Env)
	if err != nil {
		log.Fatal(err)
	}

	var defaultRules []rules.Definition
	if cfg.DefaultRulesPath != "" {
		defaultRules, err = rules.LoadTemplates(cfg.DefaultRulesPath)
		if err != nil {
			log.Fatalf("Failed to load default rules: %v", err)
		}
		log.Infof("Loaded %d default rules from %s", len(defaultRules), cfg.DefaultRulesPath)
	}

	// Router
	router := api.NewRouter(pool, plaidClient, cfg, defaultRules)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Server shutdown failed: %v", err)
		}
	}()

	log.Info("API server running", "port", cfg.Port, "demo", cfg.DemoMode, "plaid_env", cfg.Plaid.Env)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
