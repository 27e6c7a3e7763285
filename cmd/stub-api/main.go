package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/family-session/internal/config"
	"github.com/spec-kit/family-session/internal/domain"
	"github.com/spec-kit/family-session/internal/observability"
	"github.com/spec-kit/family-session/internal/stub"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	server := stub.NewServer(cfg.Stub, logger)

	// one ready-to-use family for manual runs
	accountID, err := server.SeedAccount("demo", "demo@example.com", "password", []stub.SeedProfile{
		{Name: "Mom", Role: domain.RoleOwner, Pin: "1234"},
		{Name: "Dad", Role: domain.RoleParent, Pin: "4321"},
		{Name: "Kiddo", Role: domain.RoleChild},
	})
	if err != nil {
		logger.Fatal("failed to seed demo account", zap.Error(err))
	}
	logger.Info("seeded demo account",
		zap.String("account_id", accountID),
		zap.String("email", "demo@example.com"))

	go func() {
		if err := server.Listen(cfg.Stub.Addr()); err != nil {
			logger.Fatal("stub listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = server.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
