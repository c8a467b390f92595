package main

import (
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"hyperhook/internal/auth"
	"hyperhook/internal/config"
	"hyperhook/internal/exchange/hyperliquid"
	"hyperhook/internal/server"
	"hyperhook/internal/trading"
	"hyperhook/pkg/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("config")
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.App.LogLevel, OutputFile: cfg.App.LogFile}); err != nil {
		logrus.Fatalf("Failed to init logger: %v", err)
	}

	logrus.Infof("Using Hyperliquid API at %s", cfg.Hyperliquid.BaseURL)

	client, err := hyperliquid.NewClient(cfg.Hyperliquid)
	if err != nil {
		logrus.Fatalf("Failed to initialize Hyperliquid client: %v", err)
	}
	logrus.Infof("Trading wallet: %s", client.Address())

	if cfg.Webhook.Password == "" {
		logrus.Warn("webhook password not configured, all requests will be rejected")
	}
	authenticator := auth.New(cfg.Webhook.Password, cfg.Webhook.AllowedIPs)

	sizer := trading.NewSizer(cfg.Webhook.IntegerSizedAssets)
	manager := trading.NewManager(client, sizer)
	dispatcher := trading.NewDispatcher(manager, cfg.Webhook.DefaultPercent)

	srv := server.New(authenticator, dispatcher, client, cfg.Webhook.EnforceSourceIP, cfg.App.Port)
	if err := srv.Run(); err != nil {
		logrus.Fatalf("Server stopped: %v", err)
	}
}
