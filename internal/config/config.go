package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	MainnetAPIURL = "https://api.hyperliquid.xyz"
	TestnetAPIURL = "https://api.hyperliquid-testnet.xyz"
)

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Hyperliquid HyperliquidConfig `mapstructure:"hyperliquid"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
	Port     int    `mapstructure:"port"`
}

type HyperliquidConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	PrivateKey    string `mapstructure:"private_key"`
	WalletAddress string `mapstructure:"wallet_address"`
}

type WebhookConfig struct {
	Password           string   `mapstructure:"password"`
	AllowedIPs         []string `mapstructure:"allowed_ips"`
	EnforceSourceIP    bool     `mapstructure:"enforce_source_ip"`
	DefaultPercent     int      `mapstructure:"default_percent"`
	IntegerSizedAssets []string `mapstructure:"integer_sized_assets"`
}

// TradingView webhook egress addresses, per their alerts documentation.
var defaultAllowedIPs = []string{
	"52.89.214.238",
	"34.212.75.30",
	"54.218.53.128",
	"52.32.178.7",
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Defaults double as key registration so env-only deployments work
	// (WEBHOOK_PASSWORD, HYPERLIQUID_PRIVATE_KEY, ...).
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.log_file", "")
	viper.SetDefault("app.port", 8080)
	viper.SetDefault("hyperliquid.base_url", MainnetAPIURL)
	viper.SetDefault("hyperliquid.private_key", "")
	viper.SetDefault("hyperliquid.wallet_address", "")
	viper.SetDefault("webhook.password", "")
	viper.SetDefault("webhook.allowed_ips", defaultAllowedIPs)
	viper.SetDefault("webhook.enforce_source_ip", false)
	viper.SetDefault("webhook.default_percent", 5)
	viper.SetDefault("webhook.integer_sized_assets", []string{"XRP", "DOGE", "SHIB", "FARTCOIN"})

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine when everything comes from the environment.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
