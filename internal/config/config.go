package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PITCHGATE"

type AppConfig struct {
	File     string         `json:"-"`
	Scheme   string         `json:"scheme"`
	Auth     *AuthConfig    `json:"auth,omitempty"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Reward   *RewardConfig  `json:"reward,omitempty"`
	Server   *ServerConfig  `json:"server,omitempty"`
	LogLevel string         `json:"log_level"`
	Link     string         `json:"-"`
	Migrate  bool           `json:"-"`

	GateSettle time.Duration `json:"gate_settle"`
}

type AuthConfig struct {
	Secret string `json:"secret"`
	Issuer string `json:"issuer"`
}

type StorageConfig struct {
	SessionDB  string `json:"session_db"`
	BalanceDSN string `json:"balance_dsn"`
}

type RewardConfig struct {
	Amount   int64         `json:"amount"`
	AdUnit   string        `json:"ad_unit"`
	Cooldown time.Duration `json:"cooldown"`
	MockAds  bool          `json:"mock_ads"`
}

type ServerConfig struct {
	HTTPAddr     string `json:"http_addr"`
	GRPCAddr     string `json:"grpc_addr"`
	ControlToken string `json:"-"`
}

// Load reads flags from args, then PITCHGATE_* environment variables, then
// the optional JSON file named by --config_file. Flags set explicitly win.
func Load(args []string) (*AppConfig, error) {
	v := viper.New()
	fs := pflag.NewFlagSet("pitchclient", pflag.ContinueOnError)
	bindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	file := v.GetString("config_file")
	if file == "" {
		file = os.Getenv(envPrefix + "_CONFIG_FILE")
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not load config file: %w", err)
		}
	}

	cfg := build(v, file)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindFlags(fs *pflag.FlagSet) {
	fs.String("config_file", "", "Configuration file in JSON format")
	fs.String("scheme", "pitchgate", "Deep-link URI scheme")

	// auth
	fs.String("auth_secret", "", "HMAC secret for access tokens")
	fs.String("auth_issuer", "pitchgate", "Expected access token issuer")

	// storage
	fs.String("session_db", "pitchgate.db", "SQLite file for the device session (\":memory:\" for none)")
	fs.String("balance_dsn", "", "PostgreSQL DSN of the balance store; empty uses memory")

	// reward
	fs.Int64("reward_amount", 50000, "Coins credited per watched ad")
	fs.String("ad_unit", "rewarded-default", "Rewarded ad unit id")
	fs.Duration("cooldown", 60*time.Second, "Minimum time between ad attempts")
	fs.Bool("mock_ads", true, "Use the scripted development ad provider")

	// servers
	fs.String("http_addr", "127.0.0.1:8080", "Control API listen address")
	fs.String("grpc_addr", "127.0.0.1:9090", "gRPC health listen address; empty disables it")
	fs.String("control_token", "", "Bearer token required by the control API")

	fs.Duration("gate_settle", 10*time.Millisecond, "Delay before the session gate reads a burst of changes")

	fs.String("log_level", "info", "debug, info, warn or error")
	fs.String("link", "", "URI the client was launched with")
	fs.Bool("migrate", false, "Apply balance schema migrations and the demo seed on start")
}

func build(v *viper.Viper, file string) *AppConfig {
	return &AppConfig{
		File:   file,
		Scheme: v.GetString("scheme"),
		Auth: &AuthConfig{
			Secret: v.GetString("auth_secret"),
			Issuer: v.GetString("auth_issuer"),
		},
		Storage: &StorageConfig{
			SessionDB:  v.GetString("session_db"),
			BalanceDSN: v.GetString("balance_dsn"),
		},
		Reward: &RewardConfig{
			Amount:   v.GetInt64("reward_amount"),
			AdUnit:   v.GetString("ad_unit"),
			Cooldown: v.GetDuration("cooldown"),
			MockAds:  v.GetBool("mock_ads"),
		},
		Server: &ServerConfig{
			HTTPAddr:     v.GetString("http_addr"),
			GRPCAddr:     v.GetString("grpc_addr"),
			ControlToken: v.GetString("control_token"),
		},
		LogLevel: v.GetString("log_level"),
		Link:     v.GetString("link"),
		Migrate:  v.GetBool("migrate"),

		GateSettle: v.GetDuration("gate_settle"),
	}
}

func validate(cfg *AppConfig) error {
	if cfg.Scheme == "" {
		return errors.New("scheme is required")
	}
	if cfg.Auth.Secret == "" {
		return errors.New("auth secret is required")
	}
	if cfg.Reward.Amount <= 0 {
		return errors.New("reward amount must be positive")
	}
	if cfg.Reward.AdUnit == "" {
		return errors.New("ad unit is required")
	}
	if cfg.Reward.Cooldown <= 0 {
		return errors.New("cooldown must be positive")
	}
	if cfg.GateSettle < 0 {
		return errors.New("gate settle must not be negative")
	}
	if !cfg.Reward.MockAds {
		return errors.New("no ad SDK is linked into this build; run with --mock_ads")
	}
	if cfg.Server.HTTPAddr == "" {
		return errors.New("HTTP address is required")
	}
	return nil
}
