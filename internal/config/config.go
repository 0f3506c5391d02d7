package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	StreamURL    string
	StreamToken  string
	OutputModule string
	StartBlock   uint64
	StopBlock    uint64

	MetadataURL     string
	MetadataToken   string
	Network         string
	NativeToken     string
	HolderLimit     int
	HistoryInterval string
	HistoryLimit    int

	PgDSN string

	TokenTTL        time.Duration
	RefPriceTTL     time.Duration
	DefaultRefPrice string
	Backoff         time.Duration

	MetricsAddr string
	LogLevel    string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOKENPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("output-module", "map_balance_changes")
	v.SetDefault("network", "mainnet")
	v.SetDefault("holder-limit", 10)
	v.SetDefault("history-interval", "1h")
	v.SetDefault("history-limit", 24)
	v.SetDefault("token-ttl", 5*time.Minute)
	v.SetDefault("ref-price-ttl", time.Minute)
	v.SetDefault("default-ref-price", "2500")
	v.SetDefault("backoff", 5*time.Second)
	v.SetDefault("metrics-addr", ":9090")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		StreamURL:       v.GetString("stream-url"),
		StreamToken:     v.GetString("stream-token"),
		OutputModule:    v.GetString("output-module"),
		StartBlock:      v.GetUint64("start-block"),
		StopBlock:       v.GetUint64("stop-block"),
		MetadataURL:     v.GetString("metadata-url"),
		MetadataToken:   v.GetString("metadata-token"),
		Network:         v.GetString("network"),
		NativeToken:     v.GetString("native-token"),
		HolderLimit:     v.GetInt("holder-limit"),
		HistoryInterval: v.GetString("history-interval"),
		HistoryLimit:    v.GetInt("history-limit"),
		PgDSN:           v.GetString("pg-dsn"),
		TokenTTL:        v.GetDuration("token-ttl"),
		RefPriceTTL:     v.GetDuration("ref-price-ttl"),
		DefaultRefPrice: v.GetString("default-ref-price"),
		Backoff:         v.GetDuration("backoff"),
		MetricsAddr:     v.GetString("metrics-addr"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}
