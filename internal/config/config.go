package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type StoreConfig struct {
	Driver      string `envconfig:"LEAGUESIM_DB_DRIVER" default:"memory"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLiteFile  string `envconfig:"LEAGUESIM_SQLITE_FILE" default:"leaguesim.db"`
	LeagueID    string `envconfig:"LEAGUESIM_LEAGUE_ID" default:"default"`
}

type LeagueConfig struct {
	Variant        string `envconfig:"LEAGUESIM_VARIANT" default:"basketball"`
	NumTeams       int    `envconfig:"LEAGUESIM_NUM_TEAMS"`
	StartingSeason int    `envconfig:"LEAGUESIM_STARTING_SEASON" default:"2025"`
	UserTid        int    `envconfig:"LEAGUESIM_USER_TID" default:"0"`
	Seed           uint64 `envconfig:"LEAGUESIM_SEED"`
	StartupCreate  bool   `envconfig:"LEAGUESIM_STARTUP_CREATE" default:"true"`
}

type NotifyConfig struct {
	TelegramToken    string `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`
	DiscordToken     string `envconfig:"DISCORD_TOKEN"`
	DiscordChannelID string `envconfig:"DISCORD_CHANNEL_ID"`
}

type APIConfig struct {
	Port        string `envconfig:"PORT"`
	Addr        string `envconfig:"LEAGUESIM_API_ADDR" default:":8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	RedisURL    string `envconfig:"REDIS_URL"`
	NATSURL     string `envconfig:"NATS_URL"`
	NATSSubject string `envconfig:"NATS_SUBJECT" default:"leaguesim.updates"`
	Store       StoreConfig
	League      LeagueConfig
	Notify      NotifyConfig
}

type WorkerConfig struct {
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	AutoplayEvery   time.Duration `envconfig:"LEAGUESIM_AUTOPLAY_EVERY" default:"1m"`
	AutoplayDays    int           `envconfig:"LEAGUESIM_AUTOPLAY_DAYS" default:"1"`
	AutoplaySeasons int           `envconfig:"LEAGUESIM_AUTOPLAY_SEASONS" default:"0"`
	RunOnce         bool          `envconfig:"LEAGUESIM_WORKER_RUN_ONCE"`
	NATSURL         string        `envconfig:"NATS_URL"`
	NATSSubject     string        `envconfig:"NATS_SUBJECT" default:"leaguesim.updates"`
	Store           StoreConfig
	League          LeagueConfig
	Notify          NotifyConfig
}

type CLIConfig struct {
	APIBaseURL string `envconfig:"LSIM_API_BASE_URL" default:"http://localhost:8080"`
}

func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if p := strings.TrimSpace(cfg.Port); p != "" {
		if !strings.HasPrefix(p, ":") {
			p = ":" + p
		}
		cfg.Addr = p
	}
	return cfg, cfg.Store.validate()
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if cfg.AutoplayEvery <= 0 {
		return cfg, fmt.Errorf("LEAGUESIM_AUTOPLAY_EVERY must be positive")
	}
	if cfg.AutoplayDays <= 0 {
		cfg.AutoplayDays = 1
	}
	return cfg, cfg.Store.validate()
}

func LoadCLIFromEnv() CLIConfig {
	var cfg CLIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return cfg
}

func (s StoreConfig) validate() error {
	switch s.Driver {
	case "memory", "sqlite":
		return nil
	case "postgres":
		if strings.TrimSpace(s.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
		return nil
	}
	return fmt.Errorf("unknown LEAGUESIM_DB_DRIVER %q", s.Driver)
}

// NewLogger returns a JSON logger on stdout at the given level name and
// makes it the default.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
