// Package config provides configuration loading and validation for the
// wishbot application. Values come from defaults, an optional YAML file and
// BOT_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration parameters for all components
// of the bot: logging, storage, the WhatsApp session, scheduled tasks and the
// external API integrations used by command handlers.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Session   SessionConfig   `mapstructure:"session"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	News      NewsConfig      `mapstructure:"news"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Commands  CommandsConfig  `mapstructure:"commands"`
}

// LoggerConfig controls log verbosity and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds storage locations. Path is the SQLite database with
// groups/users/participants; BotConfigPath is the singleton bot document
// rewritten atomically on every save.
type DatabaseConfig struct {
	Path          string `mapstructure:"path"            validate:"required"`
	BotConfigPath string `mapstructure:"bot_config_path" validate:"required"`
}

// SessionConfig holds the WhatsApp session parameters. StorePath is the
// whatsmeow credential container; ReconnectDelay is the fixed backoff applied
// before a dropped session is re-established. SendRate and SendBurst pace
// outbound messages so bursts do not trip WhatsApp's spam heuristics.
type SessionConfig struct {
	StorePath      string        `mapstructure:"store_path"      validate:"required"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" validate:"min=100ms,max=1m"`
	SendRate       float64       `mapstructure:"send_rate"       validate:"gt=0"`
	SendBurst      int           `mapstructure:"send_burst"      validate:"gt=0"`
}

// GeminiConfig configures the AI client used by the ask command. An empty
// APIKey disables the command.
type GeminiConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout" validate:"min=1s,max=10m"`
}

// NewsConfig configures the hourly crypto-news task.
type NewsConfig struct {
	FeedURL    string        `mapstructure:"feed_url"     validate:"url"`
	Timeout    time.Duration `mapstructure:"timeout"      validate:"min=1s,max=2m"`
	MaxPerTick int           `mapstructure:"max_per_tick" validate:"min=1,max=20"`
	GroupIDs   []string      `mapstructure:"group_ids"`
}

// TaskConfig enables one scheduled task with a cron expression.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// CommandsConfig holds timeouts for handlers that call external HTTP APIs.
type CommandsConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s,max=2m"`
}

// LoadConfig reads configuration from the given YAML file path, layering it
// over defaults and under BOT_* environment variables, then validates the
// result. A missing config file is not an error; defaults and environment
// are enough to run.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			slog.Info("Config file not found, using defaults and environment", "path", path)
		} else {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", true)

	v.SetDefault("database.path", "storage/wishbot.db")
	v.SetDefault("database.bot_config_path", "storage/bot.json")

	v.SetDefault("session.store_path", "storage/session.db")
	v.SetDefault("session.reconnect_delay", 1500*time.Millisecond)
	v.SetDefault("session.send_rate", 1.0)
	v.SetDefault("session.send_burst", 3)

	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.timeout", 45*time.Second)

	v.SetDefault("news.feed_url", "https://livecoins.com.br/noticias/feed")
	v.SetDefault("news.timeout", 30*time.Second)
	v.SetDefault("news.max_per_tick", 5)

	v.SetDefault("scheduler.tasks.crypto_news.enabled", false)
	v.SetDefault("scheduler.tasks.crypto_news.schedule", "0 * * * *")

	v.SetDefault("commands.request_timeout", 30*time.Second)
}
