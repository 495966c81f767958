package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"sensor-collector/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Serial    SerialConfig    `mapstructure:"serial"`
	Sampling  SamplingConfig  `mapstructure:"sampling"`
	Handshake HandshakeConfig `mapstructure:"handshake"`
	Alarms    AlarmsConfig    `mapstructure:"alarms"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	PingOnStart     bool          `mapstructure:"ping_on_start"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// SerialConfig describes the link to the sensor board.
type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	Parity      string        `mapstructure:"parity"`
	StopBits    string        `mapstructure:"stop_bits"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// SamplingConfig governs the streaming cadence.
type SamplingConfig struct {
	FrequencyHz  int           `mapstructure:"frequency_hz"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// Interval is the streaming period, the reciprocal of FrequencyHz.
func (s SamplingConfig) Interval() time.Duration {
	if s.FrequencyHz <= 0 {
		return 0
	}
	return time.Second / time.Duration(s.FrequencyHz)
}

// HandshakeConfig bounds the configuration exchange before streaming.
type HandshakeConfig struct {
	AckTimeout      time.Duration `mapstructure:"ack_timeout"`
	IdentityTimeout time.Duration `mapstructure:"identity_timeout"`
}

// AlarmsConfig selects threshold evaluation behaviour.
type AlarmsConfig struct {
	// AccelerationMode selects how acceleration deltas meet the bounds.
	// "magnitude" compares |delta|, so a large swing in either direction is
	// HIGH; with symmetric bounds such as [-15, 15] it can never raise LOW.
	// "signed" compares the raw delta the way the device firmware does, so a
	// drop below Min is LOW.
	AccelerationMode string `mapstructure:"acceleration_mode"`
	Notify           bool   `mapstructure:"notify"`
}

// AlertingConfig defines alarm routing.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram alarm delivery.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MetricsConfig exposes Prometheus metrics.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Path       string `mapstructure:"path"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SENSORCOLLECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sensor-collector")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.ping_on_start", true)
	v.SetDefault("database.advisory_lock_key", int64(0x53454e53))

	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "none")
	v.SetDefault("serial.stop_bits", "1")
	v.SetDefault("serial.settle_delay", "2s")

	v.SetDefault("sampling.frequency_hz", 1)
	v.SetDefault("sampling.poll_timeout", "50ms")
	v.SetDefault("sampling.startup_delay", "0s")

	v.SetDefault("handshake.ack_timeout", "2s")
	v.SetDefault("handshake.identity_timeout", "5s")

	v.SetDefault("alarms.acceleration_mode", "magnitude")
	v.SetDefault("alarms.notify", false)

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("export.max_rows", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Sampling.FrequencyHz <= 0 {
		return fmt.Errorf("sampling.frequency_hz must be greater than zero")
	}
	if c.Sampling.FrequencyHz > 1000 {
		return fmt.Errorf("sampling.frequency_hz cannot exceed 1000")
	}
	if c.Sampling.PollTimeout < 0 {
		return fmt.Errorf("sampling.poll_timeout cannot be negative")
	}
	if c.Sampling.PollTimeout >= c.Sampling.Interval() {
		return fmt.Errorf("sampling.poll_timeout must be shorter than the sampling period %s", c.Sampling.Interval())
	}
	if c.Handshake.AckTimeout <= 0 || c.Handshake.IdentityTimeout <= 0 {
		return fmt.Errorf("handshake timeouts must be greater than zero")
	}
	switch strings.ToLower(c.Alarms.AccelerationMode) {
	case "", "magnitude", "signed":
	default:
		return fmt.Errorf("alarms.acceleration_mode must be magnitude or signed")
	}
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}
