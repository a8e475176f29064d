package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/sodargreen/dm-ticket/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Account  AccountConfig  `mapstructure:"account"`
	Client   ClientConfig   `mapstructure:"client"`
	Database DatabaseConfig `mapstructure:"database"`
	Reauth   ReauthConfig   `mapstructure:"reauth"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// AccountConfig holds the per-account purchase policy.
type AccountConfig struct {
	Remark             string        `mapstructure:"remark"`
	LoginID            string        `mapstructure:"login_id"`
	Cookie             string        `mapstructure:"cookie"`
	RetryTimes         int           `mapstructure:"retry_times"`
	RetryProbeInterval time.Duration `mapstructure:"retry_probe_interval"`
	CountdownInterval  time.Duration `mapstructure:"countdown_interval"`
	EarlySubmitLead    time.Duration `mapstructure:"early_submit_lead"`
	WaitForSubmit      time.Duration `mapstructure:"wait_for_submit"`
	RequestTimeMillis  int64         `mapstructure:"request_time"`
	Ticket             TicketConfig  `mapstructure:"ticket"`
}

// TicketConfig identifies the target ticket, session, and tier.
type TicketConfig struct {
	ID                   string        `mapstructure:"id"`
	Session              int           `mapstructure:"session"`
	Grade                int           `mapstructure:"grade"`
	Num                  int           `mapstructure:"num"`
	PriorityPurchaseLead time.Duration `mapstructure:"priority_purchase_lead"`
	PickUpLeaks          LeaksConfig   `mapstructure:"pick_up_leaks"`
}

// LeaksConfig governs the returned-inventory polling fallback.
type LeaksConfig struct {
	Times       int           `mapstructure:"times"`
	Interval    time.Duration `mapstructure:"interval"`
	Grades      []int         `mapstructure:"grades"`
	Num         int           `mapstructure:"num"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// ClientConfig covers mtop endpoint access.
type ClientConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	AppKey    string        `mapstructure:"app_key"`
	UserAgent string        `mapstructure:"user_agent"`
	BxToken   string        `mapstructure:"bx_token"`
	BxUA      string        `mapstructure:"bx_ua"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig encapsulates optional PostgreSQL history persistence.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ReauthConfig points at the external re-login helper.
type ReauthConfig struct {
	Command string `mapstructure:"command"`
	Script  string `mapstructure:"script"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DMTICKET")
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
	v.SetDefault("app.name", "dm-ticket")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("account.retry_times", 6)
	v.SetDefault("account.retry_probe_interval", "100ms")
	v.SetDefault("account.countdown_interval", "400ms")
	v.SetDefault("account.early_submit_lead", "30ms")
	v.SetDefault("account.wait_for_submit", "50ms")
	v.SetDefault("account.ticket.session", 1)
	v.SetDefault("account.ticket.grade", 1)
	v.SetDefault("account.ticket.num", 1)
	v.SetDefault("account.ticket.pick_up_leaks.times", 60)
	v.SetDefault("account.ticket.pick_up_leaks.interval", "3s")
	v.SetDefault("account.ticket.pick_up_leaks.grace_period", "10m")

	v.SetDefault("client.base_url", "https://mtop.damai.cn")
	v.SetDefault("client.app_key", "12574478")
	v.SetDefault("client.user_agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 13_2_3 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/13.0.3")
	v.SetDefault("client.timeout", "10s")

	v.SetDefault("reauth.command", "python")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Account.RetryTimes <= 0 {
		return fmt.Errorf("account.retry_times must be greater than zero")
	}
	if c.Account.RetryProbeInterval <= 0 {
		return fmt.Errorf("account.retry_probe_interval must be greater than zero")
	}
	if c.Account.CountdownInterval <= 0 || c.Account.CountdownInterval >= time.Second {
		return fmt.Errorf("account.countdown_interval 必须为亚秒级正值")
	}
	if c.Account.Ticket.Session <= 0 {
		return fmt.Errorf("account.ticket.session 从 1 开始计数")
	}
	if c.Account.Ticket.Grade <= 0 {
		return fmt.Errorf("account.ticket.grade 从 1 开始计数")
	}
	if c.Account.Ticket.Num <= 0 {
		return fmt.Errorf("account.ticket.num must be greater than zero")
	}
	for _, g := range c.Account.Ticket.PickUpLeaks.Grades {
		if g <= 0 {
			return fmt.Errorf("account.ticket.pick_up_leaks.grades 从 1 开始计数")
		}
	}
	if c.Client.BaseURL == "" {
		return fmt.Errorf("client.base_url 必须配置")
	}
	return nil
}
