package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 套餐标识
const (
	PlanEssential = "essential"
	PlanAdvanced  = "advanced"
)

type Config struct {
	Server   ServerConfig          `mapstructure:"server"`
	Database DatabaseConfig        `mapstructure:"database"`
	Redis    RedisConfig           `mapstructure:"redis"`
	JWT      JWTConfig             `mapstructure:"jwt"`
	Log      LogConfig             `mapstructure:"log"`
	OAuth    OAuthConfig           `mapstructure:"oauth"`
	Email    EmailConfig           `mapstructure:"email"`
	CORS     CORSConfig            `mapstructure:"cors"`
	Stripe   StripeConfig          `mapstructure:"stripe"`
	Quota    QuotaConfig           `mapstructure:"quota"`
	Plans    map[string]PlanConfig `mapstructure:"plans"`
	LLM      LLMConfig             `mapstructure:"llm"`
	Notice   NoticeConfig          `mapstructure:"notice"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret           string `mapstructure:"secret"`
	ExpireHours      int    `mapstructure:"expire_hours"`
	GuestExpireHours int    `mapstructure:"guest_expire_hours"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

type OAuthConfig struct {
	Github GithubOAuthConfig `mapstructure:"github"`
}

type GithubOAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	PriceMonthly  string `mapstructure:"price_monthly"`
	PriceYearly   string `mapstructure:"price_yearly"`
	// 实付金额（分）不低于该值即视为年付
	YearlyThresholdCents int64  `mapstructure:"yearly_threshold_cents"`
	FrontendURL          string `mapstructure:"frontend_url"`
	FetchTimeoutSeconds  int    `mapstructure:"fetch_timeout_seconds"`
	EventLedgerTTLHours  int    `mapstructure:"event_ledger_ttl_hours"`
}

// FetchTimeout 二次查询订阅详情的超时时间
func (c StripeConfig) FetchTimeout() time.Duration {
	if c.FetchTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// EventLedgerTTL webhook 事件去重记录的保留时间
func (c StripeConfig) EventLedgerTTL() time.Duration {
	if c.EventLedgerTTLHours <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(c.EventLedgerTTLHours) * time.Hour
}

type QuotaConfig struct {
	GuestDailyLimit     int `mapstructure:"guest_daily_limit"`
	EssentialDailyLimit int `mapstructure:"essential_daily_limit"`
}

type PlanConfig struct {
	DisplayName string   `mapstructure:"display_name"`
	Model       string   `mapstructure:"model"`
	HistoryDays int      `mapstructure:"history_days"` // 0 表示不限
	Features    []string `mapstructure:"features"`
}

type LLMConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxTokens      int    `mapstructure:"max_tokens"`
	GuestModel     string `mapstructure:"guest_model"`
}

type NoticeConfig struct {
	Queue   string `mapstructure:"queue"`
	Workers int    `mapstructure:"workers"`
}

// Plan 获取套餐配置，未知套餐回落到 essential
func (c *Config) Plan(name string) PlanConfig {
	if p, ok := c.Plans[name]; ok {
		return p
	}
	return c.Plans[PlanEssential]
}

// Validate 校验关键配置
func (c *Config) Validate() error {
	if c.Quota.GuestDailyLimit <= 0 || c.Quota.EssentialDailyLimit <= 0 {
		return errors.New("quota limits must be positive")
	}
	if c.Quota.GuestDailyLimit >= c.Quota.EssentialDailyLimit {
		return fmt.Errorf("guest daily limit (%d) must be lower than essential daily limit (%d)",
			c.Quota.GuestDailyLimit, c.Quota.EssentialDailyLimit)
	}
	if c.Stripe.YearlyThresholdCents <= 0 {
		return errors.New("stripe.yearly_threshold_cents must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("jwt.expire_hours", 168)
	v.SetDefault("jwt.guest_expire_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("stripe.yearly_threshold_cents", 19990)
	v.SetDefault("stripe.fetch_timeout_seconds", 5)
	v.SetDefault("quota.guest_daily_limit", 10)
	v.SetDefault("quota.essential_daily_limit", 50)
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1/chat/completions")
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("notice.queue", "billing_notices")
	v.SetDefault("notice.workers", 2)
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
