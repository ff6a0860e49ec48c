package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Email    EmailConfig    `mapstructure:"email"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Aur      AurConfig      `mapstructure:"aur"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Bank     BankConfig     `mapstructure:"bank"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
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

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type QueueConfig struct {
	WebhookQueue string `mapstructure:"webhook_queue"`
	MaxWorkers   int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// AurConfig 支付网关配置
type AurConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	MerchantID     string `mapstructure:"merchant_id"`
	APIKey         string `mapstructure:"api_key"`
	WebhookSecret  string `mapstructure:"webhook_secret"` // 为空时不校验签名
	CallbackURL    string `mapstructure:"callback_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout 网关请求超时，默认 15 秒
func (c AurConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type BillingConfig struct {
	PeriodDays        int    `mapstructure:"period_days"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RetryBackoffDays  []int  `mapstructure:"retry_backoff_days"`
	SweepSchedule     string `mapstructure:"sweep_schedule"`
	PollSchedule      string `mapstructure:"poll_schedule"`
	SweepConcurrency  int    `mapstructure:"sweep_concurrency"`
	PollAfterMinutes  int    `mapstructure:"poll_after_minutes"`
	ChargeDescription string `mapstructure:"charge_description"`
}

// Defaults 返回填充了默认值的副本
func (c BillingConfig) Defaults() BillingConfig {
	if c.PeriodDays <= 0 {
		c.PeriodDays = 30
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if len(c.RetryBackoffDays) == 0 {
		c.RetryBackoffDays = []int{1, 3, 7}
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = "0 3 * * *"
	}
	if c.PollSchedule == "" {
		c.PollSchedule = "*/10 * * * *"
	}
	if c.SweepConcurrency <= 0 {
		c.SweepConcurrency = 4
	}
	if c.PollAfterMinutes <= 0 {
		c.PollAfterMinutes = 15
	}
	if c.ChargeDescription == "" {
		c.ChargeDescription = "Birthday cake subscription"
	}
	return c
}

// Period 计费周期长度
func (c BillingConfig) Period() time.Duration {
	return time.Duration(c.Defaults().PeriodDays) * 24 * time.Hour
}

// BankConfig 银行转账收款信息
type BankConfig struct {
	BankName      string `mapstructure:"bank_name"`
	AccountName   string `mapstructure:"account_name"`
	AccountNumber string `mapstructure:"account_number"`
	IBAN          string `mapstructure:"iban"`
}

type AdminConfig struct {
	SessionTTLHours   int    `mapstructure:"session_ttl_hours"`
	BootstrapUsername string `mapstructure:"bootstrap_username"`
	BootstrapHash     string `mapstructure:"bootstrap_password_hash"` // bcrypt
}

// SessionTTL 管理员会话有效期，默认 12 小时
func (c AdminConfig) SessionTTL() time.Duration {
	if c.SessionTTLHours <= 0 {
		return 12 * time.Hour
	}
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
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
	cfg.Billing = cfg.Billing.Defaults()

	return &cfg, nil
}
