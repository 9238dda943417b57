package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 服务配置，由 Load 创建后显式传递给各组件
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	App          AppConfig          `mapstructure:"app"`
	Order        OrderConfig        `mapstructure:"order"`
	Wallet       WalletConfig       `mapstructure:"wallet"`
	Notification NotificationConfig `mapstructure:"notification"`
	OSS          OSSConfig          `mapstructure:"oss"`
	Push         PushConfig         `mapstructure:"push"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

// DSN gorm/pgx 使用的 key=value 连接串
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode, c.TimeZone)
}

// URL golang-migrate 使用的 URL 连接串
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int64  `mapstructure:"expire"` // 小时
}

type AppConfig struct {
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
	Name  string `mapstructure:"name"`
}

// OrderConfig 下单与结算
type OrderConfig struct {
	NumberPrefix          string        `mapstructure:"number_prefix"`
	NumberLength          int           `mapstructure:"number_length"`
	NumberMaxAttempts     int           `mapstructure:"number_max_attempts"`
	SettlementConcurrency int           `mapstructure:"settlement_concurrency"`
	IdempotencyTTL        time.Duration `mapstructure:"idempotency_ttl"`
}

// WalletConfig 商家钱包
type WalletConfig struct {
	TopUpDelay  time.Duration `mapstructure:"topup_delay"` // 模拟支付耗时
	MaxTopUp    string        `mapstructure:"max_topup"`   // 单笔充值上限，空表示不限
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	HistorySize int           `mapstructure:"history_size"`
}

// NotificationConfig 通知投递 worker
type NotificationConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
	MaxRetry  int `mapstructure:"max_retry"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
}

// Enabled 是否配置了 OSS（用于结算报告归档）
func (c OSSConfig) Enabled() bool {
	return c.Endpoint != "" && c.AccessKeyID != "" && c.BucketName != ""
}

type PushConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	AppKey          int64  `mapstructure:"app_key"`
	RegionID        string `mapstructure:"region_id"` // e.g., "cn-hangzhou"
}

// Enabled 是否配置了推送
func (c PushConfig) Enabled() bool {
	return c.AccessKeyID != "" && c.AppKey != 0
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.JWT.Secret == "" || c.JWT.Secret == "your_super_secret_key" {
		return errors.New("please set a secure JWT secret in production")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret should be at least 32 characters")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return errors.New("database configuration is incomplete")
	}

	if c.Redis.Addr == "" {
		return errors.New("redis address is required")
	}

	if c.Order.NumberPrefix == "" || c.Order.NumberLength <= 0 {
		return errors.New("order number format is incomplete")
	}
	if c.Order.SettlementConcurrency <= 0 {
		return errors.New("order.settlement_concurrency must be positive")
	}

	return nil
}

// SetDefaults 写入默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")
	v.SetDefault("jwt.expire", 24)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.name", "peb-market")

	v.SetDefault("order.number_prefix", "PEB-")
	v.SetDefault("order.number_length", 7)
	v.SetDefault("order.number_max_attempts", 5)
	v.SetDefault("order.settlement_concurrency", 4)
	v.SetDefault("order.idempotency_ttl", 24*time.Hour)

	v.SetDefault("wallet.topup_delay", 2*time.Second)
	v.SetDefault("wallet.cache_ttl", 30*time.Second)
	v.SetDefault("wallet.history_size", 50)

	v.SetDefault("notification.workers", 4)
	v.SetDefault("notification.queue_size", 1000)
	v.SetDefault("notification.max_retry", 3)
}

// Load 加载配置
// path 为空时按 APP_ENV 在 ./configs 和当前目录下查找 config[.env].yaml
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		env := os.Getenv("APP_ENV")
		configName := "config"
		if env != "" && env != "dev" {
			configName = "config." + env
		}
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// 绑定环境变量，例如 ORDER_SETTLEMENT_CONCURRENCY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// 手动覆盖，以防 viper 无法正确解析复杂结构或环境变量
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.JWT.Secret = jwtSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}
