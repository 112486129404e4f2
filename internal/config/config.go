package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Env        string          `mapstructure:"env"` // 环境: development, production
	Server     ServerConfig    `mapstructure:"server"`
	Store      StoreConfig     `mapstructure:"store"`
	Database   DatabaseConfig  `mapstructure:"database"`
	Mongo      MongoConfig     `mapstructure:"mongo"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	OpenFGA    OpenFGAConfig   `mapstructure:"openfga"`
	Keycloak   KeycloakConfig  `mapstructure:"keycloak"`
	CORS       CORSConfig      `mapstructure:"cors"`
	Log        LogConfig       `mapstructure:"log"`
	Tracing    TracingConfig   `mapstructure:"tracing"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Payment    PaymentConfig   `mapstructure:"payment"`
	AIProvider ProviderConfig  `mapstructure:"ai_provider"`
	VOD        ProviderConfig  `mapstructure:"vod"`
	Sweep      SweepConfig     `mapstructure:"sweep"`
	Review     ReviewConfig    `mapstructure:"review"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	SwaggerEnabled bool   `mapstructure:"swagger_enabled"` // 是否开放 /swagger 文档
}

// StoreConfig 文档存储选择
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // gorm, mongo
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	SQLitePath      string `mapstructure:"sqlite_path"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 秒
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 秒
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI            string `mapstructure:"uri"`
	Database       string `mapstructure:"database"`
	MaxPoolSize    uint64 `mapstructure:"max_pool_size"`
	MinPoolSize    uint64 `mapstructure:"min_pool_size"`
	ConnectTimeout int    `mapstructure:"connect_timeout"` // 秒
}

// RedisConfig Redis 配置,用于巡检互斥租约
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig Kafka 配置,用于生命周期事件推送
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Workers int      `mapstructure:"workers"`
}

// OpenFGAConfig OpenFGA 配置
type OpenFGAConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	APIURL   string `mapstructure:"api_url"`
	StoreID  string `mapstructure:"store_id"`
	ModelID  string `mapstructure:"model_id"`
	CacheTTL int    `mapstructure:"cache_ttl"` // 秒
}

// KeycloakConfig Keycloak 配置
type KeycloakConfig struct {
	Issuer    string `mapstructure:"issuer"`
	JWKSURL   string `mapstructure:"jwks_url"`
	AdminRole string `mapstructure:"admin_role"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`  // 日志级别: debug, info, warn, error
	Format     string `mapstructure:"format"` // 日志格式: json, text
	Output     string `mapstructure:"output"` // 输出位置: stdout, file, both
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // 天
	Compress   bool   `mapstructure:"compress"`
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"` // 0~1，非法值按 1 处理
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	CallbackRPS   float64 `mapstructure:"callback_rps"`
	CallbackBurst int     `mapstructure:"callback_burst"`
}

// PaymentConfig 支付渠道配置
type PaymentConfig struct {
	VerifyTimeout time.Duration                    `mapstructure:"verify_timeout"`
	Providers     map[string]PaymentProviderConfig `mapstructure:"providers"`
}

// PaymentProviderConfig 单个支付渠道凭据
type PaymentProviderConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AppID     string `mapstructure:"app_id"`
	MchID     string `mapstructure:"mch_id"`
	Secret    string `mapstructure:"secret"`
	NotifyURL string `mapstructure:"notify_url"`
}

// ProviderConfig 外部处理服务配置 (AI 服务 / 旧版点播)
type ProviderConfig struct {
	BaseURL       string            `mapstructure:"base_url"`
	APIKey        string            `mapstructure:"api_key"`
	WorkflowID    string            `mapstructure:"workflow_id"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	StatusMapping map[string]string `mapstructure:"status_mapping"` // 外部状态 -> 内部任务状态
}

// SweepConfig 对账巡检配置
type SweepConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Interval            time.Duration `mapstructure:"interval"`
	TaskTimeout         time.Duration `mapstructure:"task_timeout"`
	DispatchGrace       time.Duration `mapstructure:"dispatch_grace"`
	MaxDispatchAttempts int           `mapstructure:"max_dispatch_attempts"`
	BatchSize           int           `mapstructure:"batch_size"`
	Concurrency         int           `mapstructure:"concurrency"`
	LockTTL             time.Duration `mapstructure:"lock_ttl"`
}

// ReviewConfig 审核流程配置
type ReviewConfig struct {
	MaxModifyCount  int    `mapstructure:"max_modify_count"`
	RepublishPolicy string `mapstructure:"republish_policy"` // skip_quote, fresh_cycle
}

// Load 加载配置,支持配置文件和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果提供了配置文件路径,从文件加载
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		// 尝试从默认位置加载
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.videoflow-gin")
		// 忽略配置文件不存在的错误,使用默认值
		_ = v.ReadInConfig()
	}

	// 支持环境变量
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return unmarshal(v)
}

// unmarshal 解析并校验配置
func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "gorm", "mongo":
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "gorm" && c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Sweep.TaskTimeout <= 0 {
		return fmt.Errorf("sweep.task_timeout must be positive")
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive")
	}
	if c.Review.MaxModifyCount < 0 {
		return fmt.Errorf("review.max_modify_count cannot be negative")
	}
	switch c.Review.RepublishPolicy {
	case "skip_quote", "fresh_cycle":
	default:
		return fmt.Errorf("unsupported review.republish_policy %q", c.Review.RepublishPolicy)
	}
	return nil
}

// IsProduction 判断是否为生产环境
func IsProduction(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.Env == "production"
}

// Default 返回默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 环境变量
	env := v.GetString("env")
	if env == "" {
		env = os.Getenv("APP_ENV")
		if env == "" {
			env = "development"
		}
	}
	v.SetDefault("env", env)

	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.swagger_enabled", env != "production")

	// 存储
	v.SetDefault("store.driver", "gorm")

	// 数据库默认配置
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sqlite_path", "videoflow.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "videoflow")
	v.SetDefault("database.sslmode", "disable")

	// 数据库连接池配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("database.max_idle_conns", 20)
		v.SetDefault("database.max_open_conns", 200)
		v.SetDefault("database.conn_max_lifetime", 3600) // 1 小时
		v.SetDefault("database.conn_max_idle_time", 300) // 5 分钟
	} else {
		v.SetDefault("database.max_idle_conns", 10)
		v.SetDefault("database.max_open_conns", 100)
		v.SetDefault("database.conn_max_lifetime", 3600) // 1 小时
		v.SetDefault("database.conn_max_idle_time", 600) // 10 分钟
	}

	// MongoDB
	v.SetDefault("mongo.uri", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("mongo.database", "videoflow")
	v.SetDefault("mongo.max_pool_size", 100)
	v.SetDefault("mongo.min_pool_size", 5)
	v.SetDefault("mongo.connect_timeout", 10)

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Kafka
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "videoflow.lifecycle")
	v.SetDefault("kafka.workers", 5)

	// OpenFGA 默认配置
	v.SetDefault("openfga.enabled", false)
	v.SetDefault("openfga.api_url", "http://localhost:8081")
	v.SetDefault("openfga.store_id", "")
	v.SetDefault("openfga.model_id", "")
	v.SetDefault("openfga.cache_ttl", 60)

	// Keycloak 默认配置
	v.SetDefault("keycloak.issuer", "")
	v.SetDefault("keycloak.jwks_url", "")
	v.SetDefault("keycloak.admin_role", "videoflow-admin")

	// CORS 默认配置
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Request-ID"})
	v.SetDefault("cors.max_age", 86400)

	// 日志配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("log.level", "warn")
		v.SetDefault("log.format", "json")
	} else {
		v.SetDefault("log.level", "debug")
		v.SetDefault("log.format", "text")
	}
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/videoflow-gin.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)

	// 追踪
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "videoflow-gin")
	v.SetDefault("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.sample_ratio", 1.0)

	// 回调限流
	v.SetDefault("rate_limit.callback_rps", 50)
	v.SetDefault("rate_limit.callback_burst", 100)

	// 支付
	v.SetDefault("payment.verify_timeout", 5*time.Second)

	// 外部处理服务
	v.SetDefault("ai_provider.base_url", "https://www.runninghub.cn")
	v.SetDefault("ai_provider.timeout", 10*time.Second)
	v.SetDefault("ai_provider.status_mapping", map[string]string{
		"queued":  "queued",
		"pending": "queued",
		"running": "processing",
		"success": "completed",
		"failed":  "failed",
		"error":   "failed",
	})
	v.SetDefault("vod.base_url", "http://localhost:9000")
	v.SetDefault("vod.timeout", 10*time.Second)
	v.SetDefault("vod.status_mapping", map[string]string{
		"waiting":    "queued",
		"processing": "processing",
		"finish":     "completed",
		"fail":       "failed",
	})

	// 对账巡检
	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", time.Minute)
	v.SetDefault("sweep.task_timeout", 30*time.Minute)
	v.SetDefault("sweep.dispatch_grace", 2*time.Minute)
	v.SetDefault("sweep.max_dispatch_attempts", 5)
	v.SetDefault("sweep.batch_size", 200)
	v.SetDefault("sweep.concurrency", 8)
	v.SetDefault("sweep.lock_ttl", 5*time.Minute)

	// 审核流程
	v.SetDefault("review.max_modify_count", 2)
	v.SetDefault("review.republish_policy", "skip_quote")
}
