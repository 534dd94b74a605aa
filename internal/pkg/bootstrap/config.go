// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是所有服务共享的配置结构，对应 configs/config.yaml
type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
}

type AppConfig struct {
	Env          string         `yaml:"env"`
	LogLevel     string         `yaml:"logLevel"`
	FeatureFlags FeatureFlags   `yaml:"featureFlags"`
	Purchase     PurchaseConfig `yaml:"purchase"`
	Storage      StorageConfig  `yaml:"storage"`
	Notification NotifyConfig   `yaml:"notification"`
}

type FeatureFlags struct {
	EnableLoyaltySale       bool `yaml:"enableLoyaltySale"`
	EnableAvailabilityCache bool `yaml:"enableAvailabilityCache"`
	EnableLowStockScan      bool `yaml:"enableLowStockScan"`
}

type PurchaseConfig struct {
	LoyaltyRule        string        `yaml:"loyaltyRule"`
	LoyaltyRate        string        `yaml:"loyaltyRate"`
	CallTimeout        time.Duration `yaml:"callTimeout"`
	OutboxPollInterval time.Duration `yaml:"outboxPollInterval"`
	OutboxBatchSize    int           `yaml:"outboxBatchSize"`
}

type StorageConfig struct {
	LowStockThreshold int           `yaml:"lowStockThreshold"`
	LowStockCron      string        `yaml:"lowStockCron"`
	CacheTTL          time.Duration `yaml:"cacheTTL"`
	BackorderTTL      time.Duration `yaml:"backorderTTL"`
	CallTimeout       time.Duration `yaml:"callTimeout"`
}

type NotifyConfig struct {
	DedupTTL time.Duration `yaml:"dedupTTL"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig      `yaml:"jaeger"`
	Kafka     KafkaConfig       `yaml:"kafka"`
	Mysql     MysqlConfig       `yaml:"mysql"`
	Redis     RedisConfig       `yaml:"redis"`
	Nacos     NacosConfig       `yaml:"nacos"`
	Zookeeper ZookeeperConfig   `yaml:"zookeeper"`
	Services  map[string]string `yaml:"services"` // 未启用 nacos 时的静态服务地址
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

type MysqlConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxOpen  int    `yaml:"maxOpen"`
	MaxIdle  int    `yaml:"maxIdle"`
}

type RedisConfig struct {
	Addrs    string `yaml:"addrs"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

var currentConfig atomic.Pointer[Config]

// DefaultConfig 返回本地开发用的默认配置
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:      "dev",
			LogLevel: "info",
			FeatureFlags: FeatureFlags{
				EnableLoyaltySale:       true,
				EnableAvailabilityCache: true,
				EnableLowStockScan:      true,
			},
			Purchase: PurchaseConfig{
				LoyaltyRule:        "order.totalCost > 500.0",
				LoyaltyRate:        "0.05",
				CallTimeout:        3 * time.Second,
				OutboxPollInterval: time.Second,
				OutboxBatchSize:    100,
			},
			Storage: StorageConfig{
				LowStockThreshold: 10,
				LowStockCron:      "0 7 * * *",
				CacheTTL:          10 * time.Minute,
				BackorderTTL:      30 * 24 * time.Hour,
				CallTimeout:       3 * time.Second,
			},
			Notification: NotifyConfig{DedupTTL: 24 * time.Hour},
		},
		Infra: InfraConfig{
			Jaeger: JaegerConfig{Endpoint: "http://localhost:14268/api/traces"},
			Kafka:  KafkaConfig{Brokers: []string{"localhost:9092"}},
			Mysql: MysqlConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "root",
				Password: "root",
				Database: "shop",
				MaxOpen:  20,
				MaxIdle:  5,
			},
			Redis: RedisConfig{Addrs: "localhost:6379"},
			Nacos: NacosConfig{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP"},
			Zookeeper: ZookeeperConfig{
				SessionTimeout: 10 * time.Second,
			},
			Services: map[string]string{
				"customer-service": "http://localhost:8084",
				"product-service":  "http://localhost:8085",
				"storage-service":  "http://localhost:8082",
			},
		},
	}
}

// Init 读取 CONFIG_FILE（默认 configs/config.yaml），叠加环境变量并设为当前配置。
// 文件不存在时使用默认值。
func Init() (*Config, error) {
	path := getEnv("CONFIG_FILE", "configs/config.yaml")
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	currentConfig.Store(cfg)
	return cfg, nil
}

// Parse 在默认配置之上解析 yaml
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetCurrentConfig 返回当前生效的配置，未初始化时返回默认配置
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.Mysql.DSN = v
	}
	if v := os.Getenv("REDIS_ADDRS"); v != "" {
		cfg.Infra.Redis.Addrs = v
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		cfg.Infra.Nacos.ServerAddrs = v
		cfg.Infra.Nacos.Enabled = true
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		cfg.Infra.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		cfg.Infra.Nacos.Group = v
	}
	if v := os.Getenv("ZK_SERVERS"); v != "" {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	for name := range cfg.Infra.Services {
		// customer-service -> CUSTOMER_SERVICE_URL
		key := strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_URL"
		if v := os.Getenv(key); v != "" {
			cfg.Infra.Services[name] = v
		}
	}
}

// getEnv 从环境变量中读取配置
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
