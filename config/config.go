// Initializing common application configuration
package config

import (
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig    `mapstructure:"server"`
	Source       SourceConfig    `mapstructure:"source"`
	VariantCache CacheTierConfig `mapstructure:"variant_cache"`
	InfoCache    CacheTierConfig `mapstructure:"info_cache"`
	Processor    ProcessorConfig `mapstructure:"processor"`
	Health       HealthConfig    `mapstructure:"health"`
	Kafka        KafkaConfig     `mapstructure:"kafka"`
}

type ServerConfig struct {
	AppVersion  string        `mapstructure:"app_version"`
	Host        string        `mapstructure:"host"`
	Port        string        `mapstructure:"port"`
	Timeout     time.Duration `mapstructure:"timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	Mode        string        `mapstructure:"mode"`
}

type SourceConfig struct {
	// Backend selects the source implementation: filesystem or http.
	Backend string        `mapstructure:"backend"`
	Path    string        `mapstructure:"path"`     // filesystem root
	BaseURL string        `mapstructure:"base_url"` // http prefix
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheTierConfig configures one cache tier. An empty backend disables the
// tier, which is a valid configuration.
type CacheTierConfig struct {
	// Backend: "", memory, filesystem, redis, leveldb or postgres.
	Backend      string        `mapstructure:"backend"`
	Path         string        `mapstructure:"path"` // filesystem / leveldb
	TTL          time.Duration `mapstructure:"ttl"`  // redis entry lifetime
	Redis        RedisConfig   `mapstructure:"redis"`
	PostgresDSN  string        `mapstructure:"postgres_dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type ProcessorConfig struct {
	JPEGQuality  int   `mapstructure:"jpeg_quality"`
	MinTileSize  int   `mapstructure:"min_tile_size"`
	MaxPixels    int64 `mapstructure:"max_pixels"`
	MinDimension int   `mapstructure:"min_dimension"`
}

type HealthConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	ProbeConcurrency int           `mapstructure:"probe_concurrency"`
}

type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

func LoadConfig() (*viper.Viper, error) {

	viperInstance := viper.New()

	viperInstance.AddConfigPath("./config")
	viperInstance.SetConfigName("config")
	viperInstance.SetConfigType("yaml")
	setDefaults(viperInstance)

	err := viperInstance.ReadInConfig()

	if err != nil {
		return nil, err
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {

	var c Config

	err := v.Unmarshal(&c)
	if err != nil {
		log.Fatalf("unable to decode config into struct, %v", err)
		return nil, err
	}
	return &c, nil
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.app_version", "1.0.0")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8182")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.mode", "debug")

	v.SetDefault("source.backend", "filesystem")
	v.SetDefault("source.path", "./images")
	v.SetDefault("source.timeout", 10*time.Second)

	v.SetDefault("variant_cache.backend", "filesystem")
	v.SetDefault("variant_cache.path", "./cache/variant")
	v.SetDefault("variant_cache.ttl", 24*time.Hour)
	v.SetDefault("variant_cache.redis.addr", "localhost:6379")
	v.SetDefault("variant_cache.max_open_conns", 10)

	v.SetDefault("info_cache.backend", "memory")
	v.SetDefault("info_cache.path", "./cache/info")
	v.SetDefault("info_cache.ttl", 24*time.Hour)
	v.SetDefault("info_cache.redis.addr", "localhost:6379")
	v.SetDefault("info_cache.max_open_conns", 10)

	v.SetDefault("processor.jpeg_quality", 80)
	v.SetDefault("processor.min_tile_size", 512)
	v.SetDefault("processor.max_pixels", int64(400_000_000))
	v.SetDefault("processor.min_dimension", 64)

	v.SetDefault("health.timeout", 60*time.Second)
	v.SetDefault("health.probe_concurrency", 2048)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "scaleserve-events")
}
