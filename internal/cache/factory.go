package cache

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/scaleserve/scaleserve/config"
)

// NewVariantCache builds the configured variant tier. An empty backend
// returns nil: absence is a valid, silent configuration.
func NewVariantCache(cfg *config.CacheTierConfig) (VariantCache, error) {
	switch cfg.Backend {
	case "", "none":
		logrus.Info("variant cache disabled")
		return nil, nil
	case "memory":
		return NewMemoryVariantCache(), nil
	case "filesystem":
		return NewFileVariantCache(cfg.Path)
	case "redis":
		return NewRedisVariantCache(newRedisClient(&cfg.Redis), cfg.TTL), nil
	case "leveldb":
		db, err := OpenLevelDB(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewLevelDBVariantCache(db), nil
	case "postgres":
		db, err := OpenPostgres(cfg.PostgresDSN, cfg.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		return NewPostgresVariantCache(db), nil
	default:
		return nil, fmt.Errorf("unknown variant cache backend %q", cfg.Backend)
	}
}

// NewInfoCache builds the configured info tier, nil when disabled.
func NewInfoCache(cfg *config.CacheTierConfig) (InfoCache, error) {
	switch cfg.Backend {
	case "", "none":
		logrus.Info("info cache disabled")
		return nil, nil
	case "memory":
		return NewMemoryInfoCache(), nil
	case "filesystem":
		return NewFileInfoCache(cfg.Path)
	case "redis":
		return NewRedisInfoCache(newRedisClient(&cfg.Redis), cfg.TTL), nil
	case "leveldb":
		db, err := OpenLevelDB(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewLevelDBInfoCache(db), nil
	case "postgres":
		db, err := OpenPostgres(cfg.PostgresDSN, cfg.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		return NewPostgresInfoCache(db), nil
	default:
		return nil, fmt.Errorf("unknown info cache backend %q", cfg.Backend)
	}
}

func newRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}
