package kvstore

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
)

// Driver identifiers.
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Dependencies captures external handles a driver may reuse instead of
// opening its own connection.
type Dependencies struct {
	SQLiteDB    *gorm.DB
	RedisClient *redis.Client
}

// New creates a store based on the provided configuration. DriverNone yields
// a nil Store, which the SDK treats as "no persistent storage available".
func New(cfg Config, deps Dependencies) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverNone:
		return nil, nil
	case DriverMemory:
		return NewMemory(), nil
	case DriverFile:
		if cfg.File == nil || cfg.File.Path == "" {
			return nil, errors.New(errors.KindConfig, "kvstore.new", "file driver requires a path")
		}
		return NewFile(cfg.File.Path)
	case DriverRedis:
		if deps.RedisClient != nil {
			prefix := ""
			if cfg.Redis != nil {
				prefix = cfg.Redis.Prefix
			}
			return NewRedisWithClient(deps.RedisClient, prefix), nil
		}
		return NewRedis(cfg.Redis)
	case DriverSQLite:
		if deps.SQLiteDB != nil {
			return NewSQLite(deps.SQLiteDB)
		}
		if cfg.SQLite == nil || cfg.SQLite.DSN == "" {
			return nil, errors.New(errors.KindConfig, "kvstore.new", "sqlite driver requires a database handle or dsn")
		}
		return OpenSQLite(cfg.SQLite.DSN)
	default:
		return nil, errors.New(errors.KindConfig, "kvstore.new", "unsupported storage driver: "+driver)
	}
}
