// Package kvstore provides the local key-value persistence capability the SDK
// keeps device identity and submission state in. It plays the role browser
// localStorage plays for a web page: string keys, string values, synchronous
// from the caller's point of view.
package kvstore

import "context"

// Store is a string key-value persistence backend. Implementations must be
// safe for concurrent use. Get reports a missing key with ok=false and a nil
// error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close(ctx context.Context) error
}

// Config describes the driver selection parameters.
type Config struct {
	Driver string        `yaml:"driver"`
	File   *FileConfig   `yaml:"file,omitempty"`
	Redis  *RedisConfig  `yaml:"redis,omitempty"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
}

// FileConfig locates the JSON document used by the file driver.
type FileConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// SQLiteConfig provides the database location when no handle is injected.
type SQLiteConfig struct {
	DSN string `yaml:"dsn"`
}
