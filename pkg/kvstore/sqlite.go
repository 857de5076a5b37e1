package kvstore

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
)

// Entry is the row model backing the sqlite driver.
type Entry struct {
	Key       string    `gorm:"column:entry_key;type:varchar(255);primaryKey"`
	Value     string    `gorm:"column:entry_value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Entry) TableName() string {
	return "kv_entries"
}

type sqliteStore struct {
	db    *gorm.DB
	owned bool
}

// OpenGorm opens a sqlite database at dsn with a silent logger.
func OpenGorm(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "sqlite.open", "failed to open database", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "sqlite.open", "failed to get database handle", err)
	}
	// sqlite allows a single writer at a time.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// OpenSQLite opens the database at dsn and migrates the entry table.
func OpenSQLite(dsn string) (Store, error) {
	db, err := OpenGorm(dsn)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLite(db)
	if err != nil {
		return nil, err
	}
	s.(*sqliteStore).owned = true
	return s, nil
}

// NewSQLite builds a store over an existing handle and migrates the entry table.
func NewSQLite(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, errors.New(errors.KindConfig, "sqlite.new", "sqlite store requires database handle")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "sqlite.migrate", "failed to migrate kv_entries", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry Entry
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).First(&entry).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(errors.KindStorage, "sqlite.get", "read key", err)
	}
	return entry.Value, true, nil
}

func (s *sqliteStore) Set(ctx context.Context, key, value string) error {
	entry := Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return errors.Wrap(errors.KindStorage, "sqlite.set", "write key", err)
	}
	return nil
}

func (s *sqliteStore) Remove(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&Entry{}).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "sqlite.remove", "delete key", err)
	}
	return nil
}

func (s *sqliteStore) Close(context.Context) error {
	if !s.owned {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
