// Package archive records finished matches in postgres. It is strictly
// append-only bookkeeping after game over; live sessions never touch it.
package archive

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type MatchRecord struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"uniqueIndex;size:64"`
	Winner    string `gorm:"size:16"`
	Reason    string `gorm:"size:128"`
	Rounds    int
	CreatedAt time.Time
}

type Store struct {
	db *gorm.DB
}

// Open connects and migrates. A nil *Store is a valid no-op store, so the
// caller can skip archiving when no DSN is configured.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.AutoMigrate(&MatchRecord{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Store{db: db}, nil
}

// Record persists one finished match.
func (s *Store) Record(rec MatchRecord) error {
	if s == nil {
		return nil
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("archive match %s: %w", rec.SessionID, err)
	}
	return nil
}
