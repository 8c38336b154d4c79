package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultCatalogFile = "sigrok_captures.sqlite3"

const errCatalogNil = "catalog is nil"

// Catalog persists capture metadata and decode-cache entries so a
// session's .sr files stay indexable after the process exits. Sample
// data itself lives in the .sr containers, never in the database.
type Catalog struct {
	DB *gorm.DB
	db *sql.DB
}

// CaptureRecord is one persisted capture slot.
type CaptureRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	SessionID   string `gorm:"index:idx_session;type:varchar(36)"`
	CaptureID   string `gorm:"index:idx_capture_id"`
	Description string
	FilePath    string
	SampleRate  int
	NumChannels int
	NumSamples  int
	CreatedAt   time.Time
}

// DecodeRecord caches one decoder run's raw output per capture and
// (decoder, annotation filter) key.
type DecodeRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"type:varchar(36)"`
	CaptureID string `gorm:"index:idx_decode,priority:1"`
	CacheKey  string `gorm:"index:idx_decode,priority:2"`
	Output    string
	CreatedAt time.Time
}

// Open creates or opens the catalog database at path.
func Open(path string) (*Catalog, error) {
	if path == "" {
		path = DefaultCatalogFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating catalog dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening catalog db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&CaptureRecord{}, &DecodeRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Catalog{DB: db, db: sqlDB}, nil
}

func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// RecordCapture upserts a capture's metadata row for a session.
func (c *Catalog) RecordCapture(rec CaptureRecord) error {
	if c == nil || c.DB == nil {
		return errors.New(errCatalogNil)
	}

	var existing CaptureRecord
	err := c.DB.Where("session_id = ? AND capture_id = ?", rec.SessionID, rec.CaptureID).First(&existing).Error
	if err == nil {
		existing.Description = rec.Description
		existing.FilePath = rec.FilePath
		existing.SampleRate = rec.SampleRate
		existing.NumChannels = rec.NumChannels
		existing.NumSamples = rec.NumSamples
		return c.DB.Save(&existing).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("querying capture record: %w", err)
	}
	if err := c.DB.Create(&rec).Error; err != nil {
		return fmt.Errorf("creating capture record: %w", err)
	}
	return nil
}

// RecordDecode stores one decode-cache entry.
func (c *Catalog) RecordDecode(rec DecodeRecord) error {
	if c == nil || c.DB == nil {
		return errors.New(errCatalogNil)
	}
	if err := c.DB.Create(&rec).Error; err != nil {
		return fmt.Errorf("creating decode record: %w", err)
	}
	return nil
}

// LookupDecode returns the most recent cached output for a capture/key,
// if any. A miss is (_, false, nil).
func (c *Catalog) LookupDecode(sessionID, captureID, key string) (string, bool, error) {
	if c == nil || c.DB == nil {
		return "", false, errors.New(errCatalogNil)
	}
	var rec DecodeRecord
	err := c.DB.Where("session_id = ? AND capture_id = ? AND cache_key = ?", sessionID, captureID, key).
		Order("id DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying decode record: %w", err)
	}
	return rec.Output, true, nil
}

// ListCaptures returns a session's capture rows in insertion order.
func (c *Catalog) ListCaptures(sessionID string) ([]CaptureRecord, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errCatalogNil)
	}
	var recs []CaptureRecord
	if err := c.DB.Where("session_id = ?", sessionID).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing capture records: %w", err)
	}
	return recs, nil
}

// DeleteCapture removes a capture row and its decode-cache entries.
func (c *Catalog) DeleteCapture(sessionID, captureID string) error {
	if c == nil || c.DB == nil {
		return errors.New(errCatalogNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ? AND capture_id = ?", sessionID, captureID).Delete(&DecodeRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("session_id = ? AND capture_id = ?", sessionID, captureID).Delete(&CaptureRecord{}).Error
	})
}
