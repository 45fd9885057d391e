package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// recordRow is the GORM model for a persisted memory record.
type recordRow struct {
	Namespace string `gorm:"primaryKey;size:255;index"`
	ID        string `gorm:"primaryKey;size:255"`
	Data      []byte
	UpdatedAt time.Time
}

// TableName sets the table name for recordRow.
func (recordRow) TableName() string {
	return "memory_records"
}

// GormStore is a RecordStore backed by a SQL database through GORM.
// Any GORM dialector works; NewSQLiteStore wires the pure-Go sqlite
// driver for single-node deployments and tests.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore creates a record store on an existing GORM handle and runs
// the schema migration for the records table.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "record_store_gorm")),
	}, nil
}

// NewSQLiteStore opens (or creates) a sqlite database at path and returns a
// GormStore on it. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string, logger *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return NewGormStore(db, logger)
}

func (s *GormStore) Put(ctx context.Context, namespace, id string, data []byte) error {
	if namespace == "" || id == "" {
		return fmt.Errorf("namespace and id are required")
	}

	row := recordRow{
		Namespace: namespace,
		ID:        id,
		Data:      data,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *GormStore) Get(ctx context.Context, namespace, id string) ([]byte, error) {
	var row recordRow
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND id = ?", namespace, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.Data, nil
}

func (s *GormStore) List(ctx context.Context, namespace string) (map[string][]byte, error) {
	var rows []recordRow
	err := s.db.WithContext(ctx).
		Where("namespace = ?", namespace).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(rows))
	for _, row := range rows {
		out[row.ID] = row.Data
	}
	return out, nil
}

func (s *GormStore) Delete(ctx context.Context, namespace, id string) error {
	return s.db.WithContext(ctx).
		Where("namespace = ? AND id = ?", namespace, id).
		Delete(&recordRow{}).Error
}
