package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/qiuqing005/maoxian/internal/config"
	"github.com/qiuqing005/maoxian/internal/models"
)

// adventureRow maps one persisted adventure record. The document itself is
// stored as JSON so the row schema stays stable across record changes.
type adventureRow struct {
	OwnerID     string `gorm:"primaryKey;size:64"`
	AdventureID string `gorm:"primaryKey;size:64"`
	Payload     string `gorm:"type:mediumtext"`
}

func (adventureRow) TableName() string { return "adventure_records" }

type indexRow struct {
	OwnerID string `gorm:"primaryKey;size:64"`
	Payload string `gorm:"type:mediumtext"`
}

func (indexRow) TableName() string { return "adventure_indices" }

// MySQLStore is the gorm-backed alternative to BoltStore for deployments
// that already run MySQL.
type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&adventureRow{}, &indexRow{}); err != nil {
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *MySQLStore) PutRecord(ctx context.Context, rec *models.AdventureRecord) error {
	if rec == nil || rec.AdventureID == "" || rec.OwnerID == "" {
		return fmt.Errorf("adventure record requires owner and adventure ids")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal adventure record: %w", err)
	}
	row := adventureRow{OwnerID: rec.OwnerID, AdventureID: rec.AdventureID, Payload: string(payload)}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

func (s *MySQLStore) GetRecord(ctx context.Context, ownerID, adventureID string) (*models.AdventureRecord, error) {
	var row adventureRow
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND adventure_id = ?", ownerID, adventureID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var rec models.AdventureRecord
	if err := json.Unmarshal([]byte(row.Payload), &rec); err != nil {
		return nil, fmt.Errorf("%w: unmarshal adventure record: %v", ErrCorrupt, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &rec, nil
}

func (s *MySQLStore) DeleteRecord(ctx context.Context, ownerID, adventureID string) error {
	return s.db.WithContext(ctx).
		Where("owner_id = ? AND adventure_id = ?", ownerID, adventureID).
		Delete(&adventureRow{}).Error
}

func (s *MySQLStore) PutIndex(ctx context.Context, idx *models.UserIndex) error {
	if idx == nil || idx.OwnerID == "" {
		return fmt.Errorf("user index requires an owner id")
	}
	payload, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal user index: %w", err)
	}
	row := indexRow{OwnerID: idx.OwnerID, Payload: string(payload)}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

func (s *MySQLStore) GetIndex(ctx context.Context, ownerID string) (*models.UserIndex, error) {
	var row indexRow
	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var idx models.UserIndex
	if err := json.Unmarshal([]byte(row.Payload), &idx); err != nil {
		return nil, fmt.Errorf("%w: unmarshal user index: %v", ErrCorrupt, err)
	}
	if err := idx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &idx, nil
}

func (s *MySQLStore) ListOwners(ctx context.Context) ([]string, error) {
	var owners []string
	err := s.db.WithContext(ctx).Model(&indexRow{}).Pluck("owner_id", &owners).Error
	if err != nil {
		return nil, err
	}
	return owners, nil
}

func (s *MySQLStore) DeleteOwner(ctx context.Context, ownerID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ?", ownerID).Delete(&adventureRow{}).Error; err != nil {
			return err
		}
		return tx.Where("owner_id = ?", ownerID).Delete(&indexRow{}).Error
	})
}

func (s *MySQLStore) DeleteAll(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&adventureRow{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&indexRow{}).Error
	})
}
