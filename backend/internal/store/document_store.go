package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	OwnerID   uint64    `gorm:"not null;index"`
	Title     string    `gorm:"size:255;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (DocumentRecord) TableName() string { return "documents" }

type DocumentStore struct{ db *gorm.DB }

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) CreateDocument(ctx context.Context, ownerID uint64, title string) (string, error) {
	rec := DocumentRecord{ID: uuid.NewString(), OwnerID: ownerID, Title: title}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *DocumentStore) DocumentExists(ctx context.Context, docID string) (bool, error) {
	var rec DocumentRecord
	err := s.db.WithContext(ctx).Select("id").Where("id = ?", docID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}
