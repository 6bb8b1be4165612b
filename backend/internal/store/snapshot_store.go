package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"composer/backend/internal/doc"
)

const errDuplicateEntry = 1062

// SnapshotRecord holds one revision of a document serialized as JSON.
type SnapshotRecord struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	DocumentID string    `gorm:"size:64;not null;uniqueIndex:idx_doc_rev"`
	Revision   uint64    `gorm:"not null;uniqueIndex:idx_doc_rev"`
	Content    []byte    `gorm:"type:longblob;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (SnapshotRecord) TableName() string { return "document_snapshots" }

type SnapshotStore struct{ db *gorm.DB }

func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveDocumentSnapshot is idempotent per (document, revision).
func (s *SnapshotStore) SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, d *doc.Document) error {
	content, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	rec := SnapshotRecord{DocumentID: docID, Revision: rev, Content: content}
	err = s.db.WithContext(ctx).Create(&rec).Error
	if isDuplicate(err) {
		return nil
	}
	return err
}

func (s *SnapshotStore) LatestDocumentSnapshot(ctx context.Context, docID string) (*doc.Document, uint64, error) {
	var rec SnapshotRecord
	err := s.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("revision DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	d, err := decodeSnapshot(rec.Content)
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot %s@%d: %w", docID, rec.Revision, err)
	}
	return d, rec.Revision, nil
}

func decodeSnapshot(content []byte) (*doc.Document, error) {
	var d doc.Document
	if err := json.Unmarshal(content, &d); err != nil {
		return nil, err
	}
	if d.Body == nil {
		return nil, fmt.Errorf("%w: snapshot has no body", doc.ErrInvalidBody)
	}
	if err := d.Body.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry
}
