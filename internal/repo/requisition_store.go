package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/rmedina/go-requisition-backend/internal/domain"
	"github.com/rmedina/go-requisition-backend/internal/ledger"
)

// SQLiteStore implements ledger.Store on a GORM/SQLite database. The dedup
// token carries a unique index, so a retried submission surfaces as a
// unique-constraint violation and is answered with the already-stored
// record, mirroring the flat-file store's idempotent append.
type SQLiteStore struct {
	db *gorm.DB

	// now is a seam for freeze-clock tests.
	now func() time.Time
}

// NewSQLiteStore wraps an opened, migrated database handle.
func NewSQLiteStore(db *gorm.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Load implements ledger.Store. SQLite enforces the row schema, so nothing
// is ever skipped.
func (s *SQLiteStore) Load(ctx context.Context) (ledger.LoadResult, error) {
	var records []domain.Requisition
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Find(&records).Error
	if err != nil {
		return ledger.LoadResult{}, err
	}
	return ledger.LoadResult{Records: records}, nil
}

// Append implements ledger.Store. The sequential id is assigned inside a
// transaction; a concurrent insert of the same token loses the race at the
// unique index and is returned the winner's record.
func (s *SQLiteStore) Append(ctx context.Context, candidate domain.Requisition) (domain.Requisition, bool, error) {
	var out domain.Requisition
	inserted := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Requisition
		err := tx.Where("dedup_token = ?", candidate.DedupToken).First(&existing).Error
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var ids []string
		if err := tx.Model(&domain.Requisition{}).Pluck("id", &ids).Error; err != nil {
			return err
		}
		maxSeq := 0
		for _, id := range ids {
			if n, ok := domain.IDSequence(id); ok && n > maxSeq {
				maxSeq = n
			}
		}

		candidate.ID = domain.FormatID(maxSeq + 1)
		candidate.CreatedAt = s.now().Truncate(time.Second)
		if candidate.Status == "" {
			candidate.Status = domain.StatusPending
		}
		candidate.FrozenElapsedMinutes = nil

		if err := tx.Create(&candidate).Error; err != nil {
			return err
		}
		out = candidate
		inserted = true
		return nil
	})
	if err != nil {
		// glebarez/sqlite often reports UNIQUE violations as plain text.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			var existing domain.Requisition
			if ferr := s.db.WithContext(ctx).
				Where("dedup_token = ?", candidate.DedupToken).
				First(&existing).Error; ferr == nil {
				return existing, false, nil
			}
		}
		return domain.Requisition{}, false, err
	}
	return out, inserted, nil
}

// Update implements ledger.Store, applying the freeze rule on terminal
// transitions exactly as the flat-file store does.
func (s *SQLiteStore) Update(ctx context.Context, id string, change ledger.Change) (domain.Requisition, error) {
	var out domain.Requisition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec domain.Requisition
		if err := tx.Where("id = ?", id).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledger.ErrNotFound
			}
			return err
		}

		ledger.ApplyStatus(&rec, change.Status, s.now())
		rec.Assignee = change.Assignee
		rec.Issue = change.Issue

		// Save with Select so a cleared freeze actually writes NULL.
		if err := tx.Model(&domain.Requisition{}).
			Where("id = ?", id).
			Select("status", "assignee", "issue", "frozen_elapsed_minutes").
			Updates(map[string]any{
				"status":                 rec.Status,
				"assignee":               rec.Assignee,
				"issue":                  rec.Issue,
				"frozen_elapsed_minutes": rec.FrozenElapsedMinutes,
			}).Error; err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return domain.Requisition{}, err
	}
	return out, nil
}
