package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/atvirokodosprendimai/recordvault/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
)

// AuditRepository reads the append-only trail. Nothing in the engine writes
// through it; entries are appended inside record mutations.
type AuditRepository struct {
	db *gormsqlite.DB
}

func NewAuditRepository(db *gormsqlite.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	var rows []auditModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&auditModel{})
		if filter.Principal != nil {
			query = query.Where("principal = ?", *filter.Principal)
		}
		if filter.Action != "" {
			query = query.Where("action = ?", string(filter.Action))
		}
		if filter.LogicalTable != "" {
			query = query.Where("logical_table = ?", filter.LogicalTable)
		}
		if filter.AfterID > 0 {
			query = query.Where("id < ?", filter.AfterID)
		}
		return query.Order("id DESC").Limit(filter.Limit).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	entries := make([]domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := toDomainAudit(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *AuditRepository) CountForRecord(ctx context.Context, logicalTable string, recordID int64) (int64, error) {
	var count int64
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&auditModel{}).
			Where("logical_table = ? AND record_id = ?", logicalTable, recordID).
			Count(&count).Error
	})
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}

func toDomainAudit(row auditModel) (domain.AuditEntry, error) {
	entry := domain.AuditEntry{
		ID:           row.ID,
		EventID:      row.EventID,
		Principal:    row.Principal,
		Action:       domain.AuditAction(row.Action),
		LogicalTable: row.LogicalTable,
		RecordID:     row.RecordID,
		CreatedAt:    row.CreatedAt,
	}
	if row.BeforeJSON != nil {
		if err := json.Unmarshal([]byte(*row.BeforeJSON), &entry.Before); err != nil {
			return domain.AuditEntry{}, fmt.Errorf("decode before state of audit entry %d: %w", row.ID, err)
		}
	}
	if row.AfterJSON != nil {
		if err := json.Unmarshal([]byte(*row.AfterJSON), &entry.After); err != nil {
			return domain.AuditEntry{}, fmt.Errorf("decode after state of audit entry %d: %w", row.ID, err)
		}
	}
	return entry, nil
}
