package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/recordvault/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
)

type recordModel struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	LogicalTable  string    `gorm:"column:logical_table;not null"`
	OwnerID       *int64    `gorm:"column:owner_id"`
	PayloadJSON   string    `gorm:"column:payload_json;not null"`
	EncryptedJSON string    `gorm:"column:encrypted_json;not null"`
	MetadataJSON  string    `gorm:"column:metadata_json;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

func (recordModel) TableName() string {
	return domain.TableRecords
}

type auditModel struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	EventID      string    `gorm:"column:event_id;not null"`
	Principal    *int64    `gorm:"column:principal"`
	Action       string    `gorm:"column:action;not null"`
	LogicalTable string    `gorm:"column:logical_table;not null"`
	RecordID     int64     `gorm:"column:record_id;not null"`
	BeforeJSON   *string   `gorm:"column:before_json"`
	AfterJSON    *string   `gorm:"column:after_json"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

func (auditModel) TableName() string {
	return domain.TableAuditEntries
}

// RecordRepository persists records into the single physical relation
// backing all logical tables. Every mutation writes its audit entry in the
// same transaction, so a record change is never visible without it.
type RecordRepository struct {
	db *gormsqlite.DB
}

func NewRecordRepository(db *gormsqlite.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Insert(ctx context.Context, rec domain.Record, audit domain.AuditEntry) (domain.Record, error) {
	now := time.Now().UTC()
	model, err := toModel(rec)
	if err != nil {
		return domain.Record{}, err
	}
	model.CreatedAt = now
	model.UpdatedAt = now

	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		audit.RecordID = model.ID
		audit.CreatedAt = now
		return appendAudit(tx, audit)
	})
	if err != nil {
		return domain.Record{}, err
	}
	return toDomainRecord(model)
}

func (r *RecordRepository) List(ctx context.Context, q domain.RecordQuery) ([]domain.Record, int64, error) {
	var models []recordModel
	var total int64

	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		scope := tx.Model(&recordModel{}).Where("logical_table = ?", q.LogicalTable)
		if q.Owner != nil {
			scope = scope.Where("owner_id = ?", *q.Owner)
		}
		if err := scope.Count(&total).Error; err != nil {
			return fmt.Errorf("count records: %w", err)
		}

		query := tx.Model(&recordModel{}).Where("logical_table = ?", q.LogicalTable)
		if q.Owner != nil {
			query = query.Where("owner_id = ?", *q.Owner)
		}

		column, ok := domain.OrderableFields[q.Order.Field]
		if !ok {
			column = "id"
		}
		direction := "ASC"
		if q.Order.Descending {
			direction = "DESC"
		}
		query = query.Order(column + " " + direction)

		if q.Page.Limit > 0 {
			query = query.Limit(q.Page.Limit)
		}
		if q.Page.Offset > 0 {
			query = query.Offset(q.Page.Offset)
		}
		return query.Find(&models).Error
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}

	records := make([]domain.Record, 0, len(models))
	for _, model := range models {
		rec, err := toDomainRecord(model)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, nil
}

// UpdateOwned loads the record conditioned on id+owner inside the write
// transaction, applies mutate and persists the result together with the
// audit entry. The writer connection pool is size one, so no concurrent
// mutation can slip between the conditioned load and the write.
func (r *RecordRepository) UpdateOwned(ctx context.Context, id int64, owner *int64, mutate func(prev domain.Record) (domain.Record, domain.AuditEntry, error)) (domain.Record, error) {
	var result domain.Record

	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		model, err := loadOwned(tx, id, owner)
		if err != nil {
			return err
		}
		prev, err := toDomainRecord(model)
		if err != nil {
			return err
		}

		next, audit, err := mutate(prev)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		updated, err := toModel(next)
		if err != nil {
			return err
		}

		res := ownedScope(tx.Model(&recordModel{}).Where("id = ?", id), owner).Updates(map[string]any{
			"payload_json":   updated.PayloadJSON,
			"encrypted_json": updated.EncryptedJSON,
			"metadata_json":  updated.MetadataJSON,
			"updated_at":     now,
		})
		if res.Error != nil {
			return fmt.Errorf("update record: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFoundOrForbidden
		}

		audit.RecordID = id
		audit.CreatedAt = now
		if err := appendAudit(tx, audit); err != nil {
			return err
		}

		result = next
		result.ID = id
		result.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Record{}, err
	}
	return result, nil
}

// DeleteOwned has the same ownership condition and failure mode as
// UpdateOwned; on success the record is gone and its DELETE audit entry is
// committed with it.
func (r *RecordRepository) DeleteOwned(ctx context.Context, id int64, owner *int64, makeAudit func(prev domain.Record) (domain.AuditEntry, error)) error {
	return r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		model, err := loadOwned(tx, id, owner)
		if err != nil {
			return err
		}
		prev, err := toDomainRecord(model)
		if err != nil {
			return err
		}

		audit, err := makeAudit(prev)
		if err != nil {
			return err
		}

		res := ownedScope(tx.Where("id = ?", id), owner).Delete(&recordModel{})
		if res.Error != nil {
			return fmt.Errorf("delete record: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFoundOrForbidden
		}

		audit.RecordID = id
		audit.CreatedAt = time.Now().UTC()
		return appendAudit(tx, audit)
	})
}

func (r *RecordRepository) Stats(ctx context.Context, logicalTable string, owner *int64) (domain.TableStats, error) {
	var row struct {
		Total      int64
		Owners     int64
		Earliest   sql.NullTime
		Latest     sql.NullTime
		AvgSeconds float64
		Size       int64
	}

	query := `
		SELECT COUNT(*) AS total,
		       COUNT(DISTINCT owner_id) AS owners,
		       MIN(created_at) AS earliest,
		       MAX(created_at) AS latest,
		       COALESCE(AVG((julianday(updated_at) - julianday(created_at)) * 86400.0), 0) AS avg_seconds,
		       COALESCE(SUM(LENGTH(payload_json) + LENGTH(encrypted_json) + LENGTH(metadata_json)), 0) AS size
		FROM records
		WHERE logical_table = ?`
	args := []any{logicalTable}
	if owner != nil {
		query += " AND owner_id = ?"
		args = append(args, *owner)
	}

	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Raw(query, args...).Scan(&row).Error
	})
	if err != nil {
		return domain.TableStats{}, fmt.Errorf("collect table stats: %w", err)
	}

	stats := domain.TableStats{
		TotalRecords:         row.Total,
		DistinctOwners:       row.Owners,
		AverageUpdateLatency: time.Duration(row.AvgSeconds * float64(time.Second)),
		StorageSizeEstimate:  row.Size,
	}
	if row.Earliest.Valid {
		stats.EarliestCreatedAt = row.Earliest.Time
	}
	if row.Latest.Valid {
		stats.LatestCreatedAt = row.Latest.Time
	}
	return stats, nil
}

func loadOwned(tx *gormsqlite.Tx, id int64, owner *int64) (recordModel, error) {
	var model recordModel
	err := ownedScope(tx.Where("id = ?", id), owner).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return recordModel{}, domain.ErrNotFoundOrForbidden
		}
		return recordModel{}, fmt.Errorf("load record: %w", err)
	}
	return model, nil
}

func ownedScope(query *gorm.DB, owner *int64) *gorm.DB {
	if owner == nil {
		return query.Where("owner_id IS NULL")
	}
	return query.Where("owner_id = ?", *owner)
}

func appendAudit(tx *gormsqlite.Tx, entry domain.AuditEntry) error {
	model := auditModel{
		EventID:      entry.EventID,
		Principal:    entry.Principal,
		Action:       string(entry.Action),
		LogicalTable: entry.LogicalTable,
		RecordID:     entry.RecordID,
		CreatedAt:    entry.CreatedAt,
	}
	if entry.Before != nil {
		s, err := encodeFields(entry.Before)
		if err != nil {
			return err
		}
		model.BeforeJSON = &s
	}
	if entry.After != nil {
		s, err := encodeFields(entry.After)
		if err != nil {
			return err
		}
		model.AfterJSON = &s
	}
	if err := tx.Create(&model).Error; err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func toModel(rec domain.Record) (recordModel, error) {
	payload, err := encodeFields(rec.Payload)
	if err != nil {
		return recordModel{}, err
	}
	encrypted, err := json.Marshal(orEmptyCipher(rec.Encrypted))
	if err != nil {
		return recordModel{}, fmt.Errorf("encode encrypted fields: %w", err)
	}
	metadata, err := encodeFields(rec.Metadata)
	if err != nil {
		return recordModel{}, err
	}
	return recordModel{
		ID:            rec.ID,
		LogicalTable:  rec.LogicalTable,
		OwnerID:       rec.OwnerID,
		PayloadJSON:   payload,
		EncryptedJSON: string(encrypted),
		MetadataJSON:  metadata,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}, nil
}

func toDomainRecord(model recordModel) (domain.Record, error) {
	payload, err := decodeFields(model.PayloadJSON)
	if err != nil {
		return domain.Record{}, fmt.Errorf("decode payload of record %d: %w", model.ID, err)
	}
	var encrypted map[string]string
	if err := json.Unmarshal([]byte(model.EncryptedJSON), &encrypted); err != nil {
		return domain.Record{}, fmt.Errorf("decode encrypted fields of record %d: %w", model.ID, err)
	}
	metadata, err := decodeFields(model.MetadataJSON)
	if err != nil {
		return domain.Record{}, fmt.Errorf("decode metadata of record %d: %w", model.ID, err)
	}
	return domain.Record{
		ID:           model.ID,
		LogicalTable: model.LogicalTable,
		OwnerID:      model.OwnerID,
		Payload:      payload,
		Encrypted:    encrypted,
		Metadata:     metadata,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}, nil
}

func encodeFields(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(raw), nil
}

func decodeFields(raw string) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func orEmptyCipher(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
