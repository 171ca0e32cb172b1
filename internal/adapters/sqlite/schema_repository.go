package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/recordvault/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
)

type tableSchemaModel struct {
	LogicalTable string    `gorm:"column:logical_table;primaryKey"`
	SchemaJSON   string    `gorm:"column:schema_json;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

func (tableSchemaModel) TableName() string {
	return domain.TableTableSchemas
}

type SchemaRepository struct {
	db *gormsqlite.DB
}

func NewSchemaRepository(db *gormsqlite.DB) *SchemaRepository {
	return &SchemaRepository{db: db}
}

func (r *SchemaRepository) Upsert(ctx context.Context, schema domain.TableSchema) (domain.TableSchema, error) {
	model := tableSchemaModel{
		LogicalTable: schema.LogicalTable,
		SchemaJSON:   string(schema.Schema),
		UpdatedAt:    time.Now().UTC(),
	}

	var out domain.TableSchema
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "logical_table"}},
			DoUpdates: clause.AssignmentColumns([]string{"schema_json", "updated_at"}),
		}).Create(&model).Error
		if err != nil {
			return fmt.Errorf("upsert table schema: %w", err)
		}

		var saved tableSchemaModel
		if err := tx.Where("logical_table = ?", schema.LogicalTable).First(&saved).Error; err != nil {
			return fmt.Errorf("load upserted table schema: %w", err)
		}
		out = toDomainSchema(saved)
		return nil
	})
	if err != nil {
		return domain.TableSchema{}, err
	}
	return out, nil
}

func (r *SchemaRepository) Get(ctx context.Context, logicalTable string) (domain.TableSchema, error) {
	var model tableSchemaModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("logical_table = ?", logicalTable).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TableSchema{}, domain.ErrNotFound
		}
		return domain.TableSchema{}, fmt.Errorf("get table schema: %w", err)
	}
	return toDomainSchema(model), nil
}

func (r *SchemaRepository) Delete(ctx context.Context, logicalTable string) (bool, error) {
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("logical_table = ?", logicalTable).Delete(&tableSchemaModel{})
		if res.Error != nil {
			return fmt.Errorf("delete table schema: %w", res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func toDomainSchema(model tableSchemaModel) domain.TableSchema {
	return domain.TableSchema{
		LogicalTable: model.LogicalTable,
		Schema:       json.RawMessage(model.SchemaJSON),
		UpdatedAt:    model.UpdatedAt,
	}
}
