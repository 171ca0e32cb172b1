package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/recordvault/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
)

type principalModel struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;not null"`
	Active    bool      `gorm:"column:active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (principalModel) TableName() string {
	return domain.TablePrincipals
}

type PrincipalRepository struct {
	db *gormsqlite.DB
}

func NewPrincipalRepository(db *gormsqlite.DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

func (r *PrincipalRepository) Upsert(ctx context.Context, p domain.Principal) (domain.Principal, error) {
	model := principalModel{
		Name:      p.Name,
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}

	var out domain.Principal
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"active"}),
		}).Create(&model).Error
		if err != nil {
			return fmt.Errorf("upsert principal: %w", err)
		}

		var saved principalModel
		if err := tx.Where("name = ?", p.Name).First(&saved).Error; err != nil {
			return fmt.Errorf("load upserted principal: %w", err)
		}
		out = toDomainPrincipal(saved)
		return nil
	})
	if err != nil {
		return domain.Principal{}, err
	}
	return out, nil
}

func (r *PrincipalRepository) FindByName(ctx context.Context, name string) (domain.Principal, error) {
	var model principalModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("name = ?", name).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Principal{}, domain.ErrNotFound
		}
		return domain.Principal{}, fmt.Errorf("find principal: %w", err)
	}
	return toDomainPrincipal(model), nil
}

func (r *PrincipalRepository) Delete(ctx context.Context, id int64) (bool, error) {
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("id = ?", id).Delete(&principalModel{})
		if res.Error != nil {
			return fmt.Errorf("delete principal: %w", res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func toDomainPrincipal(model principalModel) domain.Principal {
	return domain.Principal{
		ID:        model.ID,
		Name:      model.Name,
		Active:    model.Active,
		CreatedAt: model.CreatedAt,
	}
}
