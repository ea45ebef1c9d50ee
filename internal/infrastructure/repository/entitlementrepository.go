package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orris-inc/keygate/internal/domain/entitlement"
	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
	"github.com/orris-inc/keygate/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/keygate/internal/infrastructure/persistence/models"
	"github.com/orris-inc/keygate/internal/shared/errors"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

// EntitlementRepositoryImpl implements entitlement.Repository on GORM.
type EntitlementRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.EntitlementMapper
	logger logger.Interface
}

func NewEntitlementRepository(db *gorm.DB, logger logger.Interface) *EntitlementRepositoryImpl {
	return &EntitlementRepositoryImpl{
		db:     db,
		mapper: mappers.NewEntitlementMapper(),
		logger: logger,
	}
}

func (r *EntitlementRepositoryImpl) Create(ctx context.Context, ent *entitlement.Entitlement) error {
	model := r.mapper.ToModel(ent)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.IsDuplicateError(err) {
			return errors.NewConflictError("entitlement already exists")
		}
		r.logger.Errorw("failed to create entitlement",
			"owner_id", ent.OwnerID(),
			"payment_ref", ent.PaymentRef(),
			"error", err)
		return fmt.Errorf("failed to create entitlement: %w", err)
	}

	if err := ent.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set entitlement ID: %w", err)
	}

	r.logger.Infow("entitlement created",
		"id", model.ID,
		"owner_id", model.OwnerID,
		"plan_id", model.PlanID,
		"status", model.Status)
	return nil
}

func (r *EntitlementRepositoryImpl) GetByID(ctx context.Context, id uint) (*entitlement.Entitlement, error) {
	var model models.EntitlementModel
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}
	return r.mapper.ToEntity(&model)
}

// Mutate locks the row, applies fn and writes back under a version check. Nothing is written
// when fn leaves the aggregate unchanged.
func (r *EntitlementRepositoryImpl) Mutate(ctx context.Context, id uint, fn entitlement.MutateFunc) (*entitlement.Entitlement, error) {
	var out *entitlement.Entitlement
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model models.EntitlementModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, id).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to lock entitlement: %w", err)
		}

		ent, err := r.mapper.ToEntity(&model)
		if err != nil {
			return err
		}
		if err := fn(ent); err != nil {
			return err
		}
		if ent.Version() == model.Version {
			out = ent
			return nil
		}

		updated := r.mapper.ToModel(ent)
		result := tx.Model(&models.EntitlementModel{}).
			Where("id = ? AND version = ?", id, model.Version).
			Updates(map[string]any{
				"package_id":           updated.PackageID,
				"status":               updated.Status,
				"start_time":           updated.StartTime,
				"end_time":             updated.EndTime,
				"payment_method":       updated.PaymentMethod,
				"payment_ref":          updated.PaymentRef,
				"grace_until":          updated.GraceUntil,
				"needs_reconciliation": updated.NeedsReconciliation,
				"metadata":             updated.Metadata,
				"version":              updated.Version,
				"updated_at":           updated.UpdatedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update entitlement: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return entitlement.ErrVersionConflict
		}
		out = ent
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		r.logger.Debugw("entitlement mutated", "id", id, "status", out.Status(), "version", out.Version())
	}
	return out, nil
}

func (r *EntitlementRepositoryImpl) list(ctx context.Context, query func(*gorm.DB) *gorm.DB) ([]*entitlement.Entitlement, error) {
	var list []*models.EntitlementModel
	if err := query(r.db.WithContext(ctx).Model(&models.EntitlementModel{})).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list entitlements: %w", err)
	}
	return r.mapper.ToEntities(list)
}

func (r *EntitlementRepositoryImpl) ListActive(ctx context.Context) ([]*entitlement.Entitlement, error) {
	return r.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ?", string(vo.StatusActive)).Order("id ASC")
	})
}

func (r *EntitlementRepositoryImpl) ListByOwner(ctx context.Context, ownerID int64) ([]*entitlement.Entitlement, error) {
	return r.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ?", ownerID).Order("id ASC")
	})
}

func (r *EntitlementRepositoryImpl) ListPendingReconciliation(ctx context.Context) ([]*entitlement.Entitlement, error) {
	return r.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("needs_reconciliation = ?", true).Order("id ASC")
	})
}

func (r *EntitlementRepositoryImpl) ListAdminView(ctx context.Context, page, pageSize int) ([]*entitlement.Entitlement, int64, error) {
	visible := make([]string, 0, len(vo.AdminVisible()))
	for _, s := range vo.AdminVisible() {
		visible = append(visible, string(s))
	}
	scope := func(db *gorm.DB) *gorm.DB {
		return db.Where("status IN ?", visible)
	}

	var total int64
	if err := scope(r.db.WithContext(ctx).Model(&models.EntitlementModel{})).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count entitlements: %w", err)
	}
	if page < 1 {
		page = 1
	}

	// NULL end times (pending) sort last under DESC on both MySQL and SQLite
	items, err := r.list(ctx, func(db *gorm.DB) *gorm.DB {
		return scope(db).
			Order("owner_id ASC").
			Order("end_time DESC").
			Order("id DESC").
			Offset((page - 1) * pageSize).
			Limit(pageSize)
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
