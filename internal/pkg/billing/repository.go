package billing

import (
	"context"
	"errors"

	"github.com/pwr-labs/pwr-access/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the transactional store operations the reconciliation
// engine needs: atomic read-modify-write over payment records and
// entitlements, plus the append-only audit log.
type Repository interface {
	// WithTransaction runs fn against a repository bound to a single
	// database transaction. The ForUpdate reads below are only meaningful
	// inside such a transaction.
	WithTransaction(ctx context.Context, fn func(tx Repository) error) error

	GetPaymentForUpdate(providerPaymentID string) (*models.PaymentRecord, error)
	GetEntitlementForUpdate(userID uint) (*models.Entitlement, error)

	// UpsertPaymentSnapshot merges provider snapshot fields into the
	// payment record, preserving idempotency markers already set.
	UpsertPaymentSnapshot(rec *models.PaymentRecord) error
	MarkPaymentApplied(rec *models.PaymentRecord) error
	MarkPaymentRevoked(providerPaymentID, status, statusDetail string) error

	SaveEntitlement(e *models.Entitlement) error
	GetEntitlement(userID uint) (*models.Entitlement, error)
	ListPaymentsByUser(userID uint, limit int) ([]models.PaymentRecord, error)

	CreateAudit(a *models.AccessAudit) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTransaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

// forUpdate adds a row lock on dialects that support it. SQLite (used in
// tests) serializes writers on the database lock instead.
func (r *gormRepository) forUpdate(tx *gorm.DB) *gorm.DB {
	if r.db.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *gormRepository) GetPaymentForUpdate(providerPaymentID string) (*models.PaymentRecord, error) {
	var rec models.PaymentRecord
	err := r.forUpdate(r.db).
		Where("provider_payment_id = ?", providerPaymentID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *gormRepository) GetEntitlementForUpdate(userID uint) (*models.Entitlement, error) {
	var e models.Entitlement
	err := r.forUpdate(r.db).
		Where("user_id = ?", userID).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormRepository) UpsertPaymentSnapshot(rec *models.PaymentRecord) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider_payment_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"kind",
			"status",
			"status_detail",
			"amount",
			"currency",
			"preference_id",
			"raw_snapshot_json",
			"date_approved",
			"date_created",
			"reprocessed_at",
			"reprocessed_by",
			"source",
			"updated_at",
		}),
	}).Create(rec).Error; err != nil {
		return err
	}

	return r.db.Where("provider_payment_id = ?", rec.ProviderPaymentID).
		First(rec).Error
}

func (r *gormRepository) MarkPaymentApplied(rec *models.PaymentRecord) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider_payment_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"status",
			"status_detail",
			"amount",
			"currency",
			"processed_at",
			"entitlement_applied",
			"grant_expires_at",
			"updated_at",
		}),
	}).Create(rec).Error
}

func (r *gormRepository) MarkPaymentRevoked(providerPaymentID, status, statusDetail string) error {
	rec := &models.PaymentRecord{
		ProviderPaymentID: providerPaymentID,
		Status:            status,
		StatusDetail:      statusDetail,
		Revoked:           true,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider_payment_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"status_detail",
			"revoked",
			"updated_at",
		}),
	}).Create(rec).Error
}

func (r *gormRepository) SaveEntitlement(e *models.Entitlement) error {
	return r.db.Save(e).Error
}

func (r *gormRepository) GetEntitlement(userID uint) (*models.Entitlement, error) {
	var e models.Entitlement
	err := r.db.Where("user_id = ?", userID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormRepository) ListPaymentsByUser(userID uint, limit int) ([]models.PaymentRecord, error) {
	var recs []models.PaymentRecord
	err := r.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (r *gormRepository) CreateAudit(a *models.AccessAudit) error {
	return r.db.Create(a).Error
}
