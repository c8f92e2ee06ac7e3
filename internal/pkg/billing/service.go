package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pwr-labs/pwr-access/app/models"
	"github.com/pwr-labs/pwr-access/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// Service applies normalized payment snapshots to the entitlement store
// exactly once, and backs the admin control surface.
type Service struct {
	cfg    *Config
	repo   Repository
	client *MercadoPagoClient

	now func() time.Time
}

// NewService creates a billing service from an injected repository and
// provider client.
func NewService(cfg *Config, repo Repository, client *MercadoPagoClient) *Service {
	return &Service{cfg: cfg, repo: repo, client: client, now: time.Now}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(cfg *Config, db *gorm.DB) *Service {
	return NewService(cfg, NewRepository(db), NewMercadoPagoClient(cfg))
}

// FetchPayment retrieves and normalizes a payment from the provider and
// upserts its snapshot into the store before returning it. The snapshot is
// written regardless of whether reconciliation later applies it, so an
// audit trail exists even for payments that end up ignored.
func (s *Service) FetchPayment(ctx context.Context, paymentID string) (*NormalizedPayment, error) {
	p, err := s.client.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.RecordPaymentSnapshot(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ResolveEventPaymentID maps a webhook event to the target payment id. For
// merchant_order topics the order is fetched and its payment selected; all
// other topics already carry the payment id.
func (s *Service) ResolveEventPaymentID(ctx context.Context, resourceID, topic string) (string, error) {
	if strings.ToLower(strings.TrimSpace(topic)) == "merchant_order" {
		return s.client.ResolveMerchantOrderPayment(ctx, resourceID)
	}
	return strings.TrimSpace(resourceID), nil
}

// RecordPaymentSnapshot merges the normalized snapshot into the payment
// record without touching idempotency markers.
func (s *Service) RecordPaymentSnapshot(ctx context.Context, p *NormalizedPayment) error {
	_ = ctx
	userID, _ := resolvePaymentUser(p)
	return s.repo.UpsertPaymentSnapshot(snapshotRecord(p, userID))
}

// ReconcilePayment converts a payment snapshot into an entitlement change,
// exactly once per payment id. Approved payments extend access from
// max(approval time, current expiry); revocation statuses retract access
// only when the payment still backs the current entitlement; everything
// else is recorded and ignored.
func (s *Service) ReconcilePayment(ctx context.Context, p *NormalizedPayment) (*ReconcileResult, error) {
	status := strings.ToLower(strings.TrimSpace(p.Status))
	res := &ReconcileResult{ActionTaken: ActionIgnored, Status: status}

	userID, mismatch := resolvePaymentUser(p)
	if mismatch {
		res.IgnoreReason = IgnoreReasonSubscriberMismatch
		return res, nil
	}
	if userID == 0 {
		res.IgnoreReason = IgnoreReasonSubscriberMissing
		return res, nil
	}
	res.UserID = userID

	switch {
	case status == "approved":
		return s.applyApproved(ctx, p, userID, res)
	case isRevocation(status, p.StatusDetail):
		return s.applyRevocation(ctx, p, userID, res)
	default:
		res.IgnoreReason = IgnoreReasonStatus
		return res, nil
	}
}

func (s *Service) applyApproved(ctx context.Context, p *NormalizedPayment, userID uint, res *ReconcileResult) (*ReconcileResult, error) {
	if s.cfg.ExpectedAmount > 0 {
		amountMatches := math.Abs(p.Amount-s.cfg.ExpectedAmount) < 0.01
		currencyMatches := strings.ToUpper(p.Currency) == s.cfg.ExpectedCurrency
		if !amountMatches || !currencyMatches {
			res.IgnoreReason = IgnoreReasonPriceMismatch
			return res, nil
		}
	}

	err := s.repo.WithTransaction(ctx, func(tx Repository) error {
		rec, err := tx.GetPaymentForUpdate(p.PaymentID)
		if err != nil {
			return err
		}
		if rec.AlreadyApplied() {
			res.ActionTaken = ActionNoop
			return nil
		}

		ent, err := tx.GetEntitlementForUpdate(userID)
		if err != nil {
			return err
		}
		res.PrevEntitlement = cloneEntitlement(ent)

		now := s.now()
		base := p.DateApproved
		if base.IsZero() {
			base = now
		}
		if current := entitlements.CurrentExpiry(ent); current.After(base) {
			base = current
		}
		newExpiry := base.Add(time.Duration(s.cfg.GrantDays) * 24 * time.Hour)

		if ent == nil {
			ent = &models.Entitlement{UserID: userID}
		}
		activatedAt := now
		if ent.ActivatedAt != nil && !ent.ActivatedAt.IsZero() {
			activatedAt = *ent.ActivatedAt
		}
		grantedAt := now
		if ent.GrantedAt != nil && !ent.GrantedAt.IsZero() {
			grantedAt = *ent.GrantedAt
		}

		ent.Status = models.EntitlementStatusActive
		ent.Plan = "annual"
		ent.Provider = models.AccessProviderMercadoPago
		ent.Product = "pwr_annual"
		ent.LastPaymentID = p.PaymentID
		ent.ExpiresAt = &newExpiry
		ent.ActivatedAt = &activatedAt
		ent.GrantedAt = &grantedAt
		ent.RevokedAt = nil
		ent.DurationDays = entitlements.DurationDays(activatedAt, newExpiry)

		if err := tx.SaveEntitlement(ent); err != nil {
			return err
		}

		applied := snapshotRecord(p, userID)
		applied.ProcessedAt = &now
		applied.EntitlementApplied = true
		applied.GrantExpiresAt = &newExpiry
		if err := tx.MarkPaymentApplied(applied); err != nil {
			return err
		}

		res.ActionTaken = ActionGranted
		res.NewExpiresAt = &newExpiry
		res.NextEntitlement = cloneEntitlement(ent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) applyRevocation(ctx context.Context, p *NormalizedPayment, userID uint, res *ReconcileResult) (*ReconcileResult, error) {
	err := s.repo.WithTransaction(ctx, func(tx Repository) error {
		ent, err := tx.GetEntitlementForUpdate(userID)
		if err != nil {
			return err
		}
		res.PrevEntitlement = cloneEntitlement(ent)

		if err := tx.MarkPaymentRevoked(p.PaymentID, p.Status, p.StatusDetail); err != nil {
			return err
		}

		// A revoked payment retracts access only while it still backs the
		// entitlement; superseded payments must not undo newer grants.
		if ent == nil || ent.LastPaymentID != p.PaymentID {
			res.IgnoreReason = IgnoreReasonStaleRevoke
			return nil
		}

		now := s.now()
		ent.Status = models.EntitlementStatusRevoked
		ent.ExpiresAt = &now
		ent.RevokedAt = &now
		if err := tx.SaveEntitlement(ent); err != nil {
			return err
		}

		res.ActionTaken = ActionRevoked
		res.NextEntitlement = cloneEntitlement(ent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GrantAccess extends a user's entitlement by the given number of days from
// max(current expiry, now), and records an audit row.
func (s *Service) GrantAccess(ctx context.Context, actorID, targetUserID uint, days int, reason string) (*ReconcileResult, error) {
	if targetUserID == 0 {
		return nil, errors.New("target user id is required")
	}
	if days <= 0 || days > maxGrantDays {
		return nil, fmt.Errorf("invalid grant days: %d", days)
	}

	res := &ReconcileResult{ActionTaken: ActionGranted, UserID: targetUserID}
	err := s.repo.WithTransaction(ctx, func(tx Repository) error {
		ent, err := tx.GetEntitlementForUpdate(targetUserID)
		if err != nil {
			return err
		}
		res.PrevEntitlement = cloneEntitlement(ent)

		now := s.now()
		base := now
		if current := entitlements.CurrentExpiry(ent); current.After(base) {
			base = current
		}
		newExpiry := base.Add(time.Duration(days) * 24 * time.Hour)

		if ent == nil {
			ent = &models.Entitlement{UserID: targetUserID}
		}
		activatedAt := base
		if ent.ActivatedAt != nil && !ent.ActivatedAt.IsZero() {
			activatedAt = *ent.ActivatedAt
		}

		ent.Status = models.EntitlementStatusActive
		ent.Provider = models.AccessProviderManual
		ent.LastPaymentID = fmt.Sprintf("manual:%d", now.UnixMilli())
		ent.ExpiresAt = &newExpiry
		ent.ActivatedAt = &activatedAt
		ent.RevokedAt = nil
		ent.DurationDays = entitlements.DurationDays(activatedAt, newExpiry)

		if err := tx.SaveEntitlement(ent); err != nil {
			return err
		}

		res.NewExpiresAt = &newExpiry
		res.NextEntitlement = cloneEntitlement(ent)

		return tx.CreateAudit(&models.AccessAudit{
			ActorUserID:         actorID,
			TargetUserID:        targetUserID,
			Action:              models.AuditActionGrant,
			Days:                days,
			Reason:              strings.TrimSpace(reason),
			PrevEntitlementJSON: marshalEntitlement(res.PrevEntitlement),
			NextEntitlementJSON: marshalEntitlement(res.NextEntitlement),
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RevokeAccess unconditionally revokes a user's entitlement and records an
// audit row.
func (s *Service) RevokeAccess(ctx context.Context, actorID, targetUserID uint, reason string) (*ReconcileResult, error) {
	if targetUserID == 0 {
		return nil, errors.New("target user id is required")
	}

	res := &ReconcileResult{ActionTaken: ActionRevoked, UserID: targetUserID}
	err := s.repo.WithTransaction(ctx, func(tx Repository) error {
		ent, err := tx.GetEntitlementForUpdate(targetUserID)
		if err != nil {
			return err
		}
		res.PrevEntitlement = cloneEntitlement(ent)

		now := s.now()
		if ent == nil {
			ent = &models.Entitlement{UserID: targetUserID}
		}
		ent.Status = models.EntitlementStatusRevoked
		ent.Provider = models.AccessProviderManual
		ent.ExpiresAt = &now
		ent.RevokedAt = &now

		if err := tx.SaveEntitlement(ent); err != nil {
			return err
		}
		res.NextEntitlement = cloneEntitlement(ent)

		return tx.CreateAudit(&models.AccessAudit{
			ActorUserID:         actorID,
			TargetUserID:        targetUserID,
			Action:              models.AuditActionRevoke,
			Reason:              strings.TrimSpace(reason),
			PrevEntitlementJSON: marshalEntitlement(res.PrevEntitlement),
			NextEntitlementJSON: marshalEntitlement(res.NextEntitlement),
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReprocessPayment re-fetches a payment from the provider and pushes it
// through the same reconciliation transaction as the webhook path. A
// payment already applied stays a no-op unless its provider status has
// genuinely changed. Provider failures propagate to the caller.
func (s *Service) ReprocessPayment(ctx context.Context, actorID uint, paymentID string) (*ReconcileResult, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, errors.New("payment id is required")
	}

	p, err := s.client.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	userID, _ := resolvePaymentUser(p)
	now := s.now()
	rec := snapshotRecord(p, userID)
	rec.ReprocessedAt = &now
	rec.ReprocessedBy = actorID
	rec.Source = "admin"
	if err := s.repo.UpsertPaymentSnapshot(rec); err != nil {
		return nil, err
	}

	res, err := s.ReconcilePayment(ctx, p)
	if err != nil {
		return nil, err
	}

	if res.UserID != 0 {
		if err := s.repo.CreateAudit(&models.AccessAudit{
			ActorUserID:         actorID,
			TargetUserID:        res.UserID,
			Action:              models.AuditActionReprocessPayment,
			PaymentID:           paymentID,
			PaymentStatus:       res.Status,
			ActionTaken:         res.ActionTaken,
			PrevEntitlementJSON: marshalEntitlement(res.PrevEntitlement),
			NextEntitlementJSON: marshalEntitlement(res.NextEntitlement),
		}); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// GetUserAccess returns the entitlement, recent payment records and the
// computed access status for a user.
func (s *Service) GetUserAccess(ctx context.Context, userID uint) (*models.Entitlement, []models.PaymentRecord, entitlements.AccessStatus, error) {
	_ = ctx
	ent, err := s.repo.GetEntitlement(userID)
	if err != nil {
		return nil, nil, entitlements.AccessStatus{}, err
	}
	payments, err := s.repo.ListPaymentsByUser(userID, 20)
	if err != nil {
		return nil, nil, entitlements.AccessStatus{}, err
	}
	return ent, payments, entitlements.ComputeAccess(ent, s.now()), nil
}

// GetAccessStatus returns only the computed access status for a user.
func (s *Service) GetAccessStatus(ctx context.Context, userID uint) (entitlements.AccessStatus, error) {
	_ = ctx
	ent, err := s.repo.GetEntitlement(userID)
	if err != nil {
		return entitlements.AccessStatus{}, err
	}
	return entitlements.ComputeAccess(ent, s.now()), nil
}

// CreateCheckout creates a provider checkout preference for the annual plan
// and records the intent.
func (s *Service) CreateCheckout(ctx context.Context, userID uint, email string) (*Preference, error) {
	if userID == 0 {
		return nil, errors.New("user id is required")
	}

	pref, err := s.client.CreatePreference(ctx, s.cfg, PreferenceRequest{UserID: userID, Email: email})
	if err != nil {
		return nil, err
	}

	intent := &models.PaymentRecord{
		ProviderPaymentID: pref.ID,
		UserID:            userID,
		Kind:              models.PaymentKindIntent,
		Status:            "preference_created",
		Amount:            s.cfg.ExpectedAmount,
		Currency:          s.cfg.ExpectedCurrency,
		PreferenceID:      pref.ID,
	}
	if err := s.repo.UpsertPaymentSnapshot(intent); err != nil {
		return nil, err
	}
	return pref, nil
}

// resolvePaymentUser resolves the two independent subscriber hints on a
// payment. Disagreeing hints are a forged or misrouted payload; nothing is
// credited in that case.
func resolvePaymentUser(p *NormalizedPayment) (uint, bool) {
	ext := strings.TrimSpace(p.ExternalReference)
	meta := strings.TrimSpace(p.MetadataUserID)

	if ext != "" && meta != "" && ext != meta {
		return 0, true
	}
	hint := ext
	if hint == "" {
		hint = meta
	}
	if hint == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(hint, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), false
}

// isRevocation matches provider revocation statuses. The status_detail
// substring checks mirror the provider's current vocabulary and are known
// to be fragile; see DESIGN.md.
func isRevocation(status, statusDetail string) bool {
	switch status {
	case "cancelled", "refunded", "charged_back":
		return true
	}
	detail := strings.ToLower(statusDetail)
	return strings.Contains(detail, "charged_back") || strings.Contains(detail, "reimbursed")
}

func snapshotRecord(p *NormalizedPayment, userID uint) *models.PaymentRecord {
	rec := &models.PaymentRecord{
		ProviderPaymentID: p.PaymentID,
		UserID:            userID,
		Kind:              models.PaymentKindPayment,
		Status:            strings.ToLower(strings.TrimSpace(p.Status)),
		StatusDetail:      strings.ToLower(strings.TrimSpace(p.StatusDetail)),
		Amount:            p.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(p.Currency)),
		PreferenceID:      p.PreferenceID,
		RawSnapshotJSON:   p.RawJSON,
	}
	if !p.DateApproved.IsZero() {
		t := p.DateApproved
		rec.DateApproved = &t
	}
	if !p.DateCreated.IsZero() {
		t := p.DateCreated
		rec.DateCreated = &t
	}
	return rec
}

func cloneEntitlement(e *models.Entitlement) *models.Entitlement {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

func marshalEntitlement(e *models.Entitlement) string {
	if e == nil {
		return ""
	}
	b, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(b)
}
