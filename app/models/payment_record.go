package models

import "time"

// Payment record kinds. Intents are created when a checkout preference is
// issued; payments are created on the first webhook or fetch for that id.
const (
	PaymentKindIntent  = "intent"
	PaymentKindPayment = "payment"
)

// PaymentRecord mirrors a provider payment (or checkout intent) and carries
// the idempotency markers for exactly-once entitlement application.
// ProviderPaymentID is the record key; rows are merged, never overwritten.
type PaymentRecord struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	ProviderPaymentID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_payment_records_provider_id" json:"provider_payment_id"`
	UserID            uint       `gorm:"index" json:"user_id"`
	Kind              string     `gorm:"type:varchar(16);not null;default:'payment'" json:"kind"`
	Status            string     `gorm:"type:varchar(32);not null;default:'';index" json:"status"`
	StatusDetail      string     `gorm:"type:varchar(100);not null;default:''" json:"status_detail"`
	Amount            float64    `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`
	Currency          string     `gorm:"type:varchar(8);not null;default:''" json:"currency"`
	PreferenceID      string     `gorm:"type:varchar(191);not null;default:''" json:"preference_id"`
	RawSnapshotJSON   string     `gorm:"type:longtext" json:"raw_snapshot_json"`
	DateApproved      *time.Time `gorm:"type:timestamp;default:null" json:"date_approved,omitempty"`
	DateCreated       *time.Time `gorm:"type:timestamp;default:null" json:"date_created,omitempty"`
	ProcessedAt       *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	EntitlementApplied bool      `gorm:"default:false" json:"entitlement_applied"`
	Revoked           bool       `gorm:"default:false" json:"revoked"`
	GrantExpiresAt    *time.Time `gorm:"type:timestamp;default:null" json:"grant_expires_at,omitempty"`
	ReprocessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"reprocessed_at,omitempty"`
	ReprocessedBy     uint       `gorm:"default:0" json:"reprocessed_by"`
	Source            string     `gorm:"type:varchar(16);not null;default:''" json:"source"`
	CreatedAt         time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime;index" json:"updated_at"`
}

// AlreadyApplied reports whether this payment has already mutated an
// entitlement. Once true, re-applying the same payment id must be a no-op.
func (p *PaymentRecord) AlreadyApplied() bool {
	return p != nil && (p.ProcessedAt != nil || p.EntitlementApplied)
}
