package models

import "time"

// Entitlement statuses and provenance constants used across access models.
const (
	EntitlementStatusActive  = "active"
	EntitlementStatusRevoked = "revoked"

	AccessProviderMercadoPago = "mercadopago"
	AccessProviderManual      = "manual"
)

// Entitlement is the authoritative record of whether a user currently has
// paid access and until when. One row per user; never hard-deleted.
type Entitlement struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"not null;uniqueIndex:ux_entitlements_user" json:"user_id"`
	Status        string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	Plan          string     `gorm:"type:varchar(50);not null;default:'annual'" json:"plan"`
	Provider      string     `gorm:"type:varchar(20);not null;default:'mercadopago'" json:"provider"`
	Product       string     `gorm:"type:varchar(50);not null;default:'pwr_annual'" json:"product"`
	LastPaymentID string     `gorm:"type:varchar(191);not null;default:'';index" json:"last_payment_id"`
	ExpiresAt     *time.Time `gorm:"type:timestamp;default:null;index" json:"expires_at,omitempty"`
	ActivatedAt   *time.Time `gorm:"type:timestamp;default:null" json:"activated_at,omitempty"`
	GrantedAt     *time.Time `gorm:"type:timestamp;default:null" json:"granted_at,omitempty"`
	RevokedAt     *time.Time `gorm:"type:timestamp;default:null" json:"revoked_at,omitempty"`
	DurationDays  int        `gorm:"not null;default:0" json:"duration_days"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsRevoked reports whether the entitlement has been explicitly revoked.
func (e *Entitlement) IsRevoked() bool {
	return e != nil && e.Status == EntitlementStatusRevoked
}
