package models

import "time"

// Audit actions recorded on manual or admin-driven entitlement changes.
const (
	AuditActionGrant            = "grant"
	AuditActionRevoke           = "revoke"
	AuditActionReprocessPayment = "reprocess_payment"

	// AuditActorSystem marks webhook-driven changes with no human operator.
	AuditActorSystem uint = 0
)

// AccessAudit is an append-only log of entitlement changes. Rows are
// immutable once written; before/after snapshots are stored as JSON.
type AccessAudit struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	ActorUserID         uint      `gorm:"not null;index" json:"actor_user_id"`
	TargetUserID        uint      `gorm:"not null;index" json:"target_user_id"`
	Action              string    `gorm:"type:varchar(32);not null;index" json:"action"`
	Days                int       `gorm:"not null;default:0" json:"days"`
	Reason              string    `gorm:"type:varchar(500);not null;default:''" json:"reason"`
	PaymentID           string    `gorm:"type:varchar(191);not null;default:''" json:"payment_id"`
	PaymentStatus       string    `gorm:"type:varchar(32);not null;default:''" json:"payment_status"`
	ActionTaken         string    `gorm:"type:varchar(16);not null;default:''" json:"action_taken"`
	PrevEntitlementJSON string    `gorm:"type:longtext" json:"prev_entitlement_json"`
	NextEntitlementJSON string    `gorm:"type:longtext" json:"next_entitlement_json"`
	CreatedAt           time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
