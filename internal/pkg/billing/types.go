package billing

import (
	"time"

	"github.com/pwr-labs/pwr-access/app/models"
)

// Reconcile outcomes. Exactly one is reported per applied payment snapshot.
const (
	ActionGranted = "granted"
	ActionRevoked = "revoked"
	ActionNoop    = "noop"
	ActionIgnored = "ignored"
)

// Ignore reasons attached to ActionIgnored results. These are deliberate
// tagged outcomes rather than errors: malformed or adversarial provider
// payloads are expected input on the webhook path.
const (
	IgnoreReasonSubscriberMissing  = "subscriber_missing"
	IgnoreReasonSubscriberMismatch = "subscriber_mismatch"
	IgnoreReasonPriceMismatch      = "price_mismatch"
	IgnoreReasonStatus             = "status_not_actionable"
	IgnoreReasonStaleRevoke        = "stale_revoke"
)

// NormalizedPayment is the provider-agnostic payment snapshot produced by
// the fetcher: status/detail lower-cased, currency upper-cased, dates parsed
// tolerantly (zero when absent or unparseable).
type NormalizedPayment struct {
	PaymentID         string
	Status            string
	StatusDetail      string
	Amount            float64
	Currency          string
	ExternalReference string
	MetadataUserID    string
	PreferenceID      string
	DateApproved      time.Time
	DateCreated       time.Time
	RawJSON           string
}

// ReconcileResult describes what a reconciliation did, for audit purposes.
type ReconcileResult struct {
	ActionTaken     string
	IgnoreReason    string
	UserID          uint
	Status          string
	NewExpiresAt    *time.Time
	PrevEntitlement *models.Entitlement
	NextEntitlement *models.Entitlement
}

// PreferenceRequest is the input for checkout preference creation.
type PreferenceRequest struct {
	UserID uint
	Email  string
}

// Preference is the provider's checkout preference handle.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}
