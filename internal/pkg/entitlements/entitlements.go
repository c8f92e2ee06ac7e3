package entitlements

import (
	"time"

	"github.com/pwr-labs/pwr-access/app/models"
)

// AccessStatus is the computed validity view consumers of the access query
// API receive. Internal failure reasons are never exposed here.
type AccessStatus struct {
	IsValid   bool       `json:"is_valid"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CurrentExpiry returns the effective expiry instant for an entitlement.
// Records written by older app versions may carry only activated_at plus a
// duration, so the function derives expiry from those when expires_at is
// missing. A zero return means "no access". Never panics on partial rows.
func CurrentExpiry(e *models.Entitlement) time.Time {
	if e == nil {
		return time.Time{}
	}
	if e.ExpiresAt != nil && !e.ExpiresAt.IsZero() {
		return *e.ExpiresAt
	}
	if e.ActivatedAt == nil || e.ActivatedAt.IsZero() || e.DurationDays <= 0 {
		return time.Time{}
	}
	return e.ActivatedAt.Add(time.Duration(e.DurationDays) * 24 * time.Hour)
}

// ComputeAccess derives the externally visible access status at the given
// instant. A revoked entitlement is never valid, even at the revocation
// instant itself.
func ComputeAccess(e *models.Entitlement, now time.Time) AccessStatus {
	expiry := CurrentExpiry(e)
	if expiry.IsZero() {
		return AccessStatus{IsValid: false}
	}
	if e.IsRevoked() {
		return AccessStatus{IsValid: false, ExpiresAt: &expiry}
	}
	return AccessStatus{
		IsValid:   !now.After(expiry),
		ExpiresAt: &expiry,
	}
}

// DurationDays returns the display duration in whole days between activation
// and expiry, rounded up.
func DurationDays(activatedAt, expiresAt time.Time) int {
	if expiresAt.Before(activatedAt) {
		return 0
	}
	d := expiresAt.Sub(activatedAt)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}
