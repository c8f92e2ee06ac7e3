package entitlements

import (
	"testing"
	"time"

	"github.com/pwr-labs/pwr-access/app/models"
)

func TestCurrentExpiryPrefersExpiresAt(t *testing.T) {
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	activated := expires.AddDate(-1, 0, 0)
	e := &models.Entitlement{
		ExpiresAt:    &expires,
		ActivatedAt:  &activated,
		DurationDays: 30, // stale legacy value, must be ignored
	}

	if got := CurrentExpiry(e); !got.Equal(expires) {
		t.Fatalf("CurrentExpiry = %v, want %v", got, expires)
	}
}

func TestCurrentExpiryDerivesFromDuration(t *testing.T) {
	activated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &models.Entitlement{
		ActivatedAt:  &activated,
		DurationDays: 10,
	}

	want := activated.Add(10 * 24 * time.Hour)
	if got := CurrentExpiry(e); !got.Equal(want) {
		t.Fatalf("CurrentExpiry = %v, want %v", got, want)
	}
}

func TestCurrentExpiryPartialRecords(t *testing.T) {
	activated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		e    *models.Entitlement
	}{
		{name: "nil entitlement", e: nil},
		{name: "empty entitlement", e: &models.Entitlement{}},
		{name: "activated without duration", e: &models.Entitlement{ActivatedAt: &activated}},
		{name: "duration without activated", e: &models.Entitlement{DurationDays: 365}},
		{name: "negative duration", e: &models.Entitlement{ActivatedAt: &activated, DurationDays: -1}},
	}

	for _, tt := range tests {
		if got := CurrentExpiry(tt.e); !got.IsZero() {
			t.Fatalf("%s: CurrentExpiry = %v, want zero", tt.name, got)
		}
	}
}

func TestComputeAccess(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(48 * time.Hour)
	past := now.Add(-48 * time.Hour)

	if st := ComputeAccess(&models.Entitlement{ExpiresAt: &future}, now); !st.IsValid {
		t.Fatalf("expected future expiry to be valid")
	}
	if st := ComputeAccess(&models.Entitlement{ExpiresAt: &past}, now); st.IsValid {
		t.Fatalf("expected past expiry to be invalid")
	}
	if st := ComputeAccess(nil, now); st.IsValid || st.ExpiresAt != nil {
		t.Fatalf("expected missing entitlement to report no access")
	}
	// Boundary: now == expiresAt still counts as valid.
	if st := ComputeAccess(&models.Entitlement{ExpiresAt: &now}, now); !st.IsValid {
		t.Fatalf("expected expiry boundary to be valid")
	}
	// Revoked entitlements are invalid regardless of expiry.
	revoked := &models.Entitlement{
		Status:    models.EntitlementStatusRevoked,
		ExpiresAt: &future,
	}
	if st := ComputeAccess(revoked, now); st.IsValid {
		t.Fatalf("expected revoked entitlement to be invalid")
	}
}

func TestDurationDaysRoundsUp(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if got := DurationDays(start, start.Add(365*24*time.Hour)); got != 365 {
		t.Fatalf("DurationDays = %d, want 365", got)
	}
	if got := DurationDays(start, start.Add(365*24*time.Hour+time.Minute)); got != 366 {
		t.Fatalf("DurationDays = %d, want 366", got)
	}
	if got := DurationDays(start, start.Add(-time.Hour)); got != 0 {
		t.Fatalf("DurationDays = %d, want 0 for inverted range", got)
	}
}
