package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

func signManifest(t *testing.T, manifest, secret string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestParseSignatureHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantTS  string
		wantSig string
		wantErr bool
	}{
		{
			name:    "standard header",
			header:  "ts=1700000000,v1=deadbeef01",
			wantTS:  "1700000000",
			wantSig: "deadbeef01",
		},
		{
			name:    "uppercase digest",
			header:  "ts=1700000000,v1=DEADBEEF01",
			wantTS:  "1700000000",
			wantSig: "deadbeef01",
		},
		{
			name:    "reordered parts",
			header:  "v1=abc123,ts=42",
			wantTS:  "42",
			wantSig: "abc123",
		},
		{name: "missing digest", header: "ts=1700000000", wantErr: true},
		{name: "missing timestamp", header: "v1=abc123", wantErr: true},
		{name: "empty header", header: "", wantErr: true},
	}

	for _, tt := range tests {
		sig, err := ParseSignatureHeader(tt.header)
		if tt.wantErr {
			if !errors.Is(err, ErrMissingSignature) {
				t.Fatalf("%s: expected ErrMissingSignature, got %v", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if sig.Timestamp != tt.wantTS || sig.Digest != tt.wantSig {
			t.Fatalf("%s: got ts=%q digest=%q, want ts=%q digest=%q",
				tt.name, sig.Timestamp, sig.Digest, tt.wantTS, tt.wantSig)
		}
	}
}

func TestBuildManifest(t *testing.T) {
	got := BuildManifest("12345", "req-abc", "1700000000")
	want := "id:12345;request-id:req-abc;ts:1700000000;"
	if got != want {
		t.Fatalf("BuildManifest = %q, want %q", got, want)
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	const (
		resourceID = "98765"
		requestID  = "req-1"
		ts         = "1700000000"
		secretTest = "secret-test"
		secretProd = "secret-prod"
	)
	manifest := BuildManifest(resourceID, requestID, ts)

	header := func(digest string) string {
		return "ts=" + ts + ",v1=" + digest
	}

	t.Run("valid against prod secret", func(t *testing.T) {
		h := header(signManifest(t, manifest, secretProd))
		if err := VerifyWebhookSignature(resourceID, requestID, h, secretTest, secretProd); err != nil {
			t.Fatalf("expected valid signature, got %v", err)
		}
	})

	t.Run("valid against test secret", func(t *testing.T) {
		h := header(signManifest(t, manifest, secretTest))
		if err := VerifyWebhookSignature(resourceID, requestID, h, secretTest, secretProd); err != nil {
			t.Fatalf("expected valid signature, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		h := header(signManifest(t, manifest, "some-other-secret"))
		err := VerifyWebhookSignature(resourceID, requestID, h, secretTest, secretProd)
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("tampered resource id", func(t *testing.T) {
		h := header(signManifest(t, manifest, secretProd))
		err := VerifyWebhookSignature("11111", requestID, h, secretTest, secretProd)
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("missing request id", func(t *testing.T) {
		h := header(signManifest(t, manifest, secretProd))
		err := VerifyWebhookSignature(resourceID, "", h, secretTest, secretProd)
		if !errors.Is(err, ErrMissingSignature) {
			t.Fatalf("expected ErrMissingSignature, got %v", err)
		}
	})

	t.Run("unparseable header", func(t *testing.T) {
		err := VerifyWebhookSignature(resourceID, requestID, "garbage", secretTest, secretProd)
		if !errors.Is(err, ErrMissingSignature) {
			t.Fatalf("expected ErrMissingSignature, got %v", err)
		}
	})

	t.Run("digest with wrong length", func(t *testing.T) {
		// Valid hex, but not 32 bytes of SHA-256 output.
		err := VerifyWebhookSignature(resourceID, requestID, header("deadbeef"), secretTest, secretProd)
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("empty secrets never match", func(t *testing.T) {
		h := header(signManifest(t, manifest, ""))
		err := VerifyWebhookSignature(resourceID, requestID, h, "", "")
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	})
}
