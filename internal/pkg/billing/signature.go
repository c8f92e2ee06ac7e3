package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var (
	signatureTSPattern     = regexp.MustCompile(`ts=([0-9]+)`)
	signatureDigestPattern = regexp.MustCompile(`(?i)v1=([a-f0-9]+)`)
)

// SignatureHeader is the parsed form of the provider's x-signature header,
// which arrives as `ts=<unix-seconds>,v1=<hex-hmac>`.
type SignatureHeader struct {
	Timestamp string
	Digest    string
}

// ParseSignatureHeader extracts timestamp and digest from the signature
// header. Returns ErrMissingSignature if either part cannot be found.
func ParseSignatureHeader(header string) (SignatureHeader, error) {
	ts := signatureTSPattern.FindStringSubmatch(header)
	v1 := signatureDigestPattern.FindStringSubmatch(header)
	if ts == nil || v1 == nil {
		return SignatureHeader{}, ErrMissingSignature
	}
	return SignatureHeader{
		Timestamp: ts[1],
		Digest:    strings.ToLower(v1[1]),
	}, nil
}

// BuildManifest constructs the canonical string the provider signs.
func BuildManifest(resourceID, requestID, timestamp string) string {
	return fmt.Sprintf("id:%s;request-id:%s;ts:%s;", resourceID, requestID, timestamp)
}

// VerifyWebhookSignature validates a webhook request against both configured
// secrets. Sandbox and live traffic can land on the same endpoint, so a
// digest matching either secret is accepted. Returns ErrMissingSignature
// when required parts are absent or unparseable, ErrInvalidSignature when
// no secret produces the received digest. No side effects.
func VerifyWebhookSignature(resourceID, requestID, signatureHeader, secretTest, secretProd string) error {
	if strings.TrimSpace(requestID) == "" {
		return ErrMissingSignature
	}
	sig, err := ParseSignatureHeader(signatureHeader)
	if err != nil {
		return err
	}
	received, err := hex.DecodeString(sig.Digest)
	if err != nil {
		return ErrMissingSignature
	}

	manifest := BuildManifest(resourceID, requestID, sig.Timestamp)
	if verifySignatureHMAC(manifest, received, secretProd) || verifySignatureHMAC(manifest, received, secretTest) {
		return nil
	}
	return ErrInvalidSignature
}

func verifySignatureHMAC(manifest string, received []byte, secret string) bool {
	if secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hmac.Equal(mac.Sum(nil), received)
}
