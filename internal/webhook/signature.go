package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	HeaderSignature = "X-Signature"
	HeaderRequestID = "X-Request-Id"
)

var ErrInvalidSignature = errors.New("invalid signature")

// Verifier checks the x-signature header against an HMAC-SHA256 of the
// manifest "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Enabled is false when no secret is configured. Verify then accepts everything.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify fails closed: with a secret configured, missing or malformed headers
// are rejected like a wrong digest.
func (v *Verifier) Verify(header http.Header, dataID string) error {
	if !v.Enabled() {
		return nil
	}

	requestID := header.Get(HeaderRequestID)
	if requestID == "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidSignature, HeaderRequestID)
	}

	ts, v1, err := parseSignatureHeader(header.Get(HeaderSignature))
	if err != nil {
		return err
	}

	provided, err := hex.DecodeString(v1)
	if err != nil {
		return fmt.Errorf("%w: v1 is not hex", ErrInvalidSignature)
	}

	if !hmac.Equal(provided, v.digest(dataID, requestID, ts)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the header value a correct sender would attach.
func (v *Verifier) Sign(dataID, requestID, ts string) string {
	return "ts=" + ts + ",v1=" + hex.EncodeToString(v.digest(dataID, requestID, ts))
}

func (v *Verifier) digest(dataID, requestID, ts string) []byte {
	manifest := Manifest(dataID, requestID, ts)
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(manifest))
	return mac.Sum(nil)
}

// Manifest builds the signed template. Alphanumeric ids are signed lower-cased.
func Manifest(dataID, requestID, ts string) string {
	return "id:" + strings.ToLower(dataID) + ";request-id:" + requestID + ";ts:" + ts + ";"
}

func parseSignatureHeader(value string) (ts, v1 string, err error) {
	if value == "" {
		return "", "", fmt.Errorf("%w: missing %s", ErrInvalidSignature, HeaderSignature)
	}

	for _, part := range strings.Split(value, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(val)
		case "v1":
			v1 = strings.TrimSpace(val)
		}
	}

	if ts == "" || v1 == "" {
		return "", "", fmt.Errorf("%w: %s must carry ts and v1", ErrInvalidSignature, HeaderSignature)
	}
	return ts, v1, nil
}
