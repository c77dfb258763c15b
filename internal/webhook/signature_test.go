package webhook

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signedHeader(v *Verifier, dataID, requestID, ts string) http.Header {
	h := http.Header{}
	h.Set("x-request-id", requestID)
	h.Set("x-signature", v.Sign(dataID, requestID, ts))
	return h
}

func TestManifest(t *testing.T) {
	assert.Equal(t, "id:123;request-id:req-1;ts:1700000000;", Manifest("123", "req-1", "1700000000"))
	assert.Equal(t, "id:abc9;request-id:r;ts:1;", Manifest("ABC9", "r", "1"))
}

func TestVerifier_Valid(t *testing.T) {
	v := NewVerifier("s3cret")

	err := v.Verify(signedHeader(v, "123", "req-1", "1700000000"), "123")

	assert.NoError(t, err)
}

func TestVerifier_KnownDigest(t *testing.T) {
	v := NewVerifier("key")
	h := http.Header{}
	h.Set("x-request-id", "r")
	// HMAC-SHA256("key", "id:1;request-id:r;ts:2;")
	h.Set("x-signature", "ts=2,v1=4b0c2842dc909ff07c5749a1b941fdcf6827d22bbc982dd009d08737f32807eb")

	assert.NoError(t, v.Verify(h, "1"))
	assert.Equal(t, h.Get("x-signature"), v.Sign("1", "r", "2"))
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("s3cret")
	good := v.Sign("123", "req-1", "1700000000")

	tests := []struct {
		name      string
		signature string
		requestID string
		dataID    string
	}{
		{"tampered v1", "ts=1700000000,v1=" + "00" + good[len("ts=1700000000,v1=")+2:], "req-1", "123"},
		{"other payment id", good, "req-1", "124"},
		{"other request id", good, "req-2", "123"},
		{"replayed with new ts", "ts=1700000001," + good[len("ts=1700000000,"):], "req-1", "123"},
		{"missing signature", "", "req-1", "123"},
		{"missing request id", good, "", "123"},
		{"no v1", "ts=1700000000", "req-1", "123"},
		{"no ts", "v1=abcdef", "req-1", "123"},
		{"garbage", "nonsense", "req-1", "123"},
		{"v1 not hex", "ts=1,v1=zz", "req-1", "123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.signature != "" {
				h.Set("x-signature", tt.signature)
			}
			if tt.requestID != "" {
				h.Set("x-request-id", tt.requestID)
			}

			assert.ErrorIs(t, v.Verify(h, tt.dataID), ErrInvalidSignature)
		})
	}
}

func TestVerifier_HeaderWithSpaces(t *testing.T) {
	v := NewVerifier("s3cret")
	sig := v.Sign("9", "req", "5")
	h := http.Header{}
	h.Set("x-request-id", "req")
	h.Set("x-signature", " ts=5 , v1="+sig[len("ts=5,v1="):])

	assert.NoError(t, v.Verify(h, "9"))
}

func TestVerifier_DisabledWithoutSecret(t *testing.T) {
	v := NewVerifier("")

	assert.False(t, v.Enabled())
	assert.NoError(t, v.Verify(http.Header{}, "123"))
}
