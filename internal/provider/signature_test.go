package provider

import (
	"errors"
	"strings"
	"testing"

	"provider-sync/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestVerifyValidSignature(t *testing.T) {
	v := NewSignatureVerifier(map[models.Provider]string{models.ProviderUberEats: "s3cret"}, false)
	body := []byte(`{"store_id":"S1","order_id":"O1"}`)

	assert.NoError(t, v.Verify(models.ProviderUberEats, body, Sign("s3cret", body)))
	assert.NoError(t, v.Verify(models.ProviderUberEats, body, strings.ToUpper(Sign("s3cret", body))))
	assert.NoError(t, v.Verify(models.ProviderUberEats, body, "sha256="+Sign("s3cret", body)))
}

func TestVerifyRejects(t *testing.T) {
	v := NewSignatureVerifier(map[models.Provider]string{models.ProviderDoorDash: "s3cret"}, false)
	body := []byte(`{"merchant_id":"M1","id":"D1"}`)
	sig := Sign("s3cret", body)

	tests := []struct {
		name   string
		body   []byte
		header string
		reason string
	}{
		{"missing header", body, "", "missing signature header"},
		{"not hex", body, "zz-not-hex", "signature is not hex encoded"},
		{"tampered body", []byte(`{"merchant_id":"M1","id":"D2"}`), sig, "signature mismatch"},
		{"wrong secret", body, Sign("other", body), "signature mismatch"},
		{"reserialized body", []byte(`{"id":"D1","merchant_id":"M1"}`), sig, "signature mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(models.ProviderDoorDash, tt.body, tt.header)
			var sigErr *models.SignatureVerificationError
			if assert.True(t, errors.As(err, &sigErr)) {
				assert.Equal(t, tt.reason, sigErr.Reason)
				assert.Equal(t, models.ProviderDoorDash, sigErr.Provider)
			}
		})
	}
}

func TestVerifyFailsClosedWithoutSecret(t *testing.T) {
	v := NewSignatureVerifier(map[models.Provider]string{}, false)
	body := []byte(`{}`)

	err := v.Verify(models.ProviderUberEats, body, Sign("anything", body))
	var sigErr *models.SignatureVerificationError
	assert.ErrorAs(t, err, &sigErr)
}

func TestVerifyDevelopmentEscapeHatch(t *testing.T) {
	v := NewSignatureVerifier(map[models.Provider]string{models.ProviderDoorDash: "s3cret"}, true)

	assert.NoError(t, v.Verify(models.ProviderUberEats, []byte(`{}`), ""))
	// a configured secret is always enforced
	assert.Error(t, v.Verify(models.ProviderDoorDash, []byte(`{}`), ""))
}

func TestSignatureHeader(t *testing.T) {
	assert.Equal(t, "X-Uber-Signature", SignatureHeader(models.ProviderUberEats))
	assert.Equal(t, "X-DoorDash-Signature", SignatureHeader(models.ProviderDoorDash))
	assert.Empty(t, SignatureHeader(models.Provider("grubhub")))
}
