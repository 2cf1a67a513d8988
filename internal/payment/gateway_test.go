package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printflow/printflow/internal/config"
)

func sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	g := NewGateway(config.PaymentConfig{KeySecret: "secret"})

	assert.True(t, g.VerifySignature("order_1", "pay_1", sign("secret", "order_1", "pay_1")))
	assert.False(t, g.VerifySignature("order_1", "pay_1", sign("wrong", "order_1", "pay_1")))
	assert.False(t, g.VerifySignature("order_1", "pay_2", sign("secret", "order_1", "pay_1")))
	assert.False(t, g.VerifySignature("order_1", "pay_1", ""))
	assert.False(t, g.VerifySignature("order_1", "pay_1", "not-hex"))
}

func TestCreateIntent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key_id", user)
		assert.Equal(t, "key_secret", pass)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		// Amounts cross the wire in minor units.
		assert.Equal(t, float64(4200), body["amount"])
		assert.Equal(t, "INR", body["currency"])
		assert.Equal(t, "batch-1", body["receipt"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":       "order_test_1",
			"amount":   4200,
			"currency": "INR",
		})
	}))
	defer server.Close()

	g := NewGateway(config.PaymentConfig{
		BaseURL:   server.URL,
		KeyID:     "key_id",
		KeySecret: "key_secret",
		Timeout:   5 * time.Second,
	})

	intent, err := g.CreateIntent(context.Background(), 42, "batch-1", map[string]string{"batch_id": "batch-1"})
	require.NoError(t, err)

	assert.Equal(t, "order_test_1", intent.OrderID)
	assert.Equal(t, int64(4200), intent.Amount)
	assert.Equal(t, "INR", intent.Currency)
	assert.Equal(t, "key_id", intent.KeyID)
}

func TestCreateIntentGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	g := NewGateway(config.PaymentConfig{BaseURL: server.URL})

	_, err := g.CreateIntent(context.Background(), 42, "batch-1", nil)
	assert.Error(t, err)
}
