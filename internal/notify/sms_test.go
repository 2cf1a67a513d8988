package notify

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printflow/printflow/internal/config"
	"github.com/printflow/printflow/internal/core"
)

func TestFormatPhoneNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+919876543210", "+919876543210"},
		{"9876543210", "+919876543210"},
		{"09876543210", "+919876543210"},
		{"98765 43210", "+919876543210"},
		{"98-765-43210", "+919876543210"},
		{"919876543210", "+919876543210"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPhoneNumber(tt.in), "input %q", tt.in)
	}
}

func newTestSender(baseURL string) *Sender {
	return NewSender(config.NotifyConfig{
		BaseURL:     baseURL,
		AccountSID:  "AC-test",
		AuthToken:   "secret",
		FromNumber:  "+10000000000",
		MaxRetries:  3,
		RetryDelay:  time.Millisecond,
		WorkerCount: 1,
		QueueSize:   4,
	})
}

func TestSendRequest(t *testing.T) {
	var gotTo, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotTo = r.PostFormValue("To")
		gotBody = r.PostFormValue("Body")

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC-test", user)
		assert.Equal(t, "secret", pass)
		assert.Contains(t, r.URL.Path, "/Accounts/AC-test/Messages.json")

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	s := newTestSender(server.URL)
	err := s.sendRequest(&smsTask{to: "+919876543210", body: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "+919876543210", gotTo)
	assert.Equal(t, "hello", gotBody)
}

func TestSendWithRetryRecoversFromServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	s := newTestSender(server.URL)
	err := s.sendWithRetry(&smsTask{to: "+919876543210", body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendWithRetryStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	s := newTestSender(server.URL)
	err := s.sendWithRetry(&smsTask{to: "+919876543210", body: "hello"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx responses must not be retried")
}

func TestNotifyPickupDeliversThroughWorker(t *testing.T) {
	received := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		received <- r.PostFormValue("Body")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	s := newTestSender(server.URL)
	s.Start()
	defer s.Stop()

	s.NotifyPickup(core.PickupNotification{
		Phone:       "9876543210",
		TokenNumber: 1042,
		VendorName:  "Campus Print Shop",
	})

	select {
	case body := <-received:
		assert.Contains(t, body, "#1042")
		assert.Contains(t, body, "Campus Print Shop")
	case <-time.After(5 * time.Second):
		t.Fatal("pickup SMS was never delivered")
	}
}
