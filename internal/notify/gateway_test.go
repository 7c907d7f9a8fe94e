package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"bubble-ledger-go/internal/dispatcher"
	"bubble-ledger-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notificationEvent(t *testing.T) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(models.Notification{
		RecipientAccountId: 7,
		Title:              "Slot completed",
		Body:               "Slot 1 filled up",
		Type:               models.NotificationSlotCompleted,
		Data:               map[string]string{"slot": "1"},
	})
	require.NoError(t, err)
	return models.OutboxEvent{Id: "evt-1", Topic: models.TopicNotification, RecipientAccountId: 7, Payload: payload}
}

func TestGatewaySink_Delivers(t *testing.T) {
	var got pushRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/notifications", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "evt-1", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink := newGatewaySink(models.NotifyConfig{GatewayUrl: server.URL + "/", GatewayToken: "secret"}, server.Client())
	require.NoError(t, sink.Deliver(context.Background(), notificationEvent(t)))

	assert.Equal(t, "evt-1", got.EventId)
	assert.Equal(t, int64(7), got.RecipientAccountId)
	assert.Equal(t, models.NotificationSlotCompleted, got.Type)
	assert.Equal(t, "1", got.Data["slot"])
}

func TestGatewaySink_ClassifiesFailures(t *testing.T) {
	cases := []struct {
		status    int
		permanent bool
	}{
		{http.StatusTooManyRequests, false},
		{http.StatusServiceUnavailable, false},
		{http.StatusBadRequest, true},
		{http.StatusNotFound, true},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer server.Close()

			sink := newGatewaySink(models.NotifyConfig{GatewayUrl: server.URL}, server.Client())
			err := sink.Deliver(context.Background(), notificationEvent(t))
			require.Error(t, err)
			assert.Equal(t, tc.permanent, errorsIsPermanent(err))
		})
	}
}

func TestGatewaySink_BadPayloadIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	sink := newGatewaySink(models.NotifyConfig{GatewayUrl: server.URL}, server.Client())
	err := sink.Deliver(context.Background(), models.OutboxEvent{Id: "evt-2", Payload: []byte("not json")})
	assert.True(t, errorsIsPermanent(err))
	assert.Zero(t, calls.Load())
}

func TestGatewaySink_RespectsCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	sink := newGatewaySink(models.NotifyConfig{GatewayUrl: server.URL, RatePerSecond: 1, Burst: 1}, server.Client())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sink.Deliver(ctx, notificationEvent(t))
	require.Error(t, err)
	assert.False(t, errorsIsPermanent(err))
}

func TestLogSink(t *testing.T) {
	assert.NoError(t, LogSink{}.Deliver(context.Background(), notificationEvent(t)))
	assert.True(t, errorsIsPermanent(LogSink{}.Deliver(context.Background(), models.OutboxEvent{Payload: []byte("{")})))
}

func errorsIsPermanent(err error) bool {
	return errors.Is(err, dispatcher.ErrPermanent)
}
