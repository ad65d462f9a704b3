package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rryowa/botgate/internal/models"
	"github.com/rryowa/botgate/internal/util"
)

func TestWebhookNotifierPostsEvent(t *testing.T) {
	received := make(chan models.SecurityEvent, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var e models.SecurityEvent
		_ = json.Unmarshal(body, &e)
		received <- e
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(zap.NewNop().Sugar(), srv.URL, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	n.Notify(ctx, models.SecurityEvent{Type: EventRefreshTokenReuse, UserID: "u1", Family: "f1"})
	cancel()

	select {
	case e := <-received:
		assert.Equal(t, EventRefreshTokenReuse, e.Type)
		assert.Equal(t, "u1", e.UserID)
		assert.Equal(t, "f1", e.Family)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not called")
	}
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	done chan struct{}
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	close(w.done)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaNotifierKeysByUser(t *testing.T) {
	w := &fakeWriter{done: make(chan struct{})}
	n := newKafkaNotifier(zap.NewNop().Sugar(), w, "security-events", time.Second)

	n.Notify(context.Background(), models.SecurityEvent{Type: EventRefreshTokenReuse, UserID: "u1"})

	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not written")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("u1"), w.msgs[0].Key)

	var e models.SecurityEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &e))
	assert.Equal(t, EventRefreshTokenReuse, e.Type)
}

type slowWriter struct {
	release chan struct{}

	mu          sync.Mutex
	written     int
	closed      bool
	writeClosed bool
}

func (w *slowWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	<-w.release
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written += len(msgs)
	w.writeClosed = w.closed
	return nil
}

func (w *slowWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestKafkaNotifierCloseWaitsForInFlightEvents(t *testing.T) {
	w := &slowWriter{release: make(chan struct{})}
	n := newKafkaNotifier(zap.NewNop().Sugar(), w, "security-events", 2*time.Second)

	n.Notify(context.Background(), models.SecurityEvent{Type: EventRefreshTokenReuse, UserID: "u1"})
	time.AfterFunc(50*time.Millisecond, func() { close(w.release) })
	n.Close()

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, 1, w.written)
	assert.False(t, w.writeClosed)
	assert.True(t, w.closed)
}

func TestKafkaNotifierCloseIsBounded(t *testing.T) {
	w := &slowWriter{release: make(chan struct{})}
	defer close(w.release)
	n := newKafkaNotifier(zap.NewNop().Sugar(), w, "security-events", 50*time.Millisecond)

	n.Notify(context.Background(), models.SecurityEvent{Type: EventRefreshTokenReuse, UserID: "u1"})

	start := time.Now()
	n.Close()
	assert.Less(t, time.Since(start), time.Second)

	// events after close are dropped
	n.Notify(context.Background(), models.SecurityEvent{Type: EventRefreshTokenReuse, UserID: "u2"})
	w.mu.Lock()
	defer w.mu.Unlock()
	assert.True(t, w.closed)
	assert.Zero(t, w.written)
}

func TestNewSecurityNotifier(t *testing.T) {
	log := zap.NewNop().Sugar()

	n, cleanup, err := NewSecurityNotifier(log, util.NotifierConfig{Driver: NotifierNone})
	require.NoError(t, err)
	cleanup()
	assert.IsType(t, NoopNotifier{}, n)

	_, _, err = NewSecurityNotifier(log, util.NotifierConfig{Driver: NotifierWebhook})
	require.ErrorIs(t, err, util.ErrMissingConfig)

	n, cleanup, err = NewSecurityNotifier(log, util.NotifierConfig{Driver: NotifierKafka, KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "t"})
	require.NoError(t, err)
	cleanup()
	assert.IsType(t, &KafkaNotifier{}, n)

	_, _, err = NewSecurityNotifier(log, util.NotifierConfig{Driver: "carrier-pigeon"})
	require.Error(t, err)
}
