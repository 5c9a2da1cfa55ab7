package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/orrn/remoteprint/internal/config"
	"github.com/orrn/remoteprint/internal/db"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "remoteprint-webhook")
	if err != nil {
		panic(err)
	}
	if err := db.Init(db.Config{Path: filepath.Join(dir, "test.db")}); err != nil {
		panic(err)
	}

	code := m.Run()
	db.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

func registerWebhook(t *testing.T, url, secret string, events ...Event) *db.Webhook {
	t.Helper()
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = string(e)
	}
	eventsJSON, err := json.Marshal(names)
	require.NoError(t, err)

	w := &db.Webhook{Name: t.Name(), URL: url, Secret: secret, EventsJSON: string(eventsJSON), Enabled: true}
	require.NoError(t, db.Webhooks.CreateWebhook(context.Background(), w))
	t.Cleanup(func() {
		_ = db.Webhooks.DeleteWebhook(context.Background(), w.ID)
	})
	return w
}

func newTestSender(t *testing.T) *Sender {
	s := NewSender(config.WebhooksConfig{
		RetryCount:  3,
		RetryDelay:  time.Millisecond,
		Timeout:     time.Second,
		WorkerCount: 1,
		QueueSize:   10,
	}, WithLogger(zaptest.NewLogger(t)))
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func TestSender_DeliversSignedPayload(t *testing.T) {
	type received struct {
		header http.Header
		body   []byte
	}
	got := make(chan received, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	registerWebhook(t, srv.URL, "s3cret", EventOverflowCreated)
	s := newTestSender(t)

	s.SendOverflowCreated(context.Background(), OverflowEventData{Reference: "abc", PrinterID: 3, OverflowCopies: 1})

	select {
	case r := <-got:
		assert.Equal(t, "overflow_created", r.header.Get("X-Webhook-Event"))

		var payload struct {
			Event     string          `json:"event"`
			Data      json.RawMessage `json:"data"`
			Signature string          `json:"signature"`
		}
		require.NoError(t, json.Unmarshal(r.body, &payload))
		assert.Equal(t, "overflow_created", payload.Event)
		assert.Equal(t, Sign(payload.Data, "s3cret"), payload.Signature)
		assert.Equal(t, payload.Signature, r.header.Get("X-Webhook-Signature"))
		assert.JSONEq(t, `{"reference":"abc","printer_id":3,"overflow_copies":1,"submitted":false}`, string(payload.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestSender_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registerWebhook(t, srv.URL, "", EventJobSubmitted)
	s := newTestSender(t)

	s.SendJobSubmitted(context.Background(), JobEventData{Reference: "r1", PrinterID: 1, Qty: 1, Copies: 1})

	assert.Eventually(t, func() bool { return hits.Load() == 3 }, 5*time.Second, 10*time.Millisecond)
}

func TestSender_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	registerWebhook(t, srv.URL, "", EventJobFailed)
	s := newTestSender(t)

	s.SendJobFailed(context.Background(), JobEventData{Reference: "r2", ErrorMessage: "boom"})

	assert.Eventually(t, func() bool { return hits.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSender_IgnoresUnsubscribedEvents(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	registerWebhook(t, srv.URL, "", EventJobSubmitted)
	s := newTestSender(t)

	s.SendPrinterStatusChange(context.Background(), 9, "lab", true, false)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, hits.Load())
}

func TestIsValidEvent(t *testing.T) {
	assert.True(t, IsValidEvent("printer_status_changed"))
	assert.False(t, IsValidEvent("queue_status"))
}

func TestSender_SendTest(t *testing.T) {
	var event atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		event.Store(r.Header.Get("X-Webhook-Event"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(config.WebhooksConfig{Timeout: time.Second})
	require.NoError(t, s.SendTest(&db.Webhook{ID: 7, URL: srv.URL}))
	assert.Equal(t, "test", event.Load())

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer failing.Close()

	err := s.SendTest(&db.Webhook{ID: 8, URL: failing.URL})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.IsClientError())
}
