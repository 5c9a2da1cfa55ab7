// Package webhook delivers signed event notifications to registered URLs.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/remoteprint/internal/config"
	"github.com/orrn/remoteprint/internal/db"
)

type Event string

const (
	EventJobSubmitted         Event = "job_submitted"
	EventJobFailed            Event = "job_failed"
	EventOverflowCreated      Event = "overflow_created"
	EventPrinterStatusChanged Event = "printer_status_changed"
)

// Events lists every event a webhook may subscribe to.
var Events = []Event{EventJobSubmitted, EventJobFailed, EventOverflowCreated, EventPrinterStatusChanged}

func IsValidEvent(name string) bool {
	for _, e := range Events {
		if string(e) == name {
			return true
		}
	}
	return false
}

type Payload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Signature string    `json:"signature,omitempty"`
}

type JobEventData struct {
	Reference    string `json:"reference"`
	PrinterID    int64  `json:"printer_id"`
	Qty          int    `json:"qty"`
	Copies       int    `json:"copies"`
	StatusCode   int    `json:"status_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type OverflowEventData struct {
	Reference      string `json:"reference"`
	PrinterID      int64  `json:"printer_id"`
	OverflowCopies int    `json:"overflow_copies"`
	Submitted      bool   `json:"submitted"`
}

type PrinterStatusData struct {
	PrinterID   int64     `json:"printer_id"`
	PrinterName string    `json:"printer_name"`
	WasOnline   bool      `json:"was_online"`
	IsOnline    bool      `json:"is_online"`
	Timestamp   time.Time `json:"timestamp"`
}

type task struct {
	webhookID int64
	event     Event
	payload   *Payload
	attempt   int
}

type Sender struct {
	httpClient  *http.Client
	retryCount  int
	retryDelay  time.Duration
	workerCount int
	queue       chan *task
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	logger      *zap.Logger
}

type Option func(*Sender)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Sender) {
		s.logger = logger
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Sender) {
		s.httpClient = client
	}
}

func NewSender(cfg config.WebhooksConfig, opts ...Option) *Sender {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	s := &Sender{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		retryCount:  cfg.RetryCount,
		retryDelay:  cfg.RetryDelay,
		workerCount: cfg.WorkerCount,
		queue:       make(chan *task, cfg.QueueSize),
		stopCh:      make(chan struct{}),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sender) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *Sender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sender) SendJobSubmitted(ctx context.Context, data JobEventData) {
	s.enqueue(ctx, EventJobSubmitted, data)
}

func (s *Sender) SendJobFailed(ctx context.Context, data JobEventData) {
	s.enqueue(ctx, EventJobFailed, data)
}

func (s *Sender) SendOverflowCreated(ctx context.Context, data OverflowEventData) {
	s.enqueue(ctx, EventOverflowCreated, data)
}

func (s *Sender) SendPrinterStatusChange(ctx context.Context, printerID int64, name string, wasOnline, isOnline bool) {
	s.enqueue(ctx, EventPrinterStatusChanged, PrinterStatusData{
		PrinterID:   printerID,
		PrinterName: name,
		WasOnline:   wasOnline,
		IsOnline:    isOnline,
		Timestamp:   time.Now().UTC(),
	})
}

func (s *Sender) enqueue(ctx context.Context, event Event, data any) {
	webhooks, err := db.Webhooks.ListActiveWebhooksForEvent(ctx, string(event))
	if err != nil {
		s.logger.Error("failed to get webhooks for event", zap.String("event", string(event)), zap.Error(err))
		return
	}

	for _, w := range webhooks {
		t := &task{
			webhookID: w.ID,
			event:     event,
			payload: &Payload{
				Event:     string(event),
				Timestamp: time.Now().UTC(),
				Data:      data,
			},
		}

		select {
		case s.queue <- t:
		default:
			s.logger.Warn("queue full, dropping webhook",
				zap.Int64("webhook_id", w.ID), zap.String("event", string(event)))
		}
	}
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			if err := s.sendWithRetry(t); err != nil {
				s.logger.Warn("webhook delivery failed",
					zap.Int("worker", id),
					zap.Int64("webhook_id", t.webhookID),
					zap.String("event", string(t.event)),
					zap.Int("attempts", t.attempt),
					zap.Error(err))
			}
		}
	}
}

var errShutdown = errors.New("shutdown requested")

func (s *Sender) sendWithRetry(t *task) error {
	w, err := db.Webhooks.GetWebhookByID(context.Background(), t.webhookID)
	if err != nil {
		return fmt.Errorf("failed to get webhook: %w", err)
	}

	var lastErr error
	for t.attempt < s.retryCount {
		t.attempt++

		err := s.sendRequest(w, t.payload)
		if err == nil {
			return nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.IsClientError() {
			return err
		}

		if t.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(t.attempt-1))
			s.logger.Debug("retrying webhook",
				zap.Int64("webhook_id", w.ID),
				zap.Int("attempt", t.attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err))

			select {
			case <-s.stopCh:
				return errShutdown
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// SendTest delivers a single "test" event to w without retrying.
func (s *Sender) SendTest(w *db.Webhook) error {
	return s.sendRequest(w, &Payload{
		Event:     "test",
		Timestamp: time.Now(),
		Data:      map[string]any{"webhook_id": w.ID, "message": "Test webhook from remoteprint"},
	})
}

// StatusError is returned when a webhook endpoint answers with a 4xx or 5xx.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http error: %d", e.StatusCode)
}

func (e *StatusError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

func (s *Sender) sendRequest(w *db.Webhook, payload *Payload) error {
	data, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if w.Secret != "" {
		payload.Signature = Sign(data, w.Secret)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", payload.Event)
	if payload.Signature != "" {
		req.Header.Set("X-Webhook-Signature", payload.Signature)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of data under secret.
func Sign(data []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
