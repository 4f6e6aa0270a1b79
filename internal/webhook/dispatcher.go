package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shardlabs/shardbase/internal/realtime"
	"github.com/shardlabs/shardbase/internal/secrets"
	"github.com/shardlabs/shardbase/internal/store"
)

const (
	signatureHeader = "X-Shardbase-Signature"
	eventHeader     = "X-Shardbase-Event"
	deliveryHeader  = "X-Shardbase-Delivery"
)

// Options tune dispatcher behavior. Zero values get sensible defaults.
type Options struct {
	QueueSize   int
	Workers     int
	MaxAttempts int
	HTTPTimeout time.Duration
	Backoff     time.Duration
}

func (o *Options) fill() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = 10 * time.Second
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
}

// Dispatcher delivers shard events to registered webhook endpoints.
// It implements realtime.Publisher so it can sit alongside the live
// stream in an event fan-out: Publish enqueues without blocking, worker
// goroutines handle matching, transforms, signing, and retries.
type Dispatcher struct {
	store     store.Store
	encryptor *secrets.AgeEncryptor
	logger    *slog.Logger
	opts      Options
	client    *http.Client
	queue     chan realtime.Event
}

// NewDispatcher creates a Dispatcher. Run must be called before events
// are delivered.
func NewDispatcher(s store.Store, enc *secrets.AgeEncryptor, logger *slog.Logger, opts Options) *Dispatcher {
	opts.fill()
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:     s,
		encryptor: enc,
		logger:    logger,
		opts:      opts,
		client:    &http.Client{Timeout: opts.HTTPTimeout},
		queue:     make(chan realtime.Event, opts.QueueSize),
	}
}

// Publish enqueues an event for webhook delivery. If the queue is full
// the event is dropped with a warning; endpoint delivery is best-effort
// and must never block the caller.
func (d *Dispatcher) Publish(_ context.Context, e realtime.Event) {
	select {
	case d.queue <- e:
	default:
		d.logger.Warn("webhook queue full, dropping event",
			"event_type", e.Type, "tenant_id", e.TenantID)
	}
}

// Run consumes the queue with a pool of workers until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	done := make(chan struct{})
	for range d.opts.Workers {
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case <-ctx.Done():
					return
				case e := <-d.queue:
					d.dispatch(ctx, e)
				}
			}
		}()
	}
	for range d.opts.Workers {
		<-done
	}
	return ctx.Err()
}

func (d *Dispatcher) dispatch(ctx context.Context, e realtime.Event) {
	hooks, err := d.store.ListActiveWebhooks(ctx, e.TenantID)
	if err != nil {
		d.logger.Error("list webhooks", "tenant_id", e.TenantID, "error", err)
		return
	}
	for i := range hooks {
		if !matches(&hooks[i], e) {
			continue
		}
		d.deliver(ctx, &hooks[i], e)
	}
}

// matches applies the webhook's subscription filter. Empty lists mean
// all, the same semantics the live stream uses.
func matches(w *store.Webhook, e realtime.Event) bool {
	f := realtime.Filter{}
	if len(w.EventTypes) > 0 {
		if err := json.Unmarshal(w.EventTypes, &f.EventTypes); err != nil {
			return false
		}
	}
	if len(w.ShardTypeIDs) > 0 {
		if err := json.Unmarshal(w.ShardTypeIDs, &f.ShardTypeIDs); err != nil {
			return false
		}
	}
	return f.Matches(e)
}

func (d *Dispatcher) deliver(ctx context.Context, w *store.Webhook, e realtime.Event) {
	body, err := json.Marshal(e)
	if err != nil {
		d.logger.Error("encode webhook payload", "webhook_id", w.ID, "error", err)
		return
	}

	if w.TransformScript != "" {
		transformed, keep, terr := ApplyTransform(w.TransformScript, body, 0)
		if terr != nil {
			d.recordFailure(ctx, w, e, body, fmt.Sprintf("transform: %v", terr))
			return
		}
		if !keep {
			return
		}
		body = transformed
	}

	delivery := &store.WebhookDelivery{
		WebhookID: w.ID,
		TenantID:  w.TenantID,
		EventType: e.Type,
		Payload:   body,
		Status:    "pending",
	}
	if err := d.store.InsertWebhookDelivery(ctx, delivery); err != nil {
		d.logger.Error("insert webhook delivery", "webhook_id", w.ID, "error", err)
		return
	}

	secret, err := d.decryptSecret(w)
	if err != nil {
		d.finishDelivery(ctx, delivery, "failed", 0, err.Error())
		return
	}

	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		delivery.Attempts = attempt
		code, err := d.post(ctx, w.URL, delivery.ID, e.Type, body, secret)
		if err == nil && code < 300 {
			d.finishDelivery(ctx, delivery, "delivered", code, "")
			return
		}

		msg := fmt.Sprintf("status %d", code)
		if err != nil {
			msg = err.Error()
		}
		delivery.LastError = msg
		delivery.LastCode = code

		if attempt < d.opts.MaxAttempts {
			wait := d.opts.Backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				d.finishDelivery(ctx, delivery, "failed", code, msg)
				return
			case <-time.After(wait):
			}
		}
	}
	d.finishDelivery(ctx, delivery, "failed", delivery.LastCode, delivery.LastError)
	d.logger.Warn("webhook delivery failed",
		"webhook_id", w.ID, "url", w.URL, "attempts", delivery.Attempts, "error", delivery.LastError)
}

func (d *Dispatcher) post(ctx context.Context, url, deliveryID, eventType string, body []byte, secret string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(eventHeader, eventType)
	req.Header.Set(deliveryHeader, deliveryID)
	if secret != "" {
		req.Header.Set(signatureHeader, Signature(secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

func (d *Dispatcher) decryptSecret(w *store.Webhook) (string, error) {
	if len(w.EncryptedSecret) == 0 {
		return "", nil
	}
	plaintext, err := d.encryptor.Decrypt(w.EncryptedSecret)
	if err != nil {
		return "", fmt.Errorf("decrypt webhook secret: %w", err)
	}
	return string(plaintext), nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, w *store.Webhook, e realtime.Event, body []byte, msg string) {
	delivery := &store.WebhookDelivery{
		WebhookID: w.ID,
		TenantID:  w.TenantID,
		EventType: e.Type,
		Payload:   body,
		Status:    "failed",
		Attempts:  0,
		LastError: msg,
	}
	if err := d.store.InsertWebhookDelivery(ctx, delivery); err != nil {
		d.logger.Error("insert webhook delivery", "webhook_id", w.ID, "error", err)
	}
}

func (d *Dispatcher) finishDelivery(ctx context.Context, delivery *store.WebhookDelivery, status string, code int, msg string) {
	delivery.Status = status
	delivery.LastCode = code
	delivery.LastError = msg
	if status == "delivered" {
		now := time.Now().UTC()
		delivery.DeliveredAt = &now
	}
	if err := d.store.UpdateWebhookDelivery(ctx, delivery); err != nil {
		d.logger.Error("update webhook delivery", "delivery_id", delivery.ID, "error", err)
	}
}

// TestDelivery synchronously delivers a synthetic event to a single
// webhook, bypassing subscription filters. Used by the API to let
// operators verify endpoint connectivity and signatures.
func (d *Dispatcher) TestDelivery(ctx context.Context, w *store.Webhook) error {
	e, err := realtime.NewEvent("test", w.TenantID, "", "", map[string]string{
		"message":    "test delivery",
		"webhook_id": w.ID,
	})
	if err != nil {
		return err
	}
	d.deliver(ctx, w, e)
	return nil
}

// Signature computes the hex HMAC-SHA256 of body keyed by secret, in
// the form receivers verify: "sha256=<hex>".
func Signature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
