package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/gateway/pkg/observability"
)

// maxLoggedResponseBytes bounds the response body stored per attempt
const maxLoggedResponseBytes = 1000

// Storage is the persistence surface the dispatcher needs
type Storage interface {
	Get(ctx context.Context, id string) (*Webhook, error)
	ListForEvent(ctx context.Context, event string) ([]Webhook, error)
	InsertLog(ctx context.Context, log *Log) error
	RecordOutcome(ctx context.Context, webhookID string, success bool, at time.Time) error
}

// Result summarizes one delivery attempt
type Result struct {
	Success      bool          `json:"success"`
	StatusCode   int           `json:"status_code,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
}

// Dispatcher fans events out to subscribed endpoints
type Dispatcher struct {
	store   Storage
	client  *http.Client
	logger  *observability.Logger
	metrics *observability.Metrics

	// backoff returns the wait before retrying after the given attempt.
	// Overridable in tests.
	backoff func(attempt int) time.Duration
}

// NewDispatcher creates a webhook dispatcher. The client's own timeout
// is unused; each request is bounded by the webhook's configured timeout.
func NewDispatcher(store Storage, client *http.Client, logger *observability.Logger, metrics *observability.Metrics) *Dispatcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Dispatcher{
		store:   store,
		client:  client,
		logger:  logger,
		metrics: metrics,
		backoff: defaultBackoff,
	}
}

// defaultBackoff doubles from one second and caps at ten
func defaultBackoff(attempt int) time.Duration {
	d := time.Second * (1 << (attempt - 1))
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

// Trigger fires the event to all subscribers without blocking the
// caller. Deliveries run detached from the request context so an early
// client disconnect cannot cancel retries already underway.
func (d *Dispatcher) Trigger(event string, data interface{}) {
	go func() {
		if err := d.TriggerAndWait(context.Background(), event, data); err != nil {
			d.logger.WithError(err).WithField("event", event).Error("webhook trigger failed")
		}
	}()
}

// TriggerAndWait fires the event and blocks until every subscriber has
// exhausted its attempts. A no-op when nothing is subscribed.
func (d *Dispatcher) TriggerAndWait(ctx context.Context, event string, data interface{}) error {
	hooks, err := d.store.ListForEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to list webhooks: %w", err)
	}
	if len(hooks) == 0 {
		d.logger.WithField("event", event).Debug("no active webhooks for event")
		return nil
	}

	d.logger.WithFields(map[string]interface{}{
		"event": event,
		"count": len(hooks),
	}).Info("triggering webhooks")

	var g errgroup.Group
	for i := range hooks {
		hook := hooks[i]
		g.Go(func() error {
			return d.deliver(ctx, &hook, event, data)
		})
	}
	return g.Wait()
}

// deliver runs the attempt loop for one webhook. Attempts are strictly
// sequential; the counter update happens exactly once at the end.
func (d *Dispatcher) deliver(ctx context.Context, hook *Webhook, event string, data interface{}) error {
	ts := time.Now().UTC()
	body, err := json.Marshal(payload{Event: event, Timestamp: ts, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	success := false
	for attempt := 1; attempt <= hook.RetryCount+1; attempt++ {
		result := d.send(ctx, hook, event, ts, body, attempt)
		if result.Success {
			success = true
			break
		}
		if attempt <= hook.RetryCount {
			select {
			case <-time.After(d.backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if err := d.store.RecordOutcome(ctx, hook.ID, success, time.Now()); err != nil {
		d.logger.WithError(err).WithField("webhook_id", hook.ID).Error("failed to record webhook outcome")
	}
	return nil
}

// Test posts a synthetic event to the webhook with a single attempt.
// Counters are untouched; the attempt is still logged.
func (d *Dispatcher) Test(ctx context.Context, webhookID string) (*Result, error) {
	hook, err := d.store.Get(ctx, webhookID)
	if err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	body, err := json.Marshal(payload{
		Event:     EventTest,
		Timestamp: ts,
		Data: map[string]interface{}{
			"message":      "webhook delivery test",
			"webhook_id":   hook.ID,
			"webhook_name": hook.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	result := d.send(ctx, hook, EventTest, ts, body, 1)
	return &result, nil
}

// send performs one HTTP attempt and writes its log row
func (d *Dispatcher) send(ctx context.Context, hook *Webhook, event string, sentAt time.Time, body []byte, attempt int) Result {
	log := &Log{
		WebhookID: hook.ID,
		Event:     event,
		Payload:   json.RawMessage(body),
		URL:       hook.URL,
		Attempt:   attempt,
	}

	start := time.Now()
	statusCode, responseBody, err := d.post(ctx, hook, event, sentAt, body, attempt)
	log.ResponseTime = time.Since(start)
	log.StatusCode = statusCode
	log.ResponseBody = responseBody

	result := Result{StatusCode: statusCode, ResponseTime: log.ResponseTime}
	switch {
	case err != nil:
		result.Error = err.Error()
	case statusCode < 200 || statusCode >= 300:
		result.Error = fmt.Sprintf("HTTP %d", statusCode)
	default:
		result.Success = true
	}
	log.Success = result.Success
	log.Error = result.Error

	if d.metrics != nil {
		d.metrics.ObserveWebhookAttempt(event, result.Success, log.ResponseTime)
	}
	if result.Success {
		d.logger.WithFields(map[string]interface{}{
			"webhook_id": hook.ID,
			"event":      event,
			"status":     statusCode,
			"attempt":    attempt,
		}).Info("webhook delivered")
	} else {
		d.logger.WithFields(map[string]interface{}{
			"webhook_id": hook.ID,
			"event":      event,
			"error":      result.Error,
			"attempt":    attempt,
		}).Warn("webhook delivery failed")
	}

	if err := d.store.InsertLog(ctx, log); err != nil {
		d.logger.WithError(err).WithField("webhook_id", hook.ID).Error("failed to log webhook attempt")
	}
	return result
}

func (d *Dispatcher) post(ctx context.Context, hook *Webhook, event string, sentAt time.Time, body []byte, attempt int) (int, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, hook.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", Sign(body, hook.Secret))
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-Timestamp", sentAt.Format(time.RFC3339))
	req.Header.Set("X-Webhook-Attempt", strconv.Itoa(attempt))
	for key, value := range hook.Headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	truncated, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedResponseBytes))
	return resp.StatusCode, string(truncated), nil
}
