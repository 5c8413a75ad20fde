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
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/vedit/internal/config"
	"github.com/therealutkarshpriyadarshi/vedit/internal/logging"
	"github.com/therealutkarshpriyadarshi/vedit/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

const (
	EventCompleted = "export.completed"
	EventFailed    = "export.failed"
	EventCancelled = "export.cancelled"

	// responses longer than this are cut in delivery logs
	maxResponseLog = 512
)

// Notifier posts terminal job events to the configured URLs.
type Notifier struct {
	client     *http.Client
	urls       []string
	secret     string
	maxRetries int
	// delays between attempts; the last one repeats
	retryDelays []time.Duration
	logger      *logging.Logger
	now         func() time.Time

	mu       sync.Mutex
	notified map[string]bool
	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// NewNotifier creates a notifier from config
func NewNotifier(cfg config.WebhookConfig, logger *logging.Logger) (*Notifier, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("no webhook urls configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		client:      &http.Client{Timeout: timeout},
		urls:        append([]string(nil), cfg.URLs...),
		secret:      cfg.Secret,
		maxRetries:  cfg.MaxRetries,
		retryDelays: []time.Duration{time.Second, 5 * time.Second, 15 * time.Second, time.Minute},
		logger:      logger,
		now:         time.Now,
		notified:    make(map[string]bool),
		stop:        make(chan struct{}),
	}, nil
}

// JobUpdated sends one event per job once it reaches a terminal status.
func (n *Notifier) JobUpdated(job *models.ExportJob) {
	event, ok := eventName(job.Status)
	if !ok {
		return
	}
	n.mu.Lock()
	if n.notified[job.ID] {
		n.mu.Unlock()
		return
	}
	n.notified[job.ID] = true
	n.mu.Unlock()

	payload, err := json.Marshal(models.JobEvent{
		Event:      event,
		JobID:      job.ID,
		Status:     job.Status,
		Title:      job.Metadata.Title,
		OutputPath: job.OutputPath,
		Error:      job.Error,
		Timestamp:  n.now(),
	})
	if err != nil {
		n.logger.WithJobID(job.ID).ErrorWithErr("Failed to marshal webhook payload", err)
		return
	}

	for _, url := range n.urls {
		d := delivery{id: uuid.New().String(), url: url, event: event, jobID: job.ID, payload: payload}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.deliverWithRetry(d)
		}()
	}
}

// Wait blocks until pending deliveries finish or ctx ends.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close abandons retries that have not started yet and waits for
// in-flight requests.
func (n *Notifier) Close() {
	n.stopOnce.Do(func() { close(n.stop) })
	n.wg.Wait()
}

type delivery struct {
	id      string
	url     string
	event   string
	jobID   string
	payload []byte
}

func (n *Notifier) deliverWithRetry(d delivery) {
	log := n.logger.WithJobID(d.jobID).WithFields(map[string]interface{}{
		"delivery_id": d.id,
		"event":       d.event,
		"url":         d.url,
	})
	for attempt := 0; ; attempt++ {
		status, err := n.deliver(d)
		if err == nil {
			metrics.RecordWebhookDelivery(d.event, "delivered")
			log.WithField("status_code", status).Debug("Webhook delivered")
			return
		}
		if attempt >= n.maxRetries {
			metrics.RecordWebhookDelivery(d.event, "failed")
			log.WithField("attempts", attempt+1).ErrorWithErr("Webhook delivery failed", err)
			return
		}
		metrics.RecordWebhookDelivery(d.event, "retry")
		log.WithField("attempt", attempt+1).WarnWithErr("Webhook delivery failed, retrying", err)

		delay := n.retryDelays[len(n.retryDelays)-1]
		if attempt < len(n.retryDelays) {
			delay = n.retryDelays[attempt]
		}
		timer := time.NewTimer(delay)
		select {
		case <-n.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// deliver makes one attempt and returns the response status.
func (n *Notifier) deliver(d delivery) (int, error) {
	req, err := http.NewRequest(http.MethodPost, d.url, bytes.NewReader(d.payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Vedit-Webhook/1.0")
	req.Header.Set("X-Webhook-Event", d.event)
	req.Header.Set("X-Webhook-Delivery", d.id)
	if n.secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(d.payload, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseLog))
		return resp.StatusCode, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Sign returns the HMAC-SHA256 signature header value for payload.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func eventName(status models.JobStatus) (string, bool) {
	switch status {
	case models.JobStatusCompleted:
		return EventCompleted, true
	case models.JobStatusFailed:
		return EventFailed, true
	case models.JobStatusCancelled:
		return EventCancelled, true
	default:
		return "", false
	}
}
