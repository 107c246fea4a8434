// Package report delivers operation results to the reporting sinks: the
// process log and an optional batched webhook.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/swell-ops-ea/internal/model"
	"github.com/yourorg/swell-ops-ea/internal/security"
)

// Reporter receives every finished operation.
type Reporter interface {
	Report(ctx context.Context, res model.Result)
}

// LogReporter writes results to the process log.
type LogReporter struct{}

// Report logs res at info level on success and warning level on failure.
func (LogReporter) Report(_ context.Context, res model.Result) {
	entry := logrus.WithFields(logrus.Fields{
		"operation_id": res.OperationID,
		"kind":         res.Kind,
		"success":      res.Success,
		"hash":         res.Hash,
	})
	if res.ApprovalHash != "" {
		entry = entry.WithField("approval_hash", res.ApprovalHash)
	}
	if !res.Success {
		entry.WithFields(logrus.Fields{
			"error":      res.Error,
			"error_kind": res.ErrorKind,
		}).Warn(res.Message)
		return
	}
	entry.Info(res.Message)
}

// Multi fans a result out to several reporters in order.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, res model.Result) {
	for _, r := range m {
		r.Report(ctx, res)
	}
}

// BatchSigner signs a serialized batch.
type BatchSigner interface {
	Sign(body []byte) (security.Signature, error)
}

// Signature headers set on signed batches.
const (
	HeaderSignature  = "X-Report-Signature"
	HeaderSigner     = "X-Report-Signer"
	HeaderTimestamp  = "X-Report-Timestamp"
	HeaderValidUntil = "X-Report-Valid-Until"
)

// WebhookConfig configures the batched webhook sink.
type WebhookConfig struct {
	URL           string
	APIKey        string
	BatchSize     int
	FlushInterval time.Duration

	// Signer is optional
	Signer BatchSigner
}

// WebhookReporter buffers results and posts them as JSON batches, either when
// BatchSize results are pending or every FlushInterval.
type WebhookReporter struct {
	config     WebhookConfig
	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	batch     []model.Result
	lastFlush time.Time
	sent      int
	failed    int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWebhookReporter starts the periodic flush loop. A nil httpClient gets a
// retrying client.
func NewWebhookReporter(config WebhookConfig, httpClient *http.Client) *WebhookReporter {
	if config.BatchSize <= 0 {
		config.BatchSize = 20
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Minute
	}
	if httpClient == nil {
		rc := retryablehttp.NewClient()
		rc.RetryMax = 3
		rc.RetryWaitMin = 500 * time.Millisecond
		rc.RetryWaitMax = 3 * time.Second
		rc.Logger = nil
		httpClient = rc.StandardClient()
		httpClient.Timeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &WebhookReporter{
		config:     config,
		httpClient: httpClient,
		now:        time.Now,
		batch:      make([]model.Result, 0, config.BatchSize),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go w.loop(ctx)

	logrus.WithFields(logrus.Fields{
		"batch_size":     config.BatchSize,
		"flush_interval": config.FlushInterval.String(),
	}).Info("Webhook reporter initialized")
	return w
}

// Report queues res; a full batch is flushed in the background.
func (w *WebhookReporter) Report(_ context.Context, res model.Result) {
	w.mu.Lock()
	w.batch = append(w.batch, res)
	full := len(w.batch) >= w.config.BatchSize
	w.mu.Unlock()

	if full {
		go func() {
			if err := w.Flush(context.Background()); err != nil {
				logrus.WithError(err).Error("Failed to flush report batch")
			}
		}()
	}
}

func (w *WebhookReporter) loop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Flush(ctx); err != nil {
				logrus.WithError(err).Error("Failed to flush report batch")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Flush posts the pending results. A failed batch is dropped.
func (w *WebhookReporter) Flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.batch) == 0 {
		w.mu.Unlock()
		return nil
	}
	results := w.batch
	w.batch = make([]model.Result, 0, w.config.BatchSize)
	w.lastFlush = w.now()
	w.mu.Unlock()

	err := w.post(ctx, results)

	w.mu.Lock()
	if err != nil {
		w.failed += len(results)
	} else {
		w.sent += len(results)
	}
	w.mu.Unlock()

	if err != nil {
		return err
	}
	logrus.WithField("count", len(results)).Debug("Exported report batch")
	return nil
}

func (w *WebhookReporter) post(ctx context.Context, results []model.Result) error {
	payload := struct {
		Results    []model.Result `json:"results"`
		ExportTime string         `json:"export_time"`
		Count      int            `json:"count"`
	}{
		Results:    results,
		ExportTime: w.now().UTC().Format(time.RFC3339),
		Count:      len(results),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.config.APIKey)
	}
	if w.config.Signer != nil {
		sig, err := w.config.Signer.Sign(body)
		if err != nil {
			return err
		}
		req.Header.Set(HeaderSignature, sig.Signature)
		req.Header.Set(HeaderSigner, sig.Signer)
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(sig.Timestamp, 10))
		req.Header.Set(HeaderValidUntil, strconv.FormatInt(sig.ValidUntil, 10))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}
	return nil
}

// Stop ends the flush loop and sends whatever is still pending.
func (w *WebhookReporter) Stop(ctx context.Context) error {
	w.cancel()
	<-w.done
	return w.Flush(ctx)
}

// Status summarizes the sink for the status endpoint.
func (w *WebhookReporter) Status() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := map[string]interface{}{
		"batch_size":     w.config.BatchSize,
		"flush_interval": w.config.FlushInterval.String(),
		"pending":        len(w.batch),
		"sent":           w.sent,
		"failed":         w.failed,
	}
	if !w.lastFlush.IsZero() {
		status["last_flush"] = w.lastFlush.Format(time.RFC3339)
	}
	return status
}
