// Package alerts delivers tamper notifications to external endpoints.
// Targets come from service configuration; each delivery is HMAC-signed so
// receivers can authenticate the sender.
package alerts

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
	"time"

	"github.com/jmerrifield20/ActionLedger/internal/ledger"
	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC-SHA256 signature of the request body.
const SignatureHeader = "X-Ledger-Signature"

// Target is one configured alert destination.
type Target struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

// Event is the payload POSTed to each target when a chain goes invalid.
type Event struct {
	Type                 string    `json:"type"`
	AgentID              string    `json:"agent_id"`
	FirstInvalidSequence *int64    `json:"first_invalid_sequence,omitempty"`
	EventsChecked        int       `json:"events_checked"`
	Timestamp            time.Time `json:"timestamp"`
}

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Dispatcher fans out chain-invalid events to all configured targets.
type Dispatcher struct {
	targets    []Target
	httpClient *http.Client
	onMetrics  MetricsRecorder
	logger     *zap.Logger

	// test seam; sleeps between retry attempts
	sleep func(time.Duration)
}

// NewDispatcher creates a Dispatcher for the given targets.
func NewDispatcher(targets []Target, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		targets:    targets,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (d *Dispatcher) SetMetricsRecorder(fn MetricsRecorder) {
	d.onMetrics = fn
}

// ChainInvalid dispatches a chain.invalid alert to every target. It has the
// signature integrity.AlertFunc expects, so it plugs straight into the
// sweeper.
func (d *Dispatcher) ChainInvalid(ctx context.Context, agentID string, res *ledger.VerificationResult) {
	event := Event{
		Type:                 "chain.invalid",
		AgentID:              agentID,
		FirstInvalidSequence: res.FirstInvalidSequence,
		EventsChecked:        res.EventsChecked,
		Timestamp:            time.Now().UTC(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("alerts: marshal event", zap.Error(err))
		return
	}

	// The sweep context is cancelled as soon as the sweep returns, which would
	// abort in-flight deliveries and their retries. Deliveries carry the
	// caller's values but outlive its cancellation.
	ctx = context.WithoutCancel(ctx)

	for _, t := range d.targets {
		go d.deliver(ctx, t, body)
	}
}

// deliver sends the alert to a single target with retries.
// Backoff: immediate, 1s, 5s.
func (d *Dispatcher) deliver(ctx context.Context, target Target, body []byte) {
	signature := signPayload(body, target.Secret)
	delays := []time.Duration{0, time.Second, 5 * time.Second}

	for attempt := 1; attempt <= len(delays); attempt++ {
		if attempt > 1 {
			d.sleep(delays[attempt-1])
		}

		success, statusCode, errMsg := d.doDelivery(ctx, target.URL, body, signature)

		if d.onMetrics != nil {
			d.onMetrics(success)
		}

		if success {
			return
		}

		d.logger.Warn("alerts: delivery failed",
			zap.String("url", target.URL),
			zap.Int("attempt", attempt),
			zap.Int("status", statusCode),
			zap.String("error", errMsg),
		)
	}
}

// doDelivery performs a single HTTP POST delivery.
func (d *Dispatcher) doDelivery(ctx context.Context, url string, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// signPayload computes an HMAC-SHA256 signature over the body.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the body and secret.
// Receivers use this to authenticate alert deliveries.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(signPayload(body, secret)), []byte(signature))
}
