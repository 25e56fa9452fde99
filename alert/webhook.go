package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"
)

// WebhookReporter posts each anomaly as JSON to an HTTP endpoint
type WebhookReporter struct {
	URL        string
	Service    string
	HTTPClient *http.Client
	MaxRetries uint64
	Logger     *log.Entry
}

type webhookPayload struct {
	Message string `json:"message"`
	Level   string `json:"level"`
	Service string `json:"service"`
}

// NewWebhookReporter returns a reporter with a short client timeout and three retries
func NewWebhookReporter(url string, service string) *WebhookReporter {
	return &WebhookReporter{
		URL:        url,
		Service:    service,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		MaxRetries: 3,
	}
}

func (w *WebhookReporter) Report(message string) {
	logger := w.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	body, err := json.Marshal(webhookPayload{Message: message, Level: "warning", Service: w.Service})
	if err != nil {
		logger.WithError(err).Error("could not encode alert")
		return
	}

	client := w.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	post := func() error {
		resp, err := client.Post(w.URL, "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("alert endpoint returned %s", resp.Status)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(post, backoff.WithMaxRetries(b, w.MaxRetries)); err != nil {
		logger.WithError(err).WithField("url", w.URL).Error("failed to deliver alert")
	}
}
