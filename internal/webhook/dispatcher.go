package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Payload is the record posted to a client's storage webhook.
type Payload struct {
	ClientID  string         `json:"clientId"`
	Timestamp string         `json:"timestamp"`
	Answers   map[string]any `json:"answers"`
}

// Dispatcher posts finished answer sets to per-client storage webhooks.
// Dispatches are detached: the caller never observes the outcome, and
// failures are logged and otherwise ignored. No retry.
type Dispatcher struct {
	httpClient *http.Client
	now        func() time.Time

	// wait makes Dispatch synchronous when set; only tests use it.
	wait bool
}

// NewDispatcher builds a dispatcher with a bounded request timeout so a
// slow webhook can never pin a goroutine indefinitely.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch sends the answer set without waiting for the response.
func (d *Dispatcher) Dispatch(clientID, webhookURL string, answers map[string]any) {
	if webhookURL == "" {
		logrus.WithField("client", clientID).Debug("no storage webhook configured, skipping dispatch")
		return
	}
	payload := Payload{
		ClientID:  clientID,
		Timestamp: d.now().Format(time.RFC3339),
		Answers:   answers,
	}
	if d.wait {
		d.post(webhookURL, payload)
		return
	}
	go d.post(webhookURL, payload)
}

func (d *Dispatcher) post(webhookURL string, payload Payload) {
	body, err := json.Marshal(payload)
	if err != nil {
		logrus.WithField("client", payload.ClientID).WithError(err).Error("storage webhook payload encoding failed")
		return
	}
	resp, err := d.httpClient.Post(webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		logrus.WithField("client", payload.ClientID).WithError(err).Error("storage webhook dispatch failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		logrus.WithFields(logrus.Fields{
			"client": payload.ClientID,
			"status": resp.StatusCode,
		}).Error("storage webhook rejected dispatch")
	}
}
