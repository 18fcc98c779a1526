// Package alert dispatches tamper notifications to a Slack webhook.
package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veritaschain/vcp/internal/verify"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Manager struct {
	enabled      bool
	slackWebhook string
	httpClient   HTTPClient
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func NewManager(enabled bool, slackWebhook string) *Manager {
	return &Manager{
		enabled:      enabled,
		slackWebhook: slackWebhook,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

func NewManagerWithClient(enabled bool, slackWebhook string, client HTTPClient) *Manager {
	return &Manager{
		enabled:      enabled,
		slackWebhook: slackWebhook,
		httpClient:   client,
	}
}

// SendTamperAlert implements verify.Alerter.
func (m *Manager) SendTamperAlert(file string, report *verify.Report) error {
	if !m.enabled || m.slackWebhook == "" {
		return nil
	}

	failed := ""
	for _, res := range report.Results {
		if res.Status == verify.Fail {
			if failed != "" {
				failed += ", "
			}
			failed += string(res.Check)
		}
	}

	detail := ""
	for i, f := range report.Findings {
		if i >= 5 {
			detail += fmt.Sprintf("... and %d more\n", len(report.Findings)-i+report.DroppedFindings)
			break
		}
		detail += f.String() + "\n"
	}

	msg := slackMessage{
		Text: "🚨 *CHAIN TAMPERING DETECTED*",
		Attachments: []slackAttachment{
			{
				Color: "danger",
				Title: "Event Chain Verification Failed",
				Fields: []slackField{
					{Title: "Log File", Value: file, Short: true},
					{Title: "Events", Value: fmt.Sprintf("%d", report.TotalEvents), Short: true},
					{Title: "Failed Checks", Value: failed, Short: false},
					{Title: "Findings", Value: detail, Short: false},
				},
				Footer: "VCP Chain Verifier",
				Ts:     time.Now().Unix(),
			},
		},
	}

	return m.sendSlackMessage(msg)
}

// severityColors maps alert severities to Slack attachment colors.
// Unknown severities render as danger.
var severityColors = map[string]string{
	"good":    "good",
	"warning": "warning",
	"danger":  "danger",
}

// SendSystemAlert reports operational problems (unreadable log,
// watcher errors) rather than tampering.
func (m *Manager) SendSystemAlert(title, message, severity string) error {
	if !m.enabled || m.slackWebhook == "" {
		return nil
	}

	color, ok := severityColors[severity]
	if !ok {
		color = "danger"
		severity = "danger"
	}

	msg := slackMessage{
		Text: fmt.Sprintf("*SYSTEM ALERT: %s*", title),
		Attachments: []slackAttachment{
			{
				Color: color,
				Title: title,
				Fields: []slackField{
					{Title: "Severity", Value: severity, Short: true},
					{Title: "Message", Value: message, Short: false},
				},
				Footer: "VCP Chain Verifier",
				Ts:     time.Now().Unix(),
			},
		},
	}

	return m.sendSlackMessage(msg)
}

func (m *Manager) sendSlackMessage(msg slackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, m.slackWebhook, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
