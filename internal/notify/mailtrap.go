package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/sakif/contacts-api/internal/config"
)

// Mailtrap sends email through the Mailtrap send API.
type Mailtrap struct {
	apiKey string
	url    string
	from   recipient
	client *http.Client
}

func NewMailtrap(cfg config.MailtrapConfig) *Mailtrap {
	return &Mailtrap{
		apiKey: cfg.APIKey,
		url:    cfg.URL,
		from:   recipient{Email: cfg.FromEmail, Name: cfg.FromName},
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendRequest struct {
	From     recipient   `json:"from"`
	To       []recipient `json:"to"`
	Subject  string      `json:"subject"`
	HTML     string      `json:"html,omitempty"`
	Text     string      `json:"text,omitempty"`
	Category string      `json:"category,omitempty"`
}

var verificationHTML = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <h2>Confirm your email</h2>
  <p>Click the link below to verify your address. It expires in 24 hours.</p>
  <p><a href="{{.}}">Verify email</a></p>
  <p style="word-break: break-all;">{{.}}</p>
</body>
</html>`))

func (m *Mailtrap) SendVerification(ctx context.Context, email, link string) error {
	var html bytes.Buffer
	if err := verificationHTML.Execute(&html, link); err != nil {
		return fmt.Errorf("notify: rendering verification email: %w", err)
	}

	return m.send(ctx, sendRequest{
		From:     m.from,
		To:       []recipient{{Email: email}},
		Subject:  "Verify your email",
		HTML:     html.String(),
		Text:     "Verify your email address by opening this link (valid for 24 hours):\n\n" + link + "\n",
		Category: "email_verification",
	})
}

func (m *Mailtrap) send(ctx context.Context, body sendRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("notify: marshaling email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: sending email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: mailtrap returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}
