package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sidbot/pkg/config"
	xhttp "sidbot/pkg/http"
	applogger "sidbot/pkg/logger"
)

// ErrDisabled is returned when no API key, sender or receiver is configured.
var ErrDisabled = errors.New("mailer: not configured")

// Sender delivers one HTML message.
type Sender interface {
	Send(ctx context.Context, subject, html string) error
}

// Resend posts mail through the Resend HTTP API.
type Resend struct {
	client   *xhttp.Client
	endpoint string
	from     string
	to       []string
	enabled  bool
	l        *applogger.Logger
}

func NewResend(cfg config.Email, l *applogger.Logger) *Resend {
	return &Resend{
		client: xhttp.NewClient(
			xhttp.WithTimeout(cfg.Timeout),
			xhttp.WithBearerToken(cfg.APIKey),
		),
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/emails",
		from:     cfg.Sender,
		to:       splitRecipients(cfg.Receiver),
		enabled:  cfg.Enabled(),
		l:        l,
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID string `json:"id"`
}

func (r *Resend) Send(ctx context.Context, subject, html string) error {
	if !r.enabled {
		return ErrDisabled
	}
	var resp sendResponse
	err := r.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    r.endpoint,
		Body:   sendRequest{From: r.from, To: r.to, Subject: subject, HTML: html},
	}, &resp)
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	r.l.Info("email sent", applogger.String("subject", subject), applogger.String("id", resp.ID))
	return nil
}

func splitRecipients(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
