package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrDeliveryFailed is returned when the mail relay did not accept a message.
var ErrDeliveryFailed = errors.New("mail delivery failed")

// Sender delivers a pre-rendered email. The invitation workflow never
// renders templates through this interface; bodies arrive ready to send.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Client delivers transactional email through an HTTP relay endpoint.
type Client struct {
	httpClient *http.Client
	relayURL   string
	from       string
	timeout    time.Duration
}

// NewClient creates a mail relay client with the specified timeout.
func NewClient(relayURL, from string, timeoutMS int) *Client {
	timeout := time.Duration(timeoutMS) * time.Millisecond
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		relayURL:   relayURL,
		from:       from,
		timeout:    timeout,
	}
}

// relayPayload is the JSON payload sent to the mail relay.
type relayPayload struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}

// Send delivers one message. Unlike a fire-and-forget webhook, failures are
// returned to the caller: the invitation workflow needs to report that
// identity and profile state committed but delivery did not.
func (c *Client) Send(ctx context.Context, to, subject, htmlBody string) error {
	payload := relayPayload{
		From:     c.from,
		To:       to,
		Subject:  subject,
		HTMLBody: htmlBody,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || isTimeoutError(err) {
			log.Warn().
				Err(err).
				Dur("timeout", c.timeout).
				Str("to", to).
				Msg("Mail relay timed out")
			return fmt.Errorf("%w: relay timeout: %v", ErrDeliveryFailed, err)
		}
		log.Warn().Err(err).Str("to", to).Msg("Failed to reach mail relay")
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Warn().
			Int("status_code", resp.StatusCode).
			Str("to", to).
			Msg("Mail relay rejected message")
		return fmt.Errorf("%w: relay returned status %d", ErrDeliveryFailed, resp.StatusCode)
	}

	log.Info().
		Str("to", to).
		Str("subject", subject).
		Msg("Email delivered to relay")
	return nil
}

// isTimeoutError checks if an error is a timeout error
func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
