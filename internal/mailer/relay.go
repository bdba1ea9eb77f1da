package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/aliuyar1234/inviteguard/internal/apperrors"
	"github.com/aliuyar1234/inviteguard/internal/invitations"
	"github.com/rs/zerolog/log"
)

// DeliveryFailedMessage is the client-facing message of every transport
// error returned by RelayClient.
const DeliveryFailedMessage = "failed to deliver invitation email"

// RelayConfig configures a RelayClient.
type RelayConfig struct {
	URL       string
	Token     string
	From      string
	BaseURL   string
	TimeoutMS int
}

// RelayClient delivers invitation emails through an HTTP mail relay
type RelayClient struct {
	httpClient *http.Client
	timeout    time.Duration
	url        string
	token      string
	from       string
	baseURL    string
}

// NewRelayClient creates a relay client with the configured timeout
func NewRelayClient(cfg RelayConfig) *RelayClient {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	return &RelayClient{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		url:        cfg.URL,
		token:      cfg.Token,
		from:       cfg.From,
		baseURL:    cfg.BaseURL,
	}
}

// relayPayload represents the JSON payload sent to the relay
type relayPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// SendInvitation posts the invitation email to the relay. Any failure,
// including a non-2xx status, is returned as a transport error.
func (c *RelayClient) SendInvitation(ctx context.Context, msg invitations.Message) error {
	payload := relayPayload{
		From:    c.from,
		To:      msg.ToEmail,
		Subject: Subject(msg),
		Text:    Body(c.baseURL, msg),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Transport(DeliveryFailedMessage, fmt.Errorf("marshal relay payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonData))
	if err != nil {
		return apperrors.Transport(DeliveryFailedMessage, fmt.Errorf("create relay request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeoutError(err) {
			log.Warn().
				Err(err).
				Dur("timeout", c.timeout).
				Msg("Mail relay timed out")
		} else {
			log.Warn().
				Err(err).
				Msg("Failed to reach mail relay")
		}
		return apperrors.Transport(DeliveryFailedMessage, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().
			Int("status_code", resp.StatusCode).
			Msg("Mail relay rejected invitation email")
		return apperrors.Transport(DeliveryFailedMessage, fmt.Errorf("relay returned status %d", resp.StatusCode))
	}

	log.Info().Int("status_code", resp.StatusCode).Msg("Invitation email handed to relay")
	return nil
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ invitations.Notifier = (*RelayClient)(nil)
