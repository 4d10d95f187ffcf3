package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the WhatsApp Cloud API root
const DefaultBaseURL = "https://graph.facebook.com/v19.0"

// Client handles WhatsApp Cloud API communication. It implements
// core.Notifier.
type Client struct {
	baseURL       string
	phoneNumberID string
	token         string
	httpClient    *http.Client
	logger        *zap.Logger
}

// NewClient creates a new WhatsApp client
func NewClient(baseURL, phoneNumberID, token string, logger *zap.Logger) (*Client, error) {
	if phoneNumberID == "" {
		return nil, errors.New("WHATSAPP_PHONE_NUMBER_ID is required but not set")
	}
	if token == "" {
		return nil, errors.New("WHATSAPP_TOKEN is required but not set")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:       baseURL,
		phoneNumberID: phoneNumberID,
		token:         token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}, nil
}

// SendMessage sends a generic message payload to WhatsApp
func (c *Client) SendMessage(ctx context.Context, to string, payload interface{}) error {
	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))

	c.logger.Debug("whatsapp request",
		zap.String("to", maskPhone(to)),
		zap.String("token", maskToken(c.token)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whatsapp API error: status %d, phone_number_id: %s, body: %s",
			resp.StatusCode, c.phoneNumberID, string(body))
	}

	return nil
}

// maskToken masks a token for logging (shows first 3 and last 3 chars)
func maskToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	if len(token) <= 6 {
		return "***"
	}
	return token[:3] + "***" + token[len(token)-3:]
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "***"
	}
	return "***" + phone[len(phone)-4:]
}

// SendText sends a simple text message
func (c *Client) SendText(ctx context.Context, phone string, message string) error {
	payload := TextMessage{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "text",
	}
	payload.Text.Body = message

	return c.SendMessage(ctx, phone, payload)
}
