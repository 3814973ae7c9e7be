package channel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sroepkeee/orderhub-notify/internal/queue"
)

// WhatsAppGateway sends messages through the HTTP API of the WhatsApp
// gateway the organization runs.
type WhatsAppGateway struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewWhatsAppGateway(baseURL, token string) *WhatsAppGateway {
	return &WhatsAppGateway{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Body    string `json:"body"`
	Media   string `json:"media,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

func (g *WhatsAppGateway) Send(ctx context.Context, address, content string, media *queue.MediaPayload) (*Result, error) {
	payload := sendRequest{To: address, Body: content}
	if media != nil {
		payload.Media = base64.StdEncoding.EncodeToString(media.Data)
		payload.Caption = media.Caption
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelDown, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: gateway returned %d", ErrChannelDown, resp.StatusCode)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || out.Error != "" {
		return nil, fmt.Errorf("gateway rejected message to %s: %s", address, out.Error)
	}
	return &Result{ProviderMessageID: out.MessageID}, nil
}
