package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/farellandr/eventhub/internal/helpers"
	"github.com/farellandr/eventhub/internal/models"
)

// GatewayChannel posts text messages to an HTTP SMS or WhatsApp gateway.
// Requests carry a bearer token and a signed digest of the body.
type GatewayChannel struct {
	channel  models.NotificationChannel
	endpoint string
	clientID string
	token    string
	client   *http.Client
}

type gatewayMessage struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Body    string `json:"body"`
}

type gatewayResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func NewGatewayChannel(channel models.NotificationChannel, endpoint, clientID, token string) *GatewayChannel {
	return &GatewayChannel{
		channel:  channel,
		endpoint: endpoint,
		clientID: clientID,
		token:    token,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *GatewayChannel) Name() models.NotificationChannel { return c.channel }

func (c *GatewayChannel) Send(ctx context.Context, delivery Delivery) Result {
	if delivery.To == "" {
		return Result{Error: "recipient has no phone number"}
	}

	text := delivery.Body
	if delivery.Subject != "" {
		text = delivery.Subject + "\n\n" + delivery.Body
	}
	payload, err := json.Marshal(gatewayMessage{Channel: string(c.channel), To: delivery.To, Body: text})
	if err != nil {
		return Failed(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Failed(err)
	}
	path := "/"
	if u, err := url.Parse(c.endpoint); err == nil && u.Path != "" {
		path = u.Path
	}
	signer := helpers.NewSignatureHeaderGenerator(c.clientID, c.token, path)
	for k, v := range signer.GetHeaders(payload) {
		req.Header.Set(k, v)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return Failed(fmt.Errorf("gateway request failed: %w", err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= 300 {
		return Result{Error: fmt.Sprintf("gateway returned %d", resp.StatusCode)}
	}

	var out gatewayResponse
	if len(body) == 0 {
		return Result{Success: true}
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Failed(fmt.Errorf("invalid gateway response: %w", err))
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = "gateway rejected the message"
		}
		return Result{Error: out.Error}
	}
	return Result{Success: true}
}
