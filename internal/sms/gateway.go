package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Gateway posts outbound SMS to an HTTP provider. Treated as slow and
// unreliable; callers decide retry policy.
type Gateway struct {
	Endpoint string
	APIKey   string
	Sender   string
	Client   *http.Client
}

func NewGateway(endpoint, apiKey, sender string) *Gateway {
	return &Gateway{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Sender:   sender,
		Client:   &http.Client{Timeout: 3 * time.Second},
	}
}

func (g *Gateway) Send(ctx context.Context, phone, body string) error {
	payload := map[string]string{"to": phone, "message": body, "sender": g.Sender}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway status %d", resp.StatusCode)
	}
	return nil
}
