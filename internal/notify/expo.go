package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultEndpoint is the Expo push API send endpoint.
const DefaultEndpoint = "https://exp.host/--/api/v2/push/send"

// defaultTimeout bounds one push API round trip.
const defaultTimeout = 10 * time.Second

// pushRequest is one message in the Expo push API request body. The API
// accepts an array of these.
type pushRequest struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Sound string `json:"sound,omitempty"`
}

// Gateway sends push notifications through the Expo push HTTP API.
type Gateway struct {
	endpoint string
	client   *http.Client
}

// NewGateway creates a gateway against the given endpoint. An empty
// endpoint selects DefaultEndpoint; a zero timeout selects the default.
func NewGateway(endpoint string, timeout time.Duration) *Gateway {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Gateway{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Push sends one notification title to every given token in a single
// request. Tokens that do not look like Expo tokens are skipped.
func (g *Gateway) Push(ctx context.Context, tokens []string, title string) error {
	messages := make([]pushRequest, 0, len(tokens))
	for _, token := range tokens {
		if !IsExpoPushToken(token) {
			continue
		}
		messages = append(messages, pushRequest{
			To:    token,
			Title: title,
			Sound: "default",
		})
	}
	if len(messages) == 0 {
		return nil
	}

	body, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshalling push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a bounded chunk of the body for diagnostics.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrGatewayFailure, resp.StatusCode, bytes.TrimSpace(msg))
	}

	return nil
}
