package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ChatState models the messaging channel session lifecycle
type ChatState int

const (
	StateUnauthenticated ChatState = iota
	StateAwaitingScan
	StateAuthenticated
	StateReady
	StateFailed
)

// String returns the state name
func (s ChatState) String() string {
	switch s {
	case StateAwaitingScan:
		return "awaiting_scan"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unauthenticated"
	}
}

// ErrChatNotReady is returned when a dispatch is attempted before the
// messaging session is ready
var ErrChatNotReady = errors.New("messaging channel is not ready")

// Messenger dispatches text messages over the chat channel
type Messenger interface {
	State() ChatState
	Ready() bool
	Info() (name, identifier string, ok bool)
	// SendText delivers a message to a destination phone number (digits only).
	// It fails with ErrChatNotReady when the session is not ready.
	SendText(ctx context.Context, destination, text string) error
}

// GatewayClient implements Messenger against a WhatsApp web-bridge sidecar
// exposing a small REST surface: GET /status for the session state and
// POST /send for dispatch.
type GatewayClient struct {
	baseURL string
	httpc   *http.Client

	mu    sync.RWMutex
	state ChatState
	name  string
	ident string
}

type gatewayStatus struct {
	State string `json:"state"`
	Info  struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	} `json:"info"`
}

type gatewaySendRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

// NewGatewayClient creates a gateway client for the given base URL
func NewGatewayClient(config *GatewayConfig) *GatewayClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GatewayClient{
		baseURL: config.BaseURL,
		httpc:   &http.Client{Timeout: timeout},
		state:   StateUnauthenticated,
	}
}

// State returns the last observed session state, refreshing it from the
// gateway first
func (c *GatewayClient) State() ChatState {
	c.refresh()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Ready reports whether the channel can dispatch now
func (c *GatewayClient) Ready() bool {
	return c.State() == StateReady
}

// Info returns the authenticated session identity, when known
func (c *GatewayClient) Info() (string, string, bool) {
	c.refresh()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateReady {
		return "", "", false
	}
	return c.name, c.ident, true
}

// refresh queries the gateway status endpoint and updates the cached state.
// A transport error leaves the channel in the failed state until the next
// successful refresh.
func (c *GatewayClient) refresh() {
	resp, err := c.httpc.Get(c.baseURL + "/status")
	if err != nil {
		c.setState(StateFailed, "", "")
		return
	}
	defer resp.Body.Close()

	var status gatewayStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		logrus.Warnf("Failed to decode gateway status: %v", err)
		c.setState(StateFailed, "", "")
		return
	}

	c.setState(parseChatState(status.State), status.Info.Name, status.Info.Phone)
}

func (c *GatewayClient) setState(state ChatState, name, ident string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state != c.state {
		logrus.Infof("Messaging channel state: %s -> %s", c.state, state)
	}
	c.state = state
	c.name = name
	c.ident = ident
}

// parseChatState maps bridge status strings onto the session state machine
func parseChatState(s string) ChatState {
	switch s {
	case "qr", "awaiting_scan":
		return StateAwaitingScan
	case "authenticated":
		return StateAuthenticated
	case "ready", "connected":
		return StateReady
	case "auth_failure", "failed":
		return StateFailed
	default:
		return StateUnauthenticated
	}
}

// SendText dispatches a message through the gateway. Destinations are
// digit-only phone numbers, addressed on the wire as "<digits>@c.us".
func (c *GatewayClient) SendText(ctx context.Context, destination, text string) error {
	if !c.Ready() {
		return ErrChatNotReady
	}

	payload, err := json.Marshal(gatewaySendRequest{
		ChatID:  destination + "@c.us",
		Message: text,
	})
	if err != nil {
		return fmt.Errorf("failed to encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway send returned status %d", resp.StatusCode)
	}
	return nil
}
