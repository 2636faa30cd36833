// Package game is the boundary to the game server. The core pushes kicks and
// in-game chat through it; player presence is read through it for the info
// panel. The reference implementation posts JSON commands to a webhook the
// game-side plugin exposes, symmetric to the channel webhook backend.
package game

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PlayerStatus describes an online player as reported by the game server.
type PlayerStatus struct {
	Online bool   `json:"online"`
	Server string `json:"server"`
	IP     string `json:"ip"`
}

// Server is the game-side collaborator.
type Server interface {
	// Tell sends an in-game chat message to the player if online.
	Tell(ctx context.Context, nickname, text string) error

	// Kick disconnects the player with the given reason if online.
	// Returns false when the player was not online.
	Kick(ctx context.Context, nickname, reason string) (bool, error)

	// Status reports whether the player is online and where.
	Status(ctx context.Context, nickname string) (PlayerStatus, error)
}

// WebhookServer posts commands to the game plugin's HTTP endpoint.
type WebhookServer struct {
	url    string
	secret string
	client *http.Client
}

func NewWebhookServer(url, secret string) *WebhookServer {
	return &WebhookServer{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type commandRequest struct {
	Action   string `json:"action"`
	Nickname string `json:"nickname"`
	Text     string `json:"text,omitempty"`
}

type commandResponse struct {
	Online bool   `json:"online"`
	Server string `json:"server"`
	IP     string `json:"ip"`
}

func (s *WebhookServer) post(ctx context.Context, req commandRequest) (*commandResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Webhook-Secret", s.secret)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("game webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("game webhook returned status %d", resp.StatusCode)
	}

	var out commandResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding game webhook response: %w", err)
	}
	return &out, nil
}

func (s *WebhookServer) Tell(ctx context.Context, nickname, text string) error {
	_, err := s.post(ctx, commandRequest{Action: "tell", Nickname: nickname, Text: text})
	return err
}

func (s *WebhookServer) Kick(ctx context.Context, nickname, reason string) (bool, error) {
	resp, err := s.post(ctx, commandRequest{Action: "kick", Nickname: nickname, Text: reason})
	if err != nil {
		return false, err
	}
	return resp.Online, nil
}

func (s *WebhookServer) Status(ctx context.Context, nickname string) (PlayerStatus, error) {
	resp, err := s.post(ctx, commandRequest{Action: "status", Nickname: nickname})
	if err != nil {
		return PlayerStatus{}, err
	}
	return PlayerStatus{Online: resp.Online, Server: resp.Server, IP: resp.IP}, nil
}

var _ Server = (*WebhookServer)(nil)

// NoopServer ignores every command. Used when no game webhook is configured.
type NoopServer struct{}

func (NoopServer) Tell(ctx context.Context, nickname, text string) error { return nil }

func (NoopServer) Kick(ctx context.Context, nickname, reason string) (bool, error) {
	return false, nil
}

func (NoopServer) Status(ctx context.Context, nickname string) (PlayerStatus, error) {
	return PlayerStatus{}, nil
}

var _ Server = NoopServer{}
