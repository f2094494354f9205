package remnawave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const bytesInGB = 1 << 30

// GBToBytes converts a plan traffic limit; 0 stays unlimited.
func GBToBytes(gb int) int64 {
	if gb <= 0 {
		return 0
	}
	return int64(gb) * bytesInGB
}

type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remnawave %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

type User struct {
	UUID            uuid.UUID `json:"uuid"`
	Username        string    `json:"username"`
	Status          string    `json:"status"`
	ExpireAt        time.Time `json:"expireAt"`
	SubscriptionURL string    `json:"subscriptionUrl"`
}

type CreateUserRequest struct {
	Username             string    `json:"username"`
	Status               string    `json:"status,omitempty"`
	ExpireAt             time.Time `json:"expireAt"`
	TrafficLimitBytes    int64     `json:"trafficLimitBytes"`
	TrafficLimitStrategy string    `json:"trafficLimitStrategy,omitempty"`
	HwidDeviceLimit      int       `json:"hwidDeviceLimit"`
	TelegramID           int64     `json:"telegramId,omitempty"`
	Tag                  string    `json:"tag,omitempty"`
	ActiveInternalSquads []string  `json:"activeInternalSquads,omitempty"`
	ExternalSquadUUID    string    `json:"externalSquadUuid,omitempty"`
}

type UpdateUserRequest struct {
	UUID                 uuid.UUID `json:"uuid"`
	Status               string    `json:"status,omitempty"`
	ExpireAt             time.Time `json:"expireAt"`
	TrafficLimitBytes    int64     `json:"trafficLimitBytes"`
	TrafficLimitStrategy string    `json:"trafficLimitStrategy,omitempty"`
	HwidDeviceLimit      int       `json:"hwidDeviceLimit"`
	Tag                  string    `json:"tag,omitempty"`
	ActiveInternalSquads []string  `json:"activeInternalSquads,omitempty"`
	ExternalSquadUUID    string    `json:"externalSquadUuid,omitempty"`
}

// Client talks to the Remnawave panel REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL, token string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 25 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{baseURL: baseURL, token: token, http: httpClient, log: log}
}

func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodPost, "/api/users", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) UpdateUser(ctx context.Context, req UpdateUserRequest) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodPatch, "/api/users", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/api/users/"+id.String(), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/users/"+id.String(), nil, nil)
}

// do sends the request and unwraps the {"response": ...} envelope into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remnawave %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("remnawave %s %s: %w", method, path, err)
	}
	c.log.Debug("remnawave request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	envelope := struct {
		Response json.RawMessage `json:"response"`
	}{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("remnawave %s %s: %w", method, path, err)
	}
	if len(envelope.Response) == 0 {
		return fmt.Errorf("remnawave %s %s: empty response", method, path)
	}
	return json.Unmarshal(envelope.Response, out)
}
