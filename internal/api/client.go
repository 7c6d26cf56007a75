// Package api is the REST command client the board coordinator issues
// booking commands through. Every request carries the bearer credential
// supplied by the auth collaborator; responses are mapped onto the shared
// error taxonomy so the coordinator can tell a conflict from a transport
// failure.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"studioboard/internal/domain"
	"studioboard/internal/modules/board"
)

// TokenSource supplies the bearer credential for each request.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource wrapping a fixed credential.
type StaticToken string

func (t StaticToken) Token() (string, error) { return string(t), nil }

type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	log     *zap.Logger
}

var _ board.CommandClient = (*Client)(nil)

func NewClient(baseURL string, token TokenSource, timeout time.Duration, log *zap.Logger) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		token:   token,
		log:     log,
	}
}

func (c *Client) CreateBooking(ctx context.Context, req board.CreateRequest) (*domain.Booking, error) {
	var out domain.Booking
	if err := c.do(ctx, http.MethodPost, "/api/v1/bookings", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateBooking(ctx context.Context, id, expectedVersion int64, req board.UpdateRequest) (*domain.Booking, error) {
	body := struct {
		board.UpdateRequest
		ExpectedVersion int64 `json:"expected_version"`
	}{UpdateRequest: req, ExpectedVersion: expectedVersion}

	var out domain.Booking
	path := fmt.Sprintf("/api/v1/bookings/%d", id)
	if err := c.do(ctx, http.MethodPatch, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TransitionBooking(ctx context.Context, id, expectedVersion int64, target domain.BookingState, reason string) (*domain.Booking, error) {
	body := struct {
		TargetState     domain.BookingState `json:"target_state"`
		Reason          string              `json:"reason,omitempty"`
		ExpectedVersion int64               `json:"expected_version"`
	}{TargetState: target, Reason: reason, ExpectedVersion: expectedVersion}

	var out domain.Booking
	path := fmt.Sprintf("/api/v1/bookings/%d/transition", id)
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListBookings(ctx context.Context, date time.Time, space domain.Space) ([]domain.Booking, error) {
	q := url.Values{}
	q.Set("date", date.UTC().Format("2006-01-02"))
	if space != "" {
		q.Set("space", string(space))
	}

	var out []domain.Booking
	if err := c.do(ctx, http.MethodGet, "/api/v1/bookings?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	var out domain.Booking
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// envelope matches the server's response format.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tok, err := c.token.Token()
	if err != nil {
		return fmt.Errorf("%w: credential: %v", domain.ErrUnauthorized, err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures and timeouts are transport errors; the
		// coordinator rolls back and never retries on its own.
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrTransport, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: malformed response (%s): %v", domain.ErrTransport, resp.Status, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && env.Success {
		if target == nil || len(env.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("%w: decode payload: %v", domain.ErrTransport, err)
		}
		return nil
	}

	return c.mapError(resp.StatusCode, env)
}

func (c *Client) mapError(status int, env envelope) error {
	code, msg := "", ""
	if env.Error != nil {
		code, msg = env.Error.Code, env.Error.Message
	}
	c.log.Debug("command rejected",
		zap.Int("status", status), zap.String("code", code), zap.String("message", msg))

	switch {
	case status == http.StatusConflict && code == "STALE_VERSION":
		return fmt.Errorf("%w: %s", domain.ErrStaleVersion, msg)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrConflict, msg)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		if code == "INVALID_TRANSITION" {
			return fmt.Errorf("%w: %s", domain.ErrInvalidTransition, msg)
		}
		return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
	default:
		return fmt.Errorf("%w: unexpected status %d: %s", domain.ErrTransport, status, msg)
	}
}

// Login exchanges operator credentials for a bearer token at the auth
// endpoint. It is a package function rather than a Client method because the
// client itself needs the token to exist.
func Login(ctx context.Context, baseURL, email, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+"/api/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}

	var env struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil || !env.Success {
		return "", fmt.Errorf("%w: login rejected (%s)", domain.ErrUnauthorized, resp.Status)
	}
	return env.Data.Token, nil
}
