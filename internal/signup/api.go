package signup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/colcon/colcon-site/internal/registration"
)

// ErrNetwork indicates the registration service could not be reached.
var ErrNetwork = errors.New("registration service unreachable")

// APIError is a non-2xx answer from the registration service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("registration service returned status %d", e.Status)
	}
	return fmt.Sprintf("registration service returned status %d: %s", e.Status, e.Message)
}

// Client talks to the registration API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client for the API rooted at baseURL, e.g.
// http://localhost:3000/api.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  string `json:"userId"`
	Email   string `json:"email"`
}

// Register posts record to the service. Transport failures wrap ErrNetwork;
// non-2xx answers come back as *APIError.
func (c *Client) Register(ctx context.Context, record registration.UserRecord) (*registration.RegisterResult, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/register", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrNetwork, err)
	}
	var decoded apiResponse
	// Error bodies from proxies may not be JSON; the status still decides.
	_ = json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Message: decoded.Message}
	}
	result := &registration.RegisterResult{UserID: decoded.UserID, Email: decoded.Email}
	if result.UserID == "" {
		result.UserID = record.ID
	}
	if result.Email == "" {
		result.Email = record.Email
	}
	return result, nil
}
