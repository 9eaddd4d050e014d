// Package gateway talks to the fingerprint sensor device over its HTTP contract.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/constants"
	"github.com/kozaktomas/attendance-engine/internal/logger"
)

var (
	// ErrUnreachable covers transport errors, non-200 replies, bad JSON and success=false.
	ErrUnreachable = errors.New("fingerprint gateway unreachable")
	// ErrNotEnrolled means the sensor read a finger but holds no template for it.
	ErrNotEnrolled = errors.New("fingerprint not enrolled on sensor")
)

// FailureObserver is told about every failed gateway request. It may be nil.
type FailureObserver interface {
	ObserveGatewayFailure(endpoint string)
}

// Client is a thin HTTP client for the device.
type Client struct {
	baseURL  string
	client   *http.Client
	log      logger.Logger
	observer FailureObserver
}

// NewClient creates a client for the device at baseURL, e.g. http://192.168.137.173:80.
func NewClient(baseURL string, timeout time.Duration, observer FailureObserver) *Client {
	if timeout <= 0 {
		timeout = constants.DefaultGatewayTimeout
	}
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		log:      logger.Named("gateway"),
		observer: observer,
	}
}

// BaseURL returns the device URL the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type identifyResponse struct {
	Success       bool   `json:"success"`
	FingerprintID *int   `json:"fingerprint_id"`
	Confidence    int    `json:"confidence"`
	Error         string `json:"error"`
	Message       string `json:"message"`
}

// Identification is a sensor match.
type Identification struct {
	FingerprintID int
	Confidence    int // sensor-reported, 0 when absent
}

// Identify asks the sensor to read a finger and returns the matched template id.
func (c *Client) Identify(ctx context.Context) (*Identification, error) {
	resp, err := doJSON[identifyResponse](ctx, c, http.MethodGet, "/identify", nil)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		c.fail("/identify")
		return nil, fmt.Errorf("%w: identify failed: %s", ErrUnreachable, firstNonEmpty(resp.Error, resp.Message, "no reason given"))
	}
	if resp.FingerprintID == nil || *resp.FingerprintID <= 0 {
		return nil, ErrNotEnrolled
	}
	return &Identification{FingerprintID: *resp.FingerprintID, Confidence: resp.Confidence}, nil
}

// EnrollRequest is the body of POST /enroll.
type EnrollRequest struct {
	ID            int    `json:"id"`
	StudentName   string `json:"student_name,omitempty"`
	ReferenceCode string `json:"reg_no,omitempty"`
}

type enrollResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Enroll stores a new template on the sensor under req.ID.
func (c *Client) Enroll(ctx context.Context, req EnrollRequest) error {
	req.StudentName = FoldASCII(req.StudentName)
	resp, err := doJSON[enrollResponse](ctx, c, http.MethodPost, "/enroll", req)
	if err != nil {
		return err
	}
	if !resp.Success {
		c.fail("/enroll")
		return fmt.Errorf("%w: enroll failed: %s", ErrUnreachable, firstNonEmpty(resp.Error, resp.Message, "no reason given"))
	}
	return nil
}

// Status returns the device's free-form status document.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	resp, err := doJSON[map[string]any](ctx, c, http.MethodGet, "/status", nil)
	if err != nil {
		return nil, err
	}
	return *resp, nil
}

// Display shows message on the device screen. The message is folded to ASCII.
func (c *Client) Display(ctx context.Context, message string) error {
	endpoint := "/display?message=" + url.QueryEscape(FoldASCII(message))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.fail("/display")
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.fail("/display")
		return fmt.Errorf("%w: display returned status %d", ErrUnreachable, resp.StatusCode)
	}
	return nil
}

// DisplayAsync sends message without waiting. Failures are only logged.
func (c *Client) DisplayAsync(message string, timeout time.Duration) {
	if timeout <= 0 {
		timeout = constants.DisplayTimeout
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := c.Display(ctx, message); err != nil {
			c.log.Warn(ctx, "display message failed", logger.Error(err))
		}
	}()
}

// doJSON performs a request and unmarshals the JSON response into T.
// Every failure is wrapped with ErrUnreachable.
func doJSON[T any](ctx context.Context, c *Client, method, endpoint string, body any) (*T, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("could not marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.fail(endpoint)
		return nil, fmt.Errorf("%w: could not send request: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.fail(endpoint)
		return nil, fmt.Errorf("%w: could not read response body: %v", ErrUnreachable, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.fail(endpoint)
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUnreachable, endpoint, resp.StatusCode)
	}

	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		c.fail(endpoint)
		return nil, fmt.Errorf("%w: could not unmarshal response: %v", ErrUnreachable, err)
	}
	return &result, nil
}

func (c *Client) fail(endpoint string) {
	if c.observer != nil {
		c.observer.ObserveGatewayFailure(endpoint)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
