package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yegors/co-track/pkg/logger"
)

// Client polls an upstream position server over HTTP
type Client struct {
	httpClient *http.Client
	baseURL    string
	headingRef HeadingReference
	now        func() time.Time
	logger     *logger.Logger
}

// NewClient creates a new position client
func NewClient(baseURL string, timeout time.Duration, headingRef HeadingReference, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		headingRef: headingRef,
		now:        time.Now,
		logger:     log.Named("telemetry"),
	}
}

// Fetch requests the samples after known from {base}/position/{known}
func (c *Client) Fetch(ctx context.Context, known int) (Batch, error) {
	url := fmt.Sprintf("%s/position/%d", c.baseURL, known)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Batch{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Batch{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return Batch{}, ErrNoData
	default:
		return Batch{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Batch{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var batch Batch
	if err := json.Unmarshal(body, &batch); err != nil {
		return Batch{}, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if batch.RouteID == "" && len(batch.Points) == 0 {
		return Batch{}, ErrNoData
	}

	if c.headingRef == HeadingMagnetic {
		toTrue(batch.Points, c.now())
	}

	c.logger.Debug("Fetched positions",
		logger.String("route_id", batch.RouteID),
		logger.Int("known", known),
		logger.Int("count", len(batch.Points)))

	return batch, nil
}
