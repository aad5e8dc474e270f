package management

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yegors/co-track/pkg/logger"
)

// Command is a management instruction understood by position servers
type Command string

const (
	ResetRoute Command = "ResetRoute"
	Shutdown   Command = "Shutdown"
)

// ParseCommand validates a command name
func ParseCommand(s string) (Command, error) {
	switch Command(s) {
	case ResetRoute, Shutdown:
		return Command(s), nil
	default:
		return "", fmt.Errorf("unknown management command %q", s)
	}
}

// Request is the wire body of POST /management
type Request struct {
	Command Command `json:"command"`
}

// Client sends management commands upstream without waiting for them
type Client struct {
	httpClient *http.Client
	url        string
	wg         sync.WaitGroup
	logger     *logger.Logger
}

// NewClient creates a client posting to {baseURL}/management
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        strings.TrimRight(baseURL, "/") + "/management",
		logger:     log.Named("management"),
	}
}

// Send posts cmd in the background. Failures are logged and dropped.
func (c *Client) Send(ctx context.Context, cmd Command) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.post(context.WithoutCancel(ctx), cmd); err != nil {
			c.logger.Debug("Management command failed",
				logger.String("command", string(cmd)),
				logger.Error(err))
			return
		}
		c.logger.Debug("Management command sent", logger.String("command", string(cmd)))
	}()
}

// Wait blocks until every command sent so far has finished
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) post(ctx context.Context, cmd Command) error {
	body, err := json.Marshal(Request{Command: cmd})
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
