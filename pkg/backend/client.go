// pkg/backend/client.go
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/webgym/webgym/internal/config"
	"github.com/webgym/webgym/pkg/schemas"
)

// Client is the contract against the demo web backend's event/reset API.
// Every call is a no-op returning empty/nil when the task targets a real
// (non-demo) website.
type Client interface {
	GetBackendEvents(ctx context.Context, agentID string) ([]schemas.BackendEvent, error)
	ResetDatabase(ctx context.Context, agentID string) error
	ResetWebAgentEvents(ctx context.Context, agentID string) error
	SendEvent(ctx context.Context, name string, data map[string]interface{}, agentID string) error
	Close()
}

// DemoWebClient talks HTTP to the demo backend service.
type DemoWebClient struct {
	baseURL    string
	isWebReal  bool
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *zap.Logger
}

var _ Client = (*DemoWebClient)(nil)

// NewDemoWebClient builds a client for one evaluation. When isWebReal is
// true the client degrades to a stub: real external sites carry no backend
// instrumentation.
func NewDemoWebClient(cfg config.BackendConfig, isWebReal bool, logger *zap.Logger) *DemoWebClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DemoWebClient{
		baseURL:   cfg.BaseURL,
		isWebReal: isWebReal,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		maxRetries: cfg.MaxRetries,
		logger:     logger.Named("backend_client"),
	}
}

// GetBackendEvents fetches every event the backend recorded for the agent.
func (c *DemoWebClient) GetBackendEvents(ctx context.Context, agentID string) ([]schemas.BackendEvent, error) {
	if c.isWebReal {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/api/v1/events?web_agent_id=%s", c.baseURL, url.QueryEscape(agentID))
	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch backend events: %w", err)
	}

	var events []schemas.BackendEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("failed to decode backend events: %w", err)
	}
	return events, nil
}

// ResetDatabase restores the backend dataset for the agent's scope. Must
// complete before any of the agent's actions run.
func (c *DemoWebClient) ResetDatabase(ctx context.Context, agentID string) error {
	if c.isWebReal {
		return nil
	}
	payload := map[string]string{"web_agent_id": agentID}
	if _, err := c.post(ctx, "/api/v1/reset", payload); err != nil {
		return fmt.Errorf("failed to reset backend database: %w", err)
	}
	return nil
}

// ResetWebAgentEvents clears the recorded event log for one agent.
func (c *DemoWebClient) ResetWebAgentEvents(ctx context.Context, agentID string) error {
	if c.isWebReal {
		return nil
	}
	payload := map[string]string{"web_agent_id": agentID}
	if _, err := c.post(ctx, "/api/v1/events/reset", payload); err != nil {
		return fmt.Errorf("failed to reset web agent events: %w", err)
	}
	return nil
}

// SendEvent records a synthetic event; used by instrumented harnesses.
func (c *DemoWebClient) SendEvent(ctx context.Context, name string, data map[string]interface{}, agentID string) error {
	if c.isWebReal {
		return nil
	}
	payload := map[string]interface{}{
		"event_name":   name,
		"data":         data,
		"web_agent_id": agentID,
	}
	if _, err := c.post(ctx, "/api/v1/events", payload); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	return nil
}

// Close releases pooled connections.
func (c *DemoWebClient) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *DemoWebClient) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+path, body)
}

// do performs one rate-limited request with retries on transient failures.
func (c *DemoWebClient) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var respBody []byte

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Debug("Backend request failed, retrying...", zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return nil
		case resp.StatusCode >= http.StatusInternalServerError,
			resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("backend returned status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("backend returned status %d: %s", resp.StatusCode, respBody))
		}
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries))
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return respBody, nil
}
