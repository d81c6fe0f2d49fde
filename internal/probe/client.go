// Package probe is the HTTP client for the monitored system's probe
// endpoint: raw telemetry, capability discovery, and step execution.
package probe

// #region imports
import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/danielpatrickdp/regen-loop/internal/entropy"
	"github.com/danielpatrickdp/regen-loop/internal/executor"
	"github.com/danielpatrickdp/regen-loop/internal/plan"
)

// #endregion

// #region config

// ClientConfig holds probe client settings.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	Retries    int
	HTTPClient *http.Client
}

// DefaultClientConfig returns the baseline client configuration.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
		Retries: 2,
	}
}

// #endregion

// #region client

// Client talks to one probe endpoint. It implements the telemetry source
// and the executor runner against the live system.
type Client struct {
	config ClientConfig
	http   *http.Client
}

// NewClient creates a probe client.
func NewClient(config ClientConfig) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	return &Client{config: config, http: httpClient}
}

// #endregion

// #region telemetry

// Measure pulls one raw telemetry batch. Reads retry on transient failure.
func (c *Client) Measure(ctx context.Context, systemID string) (entropy.Batch, error) {
	var batch entropy.Batch
	err := c.getJSON(ctx, c.endpoint(systemID, "telemetry"), &batch)
	if err != nil {
		return entropy.Batch{}, fmt.Errorf("probe: telemetry %s: %w", systemID, err)
	}
	batch.SystemID = systemID
	return batch, nil
}

// Capabilities pulls the system's capability set: supported operations,
// rollback pairings, component bindings, and snapshot availability.
func (c *Client) Capabilities(ctx context.Context, systemID string) (plan.CapabilitySet, error) {
	var caps plan.CapabilitySet
	err := c.getJSON(ctx, c.endpoint(systemID, "capabilities"), &caps)
	if err != nil {
		return plan.CapabilitySet{}, fmt.Errorf("probe: capabilities %s: %w", systemID, err)
	}
	caps.SystemID = systemID
	return caps, nil
}

// #endregion

// #region execution

// stepRequest is the wire form of an execute or rollback call.
type stepRequest struct {
	Step plan.BoundStep `json:"step"`
}

// ExecuteStep asks the system to perform one bound step and run its health
// check. Writes are never retried; a lost response cannot be told apart
// from a lost request.
func (c *Client) ExecuteStep(ctx context.Context, systemID string, step plan.BoundStep) (executor.StepResult, error) {
	return c.postStep(ctx, c.endpoint(systemID, "execute"), step)
}

// RollbackStep asks the system to undo one step via its paired rollback.
func (c *Client) RollbackStep(ctx context.Context, systemID string, step plan.BoundStep) (executor.StepResult, error) {
	return c.postStep(ctx, c.endpoint(systemID, "rollback"), step)
}

func (c *Client) postStep(ctx context.Context, u string, step plan.BoundStep) (executor.StepResult, error) {
	body, err := json.Marshal(stepRequest{Step: step})
	if err != nil {
		return executor.StepResult{}, fmt.Errorf("probe: marshal step: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return executor.StepResult{}, fmt.Errorf("probe: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return executor.StepResult{}, fmt.Errorf("probe: %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return executor.StepResult{}, fmt.Errorf("probe: %s: status %d: %s", u, resp.StatusCode, string(data))
	}

	var result executor.StepResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return executor.StepResult{}, fmt.Errorf("probe: decode step result: %w", err)
	}
	return result, nil
}

// #endregion

// #region http-helpers

func (c *Client) endpoint(systemID, op string) string {
	return fmt.Sprintf("%s/probe/%s/%s", c.config.BaseURL, url.PathEscape(systemID), op)
}

func (c *Client) getJSON(ctx context.Context, u string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.config.Retries; attempt++ {
		if attempt > 0 {
			log.Printf("[PROBE] retry %d for %s", attempt, u)
			select {
			case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
			// Client errors will not improve on retry.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return lastErr
			}
			continue
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("decode: %w", err)
			continue
		}
		return nil
	}
	return lastErr
}

// #endregion
