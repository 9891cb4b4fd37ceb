// Package grid waits for the browser grid to accept sessions before workers are started.
package grid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

type statusResponse struct {
	Value struct {
		Ready   bool   `json:"ready"`
		Message string `json:"message"`
	} `json:"value"`
}

type Probe struct {
	url    string
	client *http.Client
}

func NewProbe(gridURL string, client *http.Client) *Probe {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Probe{url: strings.TrimSuffix(gridURL, "/") + "/status", client: client}
}

// Ready performs a single status request.
func (p *Probe) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("invalid grid url: %w", err))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("grid status: %s", resp.Status)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode grid status: %w", err)
	}
	if !status.Value.Ready {
		return fmt.Errorf("grid is not ready: %s", status.Value.Message)
	}
	return nil
}

// WaitReady polls the grid with exponential backoff until it is ready or maxElapsed passes.
func (p *Probe) WaitReady(ctx context.Context, maxElapsed time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, p.Ready(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			zap.S().Named("grid").Debugw("grid not ready", "url", p.url, "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		return fmt.Errorf("grid %s not ready: %w", p.url, err)
	}

	zap.S().Named("grid").Infow("grid is ready", "url", p.url)
	return nil
}
