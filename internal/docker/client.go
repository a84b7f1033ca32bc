// Package docker implements the Docker Engine connector: container listing,
// one-shot stats, logs and lifecycle actions against one registered host.
package docker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/client"
	"golang.org/x/time/rate"

	"github.com/fleetglass/fleetglass-backend/internal/models"
)

// Client wraps the Engine API client for one host, with a per-call timeout
// and an optional rate limiter.
type Client struct {
	api    client.APIClient
	HostID string
	// Timeout for outbound Engine API calls; 0 means no timeout.
	Timeout time.Duration
	// limiter optionally rate-limits outbound calls per host. Nil = no limit.
	limiter *rate.Limiter
	// Health: last successful call time, last error.
	lastSuccessTime time.Time
	lastError       error
	healthMu        sync.RWMutex
}

// NewClient creates a client for the given endpoint (unix:///var/run/docker.sock
// or tcp://host:2375). An empty endpoint falls back to the environment
// (DOCKER_HOST et al).
func NewClient(endpoint string) (*Client, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if endpoint != "" {
		opts = append(opts, client.WithHost(endpoint))
	} else {
		opts = append(opts, client.FromEnv)
	}
	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Client{
		api:             api,
		lastSuccessTime: time.Now(),
	}, nil
}

// NewClientForTest creates a Client over the given API implementation.
func NewClientForTest(api client.APIClient) *Client {
	return &Client{api: api, lastSuccessTime: time.Now()}
}

// SetTimeout sets the timeout for outbound Engine API calls.
func (c *Client) SetTimeout(d time.Duration) {
	c.Timeout = d
}

// SetLimiter sets a token-bucket rate limiter for outbound Engine API calls.
func (c *Client) SetLimiter(l *rate.Limiter) {
	c.limiter = l
}

func (c *Client) waitRateLimit(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return ctx, func() {}
}

// Ping verifies connectivity to the engine.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.waitRateLimit(ctx); err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	_, err := c.api.Ping(ctx)
	c.updateHealth(err)
	return err
}

// Info returns an engine summary for host detail views.
func (c *Client) Info(ctx context.Context) (models.EngineInfo, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return models.EngineInfo{}, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	info, err := c.api.Info(ctx)
	c.updateHealth(err)
	if err != nil {
		return models.EngineInfo{}, fmt.Errorf("engine info: %w", err)
	}
	return models.EngineInfo{
		ServerVersion:     info.ServerVersion,
		OperatingSystem:   info.OperatingSystem,
		Architecture:      info.Architecture,
		NCPU:              info.NCPU,
		MemTotal:          info.MemTotal,
		Containers:        info.Containers,
		ContainersRunning: info.ContainersRunning,
		ContainersPaused:  info.ContainersPaused,
		ContainersStopped: info.ContainersStopped,
		Images:            info.Images,
	}, nil
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.api.Close()
}

func (c *Client) updateHealth(err error) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	if err == nil {
		c.lastSuccessTime = time.Now()
		c.lastError = nil
	} else {
		c.lastError = err
	}
}

// HealthStatus returns the connection health of this host client.
func (c *Client) HealthStatus() (isHealthy bool, lastSuccess time.Time, lastErr error) {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.lastError == nil, c.lastSuccessTime, c.lastError
}
