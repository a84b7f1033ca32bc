package k8s

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Client wraps client-go for one cluster: the core clientset, the
// metrics.k8s.io clientset, a per-call timeout and an optional rate limiter.
type Client struct {
	Clientset kubernetes.Interface
	Metrics   metricsclient.Interface
	Config    *rest.Config
	ClusterID string
	// Timeout for outbound API calls; 0 means no timeout (request context only).
	Timeout time.Duration
	// limiter optionally rate-limits outbound API calls per cluster. Nil = no limit.
	limiter *rate.Limiter
	// Health: last successful call time, last error.
	lastSuccessTime time.Time
	lastError       error
	healthMu        sync.RWMutex
}

// NewClient creates a client from a kubeconfig path. An empty path tries
// in-cluster config first, then the default kubeconfig location.
func NewClient(kubeconfigPath string) (*Client, error) {
	var config *rest.Config
	var err error

	if kubeconfigPath == "" {
		config, err = rest.InClusterConfig()
		if err != nil {
			homeDir, _ := os.UserHomeDir()
			if homeDir != "" {
				kubeconfigPath = filepath.Join(homeDir, ".kube", "config")
			}
		}
	}

	if config == nil {
		config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfigPath},
			&clientcmd.ConfigOverrides{},
		).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to build config: %w", err)
		}
	}

	return newFromConfig(config)
}

// NewClientFromBytes creates a client from inline kubeconfig content, so
// callers can register clusters without a file on disk.
func NewClientFromBytes(kubeconfig []byte) (*Client, error) {
	rawConfig, err := clientcmd.Load(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	contextToUse := rawConfig.CurrentContext
	if contextToUse == "" {
		return nil, fmt.Errorf("kubeconfig has no current context")
	}
	if _, exists := rawConfig.Contexts[contextToUse]; !exists {
		return nil, fmt.Errorf("context %s not found in kubeconfig", contextToUse)
	}

	config, err := clientcmd.NewNonInteractiveClientConfig(
		*rawConfig,
		contextToUse,
		&clientcmd.ConfigOverrides{},
		&clientcmd.ClientConfigLoadingRules{},
	).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build config for context %s: %w", contextToUse, err)
	}

	return newFromConfig(config)
}

func newFromConfig(config *rest.Config) (*Client, error) {
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	metricsClientset, err := metricsclient.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics clientset: %w", err)
	}
	return &Client{
		Clientset:       clientset,
		Metrics:         metricsClientset,
		Config:          config,
		lastSuccessTime: time.Now(),
	}, nil
}

// SetTimeout sets the timeout for outbound API calls.
func (c *Client) SetTimeout(d time.Duration) {
	c.Timeout = d
}

// SetLimiter sets a token-bucket rate limiter for outbound API calls.
func (c *Client) SetLimiter(l *rate.Limiter) {
	c.limiter = l
}

func (c *Client) waitRateLimit(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// withTimeout returns ctx with the client timeout applied if set; otherwise
// ctx and a no-op cancel.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return ctx, func() {}
}

// Version returns the Kubernetes server version.
func (c *Client) Version(ctx context.Context) (string, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return "", err
	}
	version, err := c.Clientset.Discovery().ServerVersion()
	c.updateHealth(err)
	if err != nil {
		return "", err
	}
	return version.GitVersion, nil
}

// Ping verifies connectivity to the cluster (with timeout and retry).
func (c *Client) Ping(ctx context.Context) error {
	if err := c.waitRateLimit(ctx); err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	err := doWithRetry(ctx, defaultRetryAttempts, func() error {
		_, err := c.Clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{Limit: 1})
		return err
	})
	c.updateHealth(err)
	return err
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

// HealthStatus returns the connection health of this cluster client.
func (c *Client) HealthStatus() (isHealthy bool, lastSuccess time.Time, lastErr error) {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.lastError == nil, c.lastSuccessTime, c.lastError
}

// NewClientForTest creates a Client over the given clientsets. Config is nil;
// callers must not use methods that need it.
func NewClientForTest(clientset kubernetes.Interface, metrics metricsclient.Interface) *Client {
	return &Client{
		Clientset:       clientset,
		Metrics:         metrics,
		lastSuccessTime: time.Now(),
	}
}
