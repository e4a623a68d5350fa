// Package scraper implements the authenticated REST client for one Eaton UPS.
// A Client owns its HTTP session and bearer token, logs in again when the
// device drops the session, and assembles one measurement snapshot per call.
package scraper

import (
	"context"
	"crypto/tls"
	"sync"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Guliveer/eaton-ups-exporter/internal/config"
	"github.com/Guliveer/eaton-ups-exporter/internal/models"
)

// FailureHook is called with every classified failure a Client swallows.
type FailureHook func(device string, err *Error)

// Option configures a Client.
type Option func(*Client)

// WithFailureHook registers fn to observe classified failures.
func WithFailureHook(fn FailureHook) Option {
	return func(c *Client) { c.onFailure = fn }
}

// WithLoginTimeoutMasking reports a re-login that timed out as
// AuthenticationFailed instead of TimeoutError.
func WithLoginTimeoutMasking(enabled bool) Option {
	return func(c *Client) { c.maskLoginTimeout = enabled }
}

// Client scrapes one UPS device. Calls on one Client are serialized.
type Client struct {
	device config.Device
	http   *resty.Client
	logger *zap.Logger

	maskLoginTimeout bool
	onFailure        FailureHook

	mu      sync.Mutex
	session session
	upsID   string
}

// New creates a Client for the given device. The device's insecure flag
// applies to this client's HTTP session only.
func New(device config.Device, logger *zap.Logger, opts ...Option) *Client {
	defaults := config.DefaultConfig().Collection
	if device.LoginTimeout.Duration <= 0 {
		device.LoginTimeout = defaults.LoginTimeout
	}
	if device.RequestTimeout.Duration <= 0 {
		device.RequestTimeout = defaults.RequestTimeout
	}

	httpClient := resty.New().
		SetLogger(logger.Sugar()).
		SetHeader("Accept", "application/json, text/plain, */*").
		SetHeader("User-Agent", "eaton-ups-exporter")
	if device.Insecure {
		httpClient.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) // #nosec G402 -- self-signed device certificates
	}

	c := &Client{
		device: device,
		http:   httpClient,
		logger: logger,
		upsID:  device.Name,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the configured display name, or the device address when none
// was configured.
func (c *Client) Name() string {
	if c.device.Name != "" {
		return c.device.Name
	}
	return c.device.Address
}

// UPSID returns the stable identifier used to label this device's
// measurements, or "" if it has not been resolved yet.
func (c *Client) UPSID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upsID
}

// GetMeasures scrapes one snapshot. Classified failures are logged and
// reported as a nil snapshot with a nil error; any other error is returned.
// Failures caused by cancellation of ctx are neither logged as errors nor
// passed to the failure hook.
func (c *Client) GetMeasures(ctx context.Context) (*models.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.assemble(ctx)
	if err != nil {
		e, ok := AsError(err)
		if !ok {
			return nil, err
		}
		if ctx.Err() != nil {
			// The caller gave up on this device and accounts for it.
			c.logger.Debug("Scrape cancelled",
				zap.String("address", c.device.Address),
				zap.String("code", e.Code.String()))
			return nil, nil
		}
		c.logger.Error("Scrape failed",
			zap.String("address", c.device.Address),
			zap.String("code", e.Code.String()),
			zap.String("error", e.Message))
		if c.onFailure != nil {
			c.onFailure(c.Name(), e)
		}
		return nil, nil
	}
	return snap, nil
}

// LogMeasures downloads the device's measure log as CSV. Unlike GetMeasures,
// classified failures are returned to the caller.
func (c *Client) LogMeasures(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logURL, err := c.resolve(logMeasuresPath)
	if err != nil {
		return nil, err
	}
	return c.loadPage(ctx, logURL)
}
