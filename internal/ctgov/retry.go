package ctgov

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig controls the exponential backoff applied to registry calls.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns the backoff used in production.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 4,
		BaseDelay:  2 * time.Second,
		MaxDelay:   15 * time.Second,
	}
}

// withRetry runs operation with exponential backoff. Only transient
// failures (transport errors, 429, 5xx) are retried; not-found and
// other 4xx responses surface immediately.
func (c *Client) withRetry(ctx context.Context, name string, operation func() error) error {
	cfg := c.retry

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}

		if attempt == cfg.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, cfg.MaxRetries, err)
		}

		delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(1.5, float64(attempt)))
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}

		c.logger.WithFields(logrus.Fields{
			"operation": name,
			"attempt":   attempt + 1,
			"delay":     delay,
			"error":     err.Error(),
		}).Warn("Retrying registry operation")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil
}

// isTransient reports whether err is worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, ErrStudyNotFound) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	// Transport-level failures (connection reset, timeout) are transient.
	return true
}
