package gstpipe

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ReconnectConfig contains configuration for exponential backoff restarts.
type ReconnectConfig struct {
	MaxRetries    int           // default 5
	RetryDelay    time.Duration // initial delay, default 1s
	MaxRetryDelay time.Duration // cap, default 30s
}

// DefaultReconnectConfig returns the default restart policy.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// ReconnectState tracks restart attempts.
type ReconnectState struct {
	currentRetries atomic.Int32
	Reconnects     *uint32 // atomic; lifetime total
}

// NewReconnectState returns a zeroed state.
func NewReconnectState() *ReconnectState {
	return &ReconnectState{Reconnects: new(uint32)}
}

// CurrentRetries returns the consecutive failures since the last reset.
func (s *ReconnectState) CurrentRetries() int {
	return int(s.currentRetries.Load())
}

// Reset clears the consecutive failure count, typically when the pipeline
// reaches PLAYING.
func (s *ReconnectState) Reset() {
	s.currentRetries.Store(0)
	logrus.Debug("gstpipe: reconnect state reset")
}

// ConnectFunc runs one pipeline session. It returns nil on graceful
// shutdown and an error to request a restart.
type ConnectFunc func(ctx context.Context, attempt int) error

// RunWithReconnect runs connectFn until it returns nil, the context ends, or
// MaxRetries consecutive failures occur. Failures are separated by
// RetryDelay*2^(n-1), capped at MaxRetryDelay.
func RunWithReconnect(ctx context.Context, connectFn ConnectFunc, cfg ReconnectConfig, state *ReconnectState) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			logrus.Info("gstpipe: context cancelled, stopping reconnection")
			return ctx.Err()
		default:
		}

		err := connectFn(ctx, attempt)
		if err == nil {
			state.Reset()
			return nil
		}

		retries := int(state.currentRetries.Add(1))
		atomic.AddUint32(state.Reconnects, 1)
		attempt++

		logrus.WithError(err).WithField("attempt", retries).Error("gstpipe: pipeline session failed")

		if retries > cfg.MaxRetries {
			return fmt.Errorf("gstpipe: max retries exceeded (%d attempts): %w", cfg.MaxRetries, err)
		}

		delay := calculateBackoff(retries, cfg)
		logrus.WithFields(logrus.Fields{
			"attempt":     retries,
			"max_retries": cfg.MaxRetries,
			"delay":       delay,
		}).Warn("gstpipe: restarting pipeline")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			logrus.Info("gstpipe: context cancelled during backoff")
			return ctx.Err()
		}
	}
}

// calculateBackoff returns RetryDelay * 2^(attempt-1), capped at
// MaxRetryDelay.
func calculateBackoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Past 2^30 the cap always applies; avoid shifting into overflow.
	if attempt > 31 {
		return cfg.MaxRetryDelay
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay || delay <= 0 {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
