package ai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
)

type RetryingCompleter struct {
	base           Completer
	maxAttempts    int
	baseDelay      time.Duration
	attemptTimeout time.Duration
	log            logrus.FieldLogger
}

// NewRetryingCompleter retries transient failures with exponential backoff
// (baseDelay, 2*baseDelay, ...). maxAttempts counts the first call. Each
// attempt gets its own attemptTimeout, so a slow call can be retried.
func NewRetryingCompleter(base Completer, maxAttempts int, baseDelay, attemptTimeout time.Duration, log logrus.FieldLogger) *RetryingCompleter {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Second
	}
	return &RetryingCompleter{
		base:           base,
		maxAttempts:    maxAttempts,
		baseDelay:      baseDelay,
		attemptTimeout: attemptTimeout,
		log:            log,
	}
}

func (r *RetryingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	delay := r.baseDelay
	for attempt := 1; ; attempt++ {
		text, err := r.attempt(ctx, prompt)
		if err == nil || attempt >= r.maxAttempts || ctx.Err() != nil || !shouldRetry(err) {
			return text, err
		}

		r.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		}).Warn("llm call failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		}
		delay *= 2
	}
}

func (r *RetryingCompleter) attempt(ctx context.Context, prompt string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()
	return r.base.Complete(attemptCtx, prompt)
}

func shouldRetry(err error) bool {
	if err == nil || errors.Is(err, ErrNoCompletion) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.StatusCode)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.Code)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"tls handshake timeout",
		"unexpected eof",
		"resource exhausted",
		"unavailable",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
