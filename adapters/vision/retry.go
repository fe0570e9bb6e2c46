package vision

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultMaxAttempts = 3

// withRetry calls fn until it succeeds, fails with a non-retriable error or
// attempts run out.
func withRetry(ctx context.Context, logger *zap.Logger, attempts int, fn func() (string, error)) (string, error) {
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		text, err := fn()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retriable(err) || attempt == attempts-1 {
			break
		}

		logger.Warn("Vision request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(300*(attempt+1)) * time.Millisecond):
		}
	}
	return "", lastErr
}

func retriable(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected EOF") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "RST_STREAM") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "429") ||
		strings.Contains(s, "503")
}
