package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
)

const maxRetries = 3

// retryStream reopens the completion stream on retryable errors until the
// first chunk arrives. Once output has been seen errors are final.
type retryStream struct {
	ctx  context.Context
	open func() chunkStream
	wait func(context.Context, time.Duration) error

	inner    chunkStream
	attempts int
	started  bool
	current  openai.ChatCompletionChunk
	err      error
}

func newRetryStream(ctx context.Context, open func() chunkStream, wait func(context.Context, time.Duration) error) *retryStream {
	return &retryStream{
		ctx:   ctx,
		open:  open,
		wait:  wait,
		inner: open(),
	}
}

func (s *retryStream) Next() bool {
	for {
		if s.err != nil {
			return false
		}
		if s.inner.Next() {
			s.started = true
			s.current = s.inner.Current()
			return true
		}

		err := s.inner.Err()
		if err == nil || errors.Is(err, io.EOF) {
			return false
		}
		if s.started {
			s.err = err
			return false
		}

		s.attempts++
		retry, after, retryErr := shouldRetry(s.attempts, err)
		if !retry {
			s.err = retryErr
			return false
		}
		slog.Warn("Retrying completion request", "attempt", s.attempts, "max_retries", maxRetries, "after_ms", after)
		_ = s.inner.Close()
		if err := s.wait(s.ctx, time.Duration(after)*time.Millisecond); err != nil {
			s.err = err
			return false
		}
		s.inner = s.open()
	}
}

func (s *retryStream) Current() openai.ChatCompletionChunk {
	return s.current
}

func (s *retryStream) Err() error {
	return s.err
}

func (s *retryStream) Close() error {
	return s.inner.Close()
}

// shouldRetry reports whether err is worth another attempt and after how
// many milliseconds.
func shouldRetry(attempts int, err error) (bool, int64, error) {
	if attempts > maxRetries {
		return false, 0, fmt.Errorf("maximum retry attempts reached: %d retries: %w", maxRetries, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, 0, err
	}

	var apiErr *openai.Error
	var retryAfterValues []string
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			if apiErr.Type == "insufficient_quota" || apiErr.Code == "insufficient_quota" {
				return false, 0, fmt.Errorf("quota exceeded: %s", apiErr.Message)
			}
		case apiErr.StatusCode >= http.StatusInternalServerError:
		default:
			return false, 0, err
		}
		if apiErr.Response != nil {
			retryAfterValues = apiErr.Response.Header.Values("Retry-After")
		}
		slog.Warn("OpenAI API error", "status_code", apiErr.StatusCode, "message", apiErr.Message, "type", apiErr.Type)
	} else {
		slog.Error("OpenAI request failed", "error", err, "attempt", attempts, "max_retries", maxRetries)
	}

	backoffMs := 2000 * (1 << (attempts - 1))
	jitterMs := int(float64(backoffMs) * 0.2)
	retryMs := backoffMs + jitterMs
	if len(retryAfterValues) > 0 {
		var seconds int
		if _, err := fmt.Sscanf(retryAfterValues[0], "%d", &seconds); err == nil {
			retryMs = seconds * 1000
		}
	}
	return true, int64(retryMs), nil
}
