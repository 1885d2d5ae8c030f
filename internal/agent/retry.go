package agent

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const (
	// defaultMaxAttempts は1回の補完で試行する最大回数（初回を含む）。
	defaultMaxAttempts = 3
	// defaultInitialBackoff は指数バックオフの初回遅延。
	defaultInitialBackoff = time.Second
	// defaultMaxBackoff は指数バックオフの最大遅延。
	defaultMaxBackoff = 8 * time.Second
)

// RetryDecision はプロバイダーのステータスコードに基づく再試行の判断。
type RetryDecision int

const (
	// RetryStop は再試行しても結果が変わらない失敗（認証エラー、不正なリクエストなど）。
	RetryStop RetryDecision = iota
	// RetryBackoff はバックオフ後に再試行する失敗（429/5xx）。
	RetryBackoff
)

// ClassifyStatus はHTTPステータスコードを再試行の判断に分類する。
func ClassifyStatus(statusCode int) RetryDecision {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return RetryBackoff
	case statusCode >= 500:
		return RetryBackoff
	default:
		return RetryStop
	}
}

// CalculateBackoff は再試行回数に基づいて指数バックオフ遅延を計算する。
// initialから2倍ずつ増加し、maxで頭打ちになる。
func CalculateBackoff(retry int, initial, max time.Duration) time.Duration {
	delay := initial
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay > max {
			return max
		}
	}
	return delay
}

// RetryConfig はRetryingClientの設定。
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// RetryingClient はChatClientをラップし、一時的な失敗をバックオフ付きで再試行する。
type RetryingClient struct {
	next   ChatClient
	logger *slog.Logger
	cfg    RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryingClient はRetryingClientを生成する。0以下の設定値はデフォルト値で補う。
func NewRetryingClient(next ChatClient, cfg RetryConfig, logger *slog.Logger) *RetryingClient {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &RetryingClient{
		next:   next,
		logger: logger,
		cfg:    cfg,
		sleep:  sleepContext,
	}
}

// Complete はnextに委譲し、429/5xxの場合のみ再試行する。
// ネットワークエラーやコンテキストのキャンセルは再試行しない。
func (c *RetryingClient) Complete(ctx context.Context, apiKey string, messages []Message) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(attempt-1, c.cfg.InitialBackoff, c.cfg.MaxBackoff)
			c.logger.Info("retrying chat completion",
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return "", lastErr
			}
		}

		out, err := c.next.Complete(ctx, apiKey, messages)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var statusErr *StatusError
		if !errors.As(err, &statusErr) || ClassifyStatus(statusErr.StatusCode) == RetryStop {
			return "", err
		}
	}
	return "", lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// compile-time interface check
var _ ChatClient = (*RetryingClient)(nil)
