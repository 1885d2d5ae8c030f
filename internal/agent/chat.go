// Package agent はサーバー側の投稿生成（リサーチ→投稿作成の2段階）を提供する。
// LLMにはOpenAI互換のChat Completions API（Groq）を使う。
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// DefaultBaseURL はGroqのOpenAI互換エンドポイント。
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel はリサーチ・投稿作成の両方で使うモデルID。
	DefaultModel = "deepseek-r1-distill-llama-70b"

	// maxResponseSize はLLMレスポンスの最大読み取りサイズ（4MB）。
	maxResponseSize = 4 * 1024 * 1024
	// defaultMaxTokens はmax_tokens未指定時の上限。
	defaultMaxTokens = 4096
)

// Message はChat Completionsの1メッセージ。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient はチャット補完のインターフェース。
// apiKeyはリクエストしたユーザーのPrimaryKeyで、呼び出しごとに渡す。
type ChatClient interface {
	Complete(ctx context.Context, apiKey string, messages []Message) (string, error)
}

// ChatConfig はGroqClientの設定。
type ChatConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// GroqClient はOpenAI互換APIに対するChatClient実装。
type GroqClient struct {
	httpClient  *http.Client
	logger      *slog.Logger
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
}

// NewGroqClient はGroqClientを生成する。
// BaseURLとModelが空の場合はGroqの既定値を使う。
func NewGroqClient(httpClient *http.Client, cfg ChatConfig, logger *slog.Logger) *GroqClient {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	modelID := strings.TrimSpace(cfg.Model)
	if modelID == "" {
		modelID = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &GroqClient{
		httpClient:  httpClient,
		logger:      logger,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       modelID,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// StatusError はプロバイダーが2xx以外を返したことを表す。
// Messageはプロバイダーの原文で、ログ以外に出してはならない。
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat completion http %d: %s", e.StatusCode, e.Message)
}

// Complete はメッセージ列を送信し、最初のchoiceの本文を返す。
func (c *GroqClient) Complete(ctx context.Context, apiKey string, messages []Message) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", fmt.Errorf("missing api key")
	}

	raw, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var decoded chatResponse
	decodeErr := json.Unmarshal(body, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && decoded.Error != nil && decoded.Error.Message != "" {
			msg = decoded.Error.Message
		}
		c.logger.Warn("chat completion returned error status",
			slog.Int("status", resp.StatusCode),
			slog.String("model", c.model),
		)
		return "", &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("unmarshal response: %w", decodeErr)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("chat completion response missing choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

// compile-time interface check
var _ ChatClient = (*GroqClient)(nil)
