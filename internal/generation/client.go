// Package generation は生成サービスのHTTPクライアントを提供する。
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Vinay94278/postmate/internal/credential"
	"github.com/Vinay94278/postmate/internal/model"
)

// maxResponseBytes はレスポンスボディの読み取り上限。
const maxResponseBytes = 4 << 20

// Service は生成サービスのインターフェース。
// 成功時の投稿は未加工のまま返し、サニタイズは呼び出し側が行う。
type Service interface {
	Generate(ctx context.Context, req model.GenerationRequest) (model.GenerationResult, error)
}

// generateRequest はPOST /generateのリクエストボディ。
type generateRequest struct {
	UserID string `json:"user_id"`
	Topic  string `json:"topic"`
}

// generateResponse はPOST /generateの成功レスポンス。
type generateResponse struct {
	ResearchSummary string `json:"research_summary"`
	LinkedInPost    string `json:"linkedin_post"`
	XPost           string `json:"x_post"`
}

// Client は生成サービスのHTTPクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewClient はbaseURLの生成サービスに接続するClientを生成する。
func NewClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Generate はトピックを生成サービスに送信する。
// 失敗レスポンスはサービスのメッセージを持つRequestFailedエラーになる。
func (c *Client) Generate(ctx context.Context, req model.GenerationRequest) (model.GenerationResult, error) {
	payload, err := json.Marshal(generateRequest{
		UserID: req.Identity.ID,
		Topic:  req.Topic,
	})
	if err != nil {
		return model.GenerationResult{}, fmt.Errorf("failed to encode generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return model.GenerationResult{}, fmt.Errorf("failed to create generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(credential.UserIDHeader, req.Identity.ID)
	httpReq.Header.Set("X-Request-ID", req.ID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("generation service request failed",
			slog.String("request_id", req.ID),
			slog.String("error", err.Error()),
		)
		return model.GenerationResult{}, fmt.Errorf("generation service unreachable: %w", model.NewRequestFailedError(err.Error()))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return model.GenerationResult{}, fmt.Errorf("failed to read generate response: %w", model.NewRequestFailedError(err.Error()))
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("generation service returned error status",
			slog.String("request_id", req.ID),
			slog.Int("http_status", resp.StatusCode),
		)
		return model.GenerationResult{}, model.NewRequestFailedError(credential.ServiceMessage(body, resp.StatusCode))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return model.GenerationResult{}, fmt.Errorf("failed to parse generate response: %w", model.NewRequestFailedError("Failed to generate posts"))
	}

	return model.GenerationResult{
		ResearchSummary:       out.ResearchSummary,
		PrimaryPlatformPost:   out.LinkedInPost,
		SecondaryPlatformPost: out.XPost,
	}, nil
}

// compile-time interface check
var _ Service = (*Client)(nil)
