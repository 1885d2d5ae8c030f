package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Vinay94278/postmate/internal/model"
)

// UserIDHeader はリクエスト元のアイデンティティを伝えるヘッダー名。
const UserIDHeader = "X-User-ID"

// maxResponseBytes はレスポンスボディの読み取り上限。
const maxResponseBytes = 1 << 20

// profileResponse はGET /profileのレスポンス。
type profileResponse struct {
	GroqAPIKey    string `json:"groq_api_key"`
	PhiAgnoAPIKey string `json:"phi_agno_api_key"`
	Exists        bool   `json:"exists"`
}

// saveRequest はPOST /save-api-keysのリクエストボディ。
type saveRequest struct {
	UserID        string `json:"user_id"`
	GroqAPIKey    string `json:"groq_api_key"`
	PhiAgnoAPIKey string `json:"phi_agno_api_key"`
}

// errorResponse はサービスのエラーレスポンス。
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HTTPClient はクレデンシャルサービスのHTTPクライアント。
type HTTPClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewHTTPClient はbaseURLのクレデンシャルサービスに接続するHTTPClientを生成する。
func NewHTTPClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Fetch はユーザーのCredentialSetを取得する。
// exists=falseの場合は空のCredentialSetを返す。
func (c *HTTPClient) Fetch(ctx context.Context, userID string) (model.CredentialSet, error) {
	reqURL := c.baseURL + "/profile?user_id=" + url.QueryEscape(userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.CredentialSet{}, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set(UserIDHeader, userID)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return model.CredentialSet{}, err
	}

	var resp profileResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.CredentialSet{}, fmt.Errorf("failed to parse profile response: %w", err)
	}

	if !resp.Exists {
		return model.CredentialSet{}, nil
	}
	return model.CredentialSet{
		PrimaryKey:   resp.GroqAPIKey,
		SecondaryKey: resp.PhiAgnoAPIKey,
	}, nil
}

// Save はCredentialSetを全置換で保存する。
func (c *HTTPClient) Save(ctx context.Context, userID string, set model.CredentialSet) error {
	payload, err := json.Marshal(saveRequest{
		UserID:        userID,
		GroqAPIKey:    set.PrimaryKey,
		PhiAgnoAPIKey: set.SecondaryKey,
	})
	if err != nil {
		return fmt.Errorf("failed to encode save request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/save-api-keys", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(UserIDHeader, userID)

	_, err = c.do(req)
	return err
}

// do はリクエストを実行し、2xxの場合のみボディを返す。
// それ以外はサービスのメッセージを持つRequestFailedエラーに変換する。
func (c *HTTPClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("credential service request failed",
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("credential service unreachable: %w", model.NewRequestFailedError(err.Error()))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read credential service response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("credential service returned error status",
			slog.String("path", req.URL.Path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewRequestFailedError(ServiceMessage(body, resp.StatusCode))
	}
	return body, nil
}

// ServiceMessage はエラーレスポンスのボディからメッセージを取り出す。
// "error"、"message"の順に参照し、どちらも無ければステータスから組み立てる。
func ServiceMessage(body []byte, status int) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return fmt.Sprintf("service returned status %d", status)
}

// compile-time interface check
var _ Service = (*HTTPClient)(nil)
