package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Vinay94278/postmate/internal/metrics"
	"github.com/Vinay94278/postmate/internal/middleware"
	"github.com/Vinay94278/postmate/internal/model"
)

// クレデンシャル操作のメトリクスラベル
const (
	credentialOpFetch = "fetch"
	credentialOpSave  = "save"
)

// CredentialRepository はクレデンシャルハンドラーが必要とする永続化インターフェース。
type CredentialRepository interface {
	FindByUserID(ctx context.Context, userID string) (*model.StoredCredentials, error)
	Upsert(ctx context.Context, userID string, set model.CredentialSet) error
}

// CredentialHandler はAPIキーの取得・保存のHTTPハンドラー。
type CredentialHandler struct {
	repo    CredentialRepository
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewCredentialHandler はCredentialHandlerを生成する。
func NewCredentialHandler(repo CredentialRepository, collector metrics.MetricsCollector, logger *slog.Logger) *CredentialHandler {
	return &CredentialHandler{
		repo:    repo,
		metrics: collector,
		logger:  logger,
	}
}

// profileResponse はGET /profileのレスポンス。
// existsは一度でも保存したことがあるかを示す。
type profileResponse struct {
	GroqAPIKey    string `json:"groq_api_key"`
	PhiAgnoAPIKey string `json:"phi_agno_api_key"`
	Exists        bool   `json:"exists"`
}

// saveAPIKeysRequest はPOST /save-api-keysのリクエストボディ。
type saveAPIKeysRequest struct {
	UserID        string `json:"user_id"`
	GroqAPIKey    string `json:"groq_api_key"`
	PhiAgnoAPIKey string `json:"phi_agno_api_key"`
}

// GetProfile は呼び出し元ユーザーのCredentialSetを返す。
// GET /profile
//
// 呼び出し元はX-User-IDヘッダーで識別され、その値は上流のアイデンティティ
// プロバイダーで検証済みとして信頼する。キーは平文で返すため、
// このエンドポイントは認証プロキシの内側にのみ公開すること。
func (h *CredentialHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
		return
	}
	// 平文のキーを中間キャッシュに残さない
	w.Header().Set("Cache-Control", "no-store")

	stored, err := h.repo.FindByUserID(r.Context(), userID)
	h.record(credentialOpFetch, err == nil)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := profileResponse{}
	if stored != nil {
		resp = profileResponse{
			GroqAPIKey:    stored.Set.PrimaryKey,
			PhiAgnoAPIKey: stored.Set.SecondaryKey,
			Exists:        true,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SaveAPIKeys は呼び出し元ユーザーのCredentialSetを全置換で保存する。
// キーは前後の空白を除去して保存するため、クライアントは保存後に読み直す。
// POST /save-api-keys
func (h *CredentialHandler) SaveAPIKeys(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
		return
	}

	var req saveAPIKeysRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("body", "invalid JSON"))
		return
	}
	if err := checkBodyUserID(userID, strings.TrimSpace(req.UserID)); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	set := model.CredentialSet{
		PrimaryKey:   strings.TrimSpace(req.GroqAPIKey),
		SecondaryKey: strings.TrimSpace(req.PhiAgnoAPIKey),
	}
	if set.PrimaryKey == "" {
		handleServiceError(w, h.logger, model.NewInvalidInputError("groq_api_key", "must not be empty"))
		return
	}
	if set.SecondaryKey == "" {
		handleServiceError(w, h.logger, model.NewInvalidInputError("phi_agno_api_key", "must not be empty"))
		return
	}

	err = h.repo.Upsert(r.Context(), userID, set)
	h.record(credentialOpSave, err == nil)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("api keys saved", slog.String("user_id", userID))
	writeJSON(w, http.StatusOK, map[string]string{"message": "API keys saved"})
}

func (h *CredentialHandler) record(op string, success bool) {
	if h.metrics != nil {
		h.metrics.RecordCredentialOperation(op, success)
	}
}
