package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Vinay94278/postmate/internal/agent"
	"github.com/Vinay94278/postmate/internal/metrics"
	"github.com/Vinay94278/postmate/internal/middleware"
	"github.com/Vinay94278/postmate/internal/model"
)

// DefaultTopic はリクエストにtopicが含まれない場合のトピック。
const DefaultTopic = "latest trends in AI"

// Generator は投稿生成のインターフェース。agent.Pipelineが実装する。
type Generator interface {
	Run(ctx context.Context, topic string, creds model.CredentialSet) (model.GenerationResult, error)
}

// CredentialFinder は生成ハンドラーがAPIキーの取得に使うインターフェース。
type CredentialFinder interface {
	FindByUserID(ctx context.Context, userID string) (*model.StoredCredentials, error)
}

// GenerateHandler は投稿生成のHTTPハンドラー。
type GenerateHandler struct {
	creds     CredentialFinder
	generator Generator
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewGenerateHandler はGenerateHandlerを生成する。
func NewGenerateHandler(creds CredentialFinder, generator Generator, collector metrics.MetricsCollector, logger *slog.Logger) *GenerateHandler {
	return &GenerateHandler{
		creds:     creds,
		generator: generator,
		metrics:   collector,
		logger:    logger,
	}
}

// generateRequest はPOST /generateのリクエストボディ。
// topicが省略された場合はDefaultTopicを使い、空文字列の場合は400を返す。
type generateRequest struct {
	UserID string  `json:"user_id"`
	Topic  *string `json:"topic"`
}

// generateResponse はPOST /generateの成功レスポンス。
type generateResponse struct {
	ResearchSummary string `json:"research_summary"`
	LinkedInPost    string `json:"linkedin_post"`
	XPost           string `json:"x_post"`
}

// Generate はトピックについてリサーチし、LinkedIn投稿とX投稿を返す。
// POST /generate
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
		return
	}

	// 1. 入力検証
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.record(metrics.OutcomeInvalidInput)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("body", "invalid JSON"))
		return
	}
	if err := checkBodyUserID(userID, strings.TrimSpace(req.UserID)); err != nil {
		h.record(metrics.OutcomeInvalidInput)
		handleServiceError(w, h.logger, err)
		return
	}
	topic := DefaultTopic
	if req.Topic != nil {
		topic = strings.TrimSpace(*req.Topic)
	}
	if topic == "" {
		h.record(metrics.OutcomeInvalidInput)
		apiErr := model.NewInvalidInputError("topic", "must not be empty")
		apiErr.Message = "Topic is required"
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	// 2. ユーザーのAPIキーを取得
	stored, err := h.creds.FindByUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if stored == nil || !stored.Set.Complete() {
		h.record(metrics.OutcomeCredentialsMissing)
		handleServiceError(w, h.logger, model.NewCredentialsMissingError())
		return
	}

	// 3. 生成
	result, err := h.generator.Run(r.Context(), topic, stored.Set)
	if err != nil {
		h.writeGenerationError(w, userID, err)
		return
	}

	h.record(metrics.OutcomeSuccess)
	writeJSON(w, http.StatusOK, generateResponse{
		ResearchSummary: result.ResearchSummary,
		LinkedInPost:    result.PrimaryPlatformPost,
		XPost:           result.SecondaryPlatformPost,
	})
}

// writeGenerationError はフェーズ失敗を固定メッセージの500に変換する。
// LLMプロバイダーのエラー本文はログにのみ残す。
func (h *GenerateHandler) writeGenerationError(w http.ResponseWriter, userID string, err error) {
	var phaseErr *agent.PhaseError
	if errors.As(err, &phaseErr) {
		outcome := metrics.OutcomeContentFailed
		if phaseErr.Phase == metrics.PhaseResearch {
			outcome = metrics.OutcomeResearchFailed
		}
		h.record(outcome)
		h.logger.Warn("generation failed",
			slog.String("user_id", userID),
			slog.String("phase", phaseErr.Phase),
			slog.String("error", phaseErr.Err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewRequestFailedError(phaseErr.ClientMessage()))
		return
	}
	handleServiceError(w, h.logger, err)
}

func (h *GenerateHandler) record(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordGeneration(outcome)
	}
}
