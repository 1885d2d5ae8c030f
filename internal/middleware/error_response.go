package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/Vinay94278/postmate/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 既存クライアントが参照するerrorフィールドにメッセージを入れ、
// 原因カテゴリと対処方法を併記する。
type ErrorResponseBody struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Category string `json:"category,omitempty"`
	Action   string `json:"action,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Error:    apiErr.Message,
		Code:     apiErr.Code,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、利用者には一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "Internal server error",
		Category: "system",
		Action:   "Try again in a moment.",
	})
}

// StatusForError はAPIErrorの種別に対応するHTTPステータスを返す。
func StatusForError(apiErr *model.APIError) int {
	if apiErr.Code == model.ErrCodeRateLimited {
		return http.StatusTooManyRequests
	}
	switch apiErr.Kind {
	case model.KindAuthRequired:
		return http.StatusUnauthorized
	case model.KindCredentialsMissing:
		return http.StatusForbidden
	case model.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
