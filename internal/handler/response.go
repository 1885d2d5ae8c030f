// Package handler はバックエンドのHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Vinay94278/postmate/internal/middleware"
	"github.com/Vinay94278/postmate/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの最大サイズ（64KB）。
const maxRequestBodySize = 64 * 1024

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// decodeJSON はリクエストボディをJSONとしてデコードする。
// 空のボディはエラーとせず、vをゼロ値のまま返す。
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// handleServiceError はエラーをHTTPレスポンスに変換する。
// APIError以外は内部エラーとして500を返し、詳細はログにのみ出す。
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, middleware.StatusForError(apiErr), apiErr)
		return
	}

	logger.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// checkBodyUserID はボディのuser_idがヘッダーのユーザーIDと一致するか確認する。
// ボディ側が空の場合はヘッダーのユーザーIDを使う。
func checkBodyUserID(ctxUserID, bodyUserID string) error {
	if bodyUserID != "" && bodyUserID != ctxUserID {
		return model.NewInvalidInputError("user_id", "does not match the signed-in user")
	}
	return nil
}
