// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrorKind はワークフロー上のエラー種別を表す。
// 種別ごとに呼び出し元の扱い（リダイレクト、インライン表示、一時メッセージ、破棄）が決まる。
type ErrorKind string

const (
	// KindAuthRequired はアイデンティティが存在しないことを示す。ログイン画面へ誘導して解決する。
	KindAuthRequired ErrorKind = "auth_required"
	// KindCredentialsMissing はアイデンティティはあるがCredentialSetが揃っていないことを示す。
	KindCredentialsMissing ErrorKind = "credentials_missing"
	// KindInvalidInput は空のトピックや空のキーなど入力不備を示す。該当フィールドの横に表示する。
	KindInvalidInput ErrorKind = "invalid_input"
	// KindRequestFailed は生成サービスまたはクレデンシャルサービスが失敗を返したことを示す。
	KindRequestFailed ErrorKind = "request_failed"
	// KindStaleSession はサインアウト後に到着したレスポンスを示す。表示せず破棄する。
	KindStaleSession ErrorKind = "stale_session"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string    // エラーコード
	Message  string    // エラーメッセージ
	Category string    // カテゴリ: auth, validation, generation, system
	Action   string    // ユーザー向け対処方法
	Kind     ErrorKind // ワークフロー上の種別
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is は同じ種別のAPIErrorを等価とみなす。
// errors.Is(err, ErrInvalidInput) のように種別の判定に使う。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// 定義済みエラーコード
const (
	ErrCodeAuthRequired       = "AUTH_REQUIRED"
	ErrCodeCredentialsMissing = "CREDENTIALS_MISSING"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeRequestFailed      = "REQUEST_FAILED"
	ErrCodeStaleSession       = "STALE_SESSION"
	ErrCodeRateLimited        = "RATE_LIMITED"
)

// 種別判定用のセンチネル。errors.Isの比較対象としてのみ使う。
var (
	ErrAuthRequired       = &APIError{Code: ErrCodeAuthRequired, Kind: KindAuthRequired}
	ErrCredentialsMissing = &APIError{Code: ErrCodeCredentialsMissing, Kind: KindCredentialsMissing}
	ErrInvalidInput       = &APIError{Code: ErrCodeInvalidInput, Kind: KindInvalidInput}
	ErrRequestFailed      = &APIError{Code: ErrCodeRequestFailed, Kind: KindRequestFailed}
	ErrStaleSession       = &APIError{Code: ErrCodeStaleSession, Kind: KindStaleSession}
)

// KindOf はエラーチェーンからAPIErrorを探し、その種別を返す。
// APIErrorを含まない場合は空文字列を返す。
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// NewAuthRequiredError は未ログインエラーを生成する。
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  "You must be logged in to generate content.",
		Category: "auth",
		Action:   "Sign in and try again.",
		Kind:     KindAuthRequired,
	}
}

// NewCredentialsMissingError はAPIキー未登録エラーを生成する。
func NewCredentialsMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeCredentialsMissing,
		Message:  "Please enter API keys in your profile first.",
		Category: "auth",
		Action:   "Save both API keys in your profile.",
		Kind:     KindCredentialsMissing,
	}
}

// NewInvalidInputError は入力不備エラーを生成する。
// fieldは不備のあったフィールド名で、UIはその横にメッセージを表示する。
func NewInvalidInputError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("%s: %s", field, reason),
		Category: "validation",
		Action:   fmt.Sprintf("Enter a value for %s.", field),
		Kind:     KindInvalidInput,
	}
}

// NewRequestFailedError は外部サービスの失敗エラーを生成する。
// messageにはサービスが返したメッセージをそのまま格納する。
func NewRequestFailedError(message string) *APIError {
	if message == "" {
		message = "Failed to generate posts"
	}
	return &APIError{
		Code:     ErrCodeRequestFailed,
		Message:  message,
		Category: "generation",
		Action:   "Try again in a moment.",
		Kind:     KindRequestFailed,
	}
}

// NewStaleSessionError はサインアウト後に到着したレスポンスを表すエラーを生成する。
func NewStaleSessionError(requestID string) *APIError {
	return &APIError{
		Code:     ErrCodeStaleSession,
		Message:  fmt.Sprintf("response for request %s arrived after sign-out", requestID),
		Category: "auth",
		Kind:     KindStaleSession,
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many generation requests.",
		Category: "generation",
		Action:   "Wait a minute before generating again.",
		Kind:     KindRequestFailed,
	}
}
