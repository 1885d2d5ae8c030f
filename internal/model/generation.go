package model

// GenerationRequest は生成サービスへの1回のリクエストを表す。
// 発行後は不変で、レスポンス処理後に破棄される。
type GenerationRequest struct {
	ID       string
	Identity Identity
	Topic    string
}

// GenerationResult は生成サービスの成功レスポンスを表す。
// 次の成功で丸ごと置き換えられ、部分的に更新されることはない。
type GenerationResult struct {
	ResearchSummary       string
	PrimaryPlatformPost   string // LinkedIn投稿
	SecondaryPlatformPost string // X投稿
}

// ViewState は利用者に見えている画面を表す。
type ViewState string

const (
	ViewForm     ViewState = "form"
	ViewResearch ViewState = "research"
	ViewPreview  ViewState = "preview"
)

// ParseViewState は文字列をViewStateに変換する。未知の値の場合はfalseを返す。
func ParseViewState(s string) (ViewState, bool) {
	switch ViewState(s) {
	case ViewForm, ViewResearch, ViewPreview:
		return ViewState(s), true
	default:
		return "", false
	}
}

// Platform はプレビュー対象のSNSを表す。
type Platform string

const (
	PlatformLinkedIn Platform = "linkedin"
	PlatformX        Platform = "x"
)
