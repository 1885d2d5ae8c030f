// Package workflow は認証・クレデンシャルによるゲートと生成ワークフローの状態機械を提供する。
// 画面遷移は実行せず、NavigationIntentとして外部のルーターに渡す。
package workflow

import (
	"log/slog"
	"sync"

	"github.com/Vinay94278/postmate/internal/model"
)

// IntentSink はNavigationIntentを受け取るインターフェース。
type IntentSink interface {
	Navigate(intent model.NavigationIntent)
}

// Navigator は連続する同一のNavigationIntentを1回にまとめてルーターへ渡す。
// 同じ遷移先へのリダイレクトを何度要求しても追加の効果はない。
type Navigator struct {
	route  func(model.NavigationIntent)
	logger *slog.Logger

	mu   sync.Mutex
	last model.NavigationIntent
}

// NewNavigator はrouteを遷移先の処理として使うNavigatorを生成する。
// routeがnilの場合はログ出力のみ行う。
func NewNavigator(route func(model.NavigationIntent), logger *slog.Logger) *Navigator {
	return &Navigator{
		route:  route,
		logger: logger,
	}
}

// Navigate は直前と異なる遷移先の場合のみルーターへ渡す。
func (n *Navigator) Navigate(intent model.NavigationIntent) {
	n.mu.Lock()
	if n.last == intent {
		n.mu.Unlock()
		return
	}
	n.last = intent
	n.mu.Unlock()

	n.logger.Debug("navigation requested", slog.String("intent", string(intent)))
	if n.route != nil {
		n.route(intent)
	}
}

// Current は最後に要求された遷移先を返す。まだ無い場合は空文字列。
func (n *Navigator) Current() model.NavigationIntent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

// compile-time interface check
var _ IntentSink = (*Navigator)(nil)
