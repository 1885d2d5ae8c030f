package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// HTMLSanitizerService はプレビュー用HTMLのサニタイズ機能のインターフェースを定義する。
// MarkdownからレンダリングしたHTMLを表示する前に使用される。
type HTMLSanitizerService interface {
	// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
	// 許可タグ以外とon*イベント属性を除去する。
	// 空文字列の入力には空文字列を返す。
	Sanitize(rawHTML string) string
}

// htmlPolicy はHTMLSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type htmlPolicy struct {
	policy *bluemonday.Policy
}

// NewPreviewHTMLPolicy はプレビュー表示用のHTMLSanitizerServiceを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, hr, ul, ol, li, blockquote, pre, code, strong, em, del, h1-h6
//   - aとimg: httpsのhref/srcを持つ場合のみ許可。属性の無いa/imgはタグごと除去する(aの中身のテキストは残る)
//   - 禁止タグ: script, iframe, style および全てのon*イベント属性
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
func NewPreviewHTMLPolicy() *htmlPolicy {
	p := bluemonday.NewPolicy()

	// 投稿本文で使われるMarkdown由来のタグのみ許可する
	p.AllowElements(
		"p", "br", "hr", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
		"h1", "h2", "h3", "h4", "h5", "h6",
	)

	// ハッシュタグやURLのリンク
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src").OnElements("img")
	p.AllowAttrs("alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &htmlPolicy{
		policy: p,
	}
}

// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
func (s *htmlPolicy) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// compile-time interface check
var _ HTMLSanitizerService = (*htmlPolicy)(nil)
