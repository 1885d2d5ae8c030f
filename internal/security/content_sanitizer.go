// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer は生成モデルの生出力から内部的な痕跡（推論スパン、
// コードフェンス、セクション見出し）を取り除き、表示可能なテキストに正規化する。
// HTMLPolicy はMarkdownから生成したHTMLを許可リストベースでサニタイズする。
package security

import (
	"regexp"
	"strings"
)

var (
	// reasoningSpanPattern は<think>...</think>の区間を行をまたいで最短一致する。
	reasoningSpanPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)
	// danglingReasoningPattern は閉じタグのない<think>以降をすべて一致させる。
	danglingReasoningPattern = regexp.MustCompile(`(?s)<think>.*$`)
	// strayReasoningClosePattern は対応する開始タグのない</think>に一致する。
	strayReasoningClosePattern = regexp.MustCompile(`</think>`)
	// codeFencePattern はフェンス記号に一致する。言語タグは行末まで続く場合のみ記号の一部とみなす。
	codeFencePattern = regexp.MustCompile("(?m)```(?:[A-Za-z0-9_+-]+[ \t]*$)?")
	// sectionHeadingPattern は "## LINKEDIN POST:" / "## X POST:" 見出しに一致する（大文字小文字を区別しない）。
	sectionHeadingPattern = regexp.MustCompile(`(?i)#{1,6}[ \t]*(?:linkedin|x)[ \t]+post:`)
)

// ContentSanitizerService は生成テキストのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize は生成モデルの生出力を表示可能なテキストに正規化する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返し、再適用しても変化しない（冪等）。
	Sanitize(raw string) string
}

// ContentSanitizer はContentSanitizerServiceの実装。
// 状態を持たないため、複数のgoroutineから同時に利用できる。
type ContentSanitizer struct{}

// NewContentSanitizer はContentSanitizerを生成する。
func NewContentSanitizer() *ContentSanitizer {
	return &ContentSanitizer{}
}

// Sanitize は次の順にテキストを変換する。
//  1. 空入力は空文字列を返す
//  2. <think>...</think> の区間をマーカーごと除去する（改行をまたぐ区間も含む）
//  3. コードフェンス記号を除去し、中身は残す
//  4. LINKEDIN POST / X POST の見出しを改行1つに置き換える
//  5. 前後の空白を除去する
//
// 2と3は除去によって新たなマーカーが組み上がらなくなるまで繰り返す。
func (s *ContentSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	out := raw
	for {
		next := StripReasoning(out)
		next = codeFencePattern.ReplaceAllString(next, "")
		if next == out {
			break
		}
		out = next
	}

	out = sectionHeadingPattern.ReplaceAllString(out, "\n")

	return strings.TrimSpace(out)
}

// StripReasoning は推論スパン（<think>...</think>）を除去する。
// 出力が途中で切れて閉じタグがない場合は、開始タグ以降を丸ごと捨てる。
func StripReasoning(s string) string {
	for {
		next := reasoningSpanPattern.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	s = danglingReasoningPattern.ReplaceAllString(s, "")
	return strayReasoningClosePattern.ReplaceAllString(s, "")
}

// compile-time interface check
var _ ContentSanitizerService = (*ContentSanitizer)(nil)
