// Package preview はサニタイズ済みの投稿本文をSNSごとの表示モデルに変換する。
package preview

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/Vinay94278/postmate/internal/model"
	"github.com/Vinay94278/postmate/internal/security"
)

const (
	// DefaultDisplayName は表示名が空の場合の代替値。
	DefaultDisplayName = "Your Name"
	// DefaultBody は本文が空の場合の代替値。
	DefaultBody = "No content generated yet."
	// DefaultXHandle は表示名が空の場合のXハンドル。
	DefaultXHandle = "@username"
	// LinkedInCaption はLinkedInプレビューの固定肩書き。
	LinkedInCaption = "Founder & AI Enthusiast • 1st"
)

// EngagementPlaceholder は固定のエンゲージメント表示を表す。
type EngagementPlaceholder struct {
	Label string
	Value string
}

// RenderModel はSNSごとの表示用モデル。
type RenderModel struct {
	Platform      model.Platform
	DisplayName   string
	Initial       string // アバターに表示する頭文字
	HandleOrTitle string // Xでは@ハンドル、LinkedInでは肩書き
	Body          string // サニタイズ済みMarkdown
	BodyHTML      string // MarkdownをHTML化しサニタイズしたもの
	Timestamp     string
	Engagement    []EngagementPlaceholder
}

// Renderer はPreviewRendererの実装。
// 状態を持たない純粋な変換で、失敗しない。
type Renderer struct {
	htmlPolicy security.HTMLSanitizerService
}

// NewRenderer はRendererを生成する。
func NewRenderer(htmlPolicy security.HTMLSanitizerService) *Renderer {
	return &Renderer{htmlPolicy: htmlPolicy}
}

// Render はplatformに応じたRenderModelを返す。
// 空の表示名は "Your Name"、空の本文は "No content generated yet." に置き換える。
// 未知のplatformはLinkedInの形式で描画する。
func (r *Renderer) Render(platform model.Platform, sanitizedContent, displayName string) RenderModel {
	name := displayName
	if strings.TrimSpace(name) == "" {
		name = DefaultDisplayName
	}

	body := sanitizedContent
	if strings.TrimSpace(body) == "" {
		body = DefaultBody
	}

	m := RenderModel{
		Platform:    platform,
		DisplayName: name,
		Initial:     initialOf(name),
		Body:        body,
		BodyHTML:    r.renderHTML(body),
	}

	switch platform {
	case model.PlatformX:
		m.HandleOrTitle = XHandle(displayName)
		m.Timestamp = "8:30 PM · Mar 2, 2025 · Postmate"
		m.Engagement = []EngagementPlaceholder{
			{Label: "views", Value: "89.2K"},
			{Label: "reposts", Value: "1.2K"},
			{Label: "likes", Value: "4.8K"},
			{Label: "share", Value: "Share"},
		}
	default:
		m.Platform = model.PlatformLinkedIn
		m.HandleOrTitle = LinkedInCaption
		m.Timestamp = "Just now"
		m.Engagement = []EngagementPlaceholder{
			{Label: "reactions", Value: "You and 88 others"},
			{Label: "comments", Value: "4 comments"},
			{Label: "reposts", Value: "1 repost"},
		}
	}

	return m
}

// XHandle は表示名から先頭の@をすべて取り除き、@を1つだけ付け直したハンドルを返す。
// 表示名が空の場合は "@username" を返す。
func XHandle(displayName string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(displayName), "@")
	if trimmed == "" {
		return DefaultXHandle
	}
	return "@" + trimmed
}

// renderHTML はMarkdownをHTMLに変換し、プレビュー用ポリシーでサニタイズする。
// parserは呼び出しごとに生成する（状態を持つため再利用できない）。
func (r *Renderer) renderHTML(md string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.HardLineBreak)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	out := markdown.ToHTML([]byte(md), p, renderer)
	return strings.TrimSpace(r.htmlPolicy.Sanitize(string(out)))
}

func initialOf(name string) string {
	first, _ := utf8.DecodeRuneInString(name)
	if first == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(first))
}
