package agent

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Vinay94278/postmate/internal/security"
)

// MaxXPostLength はフォールバック分割時のX投稿の最大文字数。
const MaxXPostLength = 280

var (
	linkedInMarker = regexp.MustCompile(`(?i)linkedin post:`)
	xMarker        = regexp.MustCompile(`(?i)x post:`)
	// postSeparator は見出しマーカーがない場合の区切り（---行、___、##）。
	postSeparator = regexp.MustCompile(`\n-+\n|___+|##`)
	// 見出しの残骸。"## **LINKEDIN POST:**" の閉じ強調や次の見出しの "## "、区切り線。
	leadingDecor  = regexp.MustCompile(`^\*+[ \t]*\n`)
	trailingDecor = regexp.MustCompile(`(?:\s|#+|-{3,}|\s\*\*)*$`)
)

// ParsePosts は投稿作成の出力をLinkedIn投稿とX投稿に分割する。
//
// "LINKEDIN POST:" と "X POST:" のマーカー（大文字小文字を区別しない）が両方あれば
// その間と後ろを切り出す。ない場合は区切りで分割し、先頭2つを使う。
// 分割できなければ全体を両方に使う。フォールバック時のX投稿は280文字に切り詰める。
// 推論スパンは分割前に取り除く。
func ParsePosts(content string) (linkedIn, x string) {
	content = security.StripReasoning(content)

	li := linkedInMarker.FindStringIndex(content)
	xi := xMarker.FindStringIndex(content)
	if li != nil && xi != nil {
		if xi[0] >= li[1] {
			linkedIn = trimSection(content[li[1]:xi[0]])
		}
		x = trimSection(content[xi[1]:])
		return linkedIn, x
	}

	parts := postSeparator.Split(content, -1)
	if len(parts) >= 2 {
		return strings.TrimSpace(parts[0]), truncateRunes(strings.TrimSpace(parts[1]), MaxXPostLength)
	}
	whole := strings.TrimSpace(content)
	return whole, truncateRunes(whole, MaxXPostLength)
}

// trimSection は見出しの残り（"## " や区切り線）を前後から取り除く。
func trimSection(s string) string {
	s = strings.TrimLeft(s, " \t")
	s = leadingDecor.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	return strings.TrimSpace(trailingDecor.ReplaceAllString(s, ""))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
