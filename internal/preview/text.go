package preview

import (
	"fmt"
	"io"
	"strings"

	"github.com/Vinay94278/postmate/internal/model"
)

// WriteText はRenderModelを端末向けのプレーンテキストカードとして書き出す。
func WriteText(w io.Writer, m RenderModel) error {
	title := "LinkedIn Preview"
	if m.Platform == model.PlatformX {
		title = "X Preview"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== %s ===\n", title)
	fmt.Fprintf(&b, "[%s] %s\n", m.Initial, m.DisplayName)
	fmt.Fprintf(&b, "%s\n", m.HandleOrTitle)
	fmt.Fprintf(&b, "%s\n\n", m.Timestamp)
	fmt.Fprintf(&b, "%s\n\n", m.Body)

	values := make([]string, 0, len(m.Engagement))
	for _, e := range m.Engagement {
		values = append(values, e.Value)
	}
	fmt.Fprintf(&b, "%s\n", strings.Join(values, " · "))

	_, err := io.WriteString(w, b.String())
	return err
}
