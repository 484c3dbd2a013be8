package content

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer 将用户提交的 Markdown 转换为可安全存储与展示的 HTML。
// 同一输入永远产出同一输出，便于缓存与回放测试。
type Renderer struct {
	md        goldmark.Markdown
	policy    *bluemonday.Policy
	mediaBase string
}

// NewRenderer 构建渲染管线。mediaBase 是相对媒体路径的改写前缀，
// 例如 "/media/"。
func NewRenderer(mediaBase string) *Renderer {
	base := strings.TrimSpace(mediaBase)
	if base == "" {
		base = "/media/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	// Raw HTML is deliberately let through here: embedded <video> blocks
	// arrive as literal HTML, and the bluemonday allow-list below is the
	// single security boundary for everything, typed or injected.
	md := goldmark.New(
		goldmark.WithExtensions(extension.Table),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
			html.WithUnsafe(),
		),
	)

	return &Renderer{
		md:        md,
		policy:    buildPolicy(),
		mediaBase: base,
	}
}

// buildPolicy 声明允许保留的标签、属性与协议，其余一律剥除，
// 包括 script/style 元素与事件处理属性。
func buildPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "h1", "h2", "h3", "h4",
		"ul", "ol", "li",
		"a", "img", "video", "source",
		"blockquote", "code", "pre",
		"strong", "em", "hr", "br",
		"figure", "figcaption",
	)

	p.AllowAttrs("href", "title", "rel", "target").OnElements("a")
	p.AllowAttrs("src", "alt", "title", "width", "height", "class", "style").OnElements("img")
	p.AllowAttrs("controls", "poster", "preload", "width", "height", "class", "style").OnElements("video")
	p.AllowAttrs("src", "type").OnElements("source")

	p.AllowURLSchemes("http", "https", "mailto", "data")
	// Relative srcs must survive sanitization so the normalization pass
	// can root them under the media base path.
	p.AllowRelativeURLs(true)

	return p
}

// Render converts untrusted Markdown into sanitized, normalized HTML.
// Empty input short-circuits to an empty string without touching the
// pipeline.
func (r *Renderer) Render(source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", nil
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}

	clean := r.policy.SanitizeBytes(buf.Bytes())

	return normalizeFragment(clean, r.mediaBase)
}
