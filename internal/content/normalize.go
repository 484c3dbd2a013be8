package content

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// normalizeFragment 在净化后的 HTML 片段上做最后一轮 DOM 规整：
// 外链加 rel/target、空图删除、相对路径改写、补充标记类、视频强制
// controls。输入已经过允许列表过滤，这里只做属性层面的调整。
func normalizeFragment(fragment []byte, mediaBase string) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

	nodes, err := html.ParseFragment(bytes.NewReader(fragment), body)
	if err != nil {
		return "", err
	}

	root := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	normalizeTree(root, mediaBase)

	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func normalizeTree(parent *html.Node, mediaBase string) {
	for child := parent.FirstChild; child != nil; {
		next := child.NextSibling

		if child.Type == html.ElementNode {
			switch child.Data {
			case "a":
				hardenLink(child)
			case "img":
				if !normalizeImage(child, mediaBase) {
					parent.RemoveChild(child)
					child = next
					continue
				}
			case "video":
				normalizeVideo(child, mediaBase)
			}
		}

		normalizeTree(child, mediaBase)
		child = next
	}
}

// hardenLink 为外部链接补充 nofollow noopener 与 target="_blank"，
// 不覆盖作者已有设置。
func hardenLink(n *html.Node) {
	href, ok := getAttr(n, "href")
	if !ok || !strings.HasPrefix(href, "http") {
		return
	}

	if _, has := getAttr(n, "rel"); !has {
		setAttr(n, "rel", "nofollow noopener")
		if _, has := getAttr(n, "target"); !has {
			setAttr(n, "target", "_blank")
		}
	}
}

// normalizeImage 返回 false 表示该图片应被整体移除。
func normalizeImage(n *html.Node, mediaBase string) bool {
	src, ok := getAttr(n, "src")
	if !ok || strings.TrimSpace(src) == "" {
		return false
	}

	setAttr(n, "src", rewriteMediaSrc(src, mediaBase))
	appendClass(n, "markdown-image")
	return true
}

func normalizeVideo(n *html.Node, mediaBase string) {
	rewroteSource := false
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "source" {
			rewroteSource = true
			if src, ok := getAttr(c, "src"); ok && src != "" {
				setAttr(c, "src", rewriteMediaSrc(src, mediaBase))
			}
		}
	}

	if !rewroteSource {
		if src, ok := getAttr(n, "src"); ok && src != "" {
			setAttr(n, "src", rewriteMediaSrc(src, mediaBase))
		}
	}

	if _, has := getAttr(n, "controls"); !has {
		setAttr(n, "controls", "")
	}
	appendClass(n, "markdown-video")
}

// rewriteMediaSrc 将裸的相对路径挂到媒体根路径下；data URI、
// 绝对 URL 和已经以斜杠开头的路径保持不变。
func rewriteMediaSrc(src, mediaBase string) string {
	if strings.HasPrefix(src, "data:") ||
		strings.HasPrefix(src, "http") ||
		strings.HasPrefix(src, "/") {
		return src
	}
	return mediaBase + src
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// appendClass 追加标记类，不覆盖作者已设置的 class。
func appendClass(n *html.Node, class string) {
	existing, ok := getAttr(n, "class")
	if !ok || strings.TrimSpace(existing) == "" {
		setAttr(n, "class", class)
		return
	}

	for _, c := range strings.Fields(existing) {
		if c == class {
			return
		}
	}
	setAttr(n, "class", existing+" "+class)
}
