package content

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"path/filepath"
	"slices"
	"strings"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/webp"

	"github.com/hlpne/AdBoard-MMO-RPG/internal/db"
)

var (
	ErrMediaTooLarge    = errors.New("media exceeds the size limit")
	ErrMediaTypeInvalid = errors.New("media type is not allowed")
)

// Upload 是上传文件在管线内的表示：原始字节加客户端声明的
// 文件名与 content-type。
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// MediaPolicy 规定了每类媒体的大小上限与 MIME 允许列表。
type MediaPolicy struct {
	MaxImageSizeMB    int
	MaxVideoSizeMB    int
	AllowedImageMIMEs []string
	AllowedVideoMIMEs []string
}

// EmbedMedia 校验可选的图片/视频上传，编码为 base64 data URI 并追加
// 到 Markdown 源文末尾。校验在任何编码开始之前完成，被拒绝的文件
// 不会被部分编码。输出对相同输入是确定的。
func EmbedMedia(src string, image, video *Upload, policy MediaPolicy) (string, error) {
	if image == nil && video == nil {
		return src, nil
	}

	if image != nil {
		if err := policy.Validate(db.MediaKindImage, image); err != nil {
			return "", err
		}
	}
	if video != nil {
		if err := policy.Validate(db.MediaKindVideo, video); err != nil {
			return "", err
		}
	}

	var appended strings.Builder
	appended.WriteString(src)

	if image != nil {
		uri := DataURI(db.MediaKindImage, image)
		appended.WriteString(fmt.Sprintf("\n\n![attachment](%s)\n", uri))
	}

	if video != nil {
		uri := DataURI(db.MediaKindVideo, video)
		mimeType := ResolveMIME(db.MediaKindVideo, video)
		// Markdown has no syntax for video, so the block goes in as
		// literal HTML and passes the same allow-list as typed markup.
		appended.WriteString(fmt.Sprintf("\n\n<video controls><source src=\"%s\" type=\"%s\"></video>\n", uri, mimeType))
	}

	return appended.String(), nil
}

// Validate 检查大小上限与 MIME 允许列表。MIME 判定优先使用对实际
// 载荷的嗅探，声明值只作回退，载荷与声明必须有一方落在允许列表内。
func (p MediaPolicy) Validate(kind db.MediaKind, up *Upload) error {
	maxMB := p.MaxImageSizeMB
	allowed := p.AllowedImageMIMEs
	if kind == db.MediaKindVideo {
		maxMB = p.MaxVideoSizeMB
		allowed = p.AllowedVideoMIMEs
	}

	maxBytes := int64(maxMB) * 1024 * 1024
	if int64(len(up.Data)) > maxBytes {
		return fmt.Errorf("%w: %s is %.2f MB, limit is %d MB",
			ErrMediaTooLarge, kind, float64(len(up.Data))/(1024*1024), maxMB)
	}

	mimeType := SniffMIME(up)
	if mimeType == "" {
		mimeType = ResolveMIME(kind, up)
	}
	if !slices.Contains(allowed, mimeType) {
		return fmt.Errorf("%w: %s (%s), allowed: %s",
			ErrMediaTypeInvalid, mimeType, kind, strings.Join(allowed, ", "))
	}

	return nil
}

// DataURI 把载荷编码为 data:<mime>;base64,<payload> 形式。
func DataURI(kind db.MediaKind, up *Upload) string {
	mimeType := ResolveMIME(kind, up)
	encoded := base64.StdEncoding.EncodeToString(up.Data)
	return fmt.Sprintf("data:%s;base64,%s", mimeType, encoded)
}

// ResolveMIME 按 文件扩展名 → 声明的 content-type → 按类别兜底
// 的顺序解析 MIME 类型。
func ResolveMIME(kind db.MediaKind, up *Upload) string {
	if ext := filepath.Ext(up.Filename); ext != "" {
		if guessed := mime.TypeByExtension(ext); guessed != "" {
			if idx := strings.IndexByte(guessed, ';'); idx >= 0 {
				guessed = guessed[:idx]
			}
			return guessed
		}
	}

	if declared := strings.TrimSpace(up.ContentType); declared != "" {
		return declared
	}

	if kind == db.MediaKindVideo {
		return "video/mp4"
	}
	return "image/png"
}

// SniffMIME 从载荷字节推断 MIME 类型，识别不出时返回空串。
func SniffMIME(up *Upload) string {
	matched, err := filetype.Match(up.Data)
	if err != nil || matched == filetype.Unknown {
		return ""
	}
	return matched.MIME.Value
}

// DescribeAsset 从实际载荷生成媒体元数据记录：MIME 与大小来自字节
// 流本身，图片还会解码出像素尺寸。
func DescribeAsset(kind db.MediaKind, up *Upload) db.MediaAsset {
	asset := db.MediaAsset{
		Kind:     kind,
		Filename: filepath.Base(up.Filename),
		Size:     int64(len(up.Data)),
	}

	if sniffed := SniffMIME(up); sniffed != "" {
		asset.MIME = sniffed
	} else {
		asset.MIME = ResolveMIME(kind, up)
	}

	if kind == db.MediaKindImage {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(up.Data)); err == nil {
			asset.Width = cfg.Width
			asset.Height = cfg.Height
		}
	}

	return asset
}
