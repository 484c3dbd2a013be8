package db

import "gorm.io/gorm"

// Advert statuses.
const (
	AdvertStatusDraft     = "draft"
	AdvertStatusPublished = "published"
	AdvertStatusArchived  = "archived"
)

// Category 定义了广告分类模型，slug 作为主键。
type Category struct {
	Slug string `gorm:"primaryKey;size:50"`
	Name string `gorm:"unique;not null;size:100"`
}

// Advert 定义了广告模型。BodyHTML 永远是 BodyMD 在最近一次保存时
// 经过净化管线产出的 HTML，不允许手工编辑。
type Advert struct {
	gorm.Model
	AuthorID     uint `gorm:"index;not null"`
	Author       User
	CategorySlug string `gorm:"index;not null"`
	Category     Category `gorm:"foreignKey:CategorySlug;references:Slug"`
	Title        string   `gorm:"size:120;not null"`
	BodyMD       string   `gorm:"not null"`
	BodyHTML     string
	Status       string `gorm:"index;not null;default:published"`
}

// MediaKind 在摄取时解析一次，此后显式传递，不再从文件名或
// content-type 反复推断。
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// MediaAsset 记录上传媒体的元数据。MIME 与字节大小来自实际载荷，
// 不信任客户端声明的值。
type MediaAsset struct {
	gorm.Model
	OwnerID  uint      `gorm:"index;not null"`
	Owner    User
	Kind     MediaKind `gorm:"size:10;not null"`
	Filename string
	MIME     string `gorm:"size:100"`
	Size     int64  `gorm:"not null;default:0"`
	Width    int
	Height   int
}
