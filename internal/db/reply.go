package db

import (
	"time"

	"gorm.io/gorm"
)

// Reply statuses. Transitions are one-directional:
// pending→accepted, pending/accepted→deleted.
const (
	ReplyStatusPending  = "pending"
	ReplyStatusAccepted = "accepted"
	ReplyStatusDeleted  = "deleted"
)

// Reply 定义了对广告的回复模型。回复作者必须不同于广告作者，
// 该约束在服务层创建时检查。
type Reply struct {
	gorm.Model
	AdvertID  uint `gorm:"index:idx_replies_advert_status,priority:1;not null"`
	Advert    Advert
	AuthorID  uint `gorm:"index;not null"`
	Author    User
	Text      string `gorm:"not null"`
	Status    string `gorm:"index:idx_replies_advert_status,priority:2;not null;default:pending"`
	RemovedAt *time.Time
}
