package db

import (
	"time"

	"gorm.io/gorm"
)

// Subscription 定义了用户的邮件订阅状态，一人一条记录。
type Subscription struct {
	gorm.Model
	UserID   uint `gorm:"uniqueIndex;not null"`
	User     User
	IsActive bool `gorm:"not null;default:true"`
}

// NewsletterTemplate 定义了一封待群发邮件的标题与 HTML 正文。
type NewsletterTemplate struct {
	gorm.Model
	Title    string `gorm:"size:200;not null"`
	HTMLBody string `gorm:"not null"`
}

// Send job statuses. queued 与 sending 为非终态，done 与 failed 为终态。
const (
	SendJobStatusQueued  = "queued"
	SendJobStatusSending = "sending"
	SendJobStatusDone    = "done"
	SendJobStatusFailed  = "failed"
)

// NewsletterSendJob 跟踪一次模板群发的进度。
// 不变式：Sent + Errors <= Total；FinishedAt 仅在终态下非空。
// ClaimedBy/ClaimExpiresAt 构成租约，保证同一任务同一时刻只有
// 一个工作进程在推进。
type NewsletterSendJob struct {
	gorm.Model
	TemplateID     uint `gorm:"index;not null"`
	Template       NewsletterTemplate
	Status         string `gorm:"index;not null;default:queued"`
	Total          int    `gorm:"not null;default:0"`
	Sent           int    `gorm:"not null;default:0"`
	Errors         int    `gorm:"not null;default:0"`
	StartedAt      *time.Time
	FinishedAt     *time.Time
	ClaimedBy      string `gorm:"size:36"`
	ClaimExpiresAt *time.Time
}

// Terminal reports whether the job has reached a final state.
func (j *NewsletterSendJob) Terminal() bool {
	return j.Status == SendJobStatusDone || j.Status == SendJobStatusFailed
}
