package db

import (
	"time"

	"gorm.io/gorm"
)

// User 定义了用户模型。Email 是唯一登录标识；
// 账号在邮箱验证通过前保持未激活状态。
type User struct {
	gorm.Model
	Email    string `gorm:"unique;not null"`
	Username string
	Password string `gorm:"not null"`
	IsActive bool   `gorm:"not null;default:false"`
	IsStaff  bool   `gorm:"not null;default:false"`
}

// EmailVerification 保存一次性邮箱验证码。
// 验证码过期或使用后仅标记，不做物理删除，留作审计。
type EmailVerification struct {
	gorm.Model
	UserID    uint   `gorm:"index;not null"`
	User      User
	Code      string `gorm:"size:8;index:idx_verifications_code_used,priority:1;not null"`
	ExpiresAt time.Time
	IsUsed    bool `gorm:"index:idx_verifications_code_used,priority:2;not null;default:false"`
}

// Valid reports whether the code can still be redeemed at the given instant.
func (v *EmailVerification) Valid(now time.Time) bool {
	return !v.IsUsed && now.Before(v.ExpiresAt)
}
