package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/hlpne/AdBoard-MMO-RPG/internal/db"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/mail"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account email is not verified")
	ErrAlreadyVerified    = errors.New("account email is already verified")

	// ErrInvalidVerificationCode is the single failure surfaced for every
	// code rejection. Not-found, expired and reused codes must be
	// indistinguishable to the submitting caller; the concrete reason
	// only goes to the log.
	ErrInvalidVerificationCode = errors.New("verification code is invalid")
)

// AccountOptions 控制验证码的形态与寿命。
type AccountOptions struct {
	CodeLength  int
	CodeTTL     time.Duration
	SiteName    string
	SendTimeout time.Duration
}

// AccountService 负责注册、邮箱验证与登录校验。
type AccountService struct {
	db     *gorm.DB
	mailer mail.Mailer
	opts   AccountOptions
}

// NewAccountService creates an AccountService instance.
func NewAccountService(gdb *gorm.DB, mailer mail.Mailer, opts AccountOptions) *AccountService {
	if opts.CodeLength <= 0 {
		opts.CodeLength = 6
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = 30 * time.Minute
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	return &AccountService{db: gdb, mailer: mailer, opts: opts}
}

// Signup 注册一个未激活账号并签发验证码。验证邮件的发送失败会让
// 整个注册回滚并上抛，不会静默吞掉。
func (s *AccountService) Signup(ctx context.Context, email, username, password string) (*db.User, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return nil, ErrInvalidCredentials
	}

	var existing db.User
	err := s.db.Where("email = ?", normalized).First(&existing).Error
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := db.User{
		Email:    normalized,
		Username: strings.TrimSpace(username),
		Password: string(hashed),
		IsActive: false,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		verification, err := s.issueVerification(tx, user.ID)
		if err != nil {
			return err
		}

		return s.sendVerificationEmail(ctx, &user, verification.Code)
	}); err != nil {
		return nil, err
	}

	return &user, nil
}

// issueVerification 用加密安全的随机源生成定长数字验证码并落库。
func (s *AccountService) issueVerification(tx *gorm.DB, userID uint) (*db.EmailVerification, error) {
	code, err := generateNumericCode(s.opts.CodeLength)
	if err != nil {
		return nil, err
	}

	verification := db.EmailVerification{
		UserID:    userID,
		Code:      code,
		ExpiresAt: time.Now().Add(s.opts.CodeTTL),
		IsUsed:    false,
	}

	if err := tx.Create(&verification).Error; err != nil {
		return nil, err
	}
	return &verification, nil
}

// VerifyEmail 校验验证码并激活账号。标记验证码已用与激活账号发生在
// 同一事务内，两者要么都生效要么都不生效。
func (s *AccountService) VerifyEmail(userID uint, code string) error {
	var user db.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if user.IsActive {
		return ErrAlreadyVerified
	}

	submitted := strings.TrimSpace(code)

	return s.db.Transaction(func(tx *gorm.DB) error {
		var verification db.EmailVerification
		err := tx.Where("user_id = ? AND code = ? AND is_used = ?", userID, submitted, false).
			First(&verification).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				slog.Warn("verification rejected", "user_id", userID, "reason", "code not found or already used")
				return ErrInvalidVerificationCode
			}
			return err
		}

		if !verification.Valid(time.Now()) {
			slog.Warn("verification rejected", "user_id", userID, "reason", "code expired")
			return ErrInvalidVerificationCode
		}

		if err := tx.Model(&verification).Update("is_used", true).Error; err != nil {
			return err
		}

		return tx.Model(&db.User{}).Where("id = ?", userID).Update("is_active", true).Error
	})
}

// Authenticate 校验登录凭据。未激活账号与密码错误刻意返回不同错误，
// 前者需要引导用户去完成验证。
func (s *AccountService) Authenticate(email, password string) (*db.User, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))

	var user db.User
	if err := s.db.Where("email = ?", normalized).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	return &user, nil
}

// ProfileStats 汇总个人页需要的计数。
type ProfileStats struct {
	User         db.User
	AdvertCount  int64
	ReplyCount   int64
	Subscription *db.Subscription
}

// Profile 返回用户及其广告、回复数量。
func (s *AccountService) Profile(userID uint) (*ProfileStats, error) {
	var user db.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	stats := ProfileStats{User: user}

	if err := s.db.Model(&db.Advert{}).Where("author_id = ?", userID).Count(&stats.AdvertCount).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&db.Reply{}).Where("author_id = ?", userID).Count(&stats.ReplyCount).Error; err != nil {
		return nil, err
	}

	var subscription db.Subscription
	if err := s.db.Where("user_id = ?", userID).First(&subscription).Error; err == nil {
		stats.Subscription = &subscription
	}

	return &stats, nil
}

func (s *AccountService) sendVerificationEmail(ctx context.Context, user *db.User, code string) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	defer cancel()

	subject := fmt.Sprintf("Confirm your registration on %s", s.opts.SiteName)
	text := fmt.Sprintf("Your verification code: %s\n\nThe code expires in %d minutes.",
		code, int(s.opts.CodeTTL.Minutes()))
	htmlBody := fmt.Sprintf("<p>Your verification code: <strong>%s</strong></p><p>The code expires in %d minutes.</p>",
		code, int(s.opts.CodeTTL.Minutes()))

	return s.mailer.Send(sendCtx, mail.Message{
		To:       user.Email,
		Subject:  subject,
		Text:     text,
		HTMLBody: htmlBody,
	})
}

// generateNumericCode 产出 length 位的十进制验证码，随机源为
// crypto/rand，不可预测。
func generateNumericCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
