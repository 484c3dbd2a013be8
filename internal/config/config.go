package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr    string
	Port          string
	DatabasePath  string
	SessionSecret string
	GinMode       string
	SiteName      string

	// Media embedding limits.
	MediaBasePath     string
	MaxImageSizeMB    int
	MaxVideoSizeMB    int
	AllowedImageMIMEs []string
	AllowedVideoMIMEs []string

	// Email verification.
	VerificationCodeLength int
	VerificationTTL        time.Duration

	// Newsletter dispatch.
	NewsletterBatchSize int
	NewsletterDelay     time.Duration
	MailSendTimeout     time.Duration

	// Mail transport.
	ResendAPIKey string
	FromEmail    string
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
// A .env file next to the binary is honored when present.
func Load() AppConfig {
	_ = godotenv.Load()

	port := envOr("PORT", "8080")

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	return AppConfig{
		ListenAddr:    listenAddr,
		Port:          port,
		DatabasePath:  envOr("DATABASE_PATH", "adboard.db"),
		SessionSecret: envOr("SESSION_SECRET", "adboard-dev-secret"),
		GinMode:       envOr("GIN_MODE", "release"),
		SiteName:      envOr("SITE_NAME", "MMO Board"),

		MediaBasePath:     envOr("MEDIA_BASE_PATH", "/media/"),
		MaxImageSizeMB:    envInt("MAX_IMAGE_SIZE_MB", 10),
		MaxVideoSizeMB:    envInt("MAX_VIDEO_SIZE_MB", 100),
		AllowedImageMIMEs: envList("ALLOWED_IMAGE_MIMES", []string{"image/png", "image/jpeg", "image/webp", "image/gif"}),
		AllowedVideoMIMEs: envList("ALLOWED_VIDEO_MIMES", []string{"video/mp4", "video/webm"}),

		VerificationCodeLength: envInt("VERIFICATION_CODE_LENGTH", 6),
		VerificationTTL:        time.Duration(envInt("VERIFICATION_TTL_MINUTES", 30)) * time.Minute,

		NewsletterBatchSize: envInt("NEWSLETTER_BATCH_SIZE", 50),
		NewsletterDelay:     time.Duration(envInt("NEWSLETTER_DELAY_SECONDS", 2)) * time.Second,
		MailSendTimeout:     time.Duration(envInt("MAIL_SEND_TIMEOUT_SECONDS", 30)) * time.Second,

		ResendAPIKey: strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		FromEmail:    envOr("FROM_EMAIL", "no-reply@mmo-board.local"),
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envList(key string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
