package handler

import (
	"gorm.io/gorm"

	"github.com/hlpne/AdBoard-MMO-RPG/internal/config"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/content"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/mail"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/service"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db          *gorm.DB
	accounts    *service.AccountService
	adverts     *service.AdvertService
	replies     *service.ReplyService
	newsletters *service.NewsletterService
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB, mailer mail.Mailer, cfg config.AppConfig) *API {
	renderer := content.NewRenderer(cfg.MediaBasePath)
	mediaPolicy := content.MediaPolicy{
		MaxImageSizeMB:    cfg.MaxImageSizeMB,
		MaxVideoSizeMB:    cfg.MaxVideoSizeMB,
		AllowedImageMIMEs: cfg.AllowedImageMIMEs,
		AllowedVideoMIMEs: cfg.AllowedVideoMIMEs,
	}

	return &API{
		db: gdb,
		accounts: service.NewAccountService(gdb, mailer, service.AccountOptions{
			CodeLength:  cfg.VerificationCodeLength,
			CodeTTL:     cfg.VerificationTTL,
			SiteName:    cfg.SiteName,
			SendTimeout: cfg.MailSendTimeout,
		}),
		adverts: service.NewAdvertService(gdb, renderer, mediaPolicy),
		replies: service.NewReplyService(gdb, mailer, cfg.SiteName, cfg.MailSendTimeout),
		newsletters: service.NewNewsletterService(gdb, mailer, service.NewsletterOptions{
			BatchSize:   cfg.NewsletterBatchSize,
			Delay:       cfg.NewsletterDelay,
			SendTimeout: cfg.MailSendTimeout,
		}),
	}
}
