package main

import (
	"log"

	"github.com/hlpne/AdBoard-MMO-RPG/internal/config"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/db"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/mail"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/router"
)

func main() {
	cfg := config.Load()

	// 初始化数据库
	gdb, err := db.Init(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	var mailer mail.Mailer = mail.NewResendMailer(cfg.ResendAPIKey, cfg.FromEmail)
	if cfg.ResendAPIKey == "" {
		mailer = mail.LogMailer{}
	}

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(gdb, mailer, cfg)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}
