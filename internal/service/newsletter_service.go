package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hlpne/AdBoard-MMO-RPG/internal/db"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/mail"
)

var (
	ErrTemplateNotFound = errors.New("newsletter template not found")
	ErrJobNotFound      = errors.New("newsletter send job not found")
	ErrJobClaimed       = errors.New("newsletter send job is claimed by another worker")
)

// claimLease 限定单次租约的有效期；持有者崩溃后，过期的租约可以被
// 其他工作进程抢占并续跑。
const claimLease = 5 * time.Minute

// NewsletterOptions 控制批量发送的节奏。
type NewsletterOptions struct {
	BatchSize   int
	Delay       time.Duration
	SendTimeout time.Duration
}

// NewsletterService 管理订阅状态与批量发送任务。
type NewsletterService struct {
	db     *gorm.DB
	mailer mail.Mailer
	opts   NewsletterOptions
}

// NewNewsletterService creates a NewsletterService instance.
func NewNewsletterService(gdb *gorm.DB, mailer mail.Mailer, opts NewsletterOptions) *NewsletterService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	return &NewsletterService{db: gdb, mailer: mailer, opts: opts}
}

// Subscribe 开启用户的订阅；已有记录时重新激活。
func (s *NewsletterService) Subscribe(userID uint) (*db.Subscription, error) {
	var subscription db.Subscription
	err := s.db.Where("user_id = ?", userID).First(&subscription).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		subscription = db.Subscription{UserID: userID, IsActive: true}
		if err := s.db.Create(&subscription).Error; err != nil {
			return nil, err
		}
		return &subscription, nil
	}
	if err != nil {
		return nil, err
	}

	if !subscription.IsActive {
		if err := s.db.Model(&subscription).Update("is_active", true).Error; err != nil {
			return nil, err
		}
		subscription.IsActive = true
	}
	return &subscription, nil
}

// Unsubscribe 关闭用户的订阅；没有订阅记录时静默返回。
func (s *NewsletterService) Unsubscribe(userID uint) (*db.Subscription, error) {
	var subscription db.Subscription
	if err := s.db.Where("user_id = ?", userID).First(&subscription).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if err := s.db.Model(&subscription).Update("is_active", false).Error; err != nil {
		return nil, err
	}
	subscription.IsActive = false
	return &subscription, nil
}

// CreateTemplate persists a newsletter template.
func (s *NewsletterService) CreateTemplate(title, htmlBody string) (*db.NewsletterTemplate, error) {
	template := db.NewsletterTemplate{
		Title:    strings.TrimSpace(title),
		HTMLBody: htmlBody,
	}
	if err := s.db.Create(&template).Error; err != nil {
		return nil, err
	}
	return &template, nil
}

// FindActiveJobByTemplate 查找模板当前的非终态任务。调度状态全部
// 落在存储里，不依赖进程内注册表。
func (s *NewsletterService) FindActiveJobByTemplate(templateID uint) (*db.NewsletterSendJob, error) {
	var job db.NewsletterSendJob
	err := s.db.
		Where("template_id = ? AND status IN ?", templateID,
			[]string{db.SendJobStatusQueued, db.SendJobStatusSending}).
		Order("id desc").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Dispatch 把模板发送给所有活跃订阅者。模板已有非终态任务时续跑该
// 任务，否则创建新任务。Total 在任务创建时一次性快照，续跑不重新
// 统计，保证进度数学一致。
func (s *NewsletterService) Dispatch(ctx context.Context, templateID uint) (*db.NewsletterSendJob, error) {
	var template db.NewsletterTemplate
	if err := s.db.First(&template, templateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	job, err := s.FindActiveJobByTemplate(templateID)
	if err != nil {
		return nil, err
	}

	if job == nil {
		var total int64
		if err := s.db.Model(&db.Subscription{}).Where("is_active = ?", true).Count(&total).Error; err != nil {
			return nil, err
		}

		job = &db.NewsletterSendJob{
			TemplateID: templateID,
			Status:     db.SendJobStatusQueued,
			Total:      int(total),
		}
		if err := s.db.Create(job).Error; err != nil {
			return nil, err
		}
	}

	return s.run(ctx, job, &template)
}

// ProcessJob 续跑一个已存在的任务，终态任务是严格的空操作。
func (s *NewsletterService) ProcessJob(ctx context.Context, jobID uint) (*db.NewsletterSendJob, error) {
	var job db.NewsletterSendJob
	if err := s.db.First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	if job.Terminal() {
		return &job, nil
	}

	var template db.NewsletterTemplate
	if err := s.db.First(&template, job.TemplateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	return s.run(ctx, &job, &template)
}

// run 推进任务直到订阅者列表耗尽。进度以批为粒度持久化；单个收件人
// 的失败只计数、只记日志，从不终止批或任务。
func (s *NewsletterService) run(ctx context.Context, job *db.NewsletterSendJob, template *db.NewsletterTemplate) (*db.NewsletterSendJob, error) {
	if job.Terminal() {
		return job, nil
	}

	token, err := s.claim(job.ID)
	if err != nil {
		return nil, err
	}
	defer s.release(job.ID, token)

	if job.Status == db.SendJobStatusQueued {
		now := time.Now()
		if err := s.db.Model(job).Updates(map[string]interface{}{
			"status":     db.SendJobStatusSending,
			"started_at": &now,
		}).Error; err != nil {
			return nil, err
		}
		job.Status = db.SendJobStatusSending
		job.StartedAt = &now
	}

	slog.Info("newsletter dispatch started",
		"job_id", job.ID, "template_id", template.ID,
		"total", job.Total, "resume_from", job.Sent)

	// Resume is defined purely by count: batches restart at the persisted
	// sent offset, sliced over a stable ordering key (subscription id).
	for offset := job.Sent; offset < job.Total; offset += s.opts.BatchSize {
		var batch []db.Subscription
		if err := s.db.
			Preload("User").
			Where("is_active = ?", true).
			Order("id asc").
			Limit(s.opts.BatchSize).
			Offset(offset).
			Find(&batch).Error; err != nil {
			return nil, err
		}

		// The subscriber list can shrink mid-run; an empty window means
		// there is nothing left to process.
		if len(batch) == 0 {
			break
		}

		for _, subscription := range batch {
			if err := s.sendOne(ctx, template, &subscription); err != nil {
				job.Errors++
				slog.Error("newsletter send failed",
					"job_id", job.ID, "recipient", subscription.User.Email, "error", err)
			} else {
				job.Sent++
			}
		}

		// Crash-safe checkpoint at batch granularity.
		if err := s.db.Model(job).Updates(map[string]interface{}{
			"sent":   job.Sent,
			"errors": job.Errors,
		}).Error; err != nil {
			return nil, err
		}

		if offset+s.opts.BatchSize < job.Total {
			if err := s.pause(ctx); err != nil {
				return job, err
			}
		}
	}

	status := db.SendJobStatusDone
	if job.Errors > 0 {
		status = db.SendJobStatusFailed
	}
	now := time.Now()
	if err := s.db.Model(job).Updates(map[string]interface{}{
		"status":      status,
		"finished_at": &now,
	}).Error; err != nil {
		return nil, err
	}
	job.Status = status
	job.FinishedAt = &now

	slog.Info("newsletter dispatch finished",
		"job_id", job.ID, "status", job.Status,
		"sent", job.Sent, "errors", job.Errors)

	return job, nil
}

func (s *NewsletterService) sendOne(ctx context.Context, template *db.NewsletterTemplate, subscription *db.Subscription) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	defer cancel()

	return s.mailer.Send(sendCtx, mail.Message{
		To:       subscription.User.Email,
		Subject:  template.Title,
		HTMLBody: template.HTMLBody,
	})
}

// claim 以租约形式独占任务：带守卫条件的 UPDATE 保证同一任务同一
// 时刻至多一个执行者，防止并发续跑造成重复发送。
func (s *NewsletterService) claim(jobID uint) (string, error) {
	token := uuid.NewString()
	now := time.Now()
	expires := now.Add(claimLease)

	result := s.db.Model(&db.NewsletterSendJob{}).
		Where("id = ? AND (claimed_by = '' OR claimed_by IS NULL OR claim_expires_at < ?)", jobID, now).
		Updates(map[string]interface{}{
			"claimed_by":       token,
			"claim_expires_at": &expires,
		})
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", ErrJobClaimed
	}
	return token, nil
}

func (s *NewsletterService) release(jobID uint, token string) {
	err := s.db.Model(&db.NewsletterSendJob{}).
		Where("id = ? AND claimed_by = ?", jobID, token).
		Updates(map[string]interface{}{
			"claimed_by":       "",
			"claim_expires_at": nil,
		}).Error
	if err != nil {
		slog.Error("failed to release job claim", "job_id", jobID, "error", err)
	}
}

// pause 在批与批之间等待配置的间隔，对邮件网关做限速；取消时立刻
// 返回，任务留待下次按计数续跑。
func (s *NewsletterService) pause(ctx context.Context) error {
	if s.opts.Delay <= 0 {
		return nil
	}

	timer := time.NewTimer(s.opts.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
