package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/hlpne/AdBoard-MMO-RPG/internal/db"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/mail"
)

var (
	ErrReplyNotFound        = errors.New("reply not found")
	ErrSelfReply            = errors.New("cannot reply to your own advert")
	ErrReplyTextRequired    = errors.New("reply text is required")
	ErrReplyAlreadyAccepted = errors.New("reply is already accepted")
	ErrReplyDeleted         = errors.New("reply has been deleted")
)

// ReplyService 负责回复的创建、接受与软删除，以及相应的邮件通知。
type ReplyService struct {
	db          *gorm.DB
	mailer      mail.Mailer
	siteName    string
	sendTimeout time.Duration
}

// ReplyFilter describes filters for an advert owner's reply inbox.
type ReplyFilter struct {
	AdvertID uint
	Status   string
	Search   string
	Page     int
	PerPage  int
}

// ReplyListResult aggregates paginated reply data.
type ReplyListResult struct {
	Replies    []db.Reply
	Total      int64
	TotalPages int
	Page       int
	PerPage    int
}

// NewReplyService creates a ReplyService instance.
func NewReplyService(gdb *gorm.DB, mailer mail.Mailer, siteName string, sendTimeout time.Duration) *ReplyService {
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &ReplyService{db: gdb, mailer: mailer, siteName: siteName, sendTimeout: sendTimeout}
}

// Create 给已发布的广告留下回复。作者给自己的广告留回复会被拒绝。
// 通知邮件与回复写入在同一事务内，发送失败则整体回滚并上抛。
func (s *ReplyService) Create(ctx context.Context, advertID, authorID uint, text string) (*db.Reply, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrReplyTextRequired
	}

	var advert db.Advert
	if err := s.db.Preload("Author").
		Where("status = ?", db.AdvertStatusPublished).
		First(&advert, advertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAdvertNotFound
		}
		return nil, err
	}

	if advert.AuthorID == authorID {
		return nil, ErrSelfReply
	}

	reply := db.Reply{
		AdvertID: advertID,
		AuthorID: authorID,
		Text:     strings.TrimSpace(text),
		Status:   db.ReplyStatusPending,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&reply).Error; err != nil {
			return err
		}
		return s.sendReplyNotification(ctx, &advert, &reply)
	}); err != nil {
		return nil, err
	}

	return &reply, nil
}

// Accept 由广告作者接受一条待处理回复，并通知回复作者。
func (s *ReplyService) Accept(ctx context.Context, replyID, ownerID uint) (*db.Reply, error) {
	reply, err := s.getWithRelations(replyID)
	if err != nil {
		return nil, err
	}

	if reply.Advert.AuthorID != ownerID {
		return nil, ErrNotAdvertOwner
	}
	if reply.Status == db.ReplyStatusAccepted {
		return nil, ErrReplyAlreadyAccepted
	}
	if reply.Status == db.ReplyStatusDeleted {
		return nil, ErrReplyDeleted
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.Reply{}).
			Where("id = ?", reply.ID).
			Update("status", db.ReplyStatusAccepted).Error; err != nil {
			return err
		}
		return s.sendAcceptNotification(ctx, reply)
	}); err != nil {
		return nil, err
	}

	reply.Status = db.ReplyStatusAccepted
	return reply, nil
}

// Delete 软删除一条回复：状态置为 deleted 并记录时间，不做物理删除。
func (s *ReplyService) Delete(replyID, ownerID uint) error {
	reply, err := s.getWithRelations(replyID)
	if err != nil {
		return err
	}

	if reply.Advert.AuthorID != ownerID {
		return ErrNotAdvertOwner
	}

	now := time.Now()
	return s.db.Model(&db.Reply{}).
		Where("id = ?", reply.ID).
		Updates(map[string]interface{}{
			"status":     db.ReplyStatusDeleted,
			"removed_at": &now,
		}).Error
}

// ListForOwner returns replies to the owner's adverts with optional filters.
func (s *ReplyService) ListForOwner(ownerID uint, filter ReplyFilter) (*ReplyListResult, error) {
	result := &ReplyListResult{Page: filter.Page, PerPage: filter.PerPage}
	if result.Page <= 0 {
		result.Page = 1
	}
	if result.PerPage <= 0 {
		result.PerPage = 15
	}

	base := s.db.Model(&db.Reply{}).
		Joins("JOIN adverts ON adverts.id = replies.advert_id").
		Where("adverts.author_id = ?", ownerID)
	base = applyReplyFilters(base, filter)

	if err := base.Count(&result.Total).Error; err != nil {
		return nil, err
	}

	offset := (result.Page - 1) * result.PerPage

	var replies []db.Reply
	dataQuery := s.db.Model(&db.Reply{}).
		Preload("Advert").
		Preload("Author").
		Joins("JOIN adverts ON adverts.id = replies.advert_id").
		Where("adverts.author_id = ?", ownerID)
	dataQuery = applyReplyFilters(dataQuery, filter)

	if err := dataQuery.
		Order("replies.created_at desc, replies.id desc").
		Limit(result.PerPage).
		Offset(offset).
		Find(&replies).Error; err != nil {
		return nil, err
	}

	if result.Total == 0 {
		result.TotalPages = 1
	} else {
		result.TotalPages = int((result.Total + int64(result.PerPage) - 1) / int64(result.PerPage))
	}

	result.Replies = replies
	return result, nil
}

func (s *ReplyService) getWithRelations(replyID uint) (*db.Reply, error) {
	var reply db.Reply
	if err := s.db.Preload("Advert").Preload("Advert.Author").Preload("Author").
		First(&reply, replyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReplyNotFound
		}
		return nil, err
	}
	return &reply, nil
}

func (s *ReplyService) sendReplyNotification(ctx context.Context, advert *db.Advert, reply *db.Reply) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	subject := fmt.Sprintf("New reply to your advert: %s", advert.Title)
	text := fmt.Sprintf("Your advert %q received a new reply:\n\n%s\n\n— %s", advert.Title, reply.Text, s.siteName)
	htmlBody := fmt.Sprintf("<p>Your advert <strong>%s</strong> received a new reply:</p><blockquote>%s</blockquote>",
		html.EscapeString(advert.Title), html.EscapeString(reply.Text))

	return s.mailer.Send(sendCtx, mail.Message{
		To:       advert.Author.Email,
		Subject:  subject,
		Text:     text,
		HTMLBody: htmlBody,
	})
}

func (s *ReplyService) sendAcceptNotification(ctx context.Context, reply *db.Reply) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	subject := fmt.Sprintf("Your reply was accepted: %s", reply.Advert.Title)
	text := fmt.Sprintf("The author of %q accepted your reply.\n\n— %s", reply.Advert.Title, s.siteName)
	htmlBody := fmt.Sprintf("<p>The author of <strong>%s</strong> accepted your reply.</p>",
		html.EscapeString(reply.Advert.Title))

	return s.mailer.Send(sendCtx, mail.Message{
		To:       reply.Author.Email,
		Subject:  subject,
		Text:     text,
		HTMLBody: htmlBody,
	})
}

func applyReplyFilters(query *gorm.DB, filter ReplyFilter) *gorm.DB {
	if filter.AdvertID != 0 {
		query = query.Where("replies.advert_id = ?", filter.AdvertID)
	}
	if filter.Status != "" {
		query = query.Where("replies.status = ?", filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where("replies.text LIKE ?", "%"+search+"%")
	}
	return query
}
