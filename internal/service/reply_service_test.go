package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/hlpne/AdBoard-MMO-RPG/internal/db"
)

func newTestReplyService(t *testing.T) (*ReplyService, *recordingMailer, func()) {
	t.Helper()

	gdb, cleanup := setupServiceTestDB(t, "reply-service")
	mailer := newRecordingMailer()
	svc := NewReplyService(gdb, mailer, "MMO Board", 5*time.Second)
	return svc, mailer, cleanup
}

func seedAdvert(t *testing.T, gdb *gorm.DB, authorID uint, title, status string) *db.Advert {
	t.Helper()

	advert := db.Advert{
		AuthorID:     authorID,
		CategorySlug: "misc",
		Title:        title,
		BodyMD:       "body",
		BodyHTML:     "<p>body</p>",
		Status:       status,
	}
	if err := gdb.Create(&advert).Error; err != nil {
		t.Fatalf("failed to seed advert %q: %v", title, err)
	}
	return &advert
}

func TestCreateReplyNotifiesAdvertAuthor(t *testing.T) {
	svc, mailer, cleanup := newTestReplyService(t)
	defer cleanup()

	seedCategory(t, svc.db, "misc", "Misc")
	owner := seedUser(t, svc.db, "owner@example.com", true)
	visitor := seedUser(t, svc.db, "visitor@example.com", true)
	advert := seedAdvert(t, svc.db, owner.ID, "Looking for healer", db.AdvertStatusPublished)

	reply, err := svc.Create(context.Background(), advert.ID, visitor.ID, "  I main a priest.  ")
	if err != nil {
		t.Fatalf("create reply: %v", err)
	}

	if reply.Status != db.ReplyStatusPending {
		t.Fatalf("expected pending status, got %s", reply.Status)
	}
	if reply.Text != "I main a priest." {
		t.Fatalf("text not trimmed: %q", reply.Text)
	}

	recipients := mailer.sentTo()
	if len(recipients) != 1 || recipients[0] != "owner@example.com" {
		t.Fatalf("advert author not notified: %v", recipients)
	}
	if !strings.Contains(mailer.sent[0].Subject, "Looking for healer") {
		t.Fatalf("notification subject missing advert title: %q", mailer.sent[0].Subject)
	}
}

func TestCreateReplyEscapesUserTextInNotification(t *testing.T) {
	svc, mailer, cleanup := newTestReplyService(t)
	defer cleanup()

	seedCategory(t, svc.db, "misc", "Misc")
	owner := seedUser(t, svc.db, "target@example.com", true)
	visitor := seedUser(t, svc.db, "hostile@example.com", true)
	advert := seedAdvert(t, svc.db, owner.ID, "Clean advert", db.AdvertStatusPublished)

	if _, err := svc.Create(context.Background(), advert.ID, visitor.ID, `<img src=x onerror=alert(1)>`); err != nil {
		t.Fatalf("create reply: %v", err)
	}

	body := mailer.sent[0].HTMLBody
	if strings.Contains(body, "<img") {
		t.Fatalf("reply text not escaped in notification html: %s", body)
	}
	if !strings.Contains(body, "&lt;img") {
		t.Fatalf("expected escaped markup in notification html: %s", body)
	}
}

func TestCreateReplyRejectsSelfReply(t *testing.T) {
	svc, _, cleanup := newTestReplyService(t)
	defer cleanup()

	seedCategory(t, svc.db, "misc", "Misc")
	owner := seedUser(t, svc.db, "self@example.com", true)
	advert := seedAdvert(t, svc.db, owner.ID, "My own advert", db.AdvertStatusPublished)

	_, err := svc.Create(context.Background(), advert.ID, owner.ID, "first!")
	if !errors.Is(err, ErrSelfReply) {
		t.Fatalf("expected ErrSelfReply, got %v", err)
	}
}

func TestCreateReplyRequiresPublishedAdvert(t *testing.T) {
	svc, _, cleanup := newTestReplyService(t)
	defer cleanup()

	seedCategory(t, svc.db, "misc", "Misc")
	owner := seedUser(t, svc.db, "hidden@example.com", true)
	visitor := seedUser(t, svc.db, "eager@example.com", true)
	draft := seedAdvert(t, svc.db, owner.ID, "Unlisted", db.AdvertStatusDraft)

	_, err := svc.Create(context.Background(), draft.ID, visitor.ID, "can I reply?")
	if !errors.Is(err, ErrAdvertNotFound) {
		t.Fatalf("expected ErrAdvertNotFound for draft advert, got %v", err)
	}
}

func TestCreateReplyRollsBackWhenNotificationFails(t *testing.T) {
	svc, mailer, cleanup := newTestReplyService(t)
	defer cleanup()

	seedCategory(t, svc.db, "misc", "Misc")
	owner := seedUser(t, svc.db, "unreachable@example.com", true)
	visitor := seedUser(t, svc.db, "caller@example.com", true)
	advert := seedAdvert(t, svc.db, owner.ID, "Fragile inbox", db.AdvertStatusPublished)

	mailer.failFor["unreachable@example.com"] = errors.New("bounce")

	if _, err := svc.Create(context.Background(), advert.ID, visitor.ID, "hello"); err == nil {
		t.Fatalf("expected notification failure to propagate")
	}

	var count int64
	svc.db.Model(&db.Reply{}).Count(&count)
	if count != 0 {
		t.Fatalf("reply row survived a failed notification")
	}
}

func TestAcceptReplyFlow(t *testing.T) {
	svc, mailer, cleanup := newTestReplyService(t)
	defer cleanup()

	seedCategory(t, svc.db, "misc", "Misc")
	owner := seedUser(t, svc.db, "acceptor@example.com", true)
	visitor := seedUser(t, svc.db, "candidate@example.com", true)
	advert := seedAdvert(t, svc.db, owner.ID, "Guild spot", db.AdvertStatusPublished)

	reply, err := svc.Create(context.Background(), advert.ID, visitor.ID, "pick me")
	if err != nil {
		t.Fatalf("create reply: %v", err)
	}

	accepted, err := svc.Accept(context.Background(), reply.ID, owner.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != db.ReplyStatusAccepted {
		t.Fatalf("expected accepted status, got %s", accepted.Status)
	}

	// Two notifications total: reply-created to the owner, acceptance to
	// the reply author.
	recipients := mailer.sentTo()
	if len(recipients) != 2 || recipients[1] != "candidate@example.com" {
		t.Fatalf("reply author not notified of acceptance: %v", recipients)
	}

	// Accepting twice is rejected.
	if _, err := svc.Accept(context.Background(), reply.ID, owner.ID); !errors.Is(err, ErrReplyAlreadyAccepted) {
		t.Fatalf("expected ErrReplyAlreadyAccepted, got %v", err)
	}
}

func TestAcceptReplyOwnerOnly(t *testing.T) {
	svc, _, cleanup := newTestReplyService(t)
	defer cleanup()

	seedCategory(t, svc.db, "misc", "Misc")
	owner := seedUser(t, svc.db, "realowner@example.com", true)
	visitor := seedUser(t, svc.db, "replier@example.com", true)
	advert := seedAdvert(t, svc.db, owner.ID, "Not yours", db.AdvertStatusPublished)

	reply, _ := svc.Create(context.Background(), advert.ID, visitor.ID, "hi")

	if _, err := svc.Accept(context.Background(), reply.ID, visitor.ID); !errors.Is(err, ErrNotAdvertOwner) {
		t.Fatalf("expected ErrNotAdvertOwner, got %v", err)
	}
}

func TestDeleteReplySoftDeletes(t *testing.T) {
	svc, _, cleanup := newTestReplyService(t)
	defer cleanup()

	seedCategory(t, svc.db, "misc", "Misc")
	owner := seedUser(t, svc.db, "janitor@example.com", true)
	visitor := seedUser(t, svc.db, "spammer@example.com", true)
	advert := seedAdvert(t, svc.db, owner.ID, "Moderated", db.AdvertStatusPublished)

	reply, _ := svc.Create(context.Background(), advert.ID, visitor.ID, "buy gold")

	if err := svc.Delete(reply.ID, visitor.ID); !errors.Is(err, ErrNotAdvertOwner) {
		t.Fatalf("expected ErrNotAdvertOwner for non-owner delete, got %v", err)
	}

	if err := svc.Delete(reply.ID, owner.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}

	// The row stays in place with status deleted and a removal timestamp.
	var stored db.Reply
	if err := svc.db.First(&stored, reply.ID).Error; err != nil {
		t.Fatalf("soft-deleted reply row is gone: %v", err)
	}
	if stored.Status != db.ReplyStatusDeleted || stored.RemovedAt == nil {
		t.Fatalf("soft delete not recorded: status=%s removed_at=%v", stored.Status, stored.RemovedAt)
	}

	// Deleted replies cannot be accepted afterwards.
	if _, err := svc.Accept(context.Background(), reply.ID, owner.ID); !errors.Is(err, ErrReplyDeleted) {
		t.Fatalf("expected ErrReplyDeleted, got %v", err)
	}
}

func TestListForOwnerFilters(t *testing.T) {
	svc, _, cleanup := newTestReplyService(t)
	defer cleanup()

	seedCategory(t, svc.db, "misc", "Misc")
	owner := seedUser(t, svc.db, "inbox@example.com", true)
	other := seedUser(t, svc.db, "otherinbox@example.com", true)
	visitor := seedUser(t, svc.db, "busy@example.com", true)

	mine := seedAdvert(t, svc.db, owner.ID, "Mine", db.AdvertStatusPublished)
	second := seedAdvert(t, svc.db, owner.ID, "Also mine", db.AdvertStatusPublished)
	foreign := seedAdvert(t, svc.db, other.ID, "Not mine", db.AdvertStatusPublished)

	for _, text := range []string{"tank application", "healer application"} {
		if _, err := svc.Create(context.Background(), mine.ID, visitor.ID, text); err != nil {
			t.Fatalf("seed reply: %v", err)
		}
	}
	if _, err := svc.Create(context.Background(), second.ID, visitor.ID, "dps application"); err != nil {
		t.Fatalf("seed reply: %v", err)
	}
	if _, err := svc.Create(context.Background(), foreign.ID, visitor.ID, "should not appear"); err != nil {
		t.Fatalf("seed foreign reply: %v", err)
	}

	all, err := svc.ListForOwner(owner.ID, ReplyFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if all.Total != 3 {
		t.Fatalf("expected 3 replies across own adverts, got %d", all.Total)
	}

	one, err := svc.ListForOwner(owner.ID, ReplyFilter{AdvertID: second.ID})
	if err != nil {
		t.Fatalf("list by advert: %v", err)
	}
	if one.Total != 1 {
		t.Fatalf("expected 1 reply for second advert, got %d", one.Total)
	}

	search, err := svc.ListForOwner(owner.ID, ReplyFilter{Search: "healer"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if search.Total != 1 || !strings.Contains(search.Replies[0].Text, "healer") {
		t.Fatalf("search filter wrong: total=%d", search.Total)
	}

	pending, err := svc.ListForOwner(owner.ID, ReplyFilter{Status: db.ReplyStatusPending})
	if err != nil {
		t.Fatalf("status filter: %v", err)
	}
	if pending.Total != 3 {
		t.Fatalf("expected 3 pending replies, got %d", pending.Total)
	}
}
