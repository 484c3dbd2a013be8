package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hlpne/AdBoard-MMO-RPG/internal/db"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/mail"
)

func setupServiceTestDB(t *testing.T, name string) (*gorm.DB, func()) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	return gdb, func() {
		sqlDB, err := gdb.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	}
}

// recordingMailer captures outbound messages and can be told to fail for
// specific recipients.
type recordingMailer struct {
	mu      sync.Mutex
	sent    []mail.Message
	failFor map[string]error
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{failFor: make(map[string]error)}
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failFor[msg.To]; ok {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) sentTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	recipients := make([]string, 0, len(m.sent))
	for _, msg := range m.sent {
		recipients = append(recipients, msg.To)
	}
	return recipients
}

func seedUser(t *testing.T, gdb *gorm.DB, email string, active bool) *db.User {
	t.Helper()

	user := db.User{
		Email:    email,
		Password: "hashed",
		IsActive: active,
	}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user %s: %v", email, err)
	}
	return &user
}

func seedCategory(t *testing.T, gdb *gorm.DB, slug, name string) *db.Category {
	t.Helper()

	category := db.Category{Slug: slug, Name: name}
	if err := gdb.Create(&category).Error; err != nil {
		t.Fatalf("failed to seed category %s: %v", slug, err)
	}
	return &category
}
