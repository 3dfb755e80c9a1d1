package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/reviewhub/internal/database/testutil"
	"github.com/charlesng35/reviewhub/internal/models"
	"github.com/charlesng35/reviewhub/pkg/mail"
)

func openServiceTestDB(t *testing.T, opts ...testutil.TestDBOption) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, append([]testutil.TestDBOption{testutil.WithAutoMigrate()}, opts...)...)
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{ID: uuid.NewString(), Email: email}
	require.NoError(t, db.Create(user).Error)
	return user
}

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
	block    bool
}

func (m *recordingMailer) Send(ctx context.Context, msg mail.Message) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}
