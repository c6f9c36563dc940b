package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"geminichat/internal/microservices/http-api/models"
)

// setupTestDB opens a private in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.New(sqlite.Config{
		DriverName: "sqlite",
		DSN:        "file::memory:?_pragma=foreign_keys(1)",
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.OTP{},
		&models.Chatroom{},
		&models.Message{},
		&models.Subscription{},
	))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, mobile string) *models.User {
	t.Helper()
	user := &models.User{Mobile: mobile}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), user))
	return user
}

func seedChatroom(t *testing.T, db *gorm.DB, userID int64, name string) *models.Chatroom {
	t.Helper()
	room := &models.Chatroom{UserID: userID, Name: name}
	require.NoError(t, NewChatroomRepository(db).Create(context.Background(), room))
	return room
}
