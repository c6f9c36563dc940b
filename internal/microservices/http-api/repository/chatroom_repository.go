package repository

import (
	"context"

	"gorm.io/gorm"

	"geminichat/internal/microservices/http-api/models"
)

type ChatroomRepository interface {
	Create(ctx context.Context, room *models.Chatroom) error
	FindByID(ctx context.Context, id int64) (*models.Chatroom, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Chatroom, error)
	// GetOwner returns the owning user id, or shared.ErrNotFound.
	GetOwner(ctx context.Context, id int64) (int64, error)
}

type chatroomRepository struct {
	db *gorm.DB
}

func NewChatroomRepository(db *gorm.DB) ChatroomRepository {
	return &chatroomRepository{db: db}
}

func (r *chatroomRepository) Create(ctx context.Context, room *models.Chatroom) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *chatroomRepository) FindByID(ctx context.Context, id int64) (*models.Chatroom, error) {
	var room models.Chatroom
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &room, nil
}

func (r *chatroomRepository) ListByUser(ctx context.Context, userID int64) ([]models.Chatroom, error) {
	rooms := []models.Chatroom{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&rooms).Error
	return rooms, err
}

func (r *chatroomRepository) GetOwner(ctx context.Context, id int64) (int64, error) {
	var room models.Chatroom
	if err := r.db.WithContext(ctx).Select("user_id").First(&room, "id = ?", id).Error; err != nil {
		return 0, mapNotFound(err)
	}
	return room.UserID, nil
}
