package service

import (
	"context"
	"fmt"
	"log/slog"

	"geminichat/internal/microservices/http-api/models"
	"geminichat/internal/microservices/http-api/repository"
	"geminichat/internal/sanitize"
	"geminichat/internal/shared"
)

type ChatroomService interface {
	Create(ctx context.Context, userID int64, name string) (*models.Chatroom, error)
	List(ctx context.Context, userID int64) ([]models.Chatroom, error)
	// Get returns the chatroom only to its owner; other users see shared.ErrNotFound.
	Get(ctx context.Context, userID, chatroomID int64) (*models.Chatroom, error)
}

type chatroomService struct {
	repo      repository.ChatroomRepository
	cache     repository.ChatroomCache
	sanitizer *sanitize.Policy
	log       *slog.Logger
}

func NewChatroomService(repo repository.ChatroomRepository, cache repository.ChatroomCache, log *slog.Logger) ChatroomService {
	if log == nil {
		log = slog.Default()
	}
	return &chatroomService{repo: repo, cache: cache, sanitizer: sanitize.New(), log: log}
}

func (s *chatroomService) Create(ctx context.Context, userID int64, name string) (*models.Chatroom, error) {
	name = s.sanitizer.Text(name)
	if name == "" {
		return nil, fmt.Errorf("%w: chatroom name is empty", shared.ErrInvalidInput)
	}

	room := &models.Chatroom{UserID: userID, Name: name}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, err
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("chatroom_cache_invalidate_failed", "user_id", userID, "error", err)
	}
	return room, nil
}

func (s *chatroomService) List(ctx context.Context, userID int64) ([]models.Chatroom, error) {
	if rooms, hit, err := s.cache.Get(ctx, userID); err != nil {
		s.log.Warn("chatroom_cache_read_failed", "user_id", userID, "error", err)
	} else if hit {
		return rooms, nil
	}

	rooms, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, userID, rooms); err != nil {
		s.log.Warn("chatroom_cache_write_failed", "user_id", userID, "error", err)
	}
	return rooms, nil
}

func (s *chatroomService) Get(ctx context.Context, userID, chatroomID int64) (*models.Chatroom, error) {
	room, err := s.repo.FindByID(ctx, chatroomID)
	if err != nil {
		return nil, err
	}
	if room.UserID != userID {
		return nil, shared.ErrNotFound
	}
	return room, nil
}
