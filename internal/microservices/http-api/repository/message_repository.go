package repository

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"geminichat/internal/microservices/http-api/models"
	"geminichat/internal/shared"
)

// pgForeignKeyViolation is the SQLSTATE Postgres reports when a referenced row is missing.
const pgForeignKeyViolation = "23503"

// AppendInput describes one message to add to a chatroom.
type AppendInput struct {
	ChatroomID int64
	AuthorID   int64
	Content    string
	Role       shared.Role
	Status     shared.MessageStatus
	ReplyToID  *int64
	// NotBefore is a lower bound for the stored timestamp; replies pass their source's
	// created_at so a lagging worker clock cannot order a reply before its question.
	NotBefore time.Time
}

// MessageRepository is the conversation store: durable, ordered chatroom messages.
type MessageRepository interface {
	// Append stores a message with a server-assigned id and UTC timestamp.
	// It returns shared.ErrNotFound if the chatroom does not exist, shared.ErrForbidden if a
	// user-role author does not own it, and shared.ErrDuplicateReply if ReplyToID is already answered.
	Append(ctx context.Context, in AppendInput) (*models.Message, error)
	// Iterate yields the chatroom's messages ordered by (created_at, id). A limit <= 0 means all.
	Iterate(ctx context.Context, chatroomID int64, limit int) iter.Seq2[models.Message, error]
	// History returns up to limit completed messages preceding beforeID, oldest first.
	History(ctx context.Context, chatroomID, beforeID int64, limit int) ([]models.Message, error)
	GetByID(ctx context.Context, id int64) (*models.Message, error)
	FindReply(ctx context.Context, sourceMessageID int64) (*models.Message, error)
	// DeleteFailedReply removes the failure marker answering sourceMessageID so generation can run again.
	// It returns shared.ErrNotFound when the source has no failed reply.
	DeleteFailedReply(ctx context.Context, sourceMessageID int64) error
}

type messageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db, now: time.Now}
}

func (r *messageRepository) Append(ctx context.Context, in AppendInput) (*models.Message, error) {
	if in.Status == "" {
		in.Status = shared.StatusComplete
	}
	msg := &models.Message{
		ChatroomID: in.ChatroomID,
		UserID:     in.AuthorID,
		Content:    in.Content,
		Role:       in.Role,
		Status:     in.Status,
		ReplyToID:  in.ReplyToID,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Chatroom
		if err := tx.Select("id", "user_id").First(&room, "id = ?", in.ChatroomID).Error; err != nil {
			return mapNotFound(err)
		}
		if in.Role == shared.RoleUser && room.UserID != in.AuthorID {
			return shared.ErrForbidden
		}

		// stamped inside the transaction so ordering follows commit order as closely as possible
		msg.CreatedAt = r.now().UTC()
		if nb := in.NotBefore.UTC(); msg.CreatedAt.Before(nb) {
			msg.CreatedAt = nb
		}

		if in.ReplyToID == nil {
			return tx.Create(msg).Error
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reply_to_id"}},
			DoNothing: true,
		}).Create(msg)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return shared.ErrDuplicateReply
		}
		return nil
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("chatroom %d: %w", in.ChatroomID, shared.ErrNotFound)
		}
		return nil, err
	}
	return msg, nil
}

func (r *messageRepository) Iterate(ctx context.Context, chatroomID int64, limit int) iter.Seq2[models.Message, error] {
	return func(yield func(models.Message, error) bool) {
		q := r.db.WithContext(ctx).
			Model(&models.Message{}).
			Where("chatroom_id = ?", chatroomID).
			Order("created_at ASC, id ASC")
		if limit > 0 {
			q = q.Limit(limit)
		}

		rows, err := q.Rows()
		if err != nil {
			yield(models.Message{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var m models.Message
			if err := r.db.ScanRows(rows, &m); err != nil {
				yield(models.Message{}, err)
				return
			}
			if !yield(m, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Message{}, err)
		}
	}
}

func (r *messageRepository) History(ctx context.Context, chatroomID, beforeID int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("chatroom_id = ? AND id < ? AND status = ?", chatroomID, beforeID, shared.StatusComplete).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (r *messageRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &msg, nil
}

func (r *messageRepository) FindReply(ctx context.Context, sourceMessageID int64) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).First(&msg, "reply_to_id = ?", sourceMessageID).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &msg, nil
}

func (r *messageRepository) DeleteFailedReply(ctx context.Context, sourceMessageID int64) error {
	res := r.db.WithContext(ctx).
		Where("reply_to_id = ? AND status = ?", sourceMessageID, shared.StatusFailed).
		Delete(&models.Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// isForeignKeyViolation matches both the translated gorm error and the raw driver error.
func isForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

// mapNotFound converts gorm's missing-row error into the shared taxonomy.
func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return err
}
