package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"geminichat/internal/dispatch"
	"geminichat/internal/metrics"
	"geminichat/internal/microservices/http-api/models"
	"geminichat/internal/microservices/http-api/repository"
	"geminichat/internal/quota"
	"geminichat/internal/shared"
)

// TierLookup resolves a user's subscription tier.
type TierLookup interface {
	GetTier(ctx context.Context, userID int64) (shared.Tier, error)
}

// OwnerLookup resolves the owner of a chatroom.
type OwnerLookup interface {
	GetOwner(ctx context.Context, chatroomID int64) (int64, error)
}

// MessageService is the ingestion path for user messages.
type MessageService interface {
	// SendMessage checks ownership and quota, stores the message and dispatches reply generation.
	// If dispatch fails the stored message is returned together with shared.ErrDispatchUnavailable.
	SendMessage(ctx context.Context, userID, chatroomID int64, content string) (*models.Message, error)
	ListMessages(ctx context.Context, userID, chatroomID int64, limit int) ([]models.Message, error)
	// Regenerate dispatches generation again for a stored user message that has no reply yet
	// or whose reply is a failure marker. A completed reply is final.
	Regenerate(ctx context.Context, userID, chatroomID, messageID int64) error
}

type messageService struct {
	owners     OwnerLookup
	tiers      TierLookup
	counter    quota.Counter
	store      repository.MessageRepository
	dispatcher dispatch.Dispatcher
	basicLimit int
	log        *slog.Logger
}

func NewMessageService(
	owners OwnerLookup,
	tiers TierLookup,
	counter quota.Counter,
	store repository.MessageRepository,
	dispatcher dispatch.Dispatcher,
	basicDailyLimit int,
	log *slog.Logger,
) MessageService {
	if log == nil {
		log = slog.Default()
	}
	return &messageService{
		owners:     owners,
		tiers:      tiers,
		counter:    counter,
		store:      store,
		dispatcher: dispatcher,
		basicLimit: basicDailyLimit,
		log:        log,
	}
}

func (s *messageService) SendMessage(ctx context.Context, userID, chatroomID int64, content string) (*models.Message, error) {
	// stored as sent; escaping happens when messages are rendered as HTML
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message content is empty", shared.ErrInvalidInput)
	}

	if err := s.authorize(ctx, userID, chatroomID); err != nil {
		return nil, err
	}

	tier, err := s.tiers.GetTier(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup tier: %w", err)
	}

	// Pro sends never touch the counter
	counted := tier != shared.TierPro
	var decision quota.Decision
	if counted {
		decision, err = s.counter.CheckAndIncrement(ctx, userID, s.basicLimit)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			metrics.QuotaDecisions.WithLabelValues(string(tier), "rejected").Inc()
			s.log.Info("quota_rejected", "user_id", userID, "count", decision.Count, "limit", decision.Limit)
			return nil, shared.ErrQuotaExceeded
		}
		metrics.QuotaDecisions.WithLabelValues(string(tier), "allowed").Inc()
	} else {
		metrics.QuotaDecisions.WithLabelValues(string(tier), "bypassed").Inc()
	}

	msg, err := s.store.Append(ctx, repository.AppendInput{
		ChatroomID: chatroomID,
		AuthorID:   userID,
		Content:    content,
		Role:       shared.RoleUser,
		Status:     shared.StatusComplete,
	})
	if err != nil {
		if counted {
			// nothing was stored, so the slot goes back; use a fresh context in case the request was cancelled
			if relErr := s.counter.Release(context.WithoutCancel(ctx), decision); relErr != nil {
				s.log.Error("quota_release_failed", "user_id", userID, "error", relErr)
			}
		}
		return nil, err
	}

	if err := s.enqueue(ctx, msg); err != nil {
		return msg, err
	}
	return msg, nil
}

func (s *messageService) ListMessages(ctx context.Context, userID, chatroomID int64, limit int) ([]models.Message, error) {
	if err := s.authorize(ctx, userID, chatroomID); err != nil {
		return nil, err
	}

	msgs := []models.Message{}
	for msg, err := range s.store.Iterate(ctx, chatroomID, limit) {
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (s *messageService) Regenerate(ctx context.Context, userID, chatroomID, messageID int64) error {
	if err := s.authorize(ctx, userID, chatroomID); err != nil {
		return err
	}

	msg, err := s.store.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ChatroomID != chatroomID || msg.Role != shared.RoleUser {
		return shared.ErrNotFound
	}

	reply, err := s.store.FindReply(ctx, messageID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
	case err != nil:
		return err
	case reply.Status != shared.StatusFailed:
		return fmt.Errorf("%w: message %d already has a reply", shared.ErrConflict, messageID)
	default:
		// a worker may have replaced the marker in the meantime
		if err := s.store.DeleteFailedReply(ctx, messageID); errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: message %d already has a reply", shared.ErrConflict, messageID)
		} else if err != nil {
			return err
		}
		s.log.Info("failed_reply_cleared", "message_id", messageID, "chatroom_id", chatroomID)
	}

	return s.enqueue(ctx, msg)
}

func (s *messageService) authorize(ctx context.Context, userID, chatroomID int64) error {
	owner, err := s.owners.GetOwner(ctx, chatroomID)
	if err != nil {
		return err
	}
	if owner != userID {
		return shared.ErrForbidden
	}
	return nil
}

func (s *messageService) enqueue(ctx context.Context, msg *models.Message) error {
	err := s.dispatcher.Enqueue(ctx, dispatch.Task{
		ChatroomID:      msg.ChatroomID,
		SourceMessageID: msg.ID,
		Content:         msg.Content,
	})
	if err != nil {
		metrics.DispatchResults.WithLabelValues("failed").Inc()
		s.log.Error("dispatch_failed", "message_id", msg.ID, "chatroom_id", msg.ChatroomID, "error", err)
		if !errors.Is(err, shared.ErrDispatchUnavailable) {
			err = fmt.Errorf("%w: %w", shared.ErrDispatchUnavailable, err)
		}
		return err
	}
	metrics.DispatchResults.WithLabelValues("enqueued").Inc()
	return nil
}
