package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"geminichat/internal/dispatch"
	"geminichat/internal/events"
	"geminichat/internal/metrics"
	"geminichat/internal/microservices/http-api/models"
	"geminichat/internal/microservices/http-api/repository"
	"geminichat/internal/provider"
	"geminichat/internal/shared"
)

type GeneratorOptions struct {
	SystemUserID int64 // author id stored on assistant messages
	HistoryLimit int   // earlier messages sent to the provider as context
}

// Generator turns one generation task into exactly one assistant message:
// the provider's reply, or a failure marker once the provider gives up.
type Generator struct {
	store     repository.MessageRepository
	provider  provider.Provider
	publisher events.Publisher
	opts      GeneratorOptions
	log       *slog.Logger
}

func NewGenerator(
	store repository.MessageRepository,
	p provider.Provider,
	publisher events.Publisher,
	opts GeneratorOptions,
	log *slog.Logger,
) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		store:     store,
		provider:  p,
		publisher: publisher,
		opts:      opts,
		log:       log,
	}
}

// Handle is a dispatch.Handler. A nil return acks the task; an error leaves it pending for redelivery.
func (g *Generator) Handle(ctx context.Context, task dispatch.Task) error {
	log := g.log.With("task_id", task.TaskID, "chatroom_id", task.ChatroomID, "source_message_id", task.SourceMessageID)
	log.Debug("task_received")

	// redelivered task whose reply is already stored
	if _, err := g.store.FindReply(ctx, task.SourceMessageID); err == nil {
		log.Info("duplicate_task_discarded")
		metrics.GenerationOutcomes.WithLabelValues("duplicate").Inc()
		return nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("check existing reply: %w", err)
	}

	source, err := g.store.GetByID(ctx, task.SourceMessageID)
	if errors.Is(err, shared.ErrNotFound) {
		log.Warn("source_message_missing")
		metrics.GenerationOutcomes.WithLabelValues("orphaned").Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("load source message: %w", err)
	}
	if source.Role != shared.RoleUser {
		log.Warn("source_message_not_user_authored", "role", source.Role)
		return nil
	}

	prompt, err := g.buildPrompt(ctx, source)
	if err != nil {
		return err
	}

	in := repository.AppendInput{
		ChatroomID: source.ChatroomID,
		AuthorID:   g.opts.SystemUserID,
		Role:       shared.RoleAssistant,
		ReplyToID:  &source.ID,
		NotBefore:  source.CreatedAt,
	}

	log.Debug("calling_provider", "provider", g.provider.Name(), "history", len(prompt.History))
	text, genErr := g.provider.Generate(ctx, prompt)
	if genErr == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			genErr = provider.ErrEmptyReply
		}
	}

	outcome := "succeeded"
	if genErr != nil {
		// shutting down: leave the task for another worker instead of writing a failure marker
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("generation_failed", "error", genErr)
		outcome = "failed"
		in.Status = shared.StatusFailed
		in.Content = shared.FailedReplyContent
	} else {
		in.Status = shared.StatusComplete
		in.Content = text
	}

	reply, err := g.store.Append(ctx, in)
	if errors.Is(err, shared.ErrDuplicateReply) {
		log.Info("concurrent_reply_discarded")
		metrics.GenerationOutcomes.WithLabelValues("duplicate").Inc()
		return nil
	}
	if errors.Is(err, shared.ErrNotFound) {
		log.Warn("chatroom_removed_before_reply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("store reply: %w", err)
	}

	metrics.GenerationOutcomes.WithLabelValues(outcome).Inc()
	log.Info("reply_stored", "reply_id", reply.ID, "status", reply.Status)

	if g.publisher != nil {
		if err := g.publisher.PublishReply(ctx, reply); err != nil {
			log.Warn("reply_event_publish_failed", "error", err)
		}
	}
	return nil
}

func (g *Generator) buildPrompt(ctx context.Context, source *models.Message) (provider.Prompt, error) {
	history, err := g.store.History(ctx, source.ChatroomID, source.ID, g.opts.HistoryLimit)
	if err != nil {
		return provider.Prompt{}, fmt.Errorf("load history: %w", err)
	}

	turns := make([]provider.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, provider.Turn{Role: m.Role, Content: m.Content})
	}
	return provider.Prompt{History: turns, Message: source.Content}, nil
}
