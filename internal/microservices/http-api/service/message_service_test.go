package service

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"geminichat/internal/dispatch"
	"geminichat/internal/microservices/http-api/models"
	"geminichat/internal/microservices/http-api/repository"
	"geminichat/internal/quota"
	"geminichat/internal/shared"
)

// fixedOwners and fixedTiers are lookup tables used by the concurrency tests
type fixedOwners map[int64]int64

func (f fixedOwners) GetOwner(_ context.Context, chatroomID int64) (int64, error) {
	owner, ok := f[chatroomID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return owner, nil
}

type fixedTiers map[int64]shared.Tier

func (f fixedTiers) GetTier(_ context.Context, userID int64) (shared.Tier, error) {
	if tier, ok := f[userID]; ok {
		return tier, nil
	}
	return shared.TierBasic, nil
}

type memoryMessages struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (s *memoryMessages) Append(_ context.Context, in repository.AppendInput) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := models.Message{
		ID:         int64(len(s.msgs) + 1),
		ChatroomID: in.ChatroomID,
		UserID:     in.AuthorID,
		Content:    in.Content,
		Role:       in.Role,
		Status:     in.Status,
		CreatedAt:  time.Now().UTC(),
	}
	s.msgs = append(s.msgs, msg)
	return &msg, nil
}

func (s *memoryMessages) Iterate(_ context.Context, chatroomID int64, _ int) iter.Seq2[models.Message, error] {
	return func(yield func(models.Message, error) bool) {
		s.mu.Lock()
		msgs := append([]models.Message(nil), s.msgs...)
		s.mu.Unlock()
		for _, m := range msgs {
			if m.ChatroomID == chatroomID && !yield(m, nil) {
				return
			}
		}
	}
}

func (s *memoryMessages) History(context.Context, int64, int64, int) ([]models.Message, error) {
	return nil, nil
}

func (s *memoryMessages) GetByID(context.Context, int64) (*models.Message, error) {
	return nil, shared.ErrNotFound
}

func (s *memoryMessages) FindReply(context.Context, int64) (*models.Message, error) {
	return nil, shared.ErrNotFound
}

func (s *memoryMessages) DeleteFailedReply(context.Context, int64) error {
	return shared.ErrNotFound
}

func (s *memoryMessages) contents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.msgs))
	for _, m := range s.msgs {
		out = append(out, m.Content)
	}
	return out
}

func (s *memoryMessages) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type countingDispatcher struct {
	mu    sync.Mutex
	tasks []dispatch.Task
}

func (d *countingDispatcher) Enqueue(_ context.Context, task dispatch.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, task)
	return nil
}

func (d *countingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

func newRedisCounter(t *testing.T) (*quota.RedisCounter, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return quota.NewRedisCounter(client), client
}

func TestSendMessage_ConcurrentBasicSendsRespectLimit(t *testing.T) {
	const limit = 5
	for _, n := range []int{3, 5, 12, 40} {
		counter, _ := newRedisCounter(t)
		store := &memoryMessages{}
		disp := &countingDispatcher{}
		svc := NewMessageService(fixedOwners{1: 10}, fixedTiers{}, counter, store, disp, limit, nil)

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.SendMessage(context.Background(), 10, 1, "hello")
				if err != nil {
					assert.ErrorIs(t, err, shared.ErrQuotaExceeded)
				}
			}()
		}
		wg.Wait()

		want := min(n, limit)
		assert.Equal(t, want, store.count(), "persisted for n=%d", n)
		assert.Equal(t, want, disp.count(), "dispatched for n=%d", n)
		used, err := counter.Current(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, int64(want), used, "counter for n=%d", n)
	}
}

func TestSendMessage_QuotaResetsNextUTCDay(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	// Redis and the counter share one clock, otherwise EXPIREAT lands in the past
	now := time.Date(2026, 5, 1, 23, 59, 0, 0, time.UTC)
	mr.SetTime(now)
	counter := quota.NewRedisCounter(client).WithClock(func() time.Time { return now })
	store := &memoryMessages{}
	svc := NewMessageService(fixedOwners{1: 10}, fixedTiers{}, counter, store, &countingDispatcher{}, 2, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.SendMessage(ctx, 10, 1, "hi")
		require.NoError(t, err)
	}
	_, err := svc.SendMessage(ctx, 10, 1, "one too many")
	assert.ErrorIs(t, err, shared.ErrQuotaExceeded)
	assert.Equal(t, 2, store.count())

	now = now.Add(2 * time.Minute)
	mr.FastForward(2 * time.Minute)
	mr.SetTime(now)
	_, err = svc.SendMessage(ctx, 10, 1, "new day")
	assert.NoError(t, err)
	assert.Equal(t, 3, store.count())
}

func TestSendMessage_ProBypassesCounter(t *testing.T) {
	counter, client := newRedisCounter(t)
	store := &memoryMessages{}
	svc := NewMessageService(fixedOwners{1: 10}, fixedTiers{10: shared.TierPro}, counter, store, &countingDispatcher{}, 5, nil)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, err := svc.SendMessage(ctx, 10, 1, "pro message")
		require.NoError(t, err)
	}

	assert.Equal(t, 100, store.count())
	keys, err := client.Keys(ctx, "quota:*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSendMessage_ForbiddenPersistsNothing(t *testing.T) {
	counter, _ := newRedisCounter(t)
	store := &memoryMessages{}
	disp := &countingDispatcher{}
	svc := NewMessageService(fixedOwners{1: 1}, fixedTiers{}, counter, store, disp, 5, nil)

	_, err := svc.SendMessage(context.Background(), 2, 1, "not my room")

	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Zero(t, store.count())
	assert.Zero(t, disp.count())
	used, _ := counter.Current(context.Background(), 2)
	assert.Zero(t, used)
}

func TestSendMessage_UnknownChatroom(t *testing.T) {
	counter, _ := newRedisCounter(t)
	svc := NewMessageService(fixedOwners{}, fixedTiers{}, counter, &memoryMessages{}, &countingDispatcher{}, 5, nil)

	_, err := svc.SendMessage(context.Background(), 1, 99, "hello")

	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSendMessage_EmptyContent(t *testing.T) {
	svc := NewMessageService(fixedOwners{1: 1}, fixedTiers{}, new(MockCounter), &memoryMessages{}, &countingDispatcher{}, 5, nil)

	_, err := svc.SendMessage(context.Background(), 1, 1, "  \n\t ")

	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestSendMessage_StoresContentAsSent(t *testing.T) {
	counter, _ := newRedisCounter(t)
	store := &memoryMessages{}
	disp := &countingDispatcher{}
	svc := NewMessageService(fixedOwners{1: 1}, fixedTiers{1: shared.TierPro}, counter, store, disp, 5, nil)
	ctx := context.Background()

	inputs := []string{
		"How does Map<String, Integer> work in Java?",
		"is x<y and y>z true?",
		"use std::vector<int> v;",
		"email me at <bob@example.com>",
		"<b>only markup</b>",
	}
	for _, in := range inputs {
		msg, err := svc.SendMessage(ctx, 1, 1, "  "+in+"\n")
		require.NoError(t, err, in)
		assert.Equal(t, in, msg.Content)
	}

	assert.Equal(t, inputs, store.contents())
	disp.mu.Lock()
	defer disp.mu.Unlock()
	require.Len(t, disp.tasks, len(inputs))
	assert.Equal(t, inputs[0], disp.tasks[0].Content)
}

func TestSendMessage_AppendFailureReleasesQuota(t *testing.T) {
	counter := new(MockCounter)
	store := new(MockMessageRepository)
	disp := new(MockDispatcher)
	svc := NewMessageService(fixedOwners{1: 1}, fixedTiers{}, counter, store, disp, 5, nil)
	ctx := context.Background()

	decision := quota.Decision{Allowed: true, Count: 3, Limit: 5, Key: "quota:daily:1:2026-05-01"}
	counter.On("CheckAndIncrement", ctx, int64(1), 5).Return(decision, nil)
	store.On("Append", ctx, mock.Anything).Return(nil, errors.New("db down"))
	counter.On("Release", mock.Anything, decision).Return(nil)

	_, err := svc.SendMessage(ctx, 1, 1, "hello")

	assert.Error(t, err)
	counter.AssertCalled(t, "Release", mock.Anything, decision)
	disp.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestSendMessage_DispatchFailureReturnsStoredMessage(t *testing.T) {
	counter := new(MockCounter)
	store := new(MockMessageRepository)
	disp := new(MockDispatcher)
	svc := NewMessageService(fixedOwners{1: 1}, fixedTiers{}, counter, store, disp, 5, nil)
	ctx := context.Background()
	stored := &models.Message{ID: 77, ChatroomID: 1, UserID: 1, Content: "hello", Role: shared.RoleUser}

	counter.On("CheckAndIncrement", ctx, int64(1), 5).Return(quota.Decision{Allowed: true, Count: 1, Limit: 5}, nil)
	store.On("Append", ctx, mock.MatchedBy(func(in repository.AppendInput) bool {
		return in.Role == shared.RoleUser && in.Content == "hello" && in.AuthorID == 1
	})).Return(stored, nil)
	disp.On("Enqueue", ctx, mock.MatchedBy(func(task dispatch.Task) bool {
		return task.SourceMessageID == 77 && task.ChatroomID == 1
	})).Return(errors.New("connection refused"))

	msg, err := svc.SendMessage(ctx, 1, 1, "hello")

	assert.ErrorIs(t, err, shared.ErrDispatchUnavailable)
	require.NotNil(t, msg)
	assert.Equal(t, int64(77), msg.ID)
	counter.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestListMessages_InCreationOrder(t *testing.T) {
	store := new(MockMessageRepository)
	svc := NewMessageService(fixedOwners{1: 1}, fixedTiers{}, new(MockCounter), store, new(MockDispatcher), 5, nil)
	ctx := context.Background()
	msgs := []models.Message{
		{ID: 1, Role: shared.RoleUser},
		{ID: 2, Role: shared.RoleAssistant},
	}
	store.On("Iterate", ctx, int64(1), 0).Return(msgs, nil)

	got, err := svc.ListMessages(ctx, 1, 1, 0)

	require.NoError(t, err)
	assert.Equal(t, msgs, got)

	_, err = svc.ListMessages(ctx, 2, 1, 0)
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestRegenerate(t *testing.T) {
	ctx := context.Background()
	source := &models.Message{ID: 5, ChatroomID: 1, UserID: 1, Content: "q", Role: shared.RoleUser}

	t.Run("unanswered message is re-enqueued", func(t *testing.T) {
		store := new(MockMessageRepository)
		disp := new(MockDispatcher)
		counter := new(MockCounter)
		svc := NewMessageService(fixedOwners{1: 1}, fixedTiers{}, counter, store, disp, 5, nil)

		store.On("GetByID", ctx, int64(5)).Return(source, nil)
		store.On("FindReply", ctx, int64(5)).Return(nil, shared.ErrNotFound)
		disp.On("Enqueue", ctx, mock.MatchedBy(func(task dispatch.Task) bool {
			return task.SourceMessageID == 5
		})).Return(nil)

		require.NoError(t, svc.Regenerate(ctx, 1, 1, 5))
		disp.AssertExpectations(t)
		counter.AssertNotCalled(t, "CheckAndIncrement", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("answered message conflicts", func(t *testing.T) {
		store := new(MockMessageRepository)
		disp := new(MockDispatcher)
		svc := NewMessageService(fixedOwners{1: 1}, fixedTiers{}, new(MockCounter), store, disp, 5, nil)

		store.On("GetByID", ctx, int64(5)).Return(source, nil)
		store.On("FindReply", ctx, int64(5)).Return(&models.Message{ID: 6, Status: shared.StatusComplete}, nil)

		err := svc.Regenerate(ctx, 1, 1, 5)
		assert.ErrorIs(t, err, shared.ErrConflict)
		disp.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
		store.AssertNotCalled(t, "DeleteFailedReply", mock.Anything, mock.Anything)
	})

	t.Run("failed reply is cleared and re-enqueued", func(t *testing.T) {
		store := new(MockMessageRepository)
		disp := new(MockDispatcher)
		svc := NewMessageService(fixedOwners{1: 1}, fixedTiers{}, new(MockCounter), store, disp, 5, nil)

		store.On("GetByID", ctx, int64(5)).Return(source, nil)
		store.On("FindReply", ctx, int64(5)).Return(&models.Message{ID: 6, Status: shared.StatusFailed}, nil)
		store.On("DeleteFailedReply", ctx, int64(5)).Return(nil)
		disp.On("Enqueue", ctx, mock.MatchedBy(func(task dispatch.Task) bool {
			return task.SourceMessageID == 5
		})).Return(nil)

		require.NoError(t, svc.Regenerate(ctx, 1, 1, 5))
		store.AssertExpectations(t)
		disp.AssertExpectations(t)
	})

	t.Run("failed reply replaced concurrently conflicts", func(t *testing.T) {
		store := new(MockMessageRepository)
		disp := new(MockDispatcher)
		svc := NewMessageService(fixedOwners{1: 1}, fixedTiers{}, new(MockCounter), store, disp, 5, nil)

		store.On("GetByID", ctx, int64(5)).Return(source, nil)
		store.On("FindReply", ctx, int64(5)).Return(&models.Message{ID: 6, Status: shared.StatusFailed}, nil)
		store.On("DeleteFailedReply", ctx, int64(5)).Return(shared.ErrNotFound)

		err := svc.Regenerate(ctx, 1, 1, 5)
		assert.ErrorIs(t, err, shared.ErrConflict)
		disp.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	})

	t.Run("message from another chatroom", func(t *testing.T) {
		store := new(MockMessageRepository)
		svc := NewMessageService(fixedOwners{2: 1}, fixedTiers{}, new(MockCounter), store, new(MockDispatcher), 5, nil)

		store.On("GetByID", ctx, int64(5)).Return(source, nil)

		err := svc.Regenerate(ctx, 1, 2, 5)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
