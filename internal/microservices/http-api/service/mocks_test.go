package service

import (
	"context"
	"iter"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v82"

	"geminichat/internal/billing"
	"geminichat/internal/dispatch"
	"geminichat/internal/microservices/http-api/models"
	"geminichat/internal/microservices/http-api/repository"
	"geminichat/internal/quota"
	"geminichat/internal/shared"
)

// MockUserRepository mocks the UserRepository interface
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) FindByMobile(ctx context.Context, mobile string) (*models.User, error) {
	args := m.Called(ctx, mobile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) FindByStripeCustomer(ctx context.Context, customerID string) (*models.User, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateTier(ctx context.Context, id int64, tier shared.Tier) error {
	args := m.Called(ctx, id, tier)
	return args.Error(0)
}

func (m *MockUserRepository) SetStripeCustomer(ctx context.Context, id int64, customerID string) error {
	args := m.Called(ctx, id, customerID)
	return args.Error(0)
}

func (m *MockUserRepository) GetTier(ctx context.Context, id int64) (shared.Tier, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(shared.Tier), args.Error(1)
}

// MockOTPRepository mocks the OTPRepository interface
type MockOTPRepository struct {
	mock.Mock
}

func (m *MockOTPRepository) Create(ctx context.Context, otp *models.OTP) error {
	args := m.Called(ctx, otp)
	return args.Error(0)
}

func (m *MockOTPRepository) Consume(ctx context.Context, userID int64, code string, now time.Time) error {
	args := m.Called(ctx, userID, code, now)
	return args.Error(0)
}

func (m *MockOTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type MockChatroomRepository struct {
	mock.Mock
}

func (m *MockChatroomRepository) Create(ctx context.Context, room *models.Chatroom) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockChatroomRepository) FindByID(ctx context.Context, id int64) (*models.Chatroom, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chatroom), args.Error(1)
}

func (m *MockChatroomRepository) ListByUser(ctx context.Context, userID int64) ([]models.Chatroom, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Chatroom), args.Error(1)
}

func (m *MockChatroomRepository) GetOwner(ctx context.Context, id int64) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

type MockChatroomCache struct {
	mock.Mock
}

func (m *MockChatroomCache) Get(ctx context.Context, userID int64) ([]models.Chatroom, bool, error) {
	args := m.Called(ctx, userID)
	rooms, _ := args.Get(0).([]models.Chatroom)
	return rooms, args.Bool(1), args.Error(2)
}

func (m *MockChatroomCache) Set(ctx context.Context, userID int64, rooms []models.Chatroom) error {
	args := m.Called(ctx, userID, rooms)
	return args.Error(0)
}

func (m *MockChatroomCache) Invalidate(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Append(ctx context.Context, in repository.AppendInput) (*models.Message, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageRepository) Iterate(ctx context.Context, chatroomID int64, limit int) iter.Seq2[models.Message, error] {
	args := m.Called(ctx, chatroomID, limit)
	msgs, _ := args.Get(0).([]models.Message)
	err := args.Error(1)
	return func(yield func(models.Message, error) bool) {
		if err != nil {
			yield(models.Message{}, err)
			return
		}
		for _, msg := range msgs {
			if !yield(msg, nil) {
				return
			}
		}
	}
}

func (m *MockMessageRepository) History(ctx context.Context, chatroomID, beforeID int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, chatroomID, beforeID, limit)
	msgs, _ := args.Get(0).([]models.Message)
	return msgs, args.Error(1)
}

func (m *MockMessageRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageRepository) FindReply(ctx context.Context, sourceMessageID int64) (*models.Message, error) {
	args := m.Called(ctx, sourceMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageRepository) DeleteFailedReply(ctx context.Context, sourceMessageID int64) error {
	args := m.Called(ctx, sourceMessageID)
	return args.Error(0)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Enqueue(ctx context.Context, task dispatch.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

type MockCounter struct {
	mock.Mock
}

func (m *MockCounter) CheckAndIncrement(ctx context.Context, userID int64, limit int) (quota.Decision, error) {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).(quota.Decision), args.Error(1)
}

func (m *MockCounter) Release(ctx context.Context, d quota.Decision) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockCounter) Current(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCounter) Reset(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) Latest(ctx context.Context, userID int64) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) FindByStripeID(ctx context.Context, stripeID string) (*models.Subscription, error) {
	args := m.Called(ctx, stripeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) Update(ctx context.Context, sub *models.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCheckout(ctx context.Context, userID int64, customerID string) (*billing.Checkout, error) {
	args := m.Called(ctx, userID, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Checkout), args.Error(1)
}

func (m *MockGateway) ParseWebhook(payload []byte, signature string) (stripe.Event, error) {
	args := m.Called(payload, signature)
	return args.Get(0).(stripe.Event), args.Error(1)
}
