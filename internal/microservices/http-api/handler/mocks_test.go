package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"

	"geminichat/internal/microservices/http-api/models"
	"geminichat/internal/microservices/http-api/service"
)

// MockAuthService mocks the AuthService interface
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Signup(ctx context.Context, mobile, password string) (*models.User, error) {
	args := m.Called(mobile, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAuthService) SendOTP(ctx context.Context, mobile string) (string, error) {
	args := m.Called(mobile)
	return args.String(0), args.Error(1)
}

func (m *MockAuthService) VerifyOTP(ctx context.Context, mobile, code string) (string, *models.User, error) {
	args := m.Called(mobile, code)
	user, _ := args.Get(1).(*models.User)
	return args.String(0), user, args.Error(2)
}

func (m *MockAuthService) ForgotPassword(ctx context.Context, mobile string) (string, error) {
	args := m.Called(mobile)
	return args.String(0), args.Error(1)
}

func (m *MockAuthService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	args := m.Called(userID, oldPassword, newPassword)
	return args.Error(0)
}

func (m *MockAuthService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAuthService) ValidateToken(tokenString string) (*service.Claims, error) {
	args := m.Called(tokenString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Claims), args.Error(1)
}

type MockChatroomService struct {
	mock.Mock
}

func (m *MockChatroomService) Create(ctx context.Context, userID int64, name string) (*models.Chatroom, error) {
	args := m.Called(userID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chatroom), args.Error(1)
}

func (m *MockChatroomService) List(ctx context.Context, userID int64) ([]models.Chatroom, error) {
	args := m.Called(userID)
	rooms, _ := args.Get(0).([]models.Chatroom)
	return rooms, args.Error(1)
}

func (m *MockChatroomService) Get(ctx context.Context, userID, chatroomID int64) (*models.Chatroom, error) {
	args := m.Called(userID, chatroomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chatroom), args.Error(1)
}

type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) SendMessage(ctx context.Context, userID, chatroomID int64, content string) (*models.Message, error) {
	args := m.Called(userID, chatroomID, content)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *MockMessageService) ListMessages(ctx context.Context, userID, chatroomID int64, limit int) ([]models.Message, error) {
	args := m.Called(userID, chatroomID, limit)
	msgs, _ := args.Get(0).([]models.Message)
	return msgs, args.Error(1)
}

func (m *MockMessageService) Regenerate(ctx context.Context, userID, chatroomID, messageID int64) error {
	args := m.Called(userID, chatroomID, messageID)
	return args.Error(0)
}

type MockSubscriptionService struct {
	mock.Mock
}

func (m *MockSubscriptionService) StartProCheckout(ctx context.Context, userID int64) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}

func (m *MockSubscriptionService) Status(ctx context.Context, userID int64) (*service.SubscriptionStatus, error) {
	args := m.Called(userID)
	status, _ := args.Get(0).(*service.SubscriptionStatus)
	return status, args.Error(1)
}

func (m *MockSubscriptionService) Latest(ctx context.Context, userID int64) (*models.Subscription, error) {
	args := m.Called(userID)
	sub, _ := args.Get(0).(*models.Subscription)
	return sub, args.Error(1)
}

func (m *MockSubscriptionService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	args := m.Called(payload, signature)
	return args.Error(0)
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// asUser stands in for AuthMiddleware.
func asUser(id int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", id)
		c.Next()
	}
}
