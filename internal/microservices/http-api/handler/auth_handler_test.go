package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"geminichat/internal/microservices/http-api/dto"
	"geminichat/internal/microservices/http-api/models"
	"geminichat/internal/microservices/http-api/service"
	"geminichat/internal/shared"
)

func postJSON(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestSignup_Success(t *testing.T) {
	mockAuthService := new(MockAuthService)
	handler := NewAuthHandler(mockAuthService, time.Hour)
	router := setupRouter()
	router.POST("/auth/signup", handler.Signup)

	mockAuthService.On("Signup", "+14155550100", "password123").
		Return(&models.User{ID: 1, Mobile: "+14155550100", SubscriptionTier: shared.TierBasic, PasswordHash: "x"}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postJSON(t, "/auth/signup", dto.SignupRequest{Mobile: "+14155550100", Password: "password123"}))

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp dto.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.ID)
	assert.True(t, resp.HasPassword)
	assert.NotContains(t, w.Body.String(), "password_hash")
}

func TestSignup_Conflict(t *testing.T) {
	mockAuthService := new(MockAuthService)
	handler := NewAuthHandler(mockAuthService, time.Hour)
	router := setupRouter()
	router.POST("/auth/signup", handler.Signup)

	mockAuthService.On("Signup", "+14155550100", "").Return(nil, service.ErrMobileInUse)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postJSON(t, "/auth/signup", dto.SignupRequest{Mobile: "+14155550100"}))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSignup_InvalidMobile(t *testing.T) {
	mockAuthService := new(MockAuthService)
	handler := NewAuthHandler(mockAuthService, time.Hour)
	router := setupRouter()
	router.POST("/auth/signup", handler.Signup)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postJSON(t, "/auth/signup", map[string]string{"mobile": "not-a-number"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockAuthService.AssertNotCalled(t, "Signup", mock.Anything, mock.Anything)
}

func TestSendOTP_ReturnsCode(t *testing.T) {
	mockAuthService := new(MockAuthService)
	handler := NewAuthHandler(mockAuthService, time.Hour)
	router := setupRouter()
	router.POST("/auth/send-otp", handler.SendOTP)

	mockAuthService.On("SendOTP", "+14155550100").Return("123456", nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postJSON(t, "/auth/send-otp", dto.SendOTPRequest{Mobile: "+14155550100"}))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.OTPResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "123456", resp.OTP)
}

func TestVerifyOTP(t *testing.T) {
	mockAuthService := new(MockAuthService)
	handler := NewAuthHandler(mockAuthService, 24*time.Hour)
	router := setupRouter()
	router.POST("/auth/verify-otp", handler.VerifyOTP)

	mockAuthService.On("VerifyOTP", "+14155550100", "123456").Return("jwt-token", &models.User{ID: 1}, nil)
	mockAuthService.On("VerifyOTP", "+14155550100", "000000").Return("", nil, shared.ErrInvalidOTP)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postJSON(t, "/auth/verify-otp", dto.VerifyOTPRequest{Mobile: "+14155550100", OTP: "123456"}))
	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "jwt-token", resp.AccessToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, int64(86400), resp.ExpiresIn)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, postJSON(t, "/auth/verify-otp", dto.VerifyOTPRequest{Mobile: "+14155550100", OTP: "000000"}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestForgotPassword_UnknownUser(t *testing.T) {
	mockAuthService := new(MockAuthService)
	handler := NewAuthHandler(mockAuthService, time.Hour)
	router := setupRouter()
	router.POST("/auth/forgot-password", handler.ForgotPassword)

	mockAuthService.On("ForgotPassword", "+14155550199").Return("", shared.ErrNotFound)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postJSON(t, "/auth/forgot-password", dto.ForgotPasswordRequest{Mobile: "+14155550199"}))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChangePassword_RequiresUser(t *testing.T) {
	mockAuthService := new(MockAuthService)
	handler := NewAuthHandler(mockAuthService, time.Hour)
	router := setupRouter()
	router.POST("/auth/change-password", handler.ChangePassword)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postJSON(t, "/auth/change-password", dto.ChangePasswordRequest{NewPassword: "newpassword"}))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	mockAuthService := new(MockAuthService)
	handler := NewAuthHandler(mockAuthService, time.Hour)
	router := setupRouter()
	router.POST("/auth/change-password", asUser(7), handler.ChangePassword)

	mockAuthService.On("ChangePassword", int64(7), "wrong", "newpassword").Return(service.ErrInvalidCredentials)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, postJSON(t, "/auth/change-password", dto.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "newpassword"}))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMe(t *testing.T) {
	mockAuthService := new(MockAuthService)
	handler := NewAuthHandler(mockAuthService, time.Hour)
	router := setupRouter()
	router.GET("/user/me", asUser(7), handler.Me)

	mockAuthService.On("GetUser", int64(7)).Return(&models.User{ID: 7, Mobile: "+14155550100", SubscriptionTier: shared.TierPro}, nil)

	req, _ := http.NewRequest(http.MethodGet, "/user/me", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, shared.TierPro, resp.SubscriptionTier)
}
