package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"geminichat/internal/config"
	"geminichat/internal/microservices/http-api/models"
	"geminichat/internal/microservices/http-api/repository"
	"geminichat/internal/middleware/auth"
	"geminichat/internal/shared"
)

var (
	ErrMobileInUse        = errors.New("mobile number already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims carried by access tokens. The subject is the user id.
type Claims struct {
	UserID int64  `json:"user_id"`
	Mobile string `json:"mobile"`
	jwt.RegisteredClaims
}

type AuthService interface {
	Signup(ctx context.Context, mobile, password string) (*models.User, error)
	// SendOTP issues a one-time code, creating the account on first use.
	SendOTP(ctx context.Context, mobile string) (string, error)
	VerifyOTP(ctx context.Context, mobile, code string) (accessToken string, user *models.User, err error)
	// ForgotPassword issues a one-time code for an existing account.
	ForgotPassword(ctx context.Context, mobile string) (string, error)
	ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type authService struct {
	userRepo       repository.UserRepository
	otpRepo        repository.OTPRepository
	jwtSecret      []byte
	accessTokenTTL time.Duration
	otpTTL         time.Duration
	now            func() time.Time
	log            *slog.Logger
}

func NewAuthService(
	userRepo repository.UserRepository,
	otpRepo repository.OTPRepository,
	cfg *config.Config,
	log *slog.Logger,
) AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &authService{
		userRepo:       userRepo,
		otpRepo:        otpRepo,
		jwtSecret:      []byte(cfg.JWTSecret),
		accessTokenTTL: cfg.AccessTokenTTL,
		otpTTL:         cfg.OTPTTL,
		now:            time.Now,
		log:            log,
	}
}

func (s *authService) Signup(ctx context.Context, mobile, password string) (*models.User, error) {
	if _, err := s.userRepo.FindByMobile(ctx, mobile); err == nil {
		return nil, ErrMobileInUse
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	user := &models.User{Mobile: mobile, SubscriptionTier: shared.TierBasic}
	if password != "" {
		hash, err := auth.HashPassword(password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return nil, ErrMobileInUse
		}
		return nil, err
	}
	s.log.Info("user_signed_up", "user_id", user.ID)
	return user, nil
}

func (s *authService) SendOTP(ctx context.Context, mobile string) (string, error) {
	user, err := s.userRepo.FindByMobile(ctx, mobile)
	if errors.Is(err, shared.ErrNotFound) {
		user = &models.User{Mobile: mobile, SubscriptionTier: shared.TierBasic}
		err = s.userRepo.Create(ctx, user)
		if errors.Is(err, shared.ErrConflict) {
			// a concurrent first login created the account
			user, err = s.userRepo.FindByMobile(ctx, mobile)
		}
	}
	if err != nil {
		return "", err
	}
	return s.issueOTP(ctx, user)
}

func (s *authService) ForgotPassword(ctx context.Context, mobile string) (string, error) {
	user, err := s.userRepo.FindByMobile(ctx, mobile)
	if err != nil {
		return "", err
	}
	return s.issueOTP(ctx, user)
}

func (s *authService) VerifyOTP(ctx context.Context, mobile, code string) (string, *models.User, error) {
	user, err := s.userRepo.FindByMobile(ctx, mobile)
	if errors.Is(err, shared.ErrNotFound) {
		return "", nil, shared.ErrInvalidOTP
	}
	if err != nil {
		return "", nil, err
	}

	if err := s.otpRepo.Consume(ctx, user.ID, code, s.now().UTC()); err != nil {
		return "", nil, err
	}

	token, err := s.generateAccessToken(user)
	if err != nil {
		return "", nil, err
	}
	s.log.Info("otp_verified", "user_id", user.ID)
	return token, user, nil
}

func (s *authService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.HasPassword() {
		if err := auth.VerifyPassword(user.PasswordHash, oldPassword); err != nil {
			return ErrInvalidCredentials
		}
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.userRepo.UpdatePassword(ctx, userID, hash)
}

func (s *authService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.userRepo.FindByID(ctx, userID)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %w", shared.ErrUnauthenticated, ErrInvalidToken)
	}

	// the subject is authoritative; user_id is a convenience copy
	if sub, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil {
		claims.UserID = sub
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: %w", shared.ErrUnauthenticated, ErrInvalidToken)
	}
	return claims, nil
}

func (s *authService) generateAccessToken(user *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: user.ID,
		Mobile: user.Mobile,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) issueOTP(ctx context.Context, user *models.User) (string, error) {
	code, err := generateOTPCode()
	if err != nil {
		return "", err
	}
	otp := &models.OTP{
		UserID:    user.ID,
		Code:      code,
		ExpiresAt: s.now().UTC().Add(s.otpTTL),
	}
	if err := s.otpRepo.Create(ctx, otp); err != nil {
		return "", err
	}
	// delivery is mocked: the code goes back in the response instead of an SMS
	s.log.Info("otp_issued", "user_id", user.ID, "expires_at", otp.ExpiresAt)
	return code, nil
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
