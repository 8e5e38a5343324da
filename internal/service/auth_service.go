package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Baaaki/songshare/internal/apperror"
	"github.com/Baaaki/songshare/internal/models"
	"github.com/Baaaki/songshare/internal/repository"
	"github.com/Baaaki/songshare/internal/utils"
	"github.com/Baaaki/songshare/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingCredentials = apperror.Validation("username and password are required")
	ErrUsernameExists     = apperror.Conflict("username exists")
	ErrPasswordTooLong    = apperror.Validation("password must be at most 72 bytes")

	// ErrInvalidCredentials is returned for unknown users and wrong
	// passwords alike so callers cannot probe which usernames exist.
	ErrInvalidCredentials = apperror.Auth("invalid credentials")
)

type AuthService struct {
	userRepo    *repository.UserRepository
	jwtSecret   string
	tokenExpiry time.Duration
}

// NewAuthService builds the service. A zero tokenExpiry issues tokens that
// never expire.
func NewAuthService(userRepo *repository.UserRepository, jwtSecret string, tokenExpiry time.Duration) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		jwtSecret:   jwtSecret,
		tokenExpiry: tokenExpiry,
	}
}

// Register creates a user. Uniqueness is left to the store: a duplicate
// username surfaces as a unique violation on insert, not as a pre-check.
func (s *AuthService) Register(ctx context.Context, username, password string) (*models.User, error) {
	start := time.Now()
	username = strings.TrimSpace(username)

	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	hashStart := time.Now()
	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, ErrPasswordTooLong
		}
		logger.Log.Error("Failed to hash password", zap.Error(err))
		return nil, apperror.Internal(err)
	}
	hashDuration := time.Since(hashStart)

	user := &models.User{
		Username:     username,
		PasswordHash: hashedPassword,
	}

	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			logger.Log.Warn("Username already exists",
				zap.String("username", username),
			)
			return nil, ErrUsernameExists
		}

		logger.Log.Error("Failed to create user in database",
			zap.String("username", username),
			zap.Error(err),
		)
		return nil, apperror.Internal(err)
	}

	logger.Log.Info("User registered",
		zap.Uint("user_id", user.ID),
		zap.String("username", username),
		zap.Duration("hash_duration", hashDuration),
		zap.Duration("total_duration", time.Since(start)),
	)

	return user, nil
}

// Login verifies credentials and returns a signed token.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	start := time.Now()
	username = strings.TrimSpace(username)

	if username == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	user, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		logger.Log.Error("Failed to get user by username",
			zap.String("username", username),
			zap.Error(err),
		)
		return "", apperror.Internal(err)
	}
	if user == nil {
		logger.Log.Warn("Login failed: user not found",
			zap.String("username", username),
		)
		return "", ErrInvalidCredentials
	}

	verifyStart := time.Now()
	valid, err := utils.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		logger.Log.Error("Failed to verify password",
			zap.Uint("user_id", user.ID),
			zap.Error(err),
		)
		return "", apperror.Internal(err)
	}
	verifyDuration := time.Since(verifyStart)

	if !valid {
		logger.Log.Warn("Login failed: invalid password",
			zap.Uint("user_id", user.ID),
		)
		return "", ErrInvalidCredentials
	}

	token, err := utils.GenerateToken(user, s.jwtSecret, s.tokenExpiry)
	if err != nil {
		logger.Log.Error("Failed to generate JWT token",
			zap.Uint("user_id", user.ID),
			zap.Error(err),
		)
		return "", apperror.Internal(err)
	}

	logger.Log.Info("User logged in",
		zap.Uint("user_id", user.ID),
		zap.String("username", user.Username),
		zap.Duration("password_verify_duration", verifyDuration),
		zap.Duration("total_duration", time.Since(start)),
	)

	return token, nil
}

// VerifyToken validates a bearer token and returns its claims.
func (s *AuthService) VerifyToken(token string) (*utils.Claims, error) {
	return utils.ValidateToken(token, s.jwtSecret)
}
