package handler

import (
	"net/http"

	"github.com/Baaaki/songshare/internal/apperror"
	"github.com/Baaaki/songshare/internal/service"
	"github.com/Baaaki/songshare/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// CredentialsRequest is the body of register and login. Older clients send
// the username as "email".
type CredentialsRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r CredentialsRequest) name() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Email
}

var errInvalidBody = apperror.Validation("invalid request body")

func (h *AuthHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Log.Warn("Registration request parsing failed",
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		respondError(c, errInvalidBody)
		return
	}

	if _, err := h.authService.Register(c.Request.Context(), req.name(), req.Password); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User registered successfully",
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Log.Warn("Login request parsing failed",
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		respondError(c, errInvalidBody)
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.name(), req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
	})
}
