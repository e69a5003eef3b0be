package api

import (
	"context"
	"errors"
	"net/http"
	"pumptrack/internal/auth"
	"pumptrack/internal/entity"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Register 仅在系统中没有任何账号时可用，首个账号为管理员
func (h *HTTPHandler) Register(c *gin.Context) {
	if h.repo == nil {
		ServiceUnavailable(c, "user repository not available")
		return
	}

	var req entity.AuthRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid registration payload")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	count, err := h.repo.CountUsers(ctx)
	if err != nil {
		logrus.WithError(err).Error("failed to count users during registration")
		InternalError(c, "failed to process registration")
		return
	}

	if count > 0 {
		ErrorResponse(c, http.StatusForbidden, ErrCodeRegistrationClosed, "registration disabled")
		return
	}

	userID := strings.TrimSpace(req.UserID)
	password := strings.TrimSpace(req.Password)
	if userID == "" || password == "" {
		BadRequest(c, ErrCodeMissingField, "user_id and password are required")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			BadRequest(c, ErrCodeInvalidField, "password too short")
			return
		}
		logrus.WithError(err).Error("failed to hash password")
		InternalError(c, "failed to register user")
		return
	}

	user := &entity.DbUser{
		UserID:       userID,
		PasswordHash: hash,
		UserName:     strings.TrimSpace(req.UserName),
		Role:         entity.UserRoleAdmin,
		PageAccess:   entity.CommaList(auth.AllPages()),
		Status:       entity.UserStatusActive,
	}

	if err := h.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			BadRequest(c, ErrCodeUserExists, "user id already registered")
			return
		}
		logrus.WithError(err).Error("failed to create initial user")
		InternalError(c, "failed to register user")
		return
	}

	token, expiresAt, err := h.authManager.GenerateToken(user)
	if err != nil {
		logrus.WithError(err).Error("failed to create token for user")
		InternalError(c, "failed to create session")
		return
	}

	c.JSON(http.StatusCreated, entity.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      makeUserSummary(user),
	})
}

func (h *HTTPHandler) Login(c *gin.Context) {
	if h.repo == nil {
		ServiceUnavailable(c, "user repository not available")
		return
	}

	var req entity.AuthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid login payload")
		return
	}

	userID := strings.TrimSpace(req.UserID)
	password := strings.TrimSpace(req.Password)
	if userID == "" || password == "" {
		BadRequest(c, ErrCodeMissingField, "user_id and password are required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	user, err := h.repo.GetUserByLogin(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("login attempt failed")
		ErrorResponse(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid user id or password")
		return
	}

	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("password verification failed")
		ErrorResponse(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid user id or password")
		return
	}

	if !user.IsActive() {
		ErrorResponse(c, http.StatusForbidden, ErrCodeUserDisabled, "user is inactive")
		return
	}

	token, expiresAt, err := h.authManager.GenerateToken(user)
	if err != nil {
		logrus.WithError(err).Error("failed to generate token")
		InternalError(c, "failed to create session")
		return
	}

	c.JSON(http.StatusOK, entity.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      makeUserSummary(user),
	})
}

func (h *HTTPHandler) AuthStatus(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusOK, entity.AuthStatusResponse{HasUser: false})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	count, err := h.repo.CountUsers(ctx)
	if err != nil {
		logrus.WithError(err).Error("failed to count users for auth status")
		InternalError(c, "failed to check auth status")
		return
	}
	c.JSON(http.StatusOK, entity.AuthStatusResponse{HasUser: count > 0})
}

func (h *HTTPHandler) Me(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbUser, err := h.repo.GetUserByID(ctx, user.ID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("failed to load user profile")
		InternalError(c, "failed to load profile")
		return
	}

	c.JSON(http.StatusOK, makeUserSummary(dbUser))
}

func makeUserSummary(user *entity.DbUser) entity.UserSummary {
	if user == nil {
		return entity.UserSummary{}
	}
	pages := []string(user.PageAccess)
	if user.Role == entity.UserRoleAdmin {
		pages = auth.AllPages()
	}
	if pages == nil {
		pages = []string{}
	}
	return entity.UserSummary{
		ID:         user.ID,
		UserID:     user.UserID,
		UserName:   user.UserName,
		Role:       user.Role,
		PageAccess: pages,
		Status:     user.Status,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
}
