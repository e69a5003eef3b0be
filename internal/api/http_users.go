package api

import (
	"context"
	"errors"
	"net/http"
	"pumptrack/internal/auth"
	"pumptrack/internal/entity"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func (h *HTTPHandler) ListUsers(c *gin.Context) {
	if h.repo == nil {
		ServiceUnavailable(c, "user repository not available")
		return
	}

	var query entity.UserQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid query parameters")
		return
	}
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.PageSize <= 0 {
		query.PageSize = 20
	}
	if query.PageSize > 100 {
		query.PageSize = 100
	}
	if query.Role != "" {
		query.Role = sanitizeRole(query.Role)
	}
	if query.Status != "" {
		query.Status = sanitizeStatus(query.Status)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	users, meta, err := h.repo.ListUsers(ctx, &query)
	if err != nil {
		logrus.WithError(err).Error("failed to list users")
		InternalError(c, "failed to load users")
		return
	}

	response := entity.UserListResponse{
		Users: make([]entity.UserSummary, 0, len(users)),
		Meta:  meta,
	}
	for idx := range users {
		response.Users = append(response.Users, makeUserSummary(&users[idx]))
	}

	c.JSON(http.StatusOK, response)
}

func (h *HTTPHandler) CreateUser(c *gin.Context) {
	var req entity.UserCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid user payload")
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		MissingField(c, "user_id")
		return
	}

	role := sanitizeRole(req.Role)
	if role == "" {
		BadRequest(c, ErrCodeInvalidField, "role must be Admin or User")
		return
	}

	status := entity.UserStatusActive
	if strings.TrimSpace(req.Status) != "" {
		status = sanitizeStatus(req.Status)
		if status == "" {
			BadRequest(c, ErrCodeInvalidField, "status must be Active or Inactive")
			return
		}
	}

	hash, err := auth.HashPassword(strings.TrimSpace(req.Password))
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			BadRequest(c, ErrCodeInvalidField, "password too short")
			return
		}
		logrus.WithError(err).Error("failed to hash password for new user")
		InternalError(c, "failed to create user")
		return
	}

	user := &entity.DbUser{
		UserID:       userID,
		PasswordHash: hash,
		UserName:     strings.TrimSpace(req.UserName),
		Role:         role,
		PageAccess:   auth.NormalizePages(req.PageAccess),
		Status:       status,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			Conflict(c, ErrCodeUserExists, "user id already registered")
			return
		}
		logrus.WithError(err).Error("failed to create user")
		InternalError(c, "failed to create user")
		return
	}

	logrus.WithFields(logrus.Fields{
		"user_id": user.UserID,
		"role":    user.Role,
		"by":      CurrentUser(c).Login,
	}).Info("user created")
	c.JSON(http.StatusCreated, makeUserSummary(user))
}

func (h *HTTPHandler) UpdateUser(c *gin.Context) {
	requestUser := CurrentUser(c)

	id, ok := parseUserID(c)
	if !ok {
		return
	}

	var req entity.UserUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid user payload")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbUser, err := h.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeUserNotFound, "user not found")
			return
		}
		logrus.WithError(err).Error("failed to load user for update")
		InternalError(c, "failed to update user")
		return
	}

	var updates entity.UserUpdates

	if req.UserName != nil {
		name := strings.TrimSpace(*req.UserName)
		updates.UserName = &name
	}

	if req.Password != nil {
		hash, err := auth.HashPassword(strings.TrimSpace(*req.Password))
		if err != nil {
			if errors.Is(err, auth.ErrPasswordTooShort) {
				BadRequest(c, ErrCodeInvalidField, "password too short")
				return
			}
			logrus.WithError(err).Error("failed to hash password for update")
			InternalError(c, "failed to update user")
			return
		}
		updates.PasswordHash = &hash
	}

	if req.Role != nil {
		role := sanitizeRole(*req.Role)
		if role == "" {
			BadRequest(c, ErrCodeInvalidField, "role must be Admin or User")
			return
		}
		// 管理员不能把自己降级，否则 Settings 页面会被锁死
		if dbUser.ID == requestUser.ID && role != entity.UserRoleAdmin {
			BadRequest(c, ErrCodeInvalidField, "cannot demote current user")
			return
		}
		updates.Role = &role
	}

	if req.PageAccess != nil {
		pages := auth.NormalizePages(*req.PageAccess)
		updates.PageAccess = &pages
	}

	if req.Status != nil {
		status := sanitizeStatus(*req.Status)
		if status == "" {
			BadRequest(c, ErrCodeInvalidField, "status must be Active or Inactive")
			return
		}
		if dbUser.ID == requestUser.ID && status != entity.UserStatusActive {
			BadRequest(c, ErrCodeInvalidField, "cannot deactivate current user")
			return
		}
		updates.Status = &status
	}

	if updates.IsEmpty() {
		c.JSON(http.StatusOK, makeUserSummary(dbUser))
		return
	}

	if err := h.repo.UpdateUser(ctx, dbUser.ID, updates); err != nil {
		logrus.WithError(err).Error("failed to update user")
		InternalError(c, "failed to update user")
		return
	}

	updated, err := h.repo.GetUserByID(ctx, dbUser.ID)
	if err != nil {
		logrus.WithError(err).Error("failed to reload user after update")
		InternalError(c, "failed to load updated user")
		return
	}

	c.JSON(http.StatusOK, makeUserSummary(updated))
}

func (h *HTTPHandler) DeleteUser(c *gin.Context) {
	requestUser := CurrentUser(c)

	id, ok := parseUserID(c)
	if !ok {
		return
	}

	if requestUser.ID == id {
		BadRequest(c, ErrCodeCannotDeleteSelf, "cannot delete current user")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeUserNotFound, "user not found")
			return
		}
		logrus.WithError(err).Error("failed to delete user")
		InternalError(c, "failed to delete user")
		return
	}

	c.Status(http.StatusNoContent)
}

func parseUserID(c *gin.Context) (uint, bool) {
	idValue := strings.TrimSpace(c.Param("id"))
	id, err := strconv.ParseUint(idValue, 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, ErrCodeInvalidRequest, "invalid user id")
		return 0, false
	}
	return uint(id), true
}

func sanitizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "admin":
		return entity.UserRoleAdmin
	case "user":
		return entity.UserRoleUser
	default:
		return ""
	}
}

func sanitizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return entity.UserStatusActive
	case "inactive":
		return entity.UserStatusInactive
	default:
		return ""
	}
}
