package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"pumptrack/internal/auth"
	"pumptrack/internal/entity"
	"pumptrack/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	currentUserContextKey = "current-user"
	currentStageKey       = "current-stage"

	pageDashboard = entity.PageDashboard
)

// RequestUser 存储请求上下文中的认证用户信息
type RequestUser struct {
	ID         uint
	Login      string
	UserName   string
	Role       string
	PageAccess entity.CommaList
}

// IsAdmin 判断用户是否具有管理员权限
func (u *RequestUser) IsAdmin() bool {
	if u == nil {
		return false
	}
	return u.Role == entity.UserRoleAdmin
}

// CanAccess 判断用户能否打开页面
func (u *RequestUser) CanAccess(page string) bool {
	if u == nil {
		return false
	}
	return auth.CanAccess(u.Role, u.PageAccess, page)
}

// AuthMiddleware JWT 认证中间件
func (h *HTTPHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeUnauthorized,
				Message: "缺少授权头",
			})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeUnauthorized,
				Message: "无效的授权头格式",
			})
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeUnauthorized,
				Message: "缺少 Bearer Token",
			})
			return
		}

		claims, err := h.authManager.ParseToken(tokenString)
		if err != nil {
			logrus.WithError(err).Warn("failed to parse jwt token")
			code, message := ErrCodeUnauthorized, "Token 无效"
			if errors.Is(err, auth.ErrSessionExpired) {
				code, message = ErrCodeSessionExpired, "登录已过期，请重新登录"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{Code: code, Message: message})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		// 每次请求都重新读取账号，角色和页面权限的修改立即生效
		user, err := h.repo.GetUserByID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
					Code:    ErrCodeUserNotFound,
					Message: "用户不存在",
				})
				return
			}
			logrus.WithError(err).WithField("user_id", claims.UserID).Error("failed to load user")
			c.AbortWithStatusJSON(http.StatusInternalServerError, APIError{
				Code:    ErrCodeInternalError,
				Message: "验证用户失败",
			})
			return
		}

		if err := auth.CheckStamp(claims, user); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{
				Code:    ErrCodeSessionExpired,
				Message: "密码已修改，请重新登录",
			})
			return
		}

		if !user.IsActive() {
			c.AbortWithStatusJSON(http.StatusForbidden, APIError{
				Code:    ErrCodeUserDisabled,
				Message: "账户已被禁用",
			})
			return
		}

		c.Set(currentUserContextKey, &RequestUser{
			ID:         user.ID,
			Login:      user.UserID,
			UserName:   user.UserName,
			Role:       user.Role,
			PageAccess: user.PageAccess,
		})
		c.Next()
	}
}

// RequireAdmin 管理员权限守卫中间件
func (h *HTTPHandler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, APIError{
				Code:    ErrCodeForbidden,
				Message: "需要管理员权限",
			})
			return
		}
		c.Next()
	}
}

// RequirePage 页面权限守卫，管理员不受限制
func (h *HTTPHandler) RequirePage(page string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentUser(c).CanAccess(page) {
			c.AbortWithStatusJSON(http.StatusForbidden, APIError{
				Code:    ErrCodePageDenied,
				Message: "no access to page " + page,
			})
			return
		}
		c.Next()
	}
}

// RequireStageAccess resolves :stage and checks access to its page.
func (h *HTTPHandler) RequireStageAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		stage, ok := workflow.LookupStage(c.Param("stage"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, APIError{
				Code:    ErrCodeStageNotFound,
				Message: "unknown stage " + c.Param("stage"),
			})
			return
		}
		if !CurrentUser(c).CanAccess(stage.Page) {
			c.AbortWithStatusJSON(http.StatusForbidden, APIError{
				Code:    ErrCodePageDenied,
				Message: "no access to page " + stage.Page,
			})
			return
		}
		c.Set(currentStageKey, stage)
		c.Next()
	}
}

// CurrentUser 从上下文获取当前认证用户
func CurrentUser(c *gin.Context) *RequestUser {
	value, exists := c.Get(currentUserContextKey)
	if !exists {
		return nil
	}
	user, ok := value.(*RequestUser)
	if !ok {
		return nil
	}
	return user
}

// currentStage 返回 RequireStageAccess 解析出的阶段
func currentStage(c *gin.Context) workflow.Stage {
	value, _ := c.Get(currentStageKey)
	stage, _ := value.(workflow.Stage)
	return stage
}
