package api

import (
	"pumptrack/internal/auth"
	"pumptrack/internal/config"
	"pumptrack/internal/model"
	"pumptrack/internal/service"
	"pumptrack/internal/storage"
	"time"

	"github.com/gin-gonic/gin"
)

// storeTimeout 单次请求访问记录存储的超时时间
const storeTimeout = 30 * time.Second

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg         config.Config
	repo        model.Repository
	storage     storage.Storage
	authManager *auth.Manager

	// 服务层
	workflowService *service.WorkflowService
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, repo model.Repository, store storage.Storage) (*HTTPHandler, error) {
	expiry := time.Duration(cfg.JWTExpirationMinutes) * time.Minute
	authManager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, expiry)
	if err != nil {
		return nil, err
	}

	workflowSvc := service.NewWorkflowService(repo, store, service.Options{
		Bucket:          cfg.StorageBucket,
		BulkConcurrency: cfg.BulkConcurrency,
		LoadingTimeout:  cfg.PageLoadingTimeout,
	})

	return &HTTPHandler{
		cfg:             cfg,
		repo:            repo,
		storage:         store,
		authManager:     authManager,
		workflowService: workflowSvc,
	}, nil
}

// WorkflowService 返回阶段页面服务
func (h *HTTPHandler) WorkflowService() *service.WorkflowService {
	return h.workflowService
}

// RegisterRoutes 注册 /api 路由
func (h *HTTPHandler) RegisterRoutes(r gin.IRouter) {
	apiGroup := r.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.GET("/status", h.AuthStatus)
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)
	authGroup.GET("/me", h.AuthMiddleware(), h.Me)

	protected := apiGroup.Group("")
	protected.Use(h.AuthMiddleware())

	protected.GET("/dashboard", h.RequirePage(pageDashboard), h.Dashboard)
	protected.GET("/dashboard/export", h.RequirePage(pageDashboard), h.ExportDashboard)

	protected.GET("/stages", h.ListStages)
	stages := protected.Group("/stages/:stage")
	stages.Use(h.RequireStageAccess())
	stages.GET("", h.GetStage)
	stages.POST("/submit", h.SubmitStage)
	stages.POST("/rows", h.ScheduleStage)
	stages.GET("/export", h.ExportStage)

	userAdmin := protected.Group("/users")
	userAdmin.Use(h.RequireAdmin())
	userAdmin.GET("", h.ListUsers)
	userAdmin.POST("", h.CreateUser)
	userAdmin.PATCH(":id", h.UpdateUser)
	userAdmin.DELETE(":id", h.DeleteUser)
}
