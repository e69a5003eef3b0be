package api

import (
	"context"
	"fmt"
	"net/http"
	"pumptrack/internal/export"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportStage 导出阶段页面当前过滤结果，bucket=pending|history
func (h *HTTPHandler) ExportStage(c *gin.Context) {
	stage := currentStage(c)

	bucket := strings.ToLower(strings.TrimSpace(c.DefaultQuery("bucket", "pending")))
	if bucket != "pending" && bucket != "history" {
		BadRequest(c, ErrCodeInvalidField, "bucket must be pending or history")
		return
	}

	query := viewQuery(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	view, err := h.workflowService.View(ctx, stage.Key, query)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	rows := view.Pending
	if bucket == "history" {
		rows = view.History
	}

	data, err := export.StageWorkbook(stage, rows)
	if err != nil {
		logrus.WithError(err).WithField("stage", stage.Key).Error("failed to build stage workbook")
		InternalError(c, "failed to export stage")
		return
	}
	writeWorkbook(c, fmt.Sprintf("%s-%s", stage.Key, bucket), data)
}

// ExportDashboard 导出看板汇总
func (h *HTTPHandler) ExportDashboard(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	dashboard, err := h.workflowService.Dashboard(ctx)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	data, err := export.DashboardWorkbook(dashboard)
	if err != nil {
		logrus.WithError(err).Error("failed to build dashboard workbook")
		InternalError(c, "failed to export dashboard")
		return
	}
	writeWorkbook(c, "dashboard", data)
}

func writeWorkbook(c *gin.Context, name string, data []byte) {
	filename := fmt.Sprintf("%s-%s.xlsx", name, time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}
