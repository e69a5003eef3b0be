package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Dashboard 返回按公司与地区汇总的项目进度
func (h *HTTPHandler) Dashboard(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	dashboard, err := h.workflowService.Dashboard(ctx)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}
