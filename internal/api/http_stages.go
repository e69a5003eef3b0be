package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"pumptrack/internal/service"
	"pumptrack/internal/utils"
	"pumptrack/internal/workflow"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StageSummary 阶段列表项
type StageSummary struct {
	Key              string   `json:"key"`
	Page             string   `json:"page"`
	Table            string   `json:"table"`
	Index            int      `json:"index"`
	PlannedColumn    string   `json:"planned_column"`
	ActualColumn     string   `json:"actual_column"`
	AttachmentColumn string   `json:"attachment_column,omitempty"`
	Columns          []string `json:"columns"`
}

// StageResponse 阶段页面返回体
type StageResponse struct {
	Stage       string                   `json:"stage"`
	Page        string                   `json:"page"`
	Pending     []map[string]interface{} `json:"pending"`
	History     []map[string]interface{} `json:"history"`
	NotStarted  int                      `json:"not_started"`
	Facets      map[string][]string      `json:"facets"`
	Loading     bool                     `json:"loading"`
	RefreshedAt time.Time                `json:"refreshed_at"`
}

// SubmitStageRequest JSON 形式的表单提交；附件为 data URL 或纯 base64
type SubmitStageRequest struct {
	RegIDs     []string          `json:"reg_ids"`
	Fields     map[string]string `json:"fields"`
	Attachment string            `json:"attachment,omitempty"`
}

// SubmitStageResponse 批量提交结果
type SubmitStageResponse struct {
	Updated       int         `json:"updated"`
	Skipped       int         `json:"skipped"`
	Results       []rowResult `json:"results"`
	AttachmentURL string      `json:"attachment_url,omitempty"`
}

type rowResult struct {
	RegID   string `json:"reg_id"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ScheduleStageRequest 为登记表中的受益人创建阶段记录
type ScheduleStageRequest struct {
	RegID   string            `json:"reg_id" binding:"required"`
	Planned string            `json:"planned"`
	Fields  map[string]string `json:"fields"`
}

// ListStages 返回当前用户可以访问的阶段
func (h *HTTPHandler) ListStages(c *gin.Context) {
	user := CurrentUser(c)
	out := make([]StageSummary, 0, len(workflow.Stages))
	for _, stage := range workflow.Stages {
		if !user.CanAccess(stage.Page) {
			continue
		}
		out = append(out, StageSummary{
			Key:              stage.Key,
			Page:             stage.Page,
			Table:            stage.Table,
			Index:            stage.Index,
			PlannedColumn:    stage.PlannedColumn(),
			ActualColumn:     stage.ActualColumn(),
			AttachmentColumn: stage.AttachmentColumn,
			Columns:          append([]string(nil), stage.Columns...),
		})
	}
	c.JSON(http.StatusOK, gin.H{"stages": out})
}

// GetStage 查询阶段页面，支持 search 与 ip_name/district/block 过滤
func (h *HTTPHandler) GetStage(c *gin.Context) {
	stage := currentStage(c)

	query := viewQuery(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	view, err := h.workflowService.View(ctx, stage.Key, query)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, StageResponse{
		Stage:       stage.Key,
		Page:        stage.Page,
		Pending:     flattenRows(view.Pending),
		History:     flattenRows(view.History),
		NotStarted:  view.State.NotStarted,
		Facets:      view.Facets,
		Loading:     view.State.Loading,
		RefreshedAt: view.State.RefreshedAt,
	})
}

// SubmitStage 对选中的行批量提交表单，支持 JSON 与 multipart 两种格式
func (h *HTTPHandler) SubmitStage(c *gin.Context) {
	stage := currentStage(c)

	req, ok := h.bindSubmit(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	outcome, err := h.workflowService.Submit(ctx, stage.Key, req)
	if err != nil && outcome == nil {
		writeServiceError(c, err)
		return
	}

	resp := SubmitStageResponse{Results: make([]rowResult, 0, len(outcome.Results))}
	resp.AttachmentURL = outcome.AttachmentURL
	failed := 0
	for _, r := range outcome.Results {
		item := rowResult{RegID: r.RegID, Skipped: r.Skipped}
		switch {
		case r.Skipped:
			resp.Skipped++
		case r.Err != nil:
			item.Error = r.Err.Error()
			failed++
		default:
			resp.Updated++
		}
		resp.Results = append(resp.Results, item)
	}

	// 写入成功但刷新失败时，下次打开页面会重新加载
	if err != nil && failed == 0 {
		logrus.WithError(err).WithField("stage", stage.Key).Warn("refresh after submit failed")
		err = nil
	}
	if err != nil {
		logrus.WithError(err).WithField("stage", stage.Key).Warn("bulk submit failed")
		ErrorResponseWithDetails(c, http.StatusBadGateway, ErrCodeBulkUpdateFailed, err.Error(), resp)
		return
	}

	logrus.WithFields(logrus.Fields{
		"stage":   stage.Key,
		"updated": resp.Updated,
		"skipped": resp.Skipped,
		"user":    CurrentUser(c).Login,
	}).Info("stage form submitted")
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) bindSubmit(c *gin.Context) (service.SubmitRequest, bool) {
	if h.cfg.MaxUploadBytes > 0 {
		// base64 附件约膨胀 4/3，另为表单字段预留 1MB
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes*2+1<<20)
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return h.bindMultipartSubmit(c)
	}

	var body SubmitStageRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		if isTooLarge(err) {
			ErrorResponse(c, http.StatusRequestEntityTooLarge, ErrCodeAttachmentTooLarge, "attachment too large")
			return service.SubmitRequest{}, false
		}
		InvalidPayload(c)
		return service.SubmitRequest{}, false
	}

	req := service.SubmitRequest{RegIDs: cleanRegIDs(body.RegIDs), Fields: body.Fields}
	if strings.TrimSpace(body.Attachment) != "" {
		data, ext, err := utils.DecodeDataURL(body.Attachment)
		if err != nil {
			BadRequest(c, ErrCodeInvalidField, "invalid attachment: "+err.Error())
			return service.SubmitRequest{}, false
		}
		if h.cfg.MaxUploadBytes > 0 && int64(len(data)) > h.cfg.MaxUploadBytes {
			ErrorResponse(c, http.StatusRequestEntityTooLarge, ErrCodeAttachmentTooLarge, "attachment too large")
			return service.SubmitRequest{}, false
		}
		req.Attachment = &service.Attachment{Data: data, Extension: ext}
	}
	return req, true
}

func (h *HTTPHandler) bindMultipartSubmit(c *gin.Context) (service.SubmitRequest, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		if isTooLarge(err) {
			ErrorResponse(c, http.StatusRequestEntityTooLarge, ErrCodeAttachmentTooLarge, "attachment too large")
		} else {
			InvalidPayload(c)
		}
		return service.SubmitRequest{}, false
	}

	var ids []string
	for _, value := range form.Value["reg_ids"] {
		ids = append(ids, strings.Split(value, ",")...)
	}
	req := service.SubmitRequest{
		RegIDs: cleanRegIDs(ids),
		Fields: c.PostFormMap("fields"),
	}

	files := form.File["attachment"]
	if len(files) == 0 {
		return req, true
	}
	header := files[0]
	if h.cfg.MaxUploadBytes > 0 && header.Size > h.cfg.MaxUploadBytes {
		ErrorResponse(c, http.StatusRequestEntityTooLarge, ErrCodeAttachmentTooLarge, "attachment too large")
		return service.SubmitRequest{}, false
	}
	file, err := header.Open()
	if err != nil {
		logrus.WithError(err).Warn("failed to open uploaded attachment")
		BadRequest(c, ErrCodeInvalidField, "invalid attachment")
		return service.SubmitRequest{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		BadRequest(c, ErrCodeInvalidField, "invalid attachment")
		return service.SubmitRequest{}, false
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if ext == "" {
		ext = utils.ExtensionFromMime(header.Header.Get("Content-Type"))
	}
	if ext == "" {
		ext = utils.ExtensionFromMime(http.DetectContentType(data))
	}
	req.Attachment = &service.Attachment{Data: data, Extension: ext}
	return req, true
}

// ScheduleStage 插入阶段记录，planned 为空时取当前时间
func (h *HTTPHandler) ScheduleStage(c *gin.Context) {
	stage := currentStage(c)

	var body ScheduleStageRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		MissingField(c, "reg_id")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	row, err := h.workflowService.Schedule(ctx, stage.Key, service.ScheduleRequest{
		RegID:   body.RegID,
		Planned: body.Planned,
		Fields:  body.Fields,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, row)
}

// writeServiceError 将服务层错误映射为 HTTP 错误
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownStage):
		NotFound(c, ErrCodeStageNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		BadRequest(c, ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, service.ErrUnknownRegID):
		NotFound(c, ErrCodeRegIDNotFound, err.Error())
	case errors.Is(err, service.ErrAlreadyScheduled):
		Conflict(c, ErrCodeAlreadyScheduled, err.Error())
	case errors.Is(err, service.ErrUpload):
		ErrorResponse(c, http.StatusBadGateway, ErrCodeUploadFailed, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		ErrorResponse(c, http.StatusGatewayTimeout, ErrCodeBadGateway, "record store timed out")
	default:
		logrus.WithError(err).Error("record store request failed")
		BadGateway(c, err.Error())
	}
}

// viewQuery reads search and the facet filters from the query string.
func viewQuery(c *gin.Context) service.ViewQuery {
	query := service.ViewQuery{
		Search: strings.TrimSpace(c.Query("search")),
		Facets: make(map[string]string, len(workflow.FacetFields)),
	}
	for _, field := range workflow.FacetFields {
		if value := strings.TrimSpace(c.Query(field)); value != "" {
			query.Facets[field] = value
		}
	}
	return query
}

func flattenRows(rows []workflow.ViewRow) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Flatten())
	}
	return out
}

// cleanRegIDs trims ids but keeps empty ones so they are reported as skipped.
func cleanRegIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strings.TrimSpace(id))
	}
	return out
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
