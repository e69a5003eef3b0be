package service

import (
	"context"
	"errors"
	"fmt"
	"pumptrack/internal/entity"
	"pumptrack/internal/model"
	"pumptrack/internal/storage"
	"pumptrack/internal/workflow"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrUnknownStage 阶段 key 不存在
	ErrUnknownStage = errors.New("unknown stage")
	// ErrInvalidInput 提交内容不合法
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownRegID reg_id 不在登记表中
	ErrUnknownRegID = errors.New("reg_id not found in registry")
	// ErrAlreadyScheduled 该阶段已存在此 reg_id 的记录
	ErrAlreadyScheduled = errors.New("stage row already exists")
	// ErrUpload 附件上传失败
	ErrUpload = errors.New("attachment upload failed")
)

// Options 工作流服务配置
type Options struct {
	Bucket          string
	BulkConcurrency int
	LoadingTimeout  time.Duration
}

// WorkflowService 阶段页面服务：查询、提交、排期和看板
type WorkflowService struct {
	store       model.RecordStore
	files       storage.Storage
	bucket      string
	coordinator *workflow.Coordinator
	timeout     time.Duration

	mu    sync.Mutex
	pages map[string]*workflow.Page
}

// NewWorkflowService 创建工作流服务实例
func NewWorkflowService(store model.RecordStore, files storage.Storage, opts Options) *WorkflowService {
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		bucket = "documents"
	}
	return &WorkflowService{
		store:       store,
		files:       files,
		bucket:      bucket,
		coordinator: workflow.NewCoordinator(store, opts.BulkConcurrency),
		timeout:     opts.LoadingTimeout,
		pages:       make(map[string]*workflow.Page),
	}
}

// Coordinator exposes the bulk coordinator, mainly so tests can pin its clock.
func (s *WorkflowService) Coordinator() *workflow.Coordinator {
	return s.coordinator
}

// Page returns the shared page controller of a stage.
func (s *WorkflowService) Page(stageKey string) (*workflow.Page, error) {
	stage, ok := workflow.LookupStage(stageKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, stageKey)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[stage.Key]
	if !ok {
		page = workflow.NewPage(stage, s.store, workflow.WithLoadingTimeout(s.timeout))
		s.pages[stage.Key] = page
	}
	return page, nil
}

// ViewQuery narrows a stage view.
type ViewQuery struct {
	Search string
	Facets map[string]string
}

// StageView is a filtered snapshot of one stage page.
type StageView struct {
	State   workflow.PageState
	Pending []workflow.ViewRow
	History []workflow.ViewRow
	// Facets are computed over the unfiltered rows.
	Facets map[string][]string
}

// View refreshes the stage page and applies the search and facet filters.
func (s *WorkflowService) View(ctx context.Context, stageKey string, q ViewQuery) (*StageView, error) {
	page, err := s.Page(stageKey)
	if err != nil {
		return nil, err
	}
	if err := page.Refresh(ctx); err != nil {
		return nil, err
	}
	state := page.Snapshot()

	all := make([]workflow.ViewRow, 0, len(state.Pending)+len(state.History))
	all = append(all, state.Pending...)
	all = append(all, state.History...)

	return &StageView{
		State:   state,
		Pending: workflow.Filter(state.Pending, q.Search, q.Facets),
		History: workflow.Filter(state.History, q.Search, q.Facets),
		Facets:  workflow.FacetOptions(all, workflow.FacetFields),
	}, nil
}

// Attachment is a file submitted with a form.
type Attachment struct {
	Data      []byte
	Extension string
}

// SubmitRequest is one form applied to one or more rows.
type SubmitRequest struct {
	RegIDs     []string
	Fields     map[string]string
	Attachment *Attachment
}

// SubmitOutcome reports per-row results and the stored attachment URL.
type SubmitOutcome struct {
	Results       []workflow.Result
	AttachmentURL string
}

// Submit validates the form, uploads the attachment once, and writes every
// selected row through the bulk coordinator.
func (s *WorkflowService) Submit(ctx context.Context, stageKey string, req SubmitRequest) (*SubmitOutcome, error) {
	page, err := s.Page(stageKey)
	if err != nil {
		return nil, err
	}
	stage := page.Stage()

	if len(req.RegIDs) == 0 {
		return nil, fmt.Errorf("%w: no rows selected", ErrInvalidInput)
	}
	edits := make(workflow.Edits, len(req.Fields)+1)
	for col, value := range req.Fields {
		col = strings.TrimSpace(col)
		if !stage.Editable(col) {
			return nil, fmt.Errorf("%w: column %q is not editable on %s", ErrInvalidInput, col, stage.Key)
		}
		value = strings.TrimSpace(value)
		// 清空 planned 会留下只有 actual 的行
		if col == stage.PlannedColumn() && value == "" {
			return nil, fmt.Errorf("%w: %s cannot be cleared", ErrInvalidInput, col)
		}
		edits[col] = value
	}
	hasAttachment := req.Attachment != nil && len(req.Attachment.Data) > 0
	if hasAttachment && stage.AttachmentColumn == "" {
		return nil, fmt.Errorf("%w: %s does not accept attachments", ErrInvalidInput, stage.Key)
	}

	// 先刷新，保证 actual 是否已填写以后端为准
	if err := page.Refresh(ctx); err != nil {
		return nil, err
	}

	outcome := &SubmitOutcome{}
	// 没有任何已加载的行时不上传，避免留下无人引用的文件
	if hasAttachment && anyLoaded(page, req.RegIDs) {
		url, err := s.upload(ctx, stage, req.RegIDs, req.Attachment)
		if err != nil {
			return nil, err
		}
		edits[stage.AttachmentColumn] = url
		outcome.AttachmentURL = url
	}
	results, err := page.Submit(ctx, s.coordinator, edits, req.RegIDs)
	outcome.Results = results
	if err != nil {
		if summary := failureSummary(results); summary != "" {
			return outcome, fmt.Errorf("%s: %w", summary, err)
		}
		return outcome, err
	}
	logrus.WithFields(logrus.Fields{
		"stage": stage.Key,
		"rows":  len(results),
	}).Info("stage rows updated")
	return outcome, nil
}

func anyLoaded(page *workflow.Page, regIDs []string) bool {
	targets, _ := page.Targets(regIDs)
	for _, t := range targets {
		if t.RegID != "" {
			return true
		}
	}
	return false
}

func (s *WorkflowService) upload(ctx context.Context, stage workflow.Stage, regIDs []string, file *Attachment) (string, error) {
	if s.files == nil {
		return "", fmt.Errorf("%w: storage not configured", ErrUpload)
	}
	owner := "bulk"
	if len(regIDs) == 1 {
		owner = regIDs[0]
	}
	objectPath := storage.AttachmentPath(stage.Key, owner, file.Extension)
	stored, err := s.files.Upload(ctx, s.bucket, objectPath, file.Data)
	if err != nil {
		logrus.WithError(err).WithField("path", objectPath).Error("attachment upload failed")
		return "", errors.Join(ErrUpload, err)
	}
	return s.files.PublicURL(s.bucket, stored), nil
}

// ScheduleRequest creates a stage row for a registry beneficiary.
type ScheduleRequest struct {
	RegID   string
	Planned string
	Fields  map[string]string
}

// Schedule inserts the stage row with its planned date, defaulting to now.
func (s *WorkflowService) Schedule(ctx context.Context, stageKey string, req ScheduleRequest) (entity.Row, error) {
	stage, ok := workflow.LookupStage(stageKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, stageKey)
	}
	regID := strings.TrimSpace(req.RegID)
	if regID == "" {
		return nil, fmt.Errorf("%w: reg_id is required", ErrInvalidInput)
	}

	registry, err := s.store.Select(ctx, entity.TablePortal, model.SelectQuery{
		Columns: []string{entity.KeyColumn},
		Equals:  map[string]interface{}{entity.KeyColumn: regID},
	})
	if err != nil {
		return nil, err
	}
	if len(registry) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegID, regID)
	}

	row := entity.Row{entity.KeyColumn: regID}
	for col, value := range req.Fields {
		if !stage.Editable(col) {
			return nil, fmt.Errorf("%w: column %q is not editable on %s", ErrInvalidInput, col, stage.Key)
		}
		row[col] = strings.TrimSpace(value)
	}
	planned := strings.TrimSpace(req.Planned)
	if planned == "" {
		planned = time.Now().Format(entity.TimestampLayout)
	}
	row[stage.PlannedColumn()] = planned

	created, err := s.store.Insert(ctx, stage.Table, row)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyScheduled, regID)
		}
		return nil, err
	}
	return created, nil
}

// Dashboard aggregates the registry and stage tables.
func (s *WorkflowService) Dashboard(ctx context.Context) (*workflow.Dashboard, error) {
	return workflow.LoadDashboard(ctx, s.store)
}

// failureSummary 汇总失败与跳过的行，便于在一条错误信息中展示
func failureSummary(results []workflow.Result) string {
	var failed []string
	skipped := 0
	for _, r := range results {
		switch {
		case r.Skipped:
			skipped++
		case r.Err != nil:
			failed = append(failed, r.RegID)
		}
	}
	if len(failed) == 0 {
		return ""
	}
	summary := fmt.Sprintf("%d of %d rows failed (%s)", len(failed), len(results), strings.Join(failed, ", "))
	if skipped > 0 {
		summary += fmt.Sprintf("; %d skipped", skipped)
	}
	return summary
}
