package workflow

import (
	"context"
	"errors"
	"fmt"
	"pumptrack/internal/entity"
	"pumptrack/internal/model"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultLoadingTimeout is how long Loading stays true for a slow fetch.
const DefaultLoadingTimeout = 15 * time.Second

// ErrRowNotLoaded is reported for submit targets absent from the current view.
var ErrRowNotLoaded = errors.New("row not loaded")

// PageState is a copy of a page's view at one point in time.
type PageState struct {
	Stage       Stage
	Pending     []ViewRow
	History     []ViewRow
	NotStarted  int
	Loading     bool
	RefreshedAt time.Time
}

// Page owns the fetched, joined and bucketed rows of one stage page.
// Refresh is the only writer; readers take snapshots.
type Page struct {
	stage          Stage
	store          model.RecordStore
	loadingTimeout time.Duration

	mu          sync.RWMutex
	buckets     Buckets
	loading     bool
	generation  uint64
	giveUp      *time.Timer
	refreshedAt time.Time
}

// PageOption configures a Page.
type PageOption func(*Page)

// WithLoadingTimeout overrides DefaultLoadingTimeout.
func WithLoadingTimeout(d time.Duration) PageOption {
	return func(p *Page) {
		if d > 0 {
			p.loadingTimeout = d
		}
	}
}

// NewPage creates an empty page for stage.
func NewPage(stage Stage, store model.RecordStore, opts ...PageOption) *Page {
	p := &Page{
		stage:          stage,
		store:          store,
		loadingTimeout: DefaultLoadingTimeout,
		buckets:        Buckets{Pending: []ViewRow{}, History: []ViewRow{}},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stage returns the stage the page shows.
func (p *Page) Stage() Stage {
	return p.stage
}

// Loading reports whether a refresh is running and has not hit the give-up timer.
func (p *Page) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// startLoading 开始新一轮刷新并返回其代号，只有最新一轮能清除加载状态
func (p *Page) startLoading() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	gen := p.generation
	p.loading = true
	if p.giveUp != nil {
		p.giveUp.Stop()
	}
	// 只隐藏加载状态，不取消请求
	p.giveUp = time.AfterFunc(p.loadingTimeout, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.generation == gen {
			p.loading = false
		}
	})
	return gen
}

// stopLoading requires p.mu held.
func (p *Page) stopLoading(gen uint64) {
	if gen != p.generation {
		return
	}
	if p.giveUp != nil {
		p.giveUp.Stop()
		p.giveUp = nil
	}
	p.loading = false
}

// Refresh fetches the stage table and the registry concurrently, joins and
// buckets them. Any failed query aborts the refresh and leaves the previous
// view in place.
func (p *Page) Refresh(ctx context.Context) error {
	gen := p.startLoading()

	var stageRows, registryRows []entity.Row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := p.store.Select(gctx, p.stage.Table, model.SelectQuery{})
		if err != nil {
			return fmt.Errorf("select %s: %w", p.stage.Table, err)
		}
		stageRows = rows
		return nil
	})
	g.Go(func() error {
		rows, err := p.store.Select(gctx, entity.TablePortal, model.SelectQuery{})
		if err != nil {
			return fmt.Errorf("select %s: %w", entity.TablePortal, err)
		}
		registryRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		p.mu.Lock()
		p.stopLoading(gen)
		p.mu.Unlock()
		logrus.WithError(err).WithField("stage", p.stage.Key).Error("page refresh failed")
		return err
	}

	view := Join(DecodeStageRows(p.stage, stageRows), DecodeRegistryRows(registryRows), p.stage.Join)
	buckets := Bucket(view)

	p.mu.Lock()
	p.buckets = buckets
	p.refreshedAt = time.Now()
	p.stopLoading(gen)
	p.mu.Unlock()
	return nil
}

// Snapshot copies the current view.
func (p *Page) Snapshot() PageState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PageState{
		Stage:       p.stage,
		Pending:     append([]ViewRow(nil), p.buckets.Pending...),
		History:     append([]ViewRow(nil), p.buckets.History...),
		NotStarted:  p.buckets.NotStarted,
		Loading:     p.loading,
		RefreshedAt: p.refreshedAt,
	}
}

// Targets resolves reg ids against the current view. Ids that are not loaded
// come back as failed results.
func (p *Page) Targets(regIDs []string) ([]StageRow, []Result) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	loaded := make(map[string]StageRow, len(p.buckets.Pending)+len(p.buckets.History))
	for _, bucket := range [][]ViewRow{p.buckets.Pending, p.buckets.History} {
		for _, row := range bucket {
			loaded[row.RegID()] = row.Stage
		}
	}

	var targets []StageRow
	var missing []Result
	seen := make(map[string]struct{}, len(regIDs))
	for _, id := range regIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if id == "" {
			// 空主键交给协调器跳过并记录
			targets = append(targets, StageRow{})
			continue
		}
		row, ok := loaded[id]
		if !ok {
			missing = append(missing, Result{RegID: id, Err: fmt.Errorf("%s: %w", id, ErrRowNotLoaded)})
			continue
		}
		targets = append(targets, row)
	}
	return targets, missing
}

// Submit applies edits to the selected rows and re-fetches the page when
// every write succeeded.
func (p *Page) Submit(ctx context.Context, c *Coordinator, edits Edits, regIDs []string) ([]Result, error) {
	targets, missing := p.Targets(regIDs)
	results, err := c.Apply(ctx, p.stage, edits, targets)
	results = append(results, missing...)
	if err == nil && len(missing) > 0 {
		err = missing[0].Err
	}
	if err != nil {
		return results, err
	}
	if err := p.Refresh(ctx); err != nil {
		return results, fmt.Errorf("refresh after submit: %w", err)
	}
	return results, nil
}

// Dashboard is the aggregated program overview.
type Dashboard struct {
	Summaries []Summary `json:"summaries"`
	Totals    Totals    `json:"totals"`
}

// LoadDashboard fetches the registry and the four counted stage tables
// concurrently and aggregates them.
func LoadDashboard(ctx context.Context, store model.RecordStore) (*Dashboard, error) {
	stages := []Stage{mustStage("survey"), mustStage("foundation"), mustStage("installation"), mustStage("payment")}
	stageRows := make([][]StageRow, len(stages))
	var registry []RegistryRow

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := store.Select(gctx, entity.TablePortal, model.SelectQuery{})
		if err != nil {
			return fmt.Errorf("select %s: %w", entity.TablePortal, err)
		}
		registry = DecodeRegistryRows(rows)
		return nil
	})
	for i, stage := range stages {
		i, stage := i, stage
		g.Go(func() error {
			rows, err := store.Select(gctx, stage.Table, model.SelectQuery{
				Columns: []string{entity.KeyColumn, stage.PlannedColumn(), stage.ActualColumn()},
			})
			if err != nil {
				return fmt.Errorf("select %s: %w", stage.Table, err)
			}
			stageRows[i] = DecodeStageRows(stage, rows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summaries, totals := Aggregate(registry, stageRows[0], stageRows[1], stageRows[2], stageRows[3])
	return &Dashboard{Summaries: summaries, Totals: totals}, nil
}
