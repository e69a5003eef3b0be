package workflow

import (
	"context"
	"fmt"
	"pumptrack/internal/entity"
	"pumptrack/internal/model"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Edits are the column values of one submitted form.
type Edits map[string]string

// Result reports what happened to one target row.
type Result struct {
	RegID   string `json:"reg_id"`
	Skipped bool   `json:"skipped,omitempty"`
	Err     error  `json:"-"`
}

// OK reports whether the row was written.
func (r Result) OK() bool {
	return !r.Skipped && r.Err == nil
}

// Coordinator applies one set of edits to many stage rows.
type Coordinator struct {
	store model.RecordStore
	limit int
	now   func() time.Time
}

// NewCoordinator 创建批量更新协调器，limit<=0 表示不限制并发。
func NewCoordinator(store model.RecordStore, limit int) *Coordinator {
	return &Coordinator{store: store, limit: limit, now: time.Now}
}

// WithClock replaces the completion-timestamp clock.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// BuildPayload builds the update for one target. An empty actual column is stamped
// with the current time; a filled one is never overwritten.
func BuildPayload(stage Stage, edits Edits, target StageRow, stamp string) entity.Row {
	payload := make(entity.Row, len(edits)+1)
	for col, value := range edits {
		if col == entity.KeyColumn || col == "id" {
			continue
		}
		payload[col] = value
	}
	actual := stage.ActualColumn()
	if IsFilled(target.Actual) {
		delete(payload, actual)
	} else {
		payload[actual] = stamp
	}
	return payload
}

// Apply writes edits to every target concurrently and waits for all of them.
// Rows without a reg_id are skipped. The returned error is the first failure;
// rows that were already written stay written.
func (c *Coordinator) Apply(ctx context.Context, stage Stage, edits Edits, targets []StageRow) ([]Result, error) {
	results := make([]Result, len(targets))
	stamp := c.now().Format(entity.TimestampLayout)

	var g errgroup.Group
	if c.limit > 0 {
		g.SetLimit(c.limit)
	}
	for i, target := range targets {
		results[i].RegID = target.RegID
		if target.RegID == "" {
			results[i].Skipped = true
			logrus.WithFields(logrus.Fields{
				"table": stage.Table,
				"index": i,
			}).Warn("skipping row without reg_id")
			continue
		}
		i, target := i, target
		payload := BuildPayload(stage, edits, target, stamp)
		g.Go(func() error {
			err := c.store.Update(ctx, stage.Table, payload, entity.KeyColumn, target.RegID)
			if err != nil {
				err = fmt.Errorf("update %s %s: %w", stage.Table, target.RegID, err)
				results[i].Err = err
			}
			return err
		})
	}
	err := g.Wait()
	if err != nil {
		logrus.WithError(err).WithField("table", stage.Table).Error("bulk update failed")
	}
	return results, err
}
