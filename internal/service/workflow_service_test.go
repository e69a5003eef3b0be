package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"pumptrack/internal/entity"
	"pumptrack/internal/model"
	"pumptrack/internal/model/memory"
	"pumptrack/internal/storage"
	"pumptrack/internal/workflow"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*WorkflowService, *memory.Store, string) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	for _, row := range []entity.Row{
		{"reg_id": "R1", "ip_name": "Acme", "district": "North", "block": "B1", "village": "Kheda"},
		{"reg_id": "R2", "ip_name": "Acme", "district": "South", "block": "B2", "village": "Anand"},
		{"reg_id": "R3", "ip_name": "Sunrise", "district": "North", "block": "B1"},
	} {
		_, err := store.Insert(ctx, entity.TablePortal, row)
		require.NoError(t, err)
	}
	for _, row := range []entity.Row{
		{"reg_id": "R1", "planned_3": "2024-02-01"},
		{"reg_id": "R2", "planned_3": "2024-02-01", "actual_3": "2024-02-03 12:00:00"},
	} {
		_, err := store.Insert(ctx, entity.TableDispatchMaterial, row)
		require.NoError(t, err)
	}

	dir := t.TempDir()
	files, err := storage.NewLocalStorage(dir, "/files")
	require.NoError(t, err)

	svc := NewWorkflowService(store, files, Options{Bucket: "documents", BulkConcurrency: 2, LoadingTimeout: time.Second})
	svc.Coordinator().WithClock(func() time.Time { return time.Date(2024, 2, 5, 9, 0, 0, 0, time.Local) })
	return svc, store, dir
}

func TestViewFiltersAndFacets(t *testing.T) {
	svc, _, _ := newTestService(t)

	view, err := svc.View(context.Background(), "foundation", ViewQuery{})
	require.NoError(t, err)
	require.Len(t, view.Pending, 1)
	require.Len(t, view.History, 1)
	assert.Equal(t, []string{"Acme"}, view.Facets["ip_name"])
	assert.Equal(t, []string{"North", "South"}, view.Facets["district"])

	view, err = svc.View(context.Background(), "foundation", ViewQuery{Facets: map[string]string{"district": "South"}})
	require.NoError(t, err)
	assert.Empty(t, view.Pending)
	require.Len(t, view.History, 1)
	assert.Equal(t, "R2", view.History[0].RegID())

	_, err = svc.View(context.Background(), "nope", ViewQuery{})
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestSubmitWithAttachment(t *testing.T) {
	svc, store, dir := newTestService(t)
	ctx := context.Background()

	out, err := svc.Submit(ctx, "foundation", SubmitRequest{
		RegIDs:     []string{"R1", "R2"},
		Fields:     map[string]string{"invoice_no": " INV-5 "},
		Attachment: &Attachment{Data: []byte("invoice"), Extension: "pdf"},
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.True(t, strings.HasPrefix(out.AttachmentURL, "/files/documents/foundation/bulk/"))

	rel := strings.TrimPrefix(out.AttachmentURL, "/files/")
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, "invoice", string(data))

	rows, err := store.Select(ctx, entity.TableDispatchMaterial, modelQuery("R1"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-02-05 09:00:00", rows[0].String("actual_3"))
	assert.Equal(t, "INV-5", rows[0].String("invoice_no"))
	assert.Equal(t, out.AttachmentURL, rows[0].String("invoice_copy"))

	rows, err = store.Select(ctx, entity.TableDispatchMaterial, modelQuery("R2"))
	require.NoError(t, err)
	assert.Equal(t, "2024-02-03 12:00:00", rows[0].String("actual_3"))

	page, err := svc.Page("foundation")
	require.NoError(t, err)
	state := page.Snapshot()
	assert.Empty(t, state.Pending)
	assert.Len(t, state.History, 2)
}

func TestSubmitValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "foundation", SubmitRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Submit(ctx, "foundation", SubmitRequest{RegIDs: []string{"R1"}, Fields: map[string]string{"actual_3": "2020-01-01"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Submit(ctx, "system_info", SubmitRequest{RegIDs: []string{"R1"}, Attachment: &Attachment{Data: []byte("x"), Extension: "png"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	out, err := svc.Submit(ctx, "foundation", SubmitRequest{RegIDs: []string{"R9"}})
	assert.ErrorIs(t, err, workflow.ErrRowNotLoaded)
	require.Len(t, out.Results, 1)
	assert.Contains(t, err.Error(), "1 of 1 rows failed (R9)")
}

type failingUploads struct{}

func (failingUploads) Upload(ctx context.Context, bucket, objectPath string, data []byte) (string, error) {
	return "", errors.New("quota exceeded")
}

func (failingUploads) PublicURL(bucket, objectPath string) string { return "" }

func TestSubmitUploadFailureWritesNothing(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_, err := store.Insert(ctx, entity.TableDispatchMaterial, entity.Row{"reg_id": "R1", "planned_3": "2024-02-01"})
	require.NoError(t, err)

	svc := NewWorkflowService(store, failingUploads{}, Options{})
	_, err = svc.Submit(ctx, "foundation", SubmitRequest{
		RegIDs:     []string{"R1"},
		Attachment: &Attachment{Data: []byte("x"), Extension: "pdf"},
	})
	require.ErrorIs(t, err, ErrUpload)

	rows, err := store.Select(ctx, entity.TableDispatchMaterial, modelQuery("R1"))
	require.NoError(t, err)
	assert.Equal(t, "", rows[0].String("actual_3"))
}

func TestSchedule(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Schedule(ctx, "installation", ScheduleRequest{RegID: "R3", Planned: "2024-03-01", Fields: map[string]string{"installer_name": "Ravi"}})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", created.String("planned_4"))

	view, err := svc.View(ctx, "installation", ViewQuery{})
	require.NoError(t, err)
	require.Len(t, view.Pending, 1)
	assert.Equal(t, "R3", view.Pending[0].RegID())

	_, err = svc.Schedule(ctx, "installation", ScheduleRequest{RegID: "R3"})
	assert.ErrorIs(t, err, ErrAlreadyScheduled)

	_, err = svc.Schedule(ctx, "installation", ScheduleRequest{RegID: "R404"})
	assert.ErrorIs(t, err, ErrUnknownRegID)

	_, err = svc.Schedule(ctx, "installation", ScheduleRequest{RegID: "R1", Fields: map[string]string{"id": "7"}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDashboard(t *testing.T) {
	svc, _, _ := newTestService(t)
	dash, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	require.Len(t, dash.Summaries, 3)
	assert.Equal(t, 3, dash.Totals.TotalProjects)
	assert.Equal(t, 0.0, dash.Totals.CompletionRate)
}

func modelQuery(regID string) model.SelectQuery {
	return model.SelectQuery{Equals: map[string]interface{}{entity.KeyColumn: regID}}
}

func TestSubmitRejectsClearingPlanned(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "foundation", SubmitRequest{
		RegIDs: []string{"R1"},
		Fields: map[string]string{"planned_3": "  "},
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	rows, err := store.Select(ctx, entity.TableDispatchMaterial, modelQuery("R1"))
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", rows[0].String("planned_3"))
	assert.Equal(t, "", rows[0].String("actual_3"))

	view, err := svc.View(ctx, "foundation", ViewQuery{})
	require.NoError(t, err)
	assert.Len(t, view.Pending, 1)

	// 改期仍然允许
	_, err = svc.Submit(ctx, "foundation", SubmitRequest{
		RegIDs: []string{"R1"},
		Fields: map[string]string{"planned_3": "2024-02-10"},
	})
	require.NoError(t, err)
	rows, err = store.Select(ctx, entity.TableDispatchMaterial, modelQuery("R1"))
	require.NoError(t, err)
	assert.Equal(t, "2024-02-10", rows[0].String("planned_3"))
}

func TestSubmitUnknownRowsSkipsUpload(t *testing.T) {
	svc, _, dir := newTestService(t)

	out, err := svc.Submit(context.Background(), "foundation", SubmitRequest{
		RegIDs:     []string{"R9"},
		Attachment: &Attachment{Data: []byte("invoice"), Extension: "pdf"},
	})
	require.ErrorIs(t, err, workflow.ErrRowNotLoaded)
	assert.Empty(t, out.AttachmentURL)

	var stored []string
	require.NoError(t, filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			stored = append(stored, path)
		}
		return err
	}))
	assert.Empty(t, stored)
}
