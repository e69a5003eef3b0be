package workflow

import (
	"context"
	"errors"
	"pumptrack/internal/entity"
	"pumptrack/internal/model"
	"pumptrack/internal/model/memory"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFoundation(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	_, err := store.Insert(ctx, entity.TablePortal, entity.Row{
		"reg_id": "R1", "ip_name": "Acme", "district": "North",
		"village": "Kheda", "pump_capacity": "5HP", "beneficiary_name": "Mina",
	})
	require.NoError(t, err)
	_, err = store.Insert(ctx, entity.TableDispatchMaterial, entity.Row{
		"reg_id": "R1", "planned_3": "2024-02-01", "actual_3": nil,
	})
	require.NoError(t, err)
	return store
}

func TestFoundationPendingToHistory(t *testing.T) {
	ctx := context.Background()
	store := seedFoundation(t)
	page := NewPage(mustStage("foundation"), store)

	require.NoError(t, page.Refresh(ctx))
	state := page.Snapshot()
	require.Len(t, state.Pending, 1)
	assert.Empty(t, state.History)
	assert.False(t, state.Loading)

	row := state.Pending[0]
	assert.Equal(t, "R1", row.RegID())
	for field, want := range map[string]string{"ip_name": "Acme", "district": "North", "village": "Kheda", "pump_capacity": "5HP"} {
		got, ok := row.Field(field)
		assert.True(t, ok)
		assert.Equal(t, want, got, field)
	}

	c := NewCoordinator(store, 4).WithClock(func() time.Time {
		return time.Date(2024, 2, 4, 10, 0, 0, 0, time.Local)
	})
	results, err := page.Submit(ctx, c, Edits{"invoice_no": "INV-1"}, []string{"R1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].OK())

	state = page.Snapshot()
	assert.Empty(t, state.Pending)
	require.Len(t, state.History, 1)
	done := state.History[0]
	assert.Equal(t, Delay{Days: 3, Known: true}, done.Delay)
	inv, _ := done.Field("invoice_no")
	assert.Equal(t, "INV-1", inv)

	// 已完成的记录再次提交不会改变 actual
	_, err = page.Submit(ctx, c.WithClock(time.Now), Edits{"remarks": "checked"}, []string{"R1"})
	require.NoError(t, err)
	again := page.Snapshot().History[0]
	actual, _ := again.Field("actual_3")
	assert.Equal(t, "2024-02-04 10:00:00", actual)
}

func TestSubmitUnknownRow(t *testing.T) {
	ctx := context.Background()
	store := seedFoundation(t)
	page := NewPage(mustStage("foundation"), store)
	require.NoError(t, page.Refresh(ctx))

	results, err := page.Submit(ctx, NewCoordinator(store, 0), Edits{}, []string{"R1", "R404"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRowNotLoaded)
	require.Len(t, results, 2)
	assert.True(t, results[0].OK())
	assert.Equal(t, "R404", results[1].RegID)
}

type failingStore struct {
	recordingStore
	err error
}

func (s *failingStore) Select(ctx context.Context, table string, query model.SelectQuery) ([]entity.Row, error) {
	if table == entity.TablePortal {
		return nil, s.err
	}
	return []entity.Row{{"reg_id": "X", "planned_3": "2024-01-01"}}, nil
}

func TestRefreshFailureKeepsPreviousView(t *testing.T) {
	ctx := context.Background()
	store := seedFoundation(t)
	page := NewPage(mustStage("foundation"), store)
	require.NoError(t, page.Refresh(ctx))

	broken := &failingStore{err: errors.New("connection refused")}
	page.store = broken
	err := page.Refresh(ctx)
	require.Error(t, err)

	state := page.Snapshot()
	require.Len(t, state.Pending, 1)
	assert.Equal(t, "R1", state.Pending[0].RegID())
	assert.False(t, state.Loading)
}

// blockingStore holds Select until release is closed.
type blockingStore struct {
	recordingStore
	release chan struct{}
}

func (s *blockingStore) Select(ctx context.Context, table string, query model.SelectQuery) ([]entity.Row, error) {
	<-s.release
	return nil, nil
}

func TestLoadingGiveUpDoesNotCancelFetch(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	page := NewPage(mustStage("survey"), store, WithLoadingTimeout(100*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- page.Refresh(context.Background()) }()

	assert.Eventually(t, page.Loading, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return !page.Loading() }, time.Second, 5*time.Millisecond)

	select {
	case <-done:
		t.Fatal("refresh finished before release")
	default:
	}

	close(store.release)
	require.NoError(t, <-done)
	assert.False(t, page.Loading())
	assert.False(t, page.Snapshot().RefreshedAt.IsZero())
}

// gatedStore holds the two selects of the n-th refresh until gates[n] is closed.
type gatedStore struct {
	recordingStore
	gates []chan struct{}

	selMu   sync.Mutex
	selects int
}

func (s *gatedStore) Select(ctx context.Context, table string, query model.SelectQuery) ([]entity.Row, error) {
	s.selMu.Lock()
	gate := s.gates[s.selects/2]
	s.selects++
	s.selMu.Unlock()
	<-gate
	return nil, nil
}

func (s *gatedStore) started() int {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	return s.selects
}

func TestOverlappingRefreshKeepsLatestLoading(t *testing.T) {
	store := &gatedStore{gates: []chan struct{}{make(chan struct{}), make(chan struct{})}}
	page := NewPage(mustStage("survey"), store, WithLoadingTimeout(time.Minute))

	first := make(chan error, 1)
	go func() { first <- page.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return store.started() == 2 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- page.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return store.started() == 4 }, time.Second, time.Millisecond)

	close(store.gates[0])
	require.NoError(t, <-first)
	assert.True(t, page.Loading(), "older refresh must not clear the newer one's loading flag")

	close(store.gates[1])
	require.NoError(t, <-second)
	assert.False(t, page.Loading())
}

func TestStaleRefreshCannotClearLoading(t *testing.T) {
	page := NewPage(mustStage("survey"), &recordingStore{}, WithLoadingTimeout(time.Minute))
	gen := page.startLoading()
	page.startLoading()

	page.mu.Lock()
	page.stopLoading(gen)
	page.mu.Unlock()
	assert.True(t, page.Loading())
}

func TestLoadDashboard(t *testing.T) {
	ctx := context.Background()
	store := seedFoundation(t)
	_, err := store.Insert(ctx, entity.TablePortal, entity.Row{"reg_id": "R2", "ip_name": "Acme", "district": "North"})
	require.NoError(t, err)
	_, err = store.Insert(ctx, entity.TablePortal, entity.Row{"reg_id": "R3"})
	require.NoError(t, err)
	_, err = store.Insert(ctx, entity.TableInstallation, entity.Row{"reg_id": "R2", "planned_4": "2024-01-01", "actual_4": "2024-01-09"})
	require.NoError(t, err)

	dash, err := LoadDashboard(ctx, store)
	require.NoError(t, err)
	require.Len(t, dash.Summaries, 1)
	assert.Equal(t, 2, dash.Summaries[0].TotalBeneficiaries)
	assert.Equal(t, 1, dash.Summaries[0].FoundationDispatch)
	assert.Equal(t, 1, dash.Summaries[0].InstallationComplete)
	assert.Equal(t, 50.0, dash.Totals.CompletionRate)
}
