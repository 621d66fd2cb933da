package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leadharvest/contactcrawler/internal/clock/system"
	"github.com/leadharvest/contactcrawler/internal/id/uuid"
	"github.com/leadharvest/contactcrawler/internal/parsing"
	queuememory "github.com/leadharvest/contactcrawler/internal/queue/memory"
	storememory "github.com/leadharvest/contactcrawler/internal/store/memory"
)

func newService(queueCap int) (*Service, *storememory.Store, *queuememory.Queue) {
	store := storememory.NewStore(system.Clock{})
	queue := queuememory.NewQueue(queueCap)
	svc := NewService(store, queue, NewRegistry(), uuid.New(), system.Clock{}, zap.NewNop())
	return svc, store, queue
}

func TestCreateSingleSiteTaskNormalizesAndEnqueues(t *testing.T) {
	t.Parallel()

	svc, store, queue := newService(4)
	ctx := context.Background()

	created, err := svc.CreateSingleSiteTask(ctx, parsing.SingleSiteParams{URL: "Example.COM/Contact/"})
	require.NoError(t, err)
	require.Equal(t, parsing.TaskStatusRunning, created.Status)
	require.Equal(t, "https://example.com/Contact", created.Parameters.SingleSite.URL)

	stored, err := store.GetTask(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, parsing.TaskKindSingleSite, stored.Kind)

	item, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, created.ID, item.TaskID)
}

func TestCreateSingleSiteTaskRejectsEmptyURL(t *testing.T) {
	t.Parallel()

	svc, _, _ := newService(4)
	_, err := svc.CreateSingleSiteTask(context.Background(), parsing.SingleSiteParams{URL: "  "})
	require.Error(t, err)
}

func TestCreateBatchTaskDefaultsAndBounds(t *testing.T) {
	t.Parallel()

	svc, _, queue := newService(4)
	ctx := context.Background()

	created, err := svc.CreateBatchTask(ctx, parsing.BatchParams{Query: "dentists in boston"})
	require.NoError(t, err)
	require.Equal(t, 10, created.Parameters.Batch.NumResults)

	_, err = queue.Dequeue(ctx)
	require.NoError(t, err)

	_, err = svc.CreateBatchTask(ctx, parsing.BatchParams{Query: "q", NumResults: 101})
	require.Error(t, err)

	_, err = svc.CreateBatchTask(ctx, parsing.BatchParams{Query: ""})
	require.Error(t, err)
}

// An unenqueueable task must not linger in running.
func TestCreateTaskEnqueueFailureMarksFailed(t *testing.T) {
	t.Parallel()

	svc, store, _ := newService(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.CreateSingleSiteTask(ctx, parsing.SingleSiteParams{URL: "https://example.com"})
	require.Error(t, err)

	tasks, err := store.ListTasks(context.Background(), parsing.TaskFilter{Status: parsing.TaskStatusFailed})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "enqueue failed", tasks[0].ErrorText)
}

func TestDeleteTaskCancelsInFlightWork(t *testing.T) {
	t.Parallel()

	svc, _, queue := newService(4)
	ctx := context.Background()

	created, err := svc.CreateSingleSiteTask(ctx, parsing.SingleSiteParams{URL: "https://example.com"})
	require.NoError(t, err)
	_, err = queue.Dequeue(ctx)
	require.NoError(t, err)

	workCtx, cancel := svc.registry.Register(created.ID, context.Background())
	defer cancel()

	require.NoError(t, svc.DeleteTask(ctx, created.ID))
	require.Error(t, workCtx.Err())

	_, err = svc.GetTask(ctx, created.ID)
	require.ErrorIs(t, err, parsing.ErrTaskNotFound)

	require.ErrorIs(t, svc.DeleteTask(ctx, created.ID), parsing.ErrTaskNotFound)
}

func TestGetSitesUnknownTask(t *testing.T) {
	t.Parallel()

	svc, _, _ := newService(4)
	_, err := svc.GetSites(context.Background(), "missing")
	require.ErrorIs(t, err, parsing.ErrTaskNotFound)
}

func TestRegistryLifecycle(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	ctx, cancel := r.Register("t1", context.Background())
	defer cancel()

	require.True(t, r.Cancel("t1"))
	require.Error(t, ctx.Err())

	r.Release("t1")
	require.False(t, r.Cancel("t1"))
	require.False(t, r.Cancel("unknown"))
}
