package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exengine-go/exengine/errs"
	"github.com/exengine-go/exengine/event"
	"github.com/exengine-go/exengine/future"
)

func TestPool_FIFOPerWorker(t *testing.T) {
	p := New(context.Background(), Config{DefaultWorkerName: "main"})
	defer p.Shutdown(true)

	var mu sync.Mutex
	var order []int

	const n = 1000
	futs := make([]*future.Future, n)
	for i := 0; i < n; i++ {
		i := i
		item := event.Callable(func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		})
		fut, err := p.Submit(Submission{Item: item, WorkerName: "w"})
		require.NoError(t, err)
		futs[i] = fut
	}

	for _, f := range futs {
		_, err := f.AwaitExecution(context.Background())
		require.NoError(t, err)
	}

	require.Len(t, order, n)
	for i := 0; i < n; i++ {
		require.Equal(t, i, order[i])
	}
}

func TestPool_ShutdownDrains(t *testing.T) {
	p := New(context.Background(), Config{DefaultWorkerName: "main"})

	const n = 100
	futs := make([]*future.Future, n)
	for i := 0; i < n; i++ {
		item := event.Callable(func(ctx context.Context) (any, error) { return nil, nil })
		fut, err := p.Submit(Submission{Item: item, WorkerName: "w"})
		require.NoError(t, err)
		futs[i] = fut
	}

	p.Shutdown(true)

	for _, f := range futs {
		_, err := f.AwaitExecution(context.Background())
		require.NoError(t, err)
	}

	_, err := p.Submit(Submission{Item: event.Callable(func(ctx context.Context) (any, error) { return nil, nil })})
	require.ErrorIs(t, err, errs.ErrSubmissionRejected)
}

func TestPool_ShutdownNoWaitCancelsQueued(t *testing.T) {
	p := New(context.Background(), Config{DefaultWorkerName: "main"})

	block := make(chan struct{})
	first := event.Callable(func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	})
	firstFut, err := p.Submit(Submission{Item: first, WorkerName: "w"})
	require.NoError(t, err)

	// Give the worker goroutine a chance to pick up `first` so it is
	// "running" when shutdown is requested, and the rest stay queued.
	time.Sleep(20 * time.Millisecond)

	queued := event.Callable(func(ctx context.Context) (any, error) { return nil, nil })
	queuedFut, err := p.Submit(Submission{Item: queued, WorkerName: "w"})
	require.NoError(t, err)

	p.Shutdown(false)
	close(block)

	_, err = firstFut.AwaitExecution(context.Background())
	require.NoError(t, err)

	_, err = queuedFut.AwaitExecution(context.Background())
	require.ErrorIs(t, err, errs.ErrSubmissionRejected)
}

func TestPool_SubmitBatchContiguous(t *testing.T) {
	p := New(context.Background(), Config{DefaultWorkerName: "main"})
	defer p.Shutdown(true)

	var mu sync.Mutex
	var order []int

	items := make([]event.Item, 50)
	for i := range items {
		i := i
		items[i] = event.Callable(func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		})
	}

	futs, err := p.SubmitBatch("w", items, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, futs, 50)

	for _, f := range futs {
		_, err := f.AwaitExecution(context.Background())
		require.NoError(t, err)
	}

	for i := range order {
		require.Equal(t, i, order[i])
	}
}

func TestPool_DoubleSubmissionRejected(t *testing.T) {
	p := New(context.Background(), Config{DefaultWorkerName: "main"})
	defer p.Shutdown(true)

	item := event.Callable(func(ctx context.Context) (any, error) { return nil, nil })
	_, err := p.Submit(Submission{Item: item, WorkerName: "w"})
	require.NoError(t, err)

	_, err = p.Submit(Submission{Item: item, WorkerName: "w"})
	require.ErrorIs(t, err, errs.ErrAlreadySubmitted)
}

type pointerItem struct {
	run func(ctx context.Context) (any, error)
}

func (p *pointerItem) Execute(rc *event.RunContext) (any, error) { return p.run(rc.Context()) }

func TestPool_SubmitReleasesIdentityGuardOnEnqueueFailure(t *testing.T) {
	p := New(context.Background(), Config{DefaultWorkerName: "main", MaxQueueDepth: 1})
	defer p.Shutdown(true)

	block := make(chan struct{})
	blocker := &pointerItem{run: func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	}}
	blockerFut, err := p.Submit(Submission{Item: blocker, WorkerName: "w"})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond) // let the worker dequeue blocker; queue now empty

	filler1 := &pointerItem{run: func(ctx context.Context) (any, error) { return nil, nil }}
	_, err = p.Submit(Submission{Item: filler1, WorkerName: "w"})
	require.NoError(t, err) // fills the depth-1 queue

	filler2 := &pointerItem{run: func(ctx context.Context) (any, error) { return nil, nil }}
	_, err = p.Submit(Submission{Item: filler2, WorkerName: "w"})
	require.ErrorIs(t, err, errs.ErrSubmissionRejected) // queue full, not a prior submission

	close(block)
	_, err = blockerFut.AwaitExecution(context.Background())
	require.NoError(t, err)

	// Once space frees up, retrying the same pointer must succeed: the
	// failed enqueue above must not have left it permanently marked
	// submitted.
	require.Eventually(t, func() bool {
		_, err := p.Submit(Submission{Item: filler2, WorkerName: "w"})
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestPool_FailureDoesNotKillWorker(t *testing.T) {
	p := New(context.Background(), Config{DefaultWorkerName: "main"})
	defer p.Shutdown(true)

	failing := event.Callable(func(ctx context.Context) (any, error) {
		panic("boom")
	})
	fut1, err := p.Submit(Submission{Item: failing, WorkerName: "w"})
	require.NoError(t, err)

	_, err = fut1.AwaitExecution(context.Background())
	require.Error(t, err)

	ok := event.Callable(func(ctx context.Context) (any, error) { return "fine", nil })
	fut2, err := p.Submit(Submission{Item: ok, WorkerName: "w"})
	require.NoError(t, err)

	res, err := fut2.AwaitExecution(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fine", res)
}

func TestPool_TerminalNotificationPublished(t *testing.T) {
	p := New(context.Background(), Config{DefaultWorkerName: "main"})
	defer p.Shutdown(true)

	item := event.Callable(func(ctx context.Context) (any, error) { return nil, nil })
	fut, err := p.Submit(Submission{Item: item, WorkerName: "w"})
	require.NoError(t, err)

	_, err = fut.AwaitExecution(context.Background())
	require.NoError(t, err)

	n, err := fut.AwaitNotification(context.Background(), "EventExecuted")
	require.NoError(t, err)
	require.Equal(t, "EventExecuted", n.Kind())
}
