package bus

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exengine-go/exengine/notify"
)

func TestBus_PublishDeliversToMatchingSubscribers(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	var mu sync.Mutex
	var received []string

	b.Subscribe(func(n notify.Notification) {
		mu.Lock()
		received = append(received, n.Kind())
		mu.Unlock()
	}, ByCategory(notify.CategoryData))

	b.Subscribe(func(n notify.Notification) {
		t.Error("storage-only subscriber should not see a Data notification")
	}, ByCategory(notify.CategoryStorage))

	b.Publish(notify.DataStored("x=1"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, time.Millisecond)
}

func TestBus_PerSubscriberOrderingPreserved(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	var mu sync.Mutex
	var order []string

	b.Subscribe(func(n notify.Notification) {
		mu.Lock()
		order = append(order, n.Description())
		mu.Unlock()
	}, NoFilter())

	const n = 200
	for i := 0; i < n; i++ {
		b.Publish(notify.New(notify.CategoryEvent, "seq", strconv.Itoa(i), nil))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == n
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < n; i++ {
		require.Equal(t, strconv.Itoa(i), order[i])
	}
}

func TestBus_SlowHandlerDoesNotBlockOthers(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	block := make(chan struct{})
	b.Subscribe(func(n notify.Notification) {
		<-block
	}, NoFilter())

	fast := make(chan struct{}, 1)
	b.Subscribe(func(n notify.Notification) {
		select {
		case fast <- struct{}{}:
		default:
		}
	}, NoFilter())

	b.Publish(notify.New(notify.CategoryEvent, "x", "", nil))

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber was blocked by slow subscriber")
	}
	close(block)
}

func TestBus_PanicInHandlerDoesNotUnsubscribe(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	var mu sync.Mutex
	count := 0
	b.Subscribe(func(n notify.Notification) {
		mu.Lock()
		count++
		mu.Unlock()
		panic("boom")
	}, NoFilter())

	b.Publish(notify.New(notify.CategoryEvent, "a", "", nil))
	b.Publish(notify.New(notify.CategoryEvent, "b", "", nil))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	}, time.Second, time.Millisecond)
}

func TestBus_UnsubscribeStopsFutureDelivery(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	var mu sync.Mutex
	count := 0
	h := b.Subscribe(func(n notify.Notification) {
		mu.Lock()
		count++
		mu.Unlock()
	}, NoFilter())

	b.Publish(notify.New(notify.CategoryEvent, "a", "", nil))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, time.Millisecond)

	b.Unsubscribe(h)
	b.Publish(notify.New(notify.CategoryEvent, "b", "", nil))

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, count)
}

func TestBus_CloseWaitsForDrain(t *testing.T) {
	b := New()

	var mu sync.Mutex
	count := 0
	b.Subscribe(func(n notify.Notification) {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		count++
		mu.Unlock()
	}, NoFilter())

	for i := 0; i < 10; i++ {
		b.Publish(notify.New(notify.CategoryEvent, "a", "", nil))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b.Close(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 10, count)
}

