package metrics

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBasicProvider_CounterReusedByName(t *testing.T) {
	p := NewBasicProvider()

	c1 := p.Counter("exengine.worker.dispatched")
	c2 := p.Counter("exengine.worker.dispatched")
	require.Same(t, c1, c2)

	c1.Add(3)
	c2.Add(2)
	require.EqualValues(t, 5, c1.(*BasicCounter).Snapshot())

	other := p.Counter("exengine.bus.dropped_notifications")
	require.NotSame(t, c1, other)
}

func TestBasicProvider_UpDownCounterTracksQueueDepth(t *testing.T) {
	p := NewBasicProvider()
	u1 := p.UpDownCounter("exengine.worker.queue_depth")
	u2 := p.UpDownCounter("exengine.worker.queue_depth")
	require.Same(t, u1, u2)

	u1.Add(+3)
	u2.Add(-1)
	u1.Add(+10)
	require.EqualValues(t, 12, u1.(*BasicUpDownCounter).Snapshot())
}

func TestBasicProvider_HistogramRecordsStorageWriteLatency(t *testing.T) {
	p := NewBasicProvider()
	h := p.Histogram("exengine.datahandler.storage_write_latency_seconds")
	bh := h.(*BasicHistogram)

	h.Record(0.1)
	h.Record(0.3)
	h.Record(0.2)

	s := bh.Snapshot()
	require.EqualValues(t, 3, s.Count)
	require.InDelta(t, 0.1, s.Min, 1e-9)
	require.InDelta(t, 0.3, s.Max, 1e-9)
	require.InDelta(t, 0.6, s.Sum, 1e-9)
	require.InDelta(t, 0.2, s.Mean, 1e-9)
}

func TestBasicProvider_ConcurrentGetReturnsSameInstrument(t *testing.T) {
	p := NewBasicProvider()
	const n = 50
	ptrs := make([]Counter, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			ptrs[idx] = p.Counter("exengine.worker.dispatched")
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		require.Same(t, ptrs[0], ptrs[i])
	}
}

func TestBasicProvider_ConcurrentCounterAddAccumulatesExactly(t *testing.T) {
	p := NewBasicProvider()
	c := p.Counter("exengine.worker.dispatched")
	bc := c.(*BasicCounter)

	workers := runtime.NumCPU() * 2
	const iters = 1000
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < iters; i++ {
				c.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, workers*iters, bc.Snapshot())
}

func TestBasicProvider_ConcurrentUpDownCounterSettlesToExpectedValue(t *testing.T) {
	p := NewBasicProvider()
	u := p.UpDownCounter("exengine.worker.in_flight")
	bu := u.(*BasicUpDownCounter)

	workers := runtime.NumCPU() * 2
	const iters = 1000
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < iters; i++ {
				if (i+id)%2 == 0 {
					u.Add(+1)
				} else {
					u.Add(-1)
				}
			}
		}(w)
	}
	wg.Wait()
	require.EqualValues(t, 0, bu.Snapshot())
}

func TestBasicProvider_ConcurrentHistogramRecordCountsEveryObservation(t *testing.T) {
	p := NewBasicProvider()
	h := p.Histogram("exengine.worker.latency_seconds")
	bh := h.(*BasicHistogram)

	workers := runtime.NumCPU() * 2
	const iters = 500
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < iters; i++ {
				h.Record(float64((base%10)+i%10) / 100.0)
			}
		}(w)
	}
	wg.Wait()

	s := bh.Snapshot()
	require.EqualValues(t, workers*iters, s.Count)
	require.GreaterOrEqual(t, s.Min, 0.0)
	require.LessOrEqual(t, s.Max, 0.18)
}
