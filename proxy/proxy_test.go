package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exengine-go/exengine/errs"
	"github.com/exengine-go/exengine/event"
	"github.com/exengine-go/exengine/future"
	workerpkg "github.com/exengine-go/exengine/internal/worker"
)

// poolSubmitter adapts internal/worker.Pool to the Submitter interface
// without needing the root exengine package.
type poolSubmitter struct{ pool *workerpkg.Pool }

func (s *poolSubmitter) Submit(item event.Item, workerName string, caps future.Capabilities) (*future.Future, error) {
	return s.pool.Submit(workerpkg.Submission{Item: item, WorkerName: workerName, Capabilities: caps})
}

type stage struct {
	Position int
	calls    []string
}

func (s *stage) MoveTo(ctx context.Context, pos int) error {
	s.calls = append(s.calls, "MoveTo")
	s.Position = pos
	return nil
}

func (s *stage) Home(ctx context.Context) error {
	s.calls = append(s.calls, "Home")
	return s.moveToInline(ctx, 0)
}

// moveToInline is called by Home directly on the receiver, not through
// the proxy, so Home runs as a single event on its worker.
func (s *stage) moveToInline(ctx context.Context, pos int) error {
	s.Position = pos
	return nil
}

func (s *stage) AllowedValues(attr string) ([]any, bool) { return nil, false }
func (s *stage) IsReadOnly(attr string) bool             { return attr == "Position" }
func (s *stage) Limits(attr string) (float64, float64, bool) {
	if attr == "Position" {
		return 0, 100, true
	}
	return 0, 0, false
}
func (s *stage) IsHardwareTriggerable(attr string) bool { return false }

func newTestRegistry(t *testing.T) (*Registry, func()) {
	pool := workerpkg.New(context.Background(), workerpkg.Config{DefaultWorkerName: "main"})
	reg := NewRegistry(&poolSubmitter{pool: pool})
	return reg, func() { pool.Shutdown(true) }
}

func TestDevice_GetSetAttribute(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	s := &stage{Position: 5}
	dev, err := reg.Register("stage1", s, WithWorker("stage1"))
	require.NoError(t, err)

	ctx := context.Background()
	v, err := dev.Get(ctx, "Position")
	require.NoError(t, err)
	require.Equal(t, 5, v)

	err = dev.Set(ctx, "Position", 42)
	require.NoError(t, err)
	require.Equal(t, 42, s.Position)
}

func TestDevice_MethodCall(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	s := &stage{}
	dev, err := reg.Register("stage1", s, WithWorker("stage1"))
	require.NoError(t, err)

	_, err = dev.Call(context.Background(), "MoveTo", 10)
	require.NoError(t, err)
	require.Equal(t, 10, s.Position)
}

func TestDevice_BypassSkipsExecutor(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	s := &stage{Position: 1}
	dev, err := reg.Register("stage1", s, WithWorker("stage1"), WithBypass("Position"))
	require.NoError(t, err)

	v, err := dev.Get(context.Background(), "Position")
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestDevice_MethodWorkerOverride(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	s := &stage{}
	dev, err := reg.Register("stage1", s, WithWorker("stage1"), WithMethodWorker("Home", "calib"))
	require.NoError(t, err)

	require.Equal(t, "calib", dev.workerFor("Home"))
	require.Equal(t, "stage1", dev.workerFor("MoveTo"))

	_, err = dev.Call(context.Background(), "Home")
	require.NoError(t, err)
}

func TestDevice_Capabilities(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	s := &stage{}
	dev, err := reg.Register("stage1", s, WithWorker("stage1"))
	require.NoError(t, err)

	caps, err := dev.Capabilities(context.Background(), "Position")
	require.NoError(t, err)
	require.True(t, caps.ReadOnly)
	require.True(t, caps.HasLimits)
	require.Equal(t, 0.0, caps.Low)
	require.Equal(t, 100.0, caps.High)
}

func TestDevice_DuplicateRegistrationFails(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	s := &stage{}
	_, err := reg.Register("stage1", s, WithWorker("stage1"))
	require.NoError(t, err)

	_, err = reg.Register("stage1", &stage{}, WithWorker("stage1"))
	require.Error(t, err)
}

func TestDevice_GetUnknownAttributeIsDeviceAttributeError(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	s := &stage{}
	dev, err := reg.Register("stage1", s, WithWorker("stage1"))
	require.NoError(t, err)

	_, err = dev.Get(context.Background(), "NoSuchField")
	require.ErrorIs(t, err, errs.ErrDeviceAttribute)
}

func TestDevice_SetUnknownAttributeIsDeviceAttributeError(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	s := &stage{}
	dev, err := reg.Register("stage1", s, WithWorker("stage1"))
	require.NoError(t, err)

	err = dev.Set(context.Background(), "NoSuchField", 1)
	require.ErrorIs(t, err, errs.ErrDeviceAttribute)
}

func TestDevice_CallUnknownMethodIsDeviceAttributeError(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	s := &stage{}
	dev, err := reg.Register("stage1", s, WithWorker("stage1"))
	require.NoError(t, err)

	_, err = dev.Call(context.Background(), "NoSuchMethod")
	require.ErrorIs(t, err, errs.ErrDeviceAttribute)
}

func TestDevice_BypassedGetUnknownAttributeIsDeviceAttributeError(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	s := &stage{}
	dev, err := reg.Register("stage1", s, WithWorker("stage1"), WithBypass("NoSuchField"))
	require.NoError(t, err)

	_, err = dev.Get(context.Background(), "NoSuchField")
	require.ErrorIs(t, err, errs.ErrDeviceAttribute)
}

func TestDevice_CallsSerializedOnDeviceWorker(t *testing.T) {
	reg, cleanup := newTestRegistry(t)
	defer cleanup()

	s := &stage{}
	dev, err := reg.Register("stage1", s, WithWorker("stage1"))
	require.NoError(t, err)

	const n = 50
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			_, err := dev.Call(context.Background(), "MoveTo", i)
			require.NoError(t, err)
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("calls did not complete")
		}
	}
	require.Len(t, s.calls, n)
}
