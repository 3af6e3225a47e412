package pipeline

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artify/internal/adjust"
	"artify/internal/filter"
	"artify/internal/overlay"
	"artify/internal/raster"
	"artify/internal/style"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeEngine is a deterministic stand-in for the inference adapter with
// call-count instrumentation.
type fakeEngine struct {
	mu      sync.Mutex
	calls   []style.ID
	fail    map[style.ID]error
	started chan style.ID // non-nil: signals each call before it blocks
	gate    chan struct{} // non-nil: each call waits for one release
}

func (f *fakeEngine) Infer(src *raster.Buffer, id style.ID) (*raster.Buffer, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- id
	}
	if f.gate != nil {
		<-f.gate
	}
	if err, ok := f.fail[id]; ok {
		return nil, err
	}
	// Distinct, deterministic output per style: offset every sample.
	out := src.Clone()
	offset := uint8(len(string(id)))
	for i := range out.Pix {
		out.Pix[i] += offset
	}
	return out, nil
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEngine) calledWith(id style.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == id {
			return true
		}
	}
	return false
}

func sourceBuffer(t *testing.T, w, h int) *raster.Buffer {
	t.Helper()
	buf, err := raster.New(w, h, raster.RGB)
	require.NoError(t, err)
	for i := range buf.Pix {
		buf.Pix[i] = uint8((i * 3) % 200)
	}
	return buf
}

func openSession(t *testing.T, engine style.Engine, source *raster.Buffer, previewEdge int) (*Session, chan Snapshot) {
	t.Helper()
	session, err := NewSession("s1", "img1", source, engine,
		overlay.NewLibrary("", testLogger()), previewEdge, testLogger())
	require.NoError(t, err)
	t.Cleanup(session.Close)

	snaps := make(chan Snapshot, 16)
	session.SetNotify(func(snap Snapshot) { snaps <- snap })
	return session, snaps
}

func waitSnap(t *testing.T, snaps chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap := <-snaps:
		return snap
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for resolution")
		return Snapshot{}
	}
}

// End-to-end scenario: style + brightness + grayscale resolves to a buffer
// of the source's shape, and changing only the filter afterwards re-runs
// just the filter stage: the inference call count stays at 1.
func TestSession_EndToEnd(t *testing.T) {
	engine := &fakeEngine{}
	source := sourceBuffer(t, 256, 256)
	session, snaps := openSession(t, engine, source, 0)

	stack := EditStack{
		Style:  style.Monet,
		Adjust: adjust.Params{Brightness: 10},
		Filter: filter.Selection{Kind: filter.KindGrayscale},
	}
	require.NoError(t, session.Submit(stack))

	snap := waitSnap(t, snaps)
	require.Equal(t, StateReady, snap.State)
	require.NotNil(t, snap.Final)
	assert.Equal(t, 256, snap.Final.Width)
	assert.Equal(t, 256, snap.Final.Height)
	assert.Equal(t, raster.RGB, snap.Final.Channels)
	assert.Equal(t, 1, engine.callCount())

	stack.Filter = filter.Selection{Kind: filter.KindSepia}
	require.NoError(t, session.Submit(stack))
	snap = waitSnap(t, snaps)
	require.Equal(t, StateReady, snap.State)
	assert.Equal(t, 1, engine.callCount(), "filter-only change must not re-run inference")
}

func TestSession_ResubmitSameStackHitsCache(t *testing.T) {
	engine := &fakeEngine{}
	session, snaps := openSession(t, engine, sourceBuffer(t, 64, 64), 0)

	stack := EditStack{Style: style.Monet}
	require.NoError(t, session.Submit(stack))
	first := waitSnap(t, snaps)
	require.Equal(t, StateReady, first.State)

	require.NoError(t, session.Submit(stack))
	second := waitSnap(t, snaps)
	require.Equal(t, StateReady, second.State)
	assert.Equal(t, 1, engine.callCount(), "identical resubmission must not invoke the adapter")
	assert.True(t, raster.Equal(first.Final, second.Final))
}

func TestSession_InvalidParameterRejectedBeforeAnyStage(t *testing.T) {
	engine := &fakeEngine{}
	session, _ := openSession(t, engine, sourceBuffer(t, 32, 32), 0)

	err := session.Submit(EditStack{
		Style:  style.Monet,
		Adjust: adjust.Params{Brightness: 500},
	})
	require.ErrorIs(t, err, ErrInvalidParameter)
	assert.Equal(t, StateIdle, session.Snapshot().State, "rejected submit leaves state unchanged")
	assert.Equal(t, 0, engine.callCount())
}

func TestSession_FailureKeepsLastReady(t *testing.T) {
	modelErr := &style.ModelUnavailableError{Style: style.VanGogh, Path: "models/vangogh.onnx"}
	engine := &fakeEngine{fail: map[style.ID]error{style.VanGogh: modelErr}}
	session, snaps := openSession(t, engine, sourceBuffer(t, 32, 32), 0)

	require.NoError(t, session.Submit(EditStack{Style: style.Monet}))
	good := waitSnap(t, snaps)
	require.Equal(t, StateReady, good.State)

	require.NoError(t, session.Submit(EditStack{Style: style.VanGogh}))
	failed := waitSnap(t, snaps)
	require.Equal(t, StateFailed, failed.State)

	var mu *style.ModelUnavailableError
	require.ErrorAs(t, failed.Err, &mu)
	require.NotNil(t, failed.ReadyStack, "last known-good result survives the failure")
	assert.Equal(t, style.Monet, failed.ReadyStack.Style)
	require.NotNil(t, failed.FailedStack)
	assert.Equal(t, style.VanGogh, failed.FailedStack.Style)
	assert.True(t, raster.Equal(good.Final, failed.Final))

	// Retrying the good style recovers from cache.
	require.NoError(t, session.Submit(EditStack{Style: style.Monet}))
	recovered := waitSnap(t, snaps)
	assert.Equal(t, StateReady, recovered.State)
	assert.Nil(t, recovered.FailedStack)
	assert.Equal(t, 2, engine.callCount())
}

// A submission superseded before its inference starts is dropped; one that
// already started its inference always completes and lands in the cache.
func TestSession_SupersededBeforeInference(t *testing.T) {
	engine := &fakeEngine{
		started: make(chan style.ID),
		gate:    make(chan struct{}),
	}
	session, snaps := openSession(t, engine, sourceBuffer(t, 32, 32), 0)

	require.NoError(t, session.Submit(EditStack{Style: style.Monet}))
	require.Equal(t, style.Monet, <-engine.started)

	// While monet is in flight, queue vangogh then cezanne: cezanne
	// replaces vangogh before any of its stages run.
	require.NoError(t, session.Submit(EditStack{Style: style.VanGogh}))
	require.NoError(t, session.Submit(EditStack{Style: style.Cezanne}))

	engine.gate <- struct{}{} // let monet finish
	monetSnap := waitSnap(t, snaps)
	assert.Equal(t, StateReady, monetSnap.State)

	require.Equal(t, style.Cezanne, <-engine.started)
	engine.gate <- struct{}{}
	finalSnap := waitSnap(t, snaps)
	require.Equal(t, StateReady, finalSnap.State)
	assert.Equal(t, style.Cezanne, finalSnap.ReadyStack.Style)

	assert.Equal(t, 2, engine.callCount())
	assert.False(t, engine.calledWith(style.VanGogh), "superseded submission must never infer")
}

// A resolution whose style is already cached still yields to a newer
// pending submission: the superseded stack never publishes a snapshot,
// even though no inference would have been spent on it. Driven through
// resolve directly to pin down the worker's dequeue-then-check window.
func TestSession_CachedStyleYieldsToNewerSubmit(t *testing.T) {
	engine := &fakeEngine{}
	session, snaps := openSession(t, engine, sourceBuffer(t, 16, 16), 0)

	newer := EditStack{Style: style.Monet, Filter: filter.Selection{Kind: filter.KindGrayscale}}
	session.mu.Lock()
	session.styleCache[style.Monet] = sourceBuffer(t, 16, 16)
	session.pending = &newer
	session.mu.Unlock()

	stale := EditStack{Style: style.Monet, Filter: filter.Selection{Kind: filter.KindSepia}}
	session.resolve(stale)

	select {
	case snap := <-snaps:
		t.Fatalf("superseded resolution published a %v snapshot", snap.State)
	default:
	}
	assert.Equal(t, 0, engine.callCount())

	// With no newer submission queued, the same stack resolves from the
	// cache and publishes normally.
	session.mu.Lock()
	session.pending = nil
	session.mu.Unlock()
	session.resolve(stale)
	snap := waitSnap(t, snaps)
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, 0, engine.callCount())
}

func TestSession_OverlayLeniency(t *testing.T) {
	engine := &fakeEngine{}
	session, snaps := openSession(t, engine, sourceBuffer(t, 32, 32), 0)

	require.NoError(t, session.Submit(EditStack{Style: style.Monet}))
	plain := waitSnap(t, snaps)
	require.Equal(t, StateReady, plain.State)

	require.NoError(t, session.Submit(EditStack{
		Style:    style.Monet,
		Overlays: []overlay.Layer{{AssetID: "no-such-asset", Opacity: 0.5}},
	}))
	withOverlay := waitSnap(t, snaps)
	require.Equal(t, StateReady, withOverlay.State, "missing asset must not fail the pipeline")
	assert.True(t, raster.Equal(plain.Final, withOverlay.Final), "missing layer is omitted")
}

func TestSession_SourceBlendRestoresSource(t *testing.T) {
	engine := &fakeEngine{}
	source := sourceBuffer(t, 16, 16)
	session, snaps := openSession(t, engine, source, 0)

	require.NoError(t, session.Submit(EditStack{Style: style.Monet, SourceBlend: 1}))
	snap := waitSnap(t, snaps)
	require.Equal(t, StateReady, snap.State)
	assert.True(t, raster.Equal(source, snap.Final), "blend=1 restores the unstyled source")
}

func TestSession_PreviewDownsample(t *testing.T) {
	engine := &fakeEngine{}
	session, snaps := openSession(t, engine, sourceBuffer(t, 256, 128), 64)

	require.NoError(t, session.Submit(EditStack{Style: style.Monet}))
	snap := waitSnap(t, snaps)
	require.Equal(t, StateReady, snap.State)
	require.NotNil(t, snap.Preview)
	assert.LessOrEqual(t, snap.Preview.Width, 64)
	assert.LessOrEqual(t, snap.Preview.Height, 64)
	assert.Equal(t, 256, snap.Final.Width, "final stays full resolution")
}

func TestSession_SubmitAfterClose(t *testing.T) {
	engine := &fakeEngine{}
	session, _ := openSession(t, engine, sourceBuffer(t, 16, 16), 0)
	session.Close()
	err := session.Submit(EditStack{Style: style.Monet})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_RejectsRGBASource(t *testing.T) {
	buf, err := raster.New(8, 8, raster.RGBA)
	require.NoError(t, err)
	_, err = NewSession("s", "img", buf, &fakeEngine{},
		overlay.NewLibrary("", testLogger()), 0, testLogger())
	require.Error(t, err)
}
