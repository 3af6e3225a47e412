package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nfnt/resize"
	"github.com/sirupsen/logrus"

	"artify/internal/adjust"
	"artify/internal/filter"
	"artify/internal/overlay"
	"artify/internal/raster"
	"artify/internal/style"
)

// State is the session's position in the edit state machine.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is the pollable view of a session, also delivered to the notify
// callback after every resolution. ReadyStack always names the stack that
// produced the current Final buffer, and FailedStack the one that failed,
// so a caller can offer "revert" without data loss.
type Snapshot struct {
	State       State
	ReadyStack  *EditStack
	Final       *raster.Buffer
	Preview     *raster.Buffer
	FailedStack *EditStack
	Err         error
}

type readyState struct {
	stack   EditStack
	final   *raster.Buffer
	preview *raster.Buffer
}

type slot struct {
	key uint64
	buf *raster.Buffer
	ok  bool
}

// Session owns the edit state of one open source image. Submissions resolve
// asynchronously on the session's worker goroutine; at most one resolution
// runs at a time, and a newer submit supersedes an older one only while the
// older has not yet started an inference call.
type Session struct {
	ID       string
	sourceID string
	source   *raster.Buffer
	engine   style.Engine
	assets   *overlay.Library
	logger   logrus.FieldLogger

	previewEdge uint
	inferCalls  atomic.Int64

	mu          sync.Mutex
	state       State
	pending     *EditStack
	ready       *readyState
	failedStack *EditStack
	failErr     error
	notify      func(Snapshot)
	closed      bool

	// Inference results are kept per style: they are the expensive outputs
	// and there are at most as many as there are styles. Downstream stages
	// are cheap, so each keeps only its latest output.
	styleCache map[style.ID]*raster.Buffer
	slots      [stageCount]slot

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession opens an edit session for a 3-channel source buffer.
// previewEdge bounds the long edge of the preview downsample.
func NewSession(id, sourceID string, source *raster.Buffer, engine style.Engine,
	assets *overlay.Library, previewEdge int, logger logrus.FieldLogger) (*Session, error) {

	if err := source.Validate(); err != nil {
		return nil, err
	}
	if source.Channels != raster.RGB {
		return nil, fmt.Errorf("session source must have 3 channels, got %d", source.Channels)
	}
	s := &Session{
		ID:          id,
		sourceID:    sourceID,
		source:      source,
		engine:      engine,
		assets:      assets,
		logger:      logger.WithFields(logrus.Fields{"session": id, "source": sourceID}),
		previewEdge: uint(previewEdge),
		state:       StateIdle,
		styleCache:  make(map[style.ID]*raster.Buffer),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// SetNotify registers the callback invoked after each resolution attempt.
func (s *Session) SetNotify(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// Submit queues an edit stack for resolution and returns immediately.
// An invalid stack is rejected here and the session state is unchanged.
func (s *Session) Submit(stack EditStack) error {
	if err := stack.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	superseded := s.pending != nil
	s.pending = &stack
	s.state = StateResolving
	s.mu.Unlock()

	if superseded {
		s.logger.Debug("Pending submission superseded before start")
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{State: s.state, FailedStack: s.failedStack, Err: s.failErr}
	if s.ready != nil {
		stack := s.ready.stack
		snap.ReadyStack = &stack
		snap.Final = s.ready.final
		snap.Preview = s.ready.preview
	}
	return snap
}

// Final returns the last resolved buffer and the stack that produced it.
func (s *Session) Final() (*raster.Buffer, EditStack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready == nil {
		return nil, EditStack{}, ErrNotReady
	}
	return s.ready.final, s.ready.stack, nil
}

// InferenceCalls reports how many times the engine has been invoked.
func (s *Session) InferenceCalls() int64 {
	return s.inferCalls.Load()
}

// Close discards the session. An in-flight inference is allowed to finish;
// its result is dropped.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.pending = nil
		s.mu.Unlock()
		close(s.done)
		s.logger.Debug("Session closed")
	})
}

func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			job := s.pending
			s.pending = nil
			s.mu.Unlock()
			if job == nil {
				break
			}
			s.resolve(*job)
		}
	}
}

// resolve runs the invalidated suffix of the stage chain for one stack,
// reusing cached prefix outputs.
func (s *Session) resolve(stack EditStack) {
	keys := stack.keys(s.sourceID)

	styled, err := s.resolveStyle(stack)
	if err != nil {
		if err == errSuperseded {
			return
		}
		s.fail(stack, err)
		return
	}

	cur := styled
	cur, err = s.stage(stageBlend, keys[stageBlend], func() (*raster.Buffer, error) {
		return blendSource(s.source, cur, stack.SourceBlend), nil
	})
	if err == nil {
		prev := cur
		cur, err = s.stage(stageAdjust, keys[stageAdjust], func() (*raster.Buffer, error) {
			return adjust.Apply(prev, stack.Adjust)
		})
	}
	if err == nil {
		prev := cur
		cur, err = s.stage(stageFilter, keys[stageFilter], func() (*raster.Buffer, error) {
			return filter.Apply(prev, stack.Filter)
		})
	}
	if err == nil {
		prev := cur
		cur, err = s.stage(stageOverlay, keys[stageOverlay], func() (*raster.Buffer, error) {
			return overlay.Apply(prev, stack.Overlays, s.assets, s.logger), nil
		})
	}
	if err != nil {
		s.fail(stack, err)
		return
	}

	preview := downsample(cur, s.previewEdge)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("Resolved result dropped, session closed")
		return
	}
	s.state = StateReady
	s.ready = &readyState{stack: stack, final: cur, preview: preview}
	s.failedStack = nil
	s.failErr = nil
	snap := s.snapshotLocked()
	notify := s.notify
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"style":  stack.Style,
		"width":  cur.Width,
		"height": cur.Height,
	}).Info("Edit resolved")
	if notify != nil {
		notify(snap)
	}
}

var errSuperseded = fmt.Errorf("superseded")

// resolveStyle returns the styled buffer for the stack, invoking the engine
// only on a cache miss. A newer pending submission supersedes this one
// whether or not the style is cached, so no stale snapshot ever publishes;
// once inference starts it always completes and its result is cached, even
// if superseded meanwhile.
func (s *Session) resolveStyle(stack EditStack) (*raster.Buffer, error) {
	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		s.logger.WithFields(logrus.Fields{"style": stack.Style}).
			Debug("Submission superseded before resolution")
		return nil, errSuperseded
	}
	if styled, ok := s.styleCache[stack.Style]; ok {
		s.mu.Unlock()
		return styled, nil
	}
	s.mu.Unlock()

	s.inferCalls.Add(1)
	s.logger.WithFields(logrus.Fields{"style": stack.Style}).Info("Running style inference")
	styled, err := s.engine.Infer(s.source, stack.Style)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.styleCache[stack.Style] = styled
	s.mu.Unlock()
	return styled, nil
}

// stage memoizes one downstream stage output under its cache key.
func (s *Session) stage(idx int, key uint64, compute func() (*raster.Buffer, error)) (*raster.Buffer, error) {
	s.mu.Lock()
	if s.slots[idx].ok && s.slots[idx].key == key {
		buf := s.slots[idx].buf
		s.mu.Unlock()
		return buf, nil
	}
	s.mu.Unlock()

	buf, err := compute()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.slots[idx] = slot{key: key, buf: buf, ok: true}
	s.mu.Unlock()
	return buf, nil
}

func (s *Session) fail(stack EditStack, err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.failedStack = &stack
	s.failErr = err
	snap := s.snapshotLocked()
	notify := s.notify
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{"style": stack.Style, "error": err}).
		Error("Edit resolution failed, keeping last ready result")
	if notify != nil {
		notify(snap)
	}
}

// blendSource mixes the unstyled source back over the styled buffer.
// t=0 returns styled untouched.
func blendSource(source, styled *raster.Buffer, t float64) *raster.Buffer {
	if t == 0 {
		return styled
	}
	out := styled.Clone()
	for i := range out.Pix {
		out.Pix[i] = uint8(float64(source.Pix[i])*t + float64(styled.Pix[i])*(1-t) + 0.5)
	}
	return out
}

// downsample produces the preview-quality buffer, bounding the long edge.
func downsample(buf *raster.Buffer, maxEdge uint) *raster.Buffer {
	if maxEdge == 0 || (uint(buf.Width) <= maxEdge && uint(buf.Height) <= maxEdge) {
		return buf
	}
	img := resize.Thumbnail(maxEdge, maxEdge, buf.ToImage(), resize.Lanczos3)
	preview, err := raster.FromImage(img)
	if err != nil {
		return buf
	}
	return preview
}
