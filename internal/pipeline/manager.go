package pipeline

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"artify/internal/encode"
	"artify/internal/overlay"
	"artify/internal/raster"
	"artify/internal/style"
)

// GalleryStore persists resolved edits. Implemented by the gallery package;
// kept as an interface here so sessions stay storage-agnostic.
type GalleryStore interface {
	// Save overwrites the entry for sourceID, creating it if absent.
	Save(sourceID string, stack EditStack, final *raster.Buffer) (string, error)
	// SaveAs always creates a new entry ("save as" semantics).
	SaveAs(sourceID string, stack EditStack, final *raster.Buffer) (string, error)
}

// Manager owns the open edit sessions, bounded to the batch cap, and routes
// the submit/save/export API consumed by the interaction layer.
type Manager struct {
	engine      style.Engine
	assets      *overlay.Library
	store       GalleryStore
	logger      logrus.FieldLogger
	maxSessions int
	previewEdge int

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager wires the pipeline around a shared inference engine and
// overlay library. store may be nil when gallery persistence is not needed.
func NewManager(engine style.Engine, assets *overlay.Library, store GalleryStore,
	maxSessions, previewEdge int, logger logrus.FieldLogger) *Manager {

	return &Manager{
		engine:      engine,
		assets:      assets,
		store:       store,
		logger:      logger,
		maxSessions: maxSessions,
		previewEdge: previewEdge,
		sessions:    make(map[string]*Session),
	}
}

// Open starts an edit session for a decoded source image.
func (m *Manager) Open(sessionID, sourceID string, source *raster.Buffer) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sessionID]; exists {
		return nil, fmt.Errorf("session %q already open", sessionID)
	}
	if len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("%w: %d sessions open", ErrBatchFull, len(m.sessions))
	}

	session, err := NewSession(sessionID, sourceID, source, m.engine, m.assets,
		m.previewEdge, m.logger)
	if err != nil {
		return nil, err
	}
	m.sessions[sessionID] = session
	m.logger.WithFields(logrus.Fields{
		"session": sessionID,
		"source":  sourceID,
		"open":    len(m.sessions),
	}).Info("Session opened")
	return session, nil
}

// Get returns an open session.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	return session, nil
}

// Submit queues an edit stack on a session.
func (m *Manager) Submit(sessionID string, stack EditStack) error {
	session, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	return session.Submit(stack)
}

// Save commits the session's current resolved edit to the gallery,
// overwriting any prior entry for the same source image.
func (m *Manager) Save(sessionID string) (string, error) {
	return m.save(sessionID, false)
}

// SaveAs commits the current resolved edit as a new gallery entry.
func (m *Manager) SaveAs(sessionID string) (string, error) {
	return m.save(sessionID, true)
}

func (m *Manager) save(sessionID string, asNew bool) (string, error) {
	if m.store == nil {
		return "", fmt.Errorf("no gallery store configured")
	}
	session, err := m.Get(sessionID)
	if err != nil {
		return "", err
	}
	final, stack, err := session.Final()
	if err != nil {
		return "", err
	}
	if asNew {
		return m.store.SaveAs(session.sourceID, stack, final)
	}
	return m.store.Save(session.sourceID, stack, final)
}

// Export encodes the session's current resolved edit. quality applies to
// JPEG only; 0 selects the default.
func (m *Manager) Export(sessionID, formatName string, quality int) ([]byte, error) {
	session, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	format, err := encode.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}
	final, _, err := session.Final()
	if err != nil {
		return nil, err
	}
	return encode.Encode(final, format, encode.Options{Quality: quality})
}

// Close discards one session.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if ok {
		session.Close()
	}
}

// CloseAll discards every open session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, session := range sessions {
		session.Close()
	}
}
