// Package playback enforces the single-audio policy for synthesized
// responses: at most one clip plays at a time, and pressing the control
// of the playing clip stops it.
package playback

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Player plays one audio clip. Start begins playback and reports
// completion through onDone exactly once, with a nil error on natural
// end and a non-nil error on failure. Stop interrupts playback; an
// interrupted player must not invoke onDone.
type Player interface {
	Start(onDone func(err error)) error
	Stop()
}

// ControlListener is notified when a playback control's visual state
// changes: active while its clip plays, inactive otherwise.
type ControlListener func(controlID string, active bool)

// Manager owns the playback singleton. Every clip is keyed by the
// control that triggered it, so toggling the same control stops the
// clip and toggling another control replaces it.
type Manager struct {
	mu            sync.Mutex
	active        Player
	activeControl string
	generation    uint64
	listeners     []ControlListener
	logger        *zap.Logger

	// errorResetDelay is how long a control stays visually active after
	// a playback failure before resetting.
	errorResetDelay time.Duration
}

// NewManager creates an empty playback manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger:          logger,
		errorResetDelay: 2 * time.Second,
	}
}

// OnControlChange registers a control-state listener.
func (m *Manager) OnControlChange(l ControlListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Toggle handles a press on a playback control. If the control's clip is
// already playing, the clip stops. Otherwise any other playing clip
// stops first and the new clip starts, so the singleton invariant holds
// even mid-playback.
func (m *Manager) Toggle(controlID string, player Player) error {
	m.mu.Lock()

	if m.activeControl == controlID && m.active != nil {
		stopped := m.active
		m.clearLocked()
		m.mu.Unlock()
		stopped.Stop()
		return nil
	}

	if m.active != nil {
		stopped := m.active
		m.clearLocked()
		stopped.Stop()
	}

	m.generation++
	gen := m.generation
	m.active = player
	m.activeControl = controlID
	m.notifyLocked(controlID, true)
	m.mu.Unlock()

	err := player.Start(func(playErr error) {
		m.onDone(gen, controlID, playErr)
	})
	if err != nil {
		m.mu.Lock()
		if m.generation == gen {
			m.clearLocked()
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// StopAll stops whatever is playing. Used when a new conversation turn
// must preempt audio output.
func (m *Manager) StopAll() {
	m.mu.Lock()
	stopped := m.active
	m.clearLocked()
	m.mu.Unlock()

	if stopped != nil {
		stopped.Stop()
	}
}

// Playing reports the control of the currently playing clip, or "" when
// nothing plays.
func (m *Manager) Playing() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeControl
}

// onDone handles player completion. The generation guard discards stale
// callbacks from players that were already replaced.
func (m *Manager) onDone(gen uint64, controlID string, playErr error) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}

	if playErr == nil {
		m.clearLocked()
		m.mu.Unlock()
		return
	}

	m.logger.Warn("audio playback failed", zap.String("control", controlID), zap.Error(playErr))
	m.active = nil
	m.activeControl = ""
	m.mu.Unlock()

	// Keep the control visually active briefly so the user sees which
	// playback failed, then reset it.
	time.AfterFunc(m.errorResetDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.notifyLocked(controlID, false)
	})
}

func (m *Manager) clearLocked() {
	if m.activeControl != "" {
		m.notifyLocked(m.activeControl, false)
	}
	m.active = nil
	m.activeControl = ""
}

func (m *Manager) notifyLocked(controlID string, active bool) {
	for _, l := range m.listeners {
		l(controlID, active)
	}
}
