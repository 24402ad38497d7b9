// Package session keeps the live conversations of the process, evicts idle
// ones and hands discarded logs to the archive queue.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"storebot/internal/conversation"
	"storebot/internal/model"
	"storebot/internal/monitor"
	"storebot/pkg/log"
	"storebot/pkg/queue"
)

var (
	// ErrNotFound is returned for unknown or already closed sessions.
	ErrNotFound = errors.New("session not found")
	// ErrTooManySessions is returned by Create when MaxSessions are live.
	ErrTooManySessions = errors.New("too many sessions")
)

// Config tunes the manager.
type Config struct {
	IdleTTL        time.Duration
	SweepInterval  time.Duration
	MaxSessions    int
	Topic          string
	PublishTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleTTL <= 0 {
		c.IdleTTL = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.Topic == "" {
		c.Topic = queue.TopicTranscripts
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 2 * time.Second
	}
	return c
}

type entry struct {
	ctrl     *conversation.Controller
	lastSeen atomic.Int64
}

// Manager owns every live conversation. Safe for concurrent use.
type Manager struct {
	deps    conversation.Deps
	cfg     Config
	queue   queue.Queue
	metrics *monitor.MetricsCollector
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewManager builds a manager. With a nil q, transcripts are not archived.
func NewManager(deps conversation.Deps, q queue.Queue, cfg Config, metrics *monitor.MetricsCollector) *Manager {
	m := &Manager{
		cfg:      cfg.withDefaults(),
		queue:    q,
		metrics:  metrics,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
	if q != nil {
		deps.Archive = m.archive
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics
	}
	m.deps = deps
	return m
}

// Create starts a new conversation with a fresh id.
func (m *Manager) Create() (*conversation.Controller, error) {
	id := uuid.NewString()
	e := &entry{ctrl: conversation.New(id, m.deps)}
	e.lastSeen.Store(m.now().UnixNano())

	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	m.sessions[id] = e
	m.mu.Unlock()

	m.metrics.SessionOpened()
	log.WithSession(id).Debug("Session created")
	return e.ctrl, nil
}

// Get returns the conversation and marks it as active.
func (m *Manager) Get(id string) (*conversation.Controller, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	e.lastSeen.Store(m.now().UnixNano())
	return e.ctrl, nil
}

// Close ends and forgets a conversation.
func (m *Manager) Close(id string) error {
	return m.remove(id, "close")
}

func (m *Manager) remove(id, reason string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	e.ctrl.CloseWithReason(reason)
	m.metrics.SessionClosed(reason)
	return nil
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than IdleTTL and reports how many.
// Sessions with a dispatch in flight are kept.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.cfg.IdleTTL).UnixNano()

	var idle []string
	m.mu.RLock()
	for id, e := range m.sessions {
		if e.lastSeen.Load() < cutoff && !e.ctrl.Busy() {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	n := 0
	for _, id := range idle {
		if m.remove(id, "idle") == nil {
			n++
		}
	}
	if n > 0 {
		log.WithFields(log.Fields{
			"evicted": n,
			"live":    m.Len(),
		}).Info("Evicted idle sessions")
	}
	return n
}

// Run sweeps every SweepInterval until ctx is done, then closes every
// remaining session.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.CloseAll("shutdown")
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// CloseAll closes every live session with reason.
func (m *Manager) CloseAll(reason string) {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range all {
		e.ctrl.CloseWithReason(reason)
		m.metrics.SessionClosed(reason)
	}
}

// archive publishes a discarded log to the transcript topic. Failures are
// logged; the conversation is never held up by the archive.
func (m *Manager) archive(id, reason string, messages []conversation.Message) {
	event := model.TranscriptEvent{
		SessionID: id,
		Reason:    reason,
		Lines:     make([]model.TranscriptLine, 0, len(messages)),
		Timestamp: m.now().Unix(),
	}
	for _, msg := range messages {
		line := model.TranscriptLine{
			ID:        msg.ID,
			Role:      string(msg.Role),
			Kind:      string(msg.Kind),
			Text:      msg.Text,
			CreatedAt: msg.CreatedAt,
		}
		if msg.Payload != nil {
			if raw, err := json.Marshal(msg.Payload); err == nil {
				line.Payload = raw
			}
		}
		event.Lines = append(event.Lines, line)
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.WithSession(id).WithError(err).Error("Failed to encode transcript")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PublishTimeout)
	defer cancel()
	if err := m.queue.Publish(ctx, m.cfg.Topic, data); err != nil {
		m.metrics.RecordQueueMessage(m.cfg.Topic, "publish", "error")
		log.WithSession(id).WithFields(log.Fields{
			"reason": reason,
			"error":  err.Error(),
		}).Warn("Failed to publish transcript")
		return
	}
	m.metrics.RecordQueueMessage(m.cfg.Topic, "publish", "ok")
}
