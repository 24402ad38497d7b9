package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storebot/internal/conversation"
	"storebot/internal/model"
	"storebot/pkg/queue"
)

type recordingQueue struct {
	mu       sync.Mutex
	messages map[string][][]byte
	err      error
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{messages: make(map[string][][]byte)}
}

func (q *recordingQueue) Publish(_ context.Context, topic string, message []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.messages[topic] = append(q.messages[topic], message)
	return nil
}

func (q *recordingQueue) Subscribe(context.Context, string, queue.MessageHandler) error { return nil }
func (q *recordingQueue) Close() error                                                  { return nil }
func (q *recordingQueue) Health() error                                                 { return nil }

func (q *recordingQueue) events(t *testing.T, topic string) []model.TranscriptEvent {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []model.TranscriptEvent
	for _, raw := range q.messages[topic] {
		var e model.TranscriptEvent
		require.NoError(t, json.Unmarshal(raw, &e))
		out = append(out, e)
	}
	return out
}

func TestCreateGetClose(t *testing.T) {
	m := NewManager(conversation.Deps{}, nil, Config{}, nil)

	ctrl, err := m.Create()
	require.NoError(t, err)
	assert.NotEmpty(t, ctrl.ID())
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(ctrl.ID())
	require.NoError(t, err)
	assert.Same(t, ctrl, got)

	require.NoError(t, m.Close(ctrl.ID()))
	assert.Equal(t, 0, m.Len())

	_, err = m.Get(ctrl.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Close(ctrl.ID()), ErrNotFound)
	assert.ErrorIs(t, ctrl.Send(context.Background(), "hello"), conversation.ErrClosed)
}

func TestMaxSessions(t *testing.T) {
	m := NewManager(conversation.Deps{}, nil, Config{MaxSessions: 2}, nil)

	_, err := m.Create()
	require.NoError(t, err)
	second, err := m.Create()
	require.NoError(t, err)

	_, err = m.Create()
	assert.ErrorIs(t, err, ErrTooManySessions)

	require.NoError(t, m.Close(second.ID()))
	_, err = m.Create()
	assert.NoError(t, err)
}

func TestSweepEvictsIdle(t *testing.T) {
	q := newRecordingQueue()
	m := NewManager(conversation.Deps{}, q, Config{IdleTTL: time.Minute}, nil)

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	stale, err := m.Create()
	require.NoError(t, err)
	require.NoError(t, stale.Send(context.Background(), "hello there"))

	now = now.Add(50 * time.Second)
	fresh, err := m.Create()
	require.NoError(t, err)

	now = now.Add(20 * time.Second)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())

	_, err = m.Get(stale.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(fresh.ID())
	assert.NoError(t, err)

	events := q.events(t, queue.TopicTranscripts)
	require.Len(t, events, 1)
	assert.Equal(t, stale.ID(), events[0].SessionID)
	assert.Equal(t, "idle", events[0].Reason)
	assert.Equal(t, "user", events[0].Lines[2].Role)
	assert.Equal(t, "hello there", events[0].Lines[2].Text)
	// the greeting menu is carried as a JSON payload
	assert.NotEmpty(t, events[0].Lines[1].Payload)
}

func TestGetKeepsSessionAlive(t *testing.T) {
	m := NewManager(conversation.Deps{}, nil, Config{IdleTTL: time.Minute}, nil)
	now := time.Now()
	m.now = func() time.Time { return now }

	ctrl, err := m.Create()
	require.NoError(t, err)

	now = now.Add(45 * time.Second)
	_, err = m.Get(ctrl.ID())
	require.NoError(t, err)

	now = now.Add(45 * time.Second)
	assert.Zero(t, m.Sweep())
	assert.Equal(t, 1, m.Len())
}

func TestUntouchedSessionsAreNotArchived(t *testing.T) {
	q := newRecordingQueue()
	m := NewManager(conversation.Deps{}, q, Config{}, nil)

	ctrl, err := m.Create()
	require.NoError(t, err)
	require.NoError(t, m.Close(ctrl.ID()))

	assert.Empty(t, q.events(t, queue.TopicTranscripts))
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	q := newRecordingQueue()
	q.err = errors.New("queue full")
	m := NewManager(conversation.Deps{}, q, Config{Topic: "custom"}, nil)

	ctrl, err := m.Create()
	require.NoError(t, err)
	require.NoError(t, ctrl.Send(context.Background(), "hi"))

	assert.NotPanics(t, func() { _ = m.Close(ctrl.ID()) })
	assert.Equal(t, 0, m.Len())
}

func TestRunClosesAllOnShutdown(t *testing.T) {
	q := newRecordingQueue()
	m := NewManager(conversation.Deps{}, q, Config{SweepInterval: time.Hour}, nil)

	for i := 0; i < 3; i++ {
		ctrl, err := m.Create()
		require.NoError(t, err)
		require.NoError(t, ctrl.Send(context.Background(), "hi"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	assert.Equal(t, 0, m.Len())
	events := q.events(t, queue.TopicTranscripts)
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, "shutdown", e.Reason)
	}
}
