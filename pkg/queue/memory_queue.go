package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"storebot/pkg/log"
)

// TopicTranscripts carries archived conversation transcripts.
const TopicTranscripts = "chat.transcripts"

// MemoryQueue memory-based queue implementation
type MemoryQueue struct {
	topics map[string]*topic
	config *MemoryQueueConfig
	mu     sync.RWMutex
	closed bool

	sent      atomic.Int64
	received  atomic.Int64
	handleErr atomic.Int64
	handled   atomic.Int64
}

type topic struct {
	name     string
	messages chan []byte
}

// MemoryQueueConfig memory queue configuration
type MemoryQueueConfig struct {
	BufferSize    int           `json:"buffer_size" mapstructure:"buffer_size"`
	Topic         string        `json:"topic" mapstructure:"topic"`
	ConsumerGroup string        `json:"consumer_group" mapstructure:"consumer_group"`
	Timeout       time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DefaultMemoryQueueConfig is used when NewMemoryQueue gets nil.
func DefaultMemoryQueueConfig() *MemoryQueueConfig {
	return &MemoryQueueConfig{
		BufferSize:    1000,
		Topic:         TopicTranscripts,
		ConsumerGroup: "transcript-archiver",
		Timeout:       5 * time.Second,
	}
}

// NewMemoryQueue creates a new memory queue instance
func NewMemoryQueue(config *MemoryQueueConfig) (*MemoryQueue, error) {
	if config == nil {
		config = DefaultMemoryQueueConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Second
	}

	return &MemoryQueue{
		topics: make(map[string]*topic),
		config: config,
	}, nil
}

// getTopic returns the named topic, creating it on first use. Caller holds mq.mu.
func (mq *MemoryQueue) getTopic(name string) *topic {
	t, ok := mq.topics[name]
	if !ok {
		t = &topic{
			name:     name,
			messages: make(chan []byte, mq.config.BufferSize),
		}
		mq.topics[name] = t
	}
	return t
}

// Publish enqueues message, waiting up to the configured timeout when the
// topic buffer is full.
func (mq *MemoryQueue) Publish(ctx context.Context, name string, message []byte) error {
	mq.mu.Lock()
	if mq.closed {
		mq.mu.Unlock()
		return ErrQueueClosed
	}
	t := mq.getTopic(name)

	// Close waits for mq.mu, so the channel cannot be closed under us while
	// we hold the read side below.
	mq.mu.Unlock()
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	if mq.closed {
		return ErrQueueClosed
	}

	timer := time.NewTimer(mq.config.Timeout)
	defer timer.Stop()

	select {
	case t.messages <- message:
		mq.sent.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrPublishTimeout
	}
}

// Subscribe starts a goroutine feeding messages of the topic to handler
// until ctx is done or the queue is closed. Handler errors are logged and
// counted; the message is not redelivered.
func (mq *MemoryQueue) Subscribe(ctx context.Context, name string, handler MessageHandler) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return ErrQueueClosed
	}
	t := mq.getTopic(name)

	go func() {
		for {
			select {
			case message, ok := <-t.messages:
				if !ok {
					return
				}
				mq.received.Add(1)
				if err := handler(ctx, name, message); err != nil {
					mq.handleErr.Add(1)
					log.WithFields(log.Fields{
						"topic": name,
						"error": err.Error(),
					}).Warn("Queue handler failed")
				}
				mq.handled.Add(1)
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Drain waits until every published message has been handled or ctx is
// done. Only meaningful while subscribers are running.
func (mq *MemoryQueue) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for mq.handled.Load() < mq.sent.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close closes every topic; running subscribers drain what is buffered and
// exit.
func (mq *MemoryQueue) Close() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return nil
	}
	mq.closed = true

	for _, t := range mq.topics {
		close(t.messages)
	}
	return nil
}

// Health checks the health of the queue
func (mq *MemoryQueue) Health() error {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	if mq.closed {
		return ErrQueueClosed
	}
	return nil
}

// GetStats returns queue statistics
func (mq *MemoryQueue) GetStats() *QueueStats {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	return &QueueStats{
		Topic:         mq.config.Topic,
		ConsumerGroup: mq.config.ConsumerGroup,
		Connected:     !mq.closed,
		MessagesSent:  mq.sent.Load(),
		MessagesRecv:  mq.received.Load(),
		HandlerErrors: mq.handleErr.Load(),
	}
}
