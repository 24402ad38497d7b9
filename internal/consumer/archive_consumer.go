// Package consumer drains the transcript topic into the archive database.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storebot/internal/model"
	"storebot/internal/monitor"
	"storebot/internal/repository"
	"storebot/pkg/log"
	"storebot/pkg/queue"
)

// Lease keeps the retention purge to one replica at a time.
type Lease interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// ArchiveConsumer transcript message consumer
type ArchiveConsumer struct {
	repo      repository.TranscriptRepository
	queue     queue.Queue
	topic     string
	retention time.Duration
	lease     Lease
	metrics   *monitor.MetricsCollector
	now       func() time.Time
}

// NewArchiveConsumer creates a transcript consumer. retention <= 0 keeps
// transcripts forever.
func NewArchiveConsumer(repo repository.TranscriptRepository, q queue.Queue, topic string, retention time.Duration, metrics *monitor.MetricsCollector) *ArchiveConsumer {
	if topic == "" {
		topic = queue.TopicTranscripts
	}
	return &ArchiveConsumer{
		repo:      repo,
		queue:     q,
		topic:     topic,
		retention: retention,
		metrics:   metrics,
		now:       time.Now,
	}
}

// WithLease makes PurgeExpired skip its run while another replica holds l.
func (c *ArchiveConsumer) WithLease(l Lease) *ArchiveConsumer {
	c.lease = l
	return c
}

// Start subscribes to the transcript topic until ctx is done.
func (c *ArchiveConsumer) Start(ctx context.Context) error {
	log.WithField("topic", c.topic).Info("Starting transcript consumer")
	return c.queue.Subscribe(ctx, c.topic, c.Handle)
}

// Handle stores one transcript event.
func (c *ArchiveConsumer) Handle(ctx context.Context, topic string, message []byte) error {
	var event model.TranscriptEvent
	if err := json.Unmarshal(message, &event); err != nil {
		c.metrics.RecordQueueMessage(topic, "consume", "invalid")
		return fmt.Errorf("decode transcript: %w", err)
	}
	if event.SessionID == "" {
		c.metrics.RecordQueueMessage(topic, "consume", "invalid")
		return fmt.Errorf("decode transcript: missing session id")
	}

	transcript := event.ToTranscript()
	if err := c.repo.Create(ctx, transcript); err != nil {
		c.metrics.RecordQueueMessage(topic, "consume", "error")
		return fmt.Errorf("store transcript of %s: %w", event.SessionID, err)
	}

	c.metrics.RecordQueueMessage(topic, "consume", "ok")
	log.WithSession(event.SessionID).WithFields(log.Fields{
		"transcript_id": transcript.ID,
		"reason":        event.Reason,
		"messages":      transcript.MessageCount,
	}).Debug("Transcript archived")
	return nil
}

// PurgeExpired deletes transcripts older than the retention window.
func (c *ArchiveConsumer) PurgeExpired(ctx context.Context) (int64, error) {
	if c.retention <= 0 {
		return 0, nil
	}
	if c.lease != nil {
		ok, err := c.lease.TryAcquire(ctx)
		if err != nil {
			return 0, fmt.Errorf("acquire retention lease: %w", err)
		}
		if !ok {
			log.Debug("Retention purge running on another replica, skipping")
			return 0, nil
		}
		defer func() {
			if err := c.lease.Release(context.WithoutCancel(ctx)); err != nil {
				log.WithError(err).Warn("Failed to release retention lease")
			}
		}()
	}
	return c.repo.DeleteBefore(ctx, c.now().Add(-c.retention))
}

// RunRetention purges expired transcripts every interval until ctx is done.
func (c *ArchiveConsumer) RunRetention(ctx context.Context, interval time.Duration) error {
	if c.retention <= 0 {
		<-ctx.Done()
		return nil
	}
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := c.PurgeExpired(ctx)
			if err != nil {
				log.WithError(err).Error("Failed to purge expired transcripts")
				continue
			}
			if n > 0 {
				log.WithField("deleted", n).Info("Purged expired transcripts")
			}
		}
	}
}
