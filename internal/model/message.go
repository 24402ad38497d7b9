package model

import (
	"encoding/json"
	"time"
)

// TranscriptEvent transcript message for MQ
type TranscriptEvent struct {
	SessionID string           `json:"session_id"` // Session ID
	Reason    string           `json:"reason"`     // Archive reason
	Lines     []TranscriptLine `json:"lines"`      // Conversation log, oldest first
	Timestamp int64            `json:"timestamp"`  // Timestamp
	TraceID   string           `json:"trace_id"`   // Trace ID
}

// TranscriptLine one log entry inside a TranscriptEvent
type TranscriptLine struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Kind      string          `json:"kind"`
	Text      string          `json:"text"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ToTranscript converts the event into rows ready to insert.
func (e *TranscriptEvent) ToTranscript() *Transcript {
	t := &Transcript{
		SessionID:    e.SessionID,
		Reason:       e.Reason,
		MessageCount: len(e.Lines),
		TraceID:      e.TraceID,
		Messages:     make([]TranscriptMessage, 0, len(e.Lines)),
	}
	for i, l := range e.Lines {
		if l.Role == "user" {
			t.UserMessages++
		}
		if i == 0 || l.CreatedAt.Before(t.StartedAt) {
			t.StartedAt = l.CreatedAt
		}
		if l.CreatedAt.After(t.EndedAt) {
			t.EndedAt = l.CreatedAt
		}
		msg := TranscriptMessage{
			Seq:       i,
			MessageID: l.ID,
			Role:      l.Role,
			Kind:      l.Kind,
			Text:      l.Text,
			SentAt:    l.CreatedAt,
		}
		if len(l.Payload) > 0 && string(l.Payload) != "null" {
			payload := string(l.Payload)
			msg.Payload = &payload
		}
		t.Messages = append(t.Messages, msg)
	}
	if len(e.Lines) == 0 {
		t.StartedAt = time.Unix(e.Timestamp, 0)
		t.EndedAt = t.StartedAt
	}
	return t
}
