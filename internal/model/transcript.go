package model

import (
	"time"
)

// Transcript archived conversation
type Transcript struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement;comment:记录ID" json:"id"`
	SessionID    string    `gorm:"type:varchar(36);not null;index;comment:会话ID" json:"session_id"`
	Reason       string    `gorm:"type:varchar(16);not null;comment:归档原因：reset/close/idle/shutdown" json:"reason"`
	MessageCount int       `gorm:"type:int;not null;comment:消息数" json:"message_count"`
	UserMessages int       `gorm:"type:int;not null;comment:用户消息数" json:"user_messages"`
	StartedAt    time.Time `gorm:"type:timestamp;not null;comment:首条消息时间" json:"started_at"`
	EndedAt      time.Time `gorm:"type:timestamp;not null;comment:末条消息时间" json:"ended_at"`
	TraceID      string    `gorm:"type:varchar(32);comment:链路ID" json:"trace_id,omitempty"`
	CreatedAt    time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index;comment:创建时间" json:"created_at"`

	// associations
	Messages []TranscriptMessage `gorm:"foreignKey:TranscriptID" json:"messages,omitempty"`
}

// TableName set name
func (Transcript) TableName() string {
	return "transcripts"
}

// TranscriptMessage one line of an archived conversation
type TranscriptMessage struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement;comment:记录ID" json:"id"`
	TranscriptID uint64    `gorm:"type:bigint unsigned;not null;index;comment:归档ID" json:"transcript_id"`
	Seq          int       `gorm:"type:int;not null;comment:序号" json:"seq"`
	MessageID    string    `gorm:"type:varchar(36);not null;comment:消息ID" json:"message_id"`
	Role         string    `gorm:"type:varchar(16);not null;comment:角色：user/assistant" json:"role"`
	Kind         string    `gorm:"type:varchar(24);not null;comment:消息类型" json:"kind"`
	Text         string    `gorm:"type:text;comment:文本" json:"text"`
	Payload      *string   `gorm:"type:json;comment:结构化内容" json:"payload,omitempty"`
	SentAt       time.Time `gorm:"type:timestamp;not null;comment:发送时间" json:"sent_at"`
}

// TableName set name
func (TranscriptMessage) TableName() string {
	return "transcript_messages"
}
