package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"storebot/internal/model"
)

// ErrTranscriptNotFound is returned when no transcript has the given id.
var ErrTranscriptNotFound = errors.New("transcript not found")

// messageBatchSize bounds one multi-row insert of transcript lines
const messageBatchSize = 100

// TranscriptRepository transcript repository interface
type TranscriptRepository interface {
	// Create stores a transcript and its lines atomically
	Create(ctx context.Context, transcript *model.Transcript) error

	// GetByID gets a transcript with its lines in order
	GetByID(ctx context.Context, id uint64) (*model.Transcript, error)

	// ListBySession lists the newest transcripts of a session, without lines
	ListBySession(ctx context.Context, sessionID string, limit int) ([]model.Transcript, error)

	// DeleteBefore removes transcripts archived before cutoff
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// transcriptRepository transcript repository implementation
type transcriptRepository struct {
	db *gorm.DB
}

// NewTranscriptRepository creates a transcript repository
func NewTranscriptRepository(db *gorm.DB) TranscriptRepository {
	return &transcriptRepository{db: db}
}

// Create creates a transcript
func (r *transcriptRepository) Create(ctx context.Context, transcript *model.Transcript) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Messages").Create(transcript).Error; err != nil {
			return err
		}

		if len(transcript.Messages) == 0 {
			return nil
		}
		for i := range transcript.Messages {
			transcript.Messages[i].TranscriptID = transcript.ID
		}
		return tx.CreateInBatches(&transcript.Messages, messageBatchSize).Error
	})
}

// GetByID gets a transcript by ID
func (r *transcriptRepository) GetByID(ctx context.Context, id uint64) (*model.Transcript, error) {
	var transcript model.Transcript
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq")
		}).
		Where("id = ?", id).
		First(&transcript).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTranscriptNotFound
		}
		return nil, err
	}
	return &transcript, nil
}

// ListBySession lists transcripts of one session, newest first
func (r *transcriptRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.Transcript, error) {
	if limit <= 0 {
		limit = 20
	}
	var transcripts []model.Transcript
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&transcripts).Error
	return transcripts, err
}

// DeleteBefore deletes transcripts and their lines older than cutoff
func (r *transcriptRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old := tx.Model(&model.Transcript{}).Select("id").Where("created_at < ?", cutoff)
		if err := tx.Where("transcript_id IN (?)", old).Delete(&model.TranscriptMessage{}).Error; err != nil {
			return err
		}

		result := tx.Where("created_at < ?", cutoff).Delete(&model.Transcript{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}
