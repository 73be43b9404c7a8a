package repository

import (
	"context"

	"github.com/nijaru/autoclip/models"
)

type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	// Update persists status, error and transcription. Clips are written
	// with AddClip as they are produced.
	Update(ctx context.Context, job *models.Job) error
	AddClip(ctx context.Context, jobID string, clip models.Clip) error
	Find(ctx context.Context, id string) (*models.Job, error)
	// MarkInterrupted fails every job left in one of statuses and returns
	// how many were changed.
	MarkInterrupted(ctx context.Context, statuses []models.Status, message string) (int64, error)
	Close() error
}
