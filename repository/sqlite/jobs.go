package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/nijaru/autoclip/errors"
	"github.com/nijaru/autoclip/models"
	"github.com/nijaru/autoclip/repository"
)

var _ repository.JobRepository = (*Repository)(nil)

type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, job *models.Job) error {
	const op = "SQLiteRepository.Create"

	transcription, err := encodeTranscription(job.Transcription)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode transcription")
	}

	err = withRetry(ctx, r.db.config, func() error {
		_, err := r.db.statements.insertJob.ExecContext(ctx,
			job.ID,
			job.Filename,
			job.SourcePath,
			job.AudioPath,
			string(job.Status),
			job.Error,
			transcription,
			job.CreatedAt.UTC(),
			job.UpdatedAt.UTC(),
		)
		return err
	})
	if err != nil {
		return errors.Internal(op, err, "Failed to create job")
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, job *models.Job) error {
	const op = "SQLiteRepository.Update"

	transcription, err := encodeTranscription(job.Transcription)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode transcription")
	}

	var rows int64
	err = withRetry(ctx, r.db.config, func() error {
		res, err := r.db.statements.updateJob.ExecContext(ctx,
			job.AudioPath,
			string(job.Status),
			job.Error,
			transcription,
			job.UpdatedAt.UTC(),
			job.ID,
		)
		if err != nil {
			return err
		}
		rows, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return errors.Internal(op, err, "Failed to update job")
	}
	if rows == 0 {
		return errors.NotFound(op, nil, "Job not found")
	}
	return nil
}

func (r *Repository) AddClip(ctx context.Context, jobID string, clip models.Clip) error {
	const op = "SQLiteRepository.AddClip"

	err := withRetry(ctx, r.db.config, func() error {
		_, err := r.db.statements.insertClip.ExecContext(ctx,
			jobID,
			clip.Index,
			clip.StartTime,
			clip.EndTime,
			clip.Text,
			clip.Filename,
			clip.URL,
			clip.RemoteURL,
		)
		return err
	})
	if err != nil {
		return errors.Internal(op, err, "Failed to save clip")
	}
	return nil
}

func (r *Repository) Find(ctx context.Context, id string) (*models.Job, error) {
	const op = "SQLiteRepository.Find"

	job := &models.Job{}
	var status string
	var transcription sql.NullString

	err := r.db.statements.getJob.QueryRowContext(ctx, id).Scan(
		&job.ID,
		&job.Filename,
		&job.SourcePath,
		&job.AudioPath,
		&status,
		&job.Error,
		&transcription,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(op, nil, "Job not found")
	}
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query job")
	}

	job.Status = models.Status(status)
	if transcription.Valid && transcription.String != "" {
		job.Transcription = &models.TranscriptionResult{}
		if err := json.Unmarshal([]byte(transcription.String), job.Transcription); err != nil {
			return nil, errors.Internal(op, err, "Failed to decode transcription")
		}
	}

	clips, err := r.listClips(ctx, id)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query clips")
	}
	job.Clips = clips

	return job, nil
}

func (r *Repository) listClips(ctx context.Context, jobID string) ([]models.Clip, error) {
	rows, err := r.db.statements.listClips.QueryContext(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clips := []models.Clip{}
	for rows.Next() {
		var c models.Clip
		if err := rows.Scan(&c.Index, &c.StartTime, &c.EndTime, &c.Text, &c.Filename, &c.URL, &c.RemoteURL); err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

func (r *Repository) MarkInterrupted(ctx context.Context, statuses []models.Status, message string) (int64, error) {
	const op = "SQLiteRepository.MarkInterrupted"

	if len(statuses) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	query := `UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE status IN (` + placeholders + `)`

	args := []interface{}{string(models.StatusFailed), message, time.Now().UTC()}
	for _, s := range statuses {
		args = append(args, string(s))
	}

	var rows int64
	err := WithTransaction(ctx, r.db.db, func(tx Executor) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		rows, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, errors.Internal(op, err, "Failed to mark interrupted jobs")
	}
	return rows, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func encodeTranscription(t *models.TranscriptionResult) (sql.NullString, error) {
	if t == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
