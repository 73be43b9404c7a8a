package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nijaru/autoclip/errors"
)

type PreparedStatements struct {
	insertJob  *sql.Stmt
	getJob     *sql.Stmt
	updateJob  *sql.Stmt
	insertClip *sql.Stmt
	listClips  *sql.Stmt
}

func (stmts *PreparedStatements) Prepare(ctx context.Context, db *sql.DB) error {
	const op = "PreparedStatements.Prepare"

	var err error

	if stmts.insertJob, err = db.PrepareContext(ctx, insertJobQuery); err != nil {
		return errors.Internal(op, err, "failed to prepare insert job statement")
	}

	if stmts.getJob, err = db.PrepareContext(ctx, getJobQuery); err != nil {
		return errors.Internal(op, err, "failed to prepare get job statement")
	}

	if stmts.updateJob, err = db.PrepareContext(ctx, updateJobQuery); err != nil {
		return errors.Internal(op, err, "failed to prepare update job statement")
	}

	if stmts.insertClip, err = db.PrepareContext(ctx, insertClipQuery); err != nil {
		return errors.Internal(op, err, "failed to prepare insert clip statement")
	}

	if stmts.listClips, err = db.PrepareContext(ctx, listClipsQuery); err != nil {
		return errors.Internal(op, err, "failed to prepare list clips statement")
	}

	return nil
}

func (stmts *PreparedStatements) Close() error {
	var errs []error

	statements := [...]*sql.Stmt{
		stmts.insertJob,
		stmts.getJob,
		stmts.updateJob,
		stmts.insertClip,
		stmts.listClips,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to close prepared statements: %v", errs)
	}

	return nil
}
