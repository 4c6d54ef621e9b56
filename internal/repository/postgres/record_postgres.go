package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"fileflow/internal/model"
	"fileflow/internal/repository"
)

// RecordPostgres is a PostgreSQL implementation of repository.RecordStore.
// It uses database/sql with parameterized queries. Transitions lock the job and
// file rows with SELECT ... FOR UPDATE so a worker and a reconciler sweep
// serialize on the same pair.
type RecordPostgres struct {
	db *sql.DB
}

// NewRecordPostgres creates a new RecordPostgres repository.
func NewRecordPostgres(db *sql.DB) *RecordPostgres {
	return &RecordPostgres{db: db}
}

var _ repository.RecordStore = (*RecordPostgres)(nil)

const (
	fileColumns = `id, original_name, stored_location, declared_media_type, status, extracted_data, owner_id, uploaded_at`
	jobColumns  = `id, token, file_id, status, error_message, created_at, started_at, completed_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner, extra ...any) (*model.File, error) {
	var (
		f      model.File
		status string
		data   []byte
	)
	dest := append([]any{
		&f.ID,
		&f.OriginalName,
		&f.StoredLocation,
		&f.DeclaredMediaType,
		&status,
		&data,
		&f.OwnerID,
		&f.UploadedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	f.Status = model.FileStatus(status)
	if len(data) > 0 {
		var ed model.ExtractedData
		if err := json.Unmarshal(data, &ed); err != nil {
			return nil, fmt.Errorf("decode extracted data of file %d: %w", f.ID, err)
		}
		f.ExtractedData = &ed
	}
	return &f, nil
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		j         model.Job
		status    string
		errMsg    sql.NullString
		started   sql.NullTime
		completed sql.NullTime
	)
	if err := row.Scan(
		&j.ID,
		&j.Token,
		&j.FileID,
		&status,
		&errMsg,
		&j.CreatedAt,
		&started,
		&completed,
	); err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	if errMsg.Valid {
		j.ErrorMessage = &errMsg.String
	}
	if started.Valid {
		j.StartedAt = &started.Time
	}
	if completed.Valid {
		j.CompletedAt = &completed.Time
	}
	return &j, nil
}

func (r *RecordPostgres) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CreateFileWithJob inserts a file and its first job atomically.
func (r *RecordPostgres) CreateFileWithJob(ctx context.Context, file *model.File, job *model.Job) (*model.File, *model.Job, error) {
	const qFile = `
		INSERT INTO files (original_name, stored_location, declared_media_type, status, owner_id, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + fileColumns
	const qJob = `
		INSERT INTO jobs (token, file_id, status, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + jobColumns

	var (
		storedFile *model.File
		storedJob  *model.Job
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		storedFile, err = scanFile(tx.QueryRowContext(ctx, qFile,
			file.OriginalName,
			file.StoredLocation,
			file.DeclaredMediaType,
			string(file.Status),
			file.OwnerID,
			file.UploadedAt,
		))
		if err != nil {
			return fmt.Errorf("insert file: %w", err)
		}
		storedJob, err = scanJob(tx.QueryRowContext(ctx, qJob,
			job.Token,
			storedFile.ID,
			string(job.Status),
			job.CreatedAt,
		))
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return storedFile, storedJob, nil
}

// CreateRedispatchJob inserts a job for an uploaded file whose latest job failed to enqueue.
// The file row lock serializes concurrent redispatches of the same file.
func (r *RecordPostgres) CreateRedispatchJob(ctx context.Context, job *model.Job) (*model.Job, bool, error) {
	const qInsert = `
		INSERT INTO jobs (token, file_id, status, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + jobColumns

	var stored *model.Job
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var fs string
		if err := tx.QueryRowContext(ctx, `SELECT status FROM files WHERE id = $1 FOR UPDATE`, job.FileID).Scan(&fs); err != nil {
			return err
		}
		if model.FileStatus(fs) != model.FileStatusUploaded {
			return nil
		}

		var (
			latest model.Job
			js     string
			msg    sql.NullString
		)
		err := tx.QueryRowContext(ctx,
			`SELECT status, error_message FROM jobs WHERE file_id = $1 ORDER BY id DESC LIMIT 1`,
			job.FileID,
		).Scan(&js, &msg)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("load latest job: %w", err)
		}
		latest.Status = model.JobStatus(js)
		if msg.Valid {
			latest.ErrorMessage = &msg.String
		}
		if err == sql.ErrNoRows || !repository.FailedDispatch(&latest) {
			return nil
		}

		stored, err = scanJob(tx.QueryRowContext(ctx, qInsert, job.Token, job.FileID, string(job.Status), job.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, stored != nil, nil
}

// FindFileByID fetches a single file by its ID.
func (r *RecordPostgres) FindFileByID(ctx context.Context, id int64) (*model.File, error) {
	const q = `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	return scanFile(r.db.QueryRowContext(ctx, q, id))
}

// FindJobByID fetches a single job by its ID.
func (r *RecordPostgres) FindJobByID(ctx context.Context, id int64) (*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(r.db.QueryRowContext(ctx, q, id))
}

// FindLatestJobByFileID fetches the most recent job of a file.
func (r *RecordPostgres) FindLatestJobByFileID(ctx context.Context, fileID int64) (*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE file_id = $1 ORDER BY id DESC LIMIT 1`
	return scanJob(r.db.QueryRowContext(ctx, q, fileID))
}

// ListFilesByOwner returns files using LIMIT/OFFSET pagination and a total count.
func (r *RecordPostgres) ListFilesByOwner(ctx context.Context, ownerID int64, pq repository.PageQuery) (*repository.PageResult[model.FileWithJob], error) {
	const qCount = `SELECT COUNT(*) FROM files WHERE owner_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, ownerID).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT f.id, f.original_name, f.stored_location, f.declared_media_type, f.status,
		       f.extracted_data, f.owner_id, f.uploaded_at,
		       j.id, j.token, j.status, j.error_message, j.created_at, j.started_at, j.completed_at
		FROM files f
		LEFT JOIN LATERAL (
			SELECT id, token, status, error_message, created_at, started_at, completed_at
			FROM jobs WHERE file_id = f.id ORDER BY id DESC LIMIT 1
		) j ON true
		WHERE f.owner_id = $1
		ORDER BY f.uploaded_at DESC, f.id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, qList, ownerID, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.FileWithJob, 0)
	for rows.Next() {
		var (
			jobID     sql.NullInt64
			token     sql.NullString
			status    sql.NullString
			errMsg    sql.NullString
			created   sql.NullTime
			started   sql.NullTime
			completed sql.NullTime
		)
		f, err := scanFile(rows, &jobID, &token, &status, &errMsg, &created, &started, &completed)
		if err != nil {
			return nil, err
		}
		item := model.FileWithJob{File: *f}
		if jobID.Valid {
			j := &model.Job{
				ID:        jobID.Int64,
				Token:     token.String,
				FileID:    f.ID,
				Status:    model.JobStatus(status.String),
				CreatedAt: created.Time,
			}
			if errMsg.Valid {
				j.ErrorMessage = &errMsg.String
			}
			if started.Valid {
				j.StartedAt = &started.Time
			}
			if completed.Valid {
				j.CompletedAt = &completed.Time
			}
			item.Job = j
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.FileWithJob]{
		Items: items,
		Total: total,
	}, nil
}

// lockPair locks the job row and its file row for the rest of the transaction.
func lockPair(ctx context.Context, tx *sql.Tx, jobID, fileID int64) (model.JobStatus, model.FileStatus, bool, error) {
	const q = `
		SELECT j.status, f.status
		FROM jobs j
		JOIN files f ON f.id = j.file_id
		WHERE j.id = $1 AND f.id = $2
		FOR UPDATE
	`
	var js, fs string
	err := tx.QueryRowContext(ctx, q, jobID, fileID).Scan(&js, &fs)
	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("lock job %d: %w", jobID, err)
	}
	return model.JobStatus(js), model.FileStatus(fs), true, nil
}

// MarkProcessing transitions the pair to processing unless either is terminal.
func (r *RecordPostgres) MarkProcessing(ctx context.Context, jobID, fileID int64, at time.Time) (bool, error) {
	var applied bool
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		js, fs, found, err := lockPair(ctx, tx, jobID, fileID)
		if err != nil || !found || js.Terminal() || fs.Terminal() {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = $2, started_at = $3 WHERE id = $1`,
			jobID, string(model.JobStatusProcessing), at,
		); err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE files SET status = $2 WHERE id = $1`,
			fileID, string(model.FileStatusProcessing),
		); err != nil {
			return fmt.Errorf("update file: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

// CompleteJob stores the extracted data and closes a processing job.
func (r *RecordPostgres) CompleteJob(ctx context.Context, jobID, fileID int64, data *model.ExtractedData, at time.Time) (bool, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("encode extracted data: %w", err)
	}
	var applied bool
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		js, _, found, err := lockPair(ctx, tx, jobID, fileID)
		if err != nil || !found || js != model.JobStatusProcessing {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE files SET status = $2, extracted_data = $3 WHERE id = $1`,
			fileID, string(model.FileStatusProcessed), payload,
		); err != nil {
			return fmt.Errorf("update file: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = $2, completed_at = $3, error_message = NULL WHERE id = $1`,
			jobID, string(model.JobStatusCompleted), at,
		); err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

// FailJob closes a non-terminal job as failed and fails its file unless processed.
func (r *RecordPostgres) FailJob(ctx context.Context, jobID, fileID int64, message string, at time.Time) (bool, error) {
	var applied bool
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		js, fs, found, err := lockPair(ctx, tx, jobID, fileID)
		if err != nil || !found || js.Terminal() {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = $2, error_message = $3, completed_at = $4 WHERE id = $1`,
			jobID, string(model.JobStatusFailed), message, at,
		); err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		if fs != model.FileStatusProcessed {
			if _, err := tx.ExecContext(ctx,
				`UPDATE files SET status = $2, extracted_data = NULL WHERE id = $1`,
				fileID, string(model.FileStatusFailed),
			); err != nil {
				return fmt.Errorf("update file: %w", err)
			}
		}
		applied = true
		return nil
	})
	return applied, err
}

// MarkDispatchFailed fails a job that is still queued.
func (r *RecordPostgres) MarkDispatchFailed(ctx context.Context, jobID int64, message string, at time.Time) (bool, error) {
	const q = `
		UPDATE jobs SET status = $2, error_message = $3, completed_at = $4
		WHERE id = $1 AND status = $5
	`
	res, err := r.db.ExecContext(ctx, q, jobID, string(model.JobStatusFailed), message, at, string(model.JobStatusQueued))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkFileFailed fails a file that is still in the uploaded state.
func (r *RecordPostgres) MarkFileFailed(ctx context.Context, fileID int64) (bool, error) {
	const q = `UPDATE files SET status = $2 WHERE id = $1 AND status = $3`
	res, err := r.db.ExecContext(ctx, q, fileID, string(model.FileStatusFailed), string(model.FileStatusUploaded))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClaimStaleJobs selects processing jobs without progress and old queued jobs.
// Writes that follow are conditional, so concurrent sweeps may see the same rows.
func (r *RecordPostgres) ClaimStaleJobs(ctx context.Context, sq repository.StaleJobQuery) ([]model.Job, error) {
	const q = `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE (status = $1 AND started_at < $2)
		   OR (status = $3 AND created_at < $4)
		ORDER BY id
		LIMIT $5
	`
	rows, err := r.db.QueryContext(ctx, q,
		string(model.JobStatusProcessing), sq.ProcessingBefore,
		string(model.JobStatusQueued), sq.QueuedBefore,
		sq.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]model.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// ListRedispatchCandidates finds uploaded files whose latest job failed to enqueue.
func (r *RecordPostgres) ListRedispatchCandidates(ctx context.Context, limit int) ([]repository.RedispatchCandidate, error) {
	const q = `
		SELECT f.id, f.original_name, f.stored_location, f.declared_media_type, f.status,
		       f.extracted_data, f.owner_id, f.uploaded_at,
		       (SELECT COUNT(*) FROM jobs c WHERE c.file_id = f.id)
		FROM files f
		JOIN LATERAL (
			SELECT status, error_message FROM jobs WHERE file_id = f.id ORDER BY id DESC LIMIT 1
		) lj ON true
		WHERE f.status = $1 AND lj.status = $2 AND lj.error_message LIKE $3
		ORDER BY f.id
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, q,
		string(model.FileStatusUploaded),
		string(model.JobStatusFailed),
		repository.DispatchFailurePrefix+"%",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]repository.RedispatchCandidate, 0)
	for rows.Next() {
		var count int
		f, err := scanFile(rows, &count)
		if err != nil {
			return nil, err
		}
		out = append(out, repository.RedispatchCandidate{File: *f, JobCount: count})
	}
	return out, rows.Err()
}

// Ping verifies database connectivity.
func (r *RecordPostgres) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
