// Package memory provides an in-process RecordStore for local runs and tests.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"fileflow/internal/model"
	"fileflow/internal/repository"
)

// RecordMemory keeps files and jobs in maps guarded by a single mutex.
// Each transition holds the lock for its whole check-and-write, which gives
// the same serialization as the row locks of the Postgres store.
type RecordMemory struct {
	mu        sync.Mutex
	files     map[int64]*model.File
	jobs      map[int64]*model.Job
	nextFile  int64
	nextJob   int64
	usedToken map[string]struct{}
}

// NewRecordMemory creates an empty store.
func NewRecordMemory() *RecordMemory {
	return &RecordMemory{
		files:     make(map[int64]*model.File),
		jobs:      make(map[int64]*model.Job),
		usedToken: make(map[string]struct{}),
	}
}

var _ repository.RecordStore = (*RecordMemory)(nil)

func copyFile(f *model.File) *model.File {
	c := *f
	if f.ExtractedData != nil {
		ed := *f.ExtractedData
		c.ExtractedData = &ed
	}
	return &c
}

func copyJob(j *model.Job) *model.Job {
	c := *j
	if j.ErrorMessage != nil {
		s := *j.ErrorMessage
		c.ErrorMessage = &s
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (r *RecordMemory) insertJob(job *model.Job) (*model.Job, error) {
	if _, dup := r.usedToken[job.Token]; dup {
		return nil, repository.ErrDuplicateToken
	}
	r.nextJob++
	j := copyJob(job)
	j.ID = r.nextJob
	r.jobs[j.ID] = j
	r.usedToken[j.Token] = struct{}{}
	return copyJob(j), nil
}

func (r *RecordMemory) CreateFileWithJob(_ context.Context, file *model.File, job *model.Job) (*model.File, *model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.usedToken[job.Token]; dup {
		return nil, nil, repository.ErrDuplicateToken
	}
	r.nextFile++
	f := copyFile(file)
	f.ID = r.nextFile
	r.files[f.ID] = f

	jc := *job
	jc.FileID = f.ID
	j, err := r.insertJob(&jc)
	if err != nil {
		delete(r.files, f.ID)
		r.nextFile--
		return nil, nil, err
	}
	return copyFile(f), j, nil
}

func (r *RecordMemory) CreateRedispatchJob(_ context.Context, job *model.Job) (*model.Job, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[job.FileID]
	if !ok {
		return nil, false, sql.ErrNoRows
	}
	if f.Status != model.FileStatusUploaded || !repository.FailedDispatch(r.latestJob(f.ID)) {
		return nil, false, nil
	}
	j, err := r.insertJob(job)
	if err != nil {
		return nil, false, err
	}
	return j, true, nil
}

func (r *RecordMemory) FindFileByID(_ context.Context, id int64) (*model.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return copyFile(f), nil
}

func (r *RecordMemory) FindJobByID(_ context.Context, id int64) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return copyJob(j), nil
}

func (r *RecordMemory) latestJob(fileID int64) *model.Job {
	var latest *model.Job
	for _, j := range r.jobs {
		if j.FileID == fileID && (latest == nil || j.ID > latest.ID) {
			latest = j
		}
	}
	return latest
}

func (r *RecordMemory) FindLatestJobByFileID(_ context.Context, fileID int64) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j := r.latestJob(fileID)
	if j == nil {
		return nil, sql.ErrNoRows
	}
	return copyJob(j), nil
}

func (r *RecordMemory) ListFilesByOwner(_ context.Context, ownerID int64, pq repository.PageQuery) (*repository.PageResult[model.FileWithJob], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned := make([]*model.File, 0)
	for _, f := range r.files {
		if f.OwnerID == ownerID {
			owned = append(owned, f)
		}
	}
	sort.Slice(owned, func(a, b int) bool {
		if !owned[a].UploadedAt.Equal(owned[b].UploadedAt) {
			return owned[a].UploadedAt.After(owned[b].UploadedAt)
		}
		return owned[a].ID > owned[b].ID
	})

	items := make([]model.FileWithJob, 0)
	for i := pq.Offset; i < len(owned) && (pq.Limit <= 0 || i < pq.Offset+pq.Limit); i++ {
		item := model.FileWithJob{File: *copyFile(owned[i])}
		if j := r.latestJob(owned[i].ID); j != nil {
			item.Job = copyJob(j)
		}
		items = append(items, item)
	}
	return &repository.PageResult[model.FileWithJob]{Items: items, Total: len(owned)}, nil
}

// pair returns the live job and file rows when jobID belongs to fileID.
func (r *RecordMemory) pair(jobID, fileID int64) (*model.Job, *model.File, bool) {
	j, ok := r.jobs[jobID]
	if !ok || j.FileID != fileID {
		return nil, nil, false
	}
	f, ok := r.files[fileID]
	if !ok {
		return nil, nil, false
	}
	return j, f, true
}

func (r *RecordMemory) MarkProcessing(_ context.Context, jobID, fileID int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, f, ok := r.pair(jobID, fileID)
	if !ok || j.Status.Terminal() || f.Status.Terminal() {
		return false, nil
	}
	j.Status = model.JobStatusProcessing
	j.StartedAt = &at
	f.Status = model.FileStatusProcessing
	return true, nil
}

func (r *RecordMemory) CompleteJob(_ context.Context, jobID, fileID int64, data *model.ExtractedData, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, f, ok := r.pair(jobID, fileID)
	if !ok || j.Status != model.JobStatusProcessing {
		return false, nil
	}
	ed := *data
	f.Status = model.FileStatusProcessed
	f.ExtractedData = &ed
	j.Status = model.JobStatusCompleted
	j.CompletedAt = &at
	j.ErrorMessage = nil
	return true, nil
}

func (r *RecordMemory) FailJob(_ context.Context, jobID, fileID int64, message string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, f, ok := r.pair(jobID, fileID)
	if !ok || j.Status.Terminal() {
		return false, nil
	}
	j.Status = model.JobStatusFailed
	j.ErrorMessage = &message
	j.CompletedAt = &at
	if f.Status != model.FileStatusProcessed {
		f.Status = model.FileStatusFailed
		f.ExtractedData = nil
	}
	return true, nil
}

func (r *RecordMemory) MarkDispatchFailed(_ context.Context, jobID int64, message string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[jobID]
	if !ok || j.Status != model.JobStatusQueued {
		return false, nil
	}
	j.Status = model.JobStatusFailed
	j.ErrorMessage = &message
	j.CompletedAt = &at
	return true, nil
}

func (r *RecordMemory) MarkFileFailed(_ context.Context, fileID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[fileID]
	if !ok || f.Status != model.FileStatusUploaded {
		return false, nil
	}
	f.Status = model.FileStatusFailed
	return true, nil
}

func (r *RecordMemory) ClaimStaleJobs(_ context.Context, q repository.StaleJobQuery) ([]model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Job, 0)
	for _, j := range r.jobs {
		switch {
		case j.Status == model.JobStatusProcessing && j.StartedAt != nil && j.StartedAt.Before(q.ProcessingBefore):
		case j.Status == model.JobStatusQueued && j.CreatedAt.Before(q.QueuedBefore):
		default:
			continue
		}
		out = append(out, *copyJob(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *RecordMemory) ListRedispatchCandidates(_ context.Context, limit int) ([]repository.RedispatchCandidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[int64]int)
	for _, j := range r.jobs {
		counts[j.FileID]++
	}

	out := make([]repository.RedispatchCandidate, 0)
	for _, f := range r.files {
		if f.Status != model.FileStatusUploaded {
			continue
		}
		if !repository.FailedDispatch(r.latestJob(f.ID)) {
			continue
		}
		out = append(out, repository.RedispatchCandidate{File: *copyFile(f), JobCount: counts[f.ID]})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].File.ID < out[b].File.ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *RecordMemory) Ping(context.Context) error { return nil }
