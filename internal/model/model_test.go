package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatuses(t *testing.T) {
	assert.True(t, FileStatusProcessed.Terminal())
	assert.True(t, FileStatusFailed.Terminal())
	assert.False(t, FileStatusProcessing.Terminal())
	assert.False(t, FileStatus("archived").Valid())

	assert.True(t, JobStatusCompleted.Terminal())
	assert.False(t, JobStatusQueued.Terminal())
	assert.True(t, JobStatusProcessing.Valid())
	assert.False(t, JobStatus("pending").Valid())
}

func TestUploadDescriptor_Validate(t *testing.T) {
	valid := UploadDescriptor{StoredLocation: "/uploads/a.pdf", OriginalName: "a.pdf", OwnerID: 1}

	tests := []struct {
		name    string
		mutate  func(d *UploadDescriptor)
		wantErr error
	}{
		{name: "valid", mutate: func(d *UploadDescriptor) {}},
		{name: "blank location", mutate: func(d *UploadDescriptor) { d.StoredLocation = "  " }, wantErr: ErrLocationRequired},
		{name: "blank name", mutate: func(d *UploadDescriptor) { d.OriginalName = "" }, wantErr: ErrNameRequired},
		{name: "zero owner", mutate: func(d *UploadDescriptor) { d.OwnerID = 0 }, wantErr: ErrOwnerRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWorkMessage_Validate(t *testing.T) {
	assert.NoError(t, WorkMessage{FileID: 1, JobID: 2, FilePath: "/x"}.Validate())
	assert.ErrorIs(t, WorkMessage{FileID: 1, FilePath: "/x"}.Validate(), ErrMalformedMessage)
	assert.ErrorIs(t, WorkMessage{JobID: 2, FilePath: "/x"}.Validate(), ErrMalformedMessage)
	assert.ErrorIs(t, WorkMessage{FileID: 1, JobID: 2}.Validate(), ErrMalformedMessage)
}

func TestWorkMessage_WireNames(t *testing.T) {
	b, err := json.Marshal(WorkMessage{FileID: 1, JobID: 2, FilePath: "/uploads/x.pdf"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"fileId":1,"jobId":2,"filePath":"/uploads/x.pdf"}`, string(b))
}

func TestNewFileStatusView(t *testing.T) {
	uploaded := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	f := File{ID: 3, OwnerID: 7, OriginalName: "a.txt", Status: FileStatusUploaded, UploadedAt: uploaded}

	t.Run("without job", func(t *testing.T) {
		v := NewFileStatusView(f, nil)
		assert.Equal(t, ProcessingUnknown, v.ProcessingStatus)
		assert.Nil(t, v.Error)
		assert.False(t, v.Settled())
	})

	t.Run("failed job", func(t *testing.T) {
		msg := "File not found"
		done := uploaded.Add(time.Minute)
		ff := f
		ff.Status = FileStatusFailed
		v := NewFileStatusView(ff, &Job{Token: "t", Status: JobStatusFailed, ErrorMessage: &msg, StartedAt: &uploaded, CompletedAt: &done})

		assert.Equal(t, "failed", v.ProcessingStatus)
		assert.Equal(t, &msg, v.Error)
		assert.Equal(t, &done, v.CompletedAt)
		assert.True(t, v.Settled())
	})

	t.Run("owner is not serialized", func(t *testing.T) {
		b, err := json.Marshal(NewFileStatusView(f, nil))
		require.NoError(t, err)
		assert.NotContains(t, string(b), "ownerId")
	})
}
