// Package analyzer inspects a stored file: content hash, size, timestamps,
// resolved media type and a short best-effort text excerpt.
// It only ever reads from the filesystem.
package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fileflow/internal/model"
)

// SummaryLimit bounds the text excerpt, in runes.
const SummaryLimit = 1000

const (
	MimeOctetStream = "application/octet-stream"

	SummaryUnsupported = "No text content extracted (unsupported MIME type or binary format)."
	SummaryFailed      = "Failed to extract text."
)

var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".csv":  "text/csv",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// MimeType resolves a media type from a file extension (with or without the dot).
func MimeType(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if mt, ok := mimeTypes[ext]; ok {
		return mt
	}
	return MimeOctetStream
}

// AnalysisError is a hard failure: the source could not be read in full.
// It is permanent and never retried.
type AnalysisError struct {
	Op  string
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("cannot %s file: %v", e.Op, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// IsAnalysisError reports whether err is (or wraps) an *AnalysisError.
func IsAnalysisError(err error) bool {
	var ae *AnalysisError
	return errors.As(err, &ae)
}

var ErrTruncated = errors.New("file truncated during read")

// Analyzer computes ExtractedData for files on local disk.
// It is safe for concurrent use.
type Analyzer struct {
	now func() time.Time
}

// New returns an Analyzer stamping results with the wall clock.
func New() *Analyzer {
	return &Analyzer{now: time.Now}
}

// Analyze reads path once through a streaming sha256 and then attempts a text excerpt.
// declaredMediaType is only used when the extension resolves to nothing useful.
func (a *Analyzer) Analyze(path, declaredMediaType string) (*model.ExtractedData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &AnalysisError{Op: "open", Err: stripPath(err)}
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, &AnalysisError{Op: "stat", Err: stripPath(err)}
	}
	if st.IsDir() {
		return nil, &AnalysisError{Op: "open", Err: errors.New("is a directory")}
	}

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return nil, &AnalysisError{Op: "read", Err: stripPath(err)}
	}
	if n != st.Size() {
		return nil, &AnalysisError{Op: "read", Err: fmt.Errorf("%w: read %d of %d bytes", ErrTruncated, n, st.Size())}
	}

	ext := strings.ToLower(filepath.Ext(path))
	mt := MimeType(ext)
	if mt == MimeOctetStream && ext == "" && declaredMediaType != "" {
		mt = declaredMediaType
	}

	return &model.ExtractedData{
		Hash:         hex.EncodeToString(h.Sum(nil)),
		Size:         n,
		Extension:    ext,
		LastModified: st.ModTime().UTC(),
		Created:      birthTime(path, st).UTC(),
		ProcessedAt:  a.now().UTC(),
		MimeType:     mt,
		Summary:      Excerpt(path, mt),
	}, nil
}

// stripPath keeps error text free of server-side paths.
func stripPath(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}
