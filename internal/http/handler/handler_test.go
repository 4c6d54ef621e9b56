package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fileflow/internal/model"
	"fileflow/internal/repository/postgres"
	"fileflow/internal/service"
	serviceMocks "fileflow/internal/service/mocks"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func withOwner(req *http.Request, id string) *http.Request {
	req.Header.Set(OwnerHeader, id)
	return req
}

func multipartBody(t *testing.T, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(postgres.NewRecordPostgres(db)))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockSubmissionService)
	app := fiber.New()
	app.Post("/files", UploadFile(mockSvc, 16))

	t.Run("success", func(t *testing.T) {
		body, ct := multipartBody(t, "report.pdf", []byte("HELLO"))
		expected := &model.SubmitResult{FileID: 7, JobToken: "tok-1"}
		mockSvc.On("Ingest", mock.Anything, mock.Anything, "report.pdf", mock.Anything, int64(42)).Return(expected, nil).Once()

		req := withOwner(httptest.NewRequest(http.MethodPost, "/files", body), "42")
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var result struct {
			Success bool               `json:"success"`
			Data    model.SubmitResult `json:"data"`
		}
		json.NewDecoder(resp.Body).Decode(&result)
		assert.True(t, result.Success)
		assert.Equal(t, int64(7), result.Data.FileID)
		assert.Equal(t, "tok-1", result.Data.JobToken)
		mockSvc.AssertExpectations(t)
	})

	t.Run("missing owner", func(t *testing.T) {
		body, ct := multipartBody(t, "report.pdf", []byte("HELLO"))
		req := httptest.NewRequest(http.MethodPost, "/files", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "UNAUTHORIZED", res.Error.Code)
	})

	t.Run("no file", func(t *testing.T) {
		req := withOwner(httptest.NewRequest(http.MethodPost, "/files", nil), "42")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "FILE_REQUIRED", res.Error.Code)
	})

	t.Run("too large", func(t *testing.T) {
		body, ct := multipartBody(t, "big.bin", bytes.Repeat([]byte("x"), 17))
		req := withOwner(httptest.NewRequest(http.MethodPost, "/files", body), "42")
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "FILE_TOO_LARGE", res.Error.Code)
	})

	t.Run("validation error", func(t *testing.T) {
		body, ct := multipartBody(t, "a.txt", []byte("hi"))
		mockSvc.On("Ingest", mock.Anything, mock.Anything, "a.txt", mock.Anything, int64(42)).
			Return(nil, fmt.Errorf("%w: %w", service.ErrValidation, model.ErrNameRequired)).Once()

		req := withOwner(httptest.NewRequest(http.MethodPost, "/files", body), "42")
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "VALIDATION_ERROR", res.Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("service error", func(t *testing.T) {
		body, ct := multipartBody(t, "a.txt", []byte("hi"))
		mockSvc.On("Ingest", mock.Anything, mock.Anything, "a.txt", mock.Anything, int64(42)).
			Return(nil, errors.New("connection refused at 10.0.0.3")).Once()

		req := withOwner(httptest.NewRequest(http.MethodPost, "/files", body), "42")
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "INTERNAL_ERROR", res.Error.Code)
		assert.NotContains(t, res.Error.Message, "10.0.0.3")
		mockSvc.AssertExpectations(t)
	})
}

func TestListFiles(t *testing.T) {
	mockSvc := new(serviceMocks.MockTrackingService)
	app := fiber.New()
	app.Get("/files", ListFiles(mockSvc))

	t.Run("success", func(t *testing.T) {
		expected := &service.FileListResult{
			Items: []model.FileStatusView{{FileID: 1, OriginalName: "a.txt", Status: model.FileStatusProcessed}},
			Meta:  service.PageMeta{Page: 2, Limit: 5, Total: 6, TotalPages: 2},
		}
		mockSvc.On("List", mock.Anything, int64(42), 2, 5).Return(expected, nil).Once()

		req := withOwner(httptest.NewRequest(http.MethodGet, "/files?page=2&limit=5", nil), "42")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result service.FileListResult
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Len(t, result.Items, 1)
		assert.Equal(t, 6, result.Meta.Total)
		assert.Equal(t, 2, result.Meta.TotalPages)
		mockSvc.AssertExpectations(t)
	})

	t.Run("defaults", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, int64(42), 1, 10).Return(&service.FileListResult{}, nil).Once()

		req := withOwner(httptest.NewRequest(http.MethodGet, "/files", nil), "42")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		req := withOwner(httptest.NewRequest(http.MethodGet, "/files?limit=abc", nil), "42")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "INVALID_LIMIT", body.Error.Code)
	})

	t.Run("invalid owner", func(t *testing.T) {
		req := withOwner(httptest.NewRequest(http.MethodGet, "/files", nil), "-3")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, int64(42), 1, 10).Return(nil, errors.New("service error")).Once()

		req := withOwner(httptest.NewRequest(http.MethodGet, "/files", nil), "42")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestGetFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockTrackingService)
	app := fiber.New()
	app.Get("/files/:id", GetFile(mockSvc))

	t.Run("success", func(t *testing.T) {
		msg := "boom"
		view := &model.FileStatusView{
			FileID:           9,
			OriginalName:     "report.pdf",
			Status:           model.FileStatusFailed,
			ProcessingStatus: string(model.JobStatusFailed),
			Error:            &msg,
		}
		mockSvc.On("GetStatus", mock.Anything, int64(9), int64(42)).Return(view, nil).Once()

		req := withOwner(httptest.NewRequest(http.MethodGet, "/files/9", nil), "42")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, float64(9), result["fileId"])
		assert.Equal(t, "failed", result["processingStatus"])
		assert.Equal(t, "boom", result["error"])
		assert.NotContains(t, result, "ownerId")
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mockSvc.On("GetStatus", mock.Anything, int64(10), int64(42)).Return(nil, service.ErrNotFound).Once()

		req := withOwner(httptest.NewRequest(http.MethodGet, "/files/10", nil), "42")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		req := withOwner(httptest.NewRequest(http.MethodGet, "/files/abc", nil), "42")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "INVALID_ID", res.Error.Code)
	})
}

func TestDownloadFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockTrackingService)
	app := fiber.New()
	app.Get("/files/:id/download", DownloadFile(mockSvc, time.Minute))

	t.Run("redirects", func(t *testing.T) {
		mockSvc.On("DownloadURL", mock.Anything, int64(3), int64(42), time.Minute).Return("https://objects.local/files/abc.pdf?sig=1", nil).Once()

		req := withOwner(httptest.NewRequest(http.MethodGet, "/files/3/download", nil), "42")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
		assert.Equal(t, "https://objects.local/files/abc.pdf?sig=1", resp.Header.Get("Location"))
		mockSvc.AssertExpectations(t)
	})

	t.Run("not archived", func(t *testing.T) {
		mockSvc.On("DownloadURL", mock.Anything, int64(4), int64(42), time.Minute).Return("", service.ErrNotArchived).Once()

		req := withOwner(httptest.NewRequest(http.MethodGet, "/files/4/download", nil), "42")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_ARCHIVED", res.Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestRedispatchFile(t *testing.T) {
	sub := new(serviceMocks.MockSubmissionService)
	trk := new(serviceMocks.MockTrackingService)
	app := fiber.New()
	app.Post("/files/:id/redispatch", RedispatchFile(sub, trk))

	t.Run("accepted", func(t *testing.T) {
		trk.On("GetStatus", mock.Anything, int64(5), int64(42)).Return(&model.FileStatusView{FileID: 5}, nil).Once()
		sub.On("Redispatch", mock.Anything, int64(5)).Return(&model.Job{ID: 11, FileID: 5, Status: model.JobStatusQueued}, nil).Once()

		req := withOwner(httptest.NewRequest(http.MethodPost, "/files/5/redispatch", nil), "42")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		sub.AssertExpectations(t)
		trk.AssertExpectations(t)
	})

	t.Run("not owned", func(t *testing.T) {
		trk.On("GetStatus", mock.Anything, int64(6), int64(42)).Return(nil, service.ErrNotFound).Once()

		req := withOwner(httptest.NewRequest(http.MethodPost, "/files/6/redispatch", nil), "42")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		sub.AssertNotCalled(t, "Redispatch", mock.Anything, int64(6))
	})

	t.Run("not redispatchable", func(t *testing.T) {
		trk.On("GetStatus", mock.Anything, int64(8), int64(42)).Return(&model.FileStatusView{FileID: 8}, nil).Once()
		sub.On("Redispatch", mock.Anything, int64(8)).Return(nil, service.ErrNotRedispatchable).Once()

		req := withOwner(httptest.NewRequest(http.MethodPost, "/files/8/redispatch", nil), "42")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestRouting(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(),
	})

	RegisterRoutes(app, nil, new(serviceMocks.MockSubmissionService), new(serviceMocks.MockTrackingService), Options{})

	t.Run("not found route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/non-existent", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "METHOD_NOT_ALLOWED", res.Error.Code)
	})

	t.Run("health without store", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}
