package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"fileflow/internal/service"
)

// OwnerHeader carries the authenticated user id set by the gateway.
const OwnerHeader = "X-User-ID"

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the file routes.
type Options struct {
	// MaxFileSize rejects larger uploads; zero disables the check.
	MaxFileSize    int64
	DownloadExpiry time.Duration
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, db Pinger, sub service.SubmissionService, trk service.TrackingService, opts Options) {
	if opts.DownloadExpiry <= 0 {
		opts.DownloadExpiry = 15 * time.Minute
	}

	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	files := app.Group("/files")
	files.Post("/", UploadFile(sub, opts.MaxFileSize))
	files.Post("/upload", UploadFile(sub, opts.MaxFileSize))
	files.Get("/", ListFiles(trk))
	files.Get("/:id", GetFile(trk))
	files.Get("/:id/download", DownloadFile(trk, opts.DownloadExpiry))
	files.Post("/:id/redispatch", RedispatchFile(sub, trk))
}

// HealthCheck pings the record store.
//
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} errorPayload
// @Router /health [get]
func HealthCheck(db Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if db == nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		if err := db.Ping(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe always answers 200 while the process serves requests.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// UploadFile stores the multipart field "file" and enqueues it for processing.
//
// @Summary Upload a file for processing
// @Tags files
// @Accept multipart/form-data
// @Produce json
// @Param X-User-ID header int true "owner id"
// @Param file formData file true "file to process"
// @Success 201 {object} uploadResponse
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Failure 413 {object} errorPayload
// @Router /files [post]
func UploadFile(sub service.SubmissionService, maxSize int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, ok := ownerFromRequest(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid "+OwnerHeader)
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		if maxSize > 0 && fh.Size > maxSize {
			return writeError(c, fiber.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds the maximum size of "+strconv.FormatInt(maxSize, 10)+" bytes")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}

		res, err := sub.Ingest(c.UserContext(), f, fh.Filename, ct, ownerID)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(uploadResponse{
			Success: true,
			Message: "File uploaded successfully",
			Data:    res,
		})
	}
}

// ListFiles returns the caller's files, newest first.
//
// @Summary List files
// @Tags files
// @Produce json
// @Param X-User-ID header int true "owner id"
// @Param page query int false "page, default 1"
// @Param limit query int false "page size, default 10, max 100"
// @Success 200 {object} service.FileListResult
// @Failure 400 {object} errorPayload
// @Router /files [get]
func ListFiles(trk service.TrackingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, ok := ownerFromRequest(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid "+OwnerHeader)
		}
		page, err := strconv.Atoi(c.Query("page", "1"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PAGE", "invalid page")
		}
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}

		res, err := trk.List(c.UserContext(), ownerID, page, limit)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// GetFile reports the status of one file and its latest job.
//
// @Summary Get file status
// @Tags files
// @Produce json
// @Param X-User-ID header int true "owner id"
// @Param id path int true "file id"
// @Success 200 {object} model.FileStatusView
// @Failure 404 {object} errorPayload
// @Router /files/{id} [get]
func GetFile(trk service.TrackingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, ok := ownerFromRequest(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid "+OwnerHeader)
		}
		id, ok := fileIDParam(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		v, err := trk.GetStatus(c.UserContext(), id, ownerID)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(v)
	}
}

// DownloadFile redirects to a presigned URL of the archived copy.
//
// @Summary Download an archived file
// @Tags files
// @Param X-User-ID header int true "owner id"
// @Param id path int true "file id"
// @Success 307
// @Failure 404 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /files/{id}/download [get]
func DownloadFile(trk service.TrackingService, expiry time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, ok := ownerFromRequest(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid "+OwnerHeader)
		}
		id, ok := fileIDParam(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		url, err := trk.DownloadURL(c.UserContext(), id, ownerID, expiry)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Redirect(url, fiber.StatusTemporaryRedirect)
	}
}

// RedispatchFile enqueues a new job for a file that never reached a worker.
//
// @Summary Redispatch an undelivered file
// @Tags files
// @Produce json
// @Param X-User-ID header int true "owner id"
// @Param id path int true "file id"
// @Success 202 {object} model.Job
// @Failure 404 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /files/{id}/redispatch [post]
func RedispatchFile(sub service.SubmissionService, trk service.TrackingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, ok := ownerFromRequest(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid "+OwnerHeader)
		}
		id, ok := fileIDParam(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		// Ownership check.
		if _, err := trk.GetStatus(c.UserContext(), id, ownerID); err != nil {
			return writeServiceError(c, err)
		}
		j, err := sub.Redispatch(c.UserContext(), id)
		if err != nil && j == nil {
			return writeServiceError(c, err)
		}
		// A job whose publish failed is already recorded and will be picked up by the reconciler.
		return c.Status(fiber.StatusAccepted).JSON(j)
	}
}

func ownerFromRequest(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Get(OwnerHeader), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func fileIDParam(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
