package registrations

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/models"
	"github.com/utahoverlandcommunity/uoc-dm-bot/pkg/response"
	"github.com/utahoverlandcommunity/uoc-dm-bot/pkg/storage"
)

const maxListLimit = 500

// Reader is the read side of the registration store used by the admin API.
type Reader interface {
	List(ctx context.Context, limit int) ([]models.Registration, error)
	Count(ctx context.Context) (int, error)
}

// Exporter stores roster exports and signs download links.
type Exporter interface {
	ExportsBucket() string
	PresignExpire() time.Duration
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader) (string, error)
	GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	repo     Reader
	exporter Exporter
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates a registrations handler. A nil exporter disables roster export.
func NewHandler(repo Reader, exporter Exporter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, exporter: exporter, logger: logger, now: time.Now}
}

// ListResponse is the body of GET /registrations.
type ListResponse struct {
	Total         int                   `json:"total"`
	Registrations []models.Registration `json:"registrations"`
}

// List handles GET /registrations?limit=N. Newest first.
func (h *Handler) List(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	ctx := c.Request.Context()
	list, err := h.repo.List(ctx, limit)
	if err != nil {
		h.logger.Error("list registrations", zap.Error(err))
		response.Internal(c, "failed to list registrations")
		return
	}
	total, err := h.repo.Count(ctx)
	if err != nil {
		h.logger.Error("count registrations", zap.Error(err))
		response.Internal(c, "failed to count registrations")
		return
	}
	if list == nil {
		list = []models.Registration{}
	}
	response.OK(c, ListResponse{Total: total, Registrations: list})
}

// ExportResponse is the body of POST /registrations/export.
type ExportResponse struct {
	Key         string    `json:"key"`
	Rows        int       `json:"rows"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Export handles POST /registrations/export: writes the full roster as CSV to S3.
func (h *Handler) Export(c *gin.Context) {
	if h.exporter == nil || h.exporter.ExportsBucket() == "" {
		response.ServiceUnavailable(c, "roster export is not configured")
		return
	}
	ctx := c.Request.Context()
	list, err := h.repo.List(ctx, 0)
	if err != nil {
		h.logger.Error("list registrations for export", zap.Error(err))
		response.Internal(c, "failed to load registrations")
		return
	}
	body, err := WriteCSV(list)
	if err != nil {
		h.logger.Error("encode roster", zap.Error(err))
		response.Internal(c, "failed to encode roster")
		return
	}

	now := h.now()
	bucket := h.exporter.ExportsBucket()
	key, err := h.exporter.Upload(ctx, bucket, storage.ExportKey(now), storage.ContentTypeCSV, bytes.NewReader(body))
	if err != nil {
		h.logger.Error("upload roster", zap.Error(err))
		response.Internal(c, "failed to upload roster")
		return
	}
	expires := h.exporter.PresignExpire()
	url, err := h.exporter.GeneratePresignedDownloadURL(ctx, bucket, key, expires)
	if err != nil {
		h.logger.Error("presign roster", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to sign download url")
		return
	}
	h.logger.Info("roster exported", zap.String("key", key), zap.Int("rows", len(list)))
	response.Created(c, ExportResponse{Key: key, Rows: len(list), DownloadURL: url, ExpiresAt: now.Add(expires)})
}

// WriteCSV renders registrations with a header row.
func WriteCSV(list []models.Registration) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"member_id", "display_name", "full_name", "handle", "created_at", "updated_at"}); err != nil {
		return nil, err
	}
	for _, reg := range list {
		row := []string{
			csvCell(reg.MemberID),
			csvCell(reg.DisplayName),
			csvCell(reg.FullName),
			csvCell(reg.Handle),
			reg.CreatedAt.UTC().Format(time.RFC3339),
			reg.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// csvCell prefixes member-supplied text that a spreadsheet would evaluate as a formula.
func csvCell(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + v
	}
	return v
}
