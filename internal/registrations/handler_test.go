package registrations

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/models"
)

type fakeReader struct {
	list      []models.Registration
	err       error
	lastLimit int
}

func (f *fakeReader) List(_ context.Context, limit int) ([]models.Registration, error) {
	f.lastLimit = limit
	return f.list, f.err
}

func (f *fakeReader) Count(context.Context) (int, error) { return len(f.list), f.err }

type fakeExporter struct {
	bucket   string
	uploaded map[string]string
	upErr    error
}

func (f *fakeExporter) ExportsBucket() string         { return f.bucket }
func (f *fakeExporter) PresignExpire() time.Duration { return 10 * time.Minute }

func (f *fakeExporter) Upload(_ context.Context, bucket, key, _ string, body io.Reader) (string, error) {
	if f.upErr != nil {
		return "", f.upErr
	}
	b, _ := io.ReadAll(body)
	f.uploaded[bucket+"/"+key] = string(b)
	return key, nil
}

func (f *fakeExporter) GeneratePresignedDownloadURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://" + bucket + ".example/" + key + "?sig=1", nil
}

var stamp = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleRegs() []models.Registration {
	return []models.Registration{
		{MemberID: "m1", DisplayName: "jane", FullName: "Jane Doe", Handle: "janedoe", CreatedAt: stamp, UpdatedAt: stamp},
		{MemberID: "m2", DisplayName: "mo", FullName: "Mo, Jr", Handle: "mo", CreatedAt: stamp, UpdatedAt: stamp},
	}
}

func router(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/registrations", h.List)
	r.POST("/registrations/export", h.Export)
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func do(t *testing.T, r http.Handler, method, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var body envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestListRegistrations(t *testing.T) {
	repo := &fakeReader{list: sampleRegs()}
	w, body := do(t, router(NewHandler(repo, nil, nil)), http.MethodGet, "/registrations?limit=1000")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxListLimit, repo.lastLimit)

	var got ListResponse
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, "Jane Doe", got.Registrations[0].FullName)
}

func TestListRegistrationsBadLimit(t *testing.T) {
	w, _ := do(t, router(NewHandler(&fakeReader{}, nil, nil)), http.MethodGet, "/registrations?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRegistrationsStoreError(t *testing.T) {
	w, body := do(t, router(NewHandler(&fakeReader{err: errors.New("db down")}, nil, nil)), http.MethodGet, "/registrations")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, body.Success)
}

func TestExportWithoutBucket(t *testing.T) {
	w, _ := do(t, router(NewHandler(&fakeReader{}, nil, nil)), http.MethodPost, "/registrations/export")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestExportUploadsCSV(t *testing.T) {
	exp := &fakeExporter{bucket: "exports", uploaded: map[string]string{}}
	h := NewHandler(&fakeReader{list: sampleRegs()}, exp, nil)
	h.now = func() time.Time { return stamp }

	w, body := do(t, router(h), http.MethodPost, "/registrations/export")
	require.Equal(t, http.StatusCreated, w.Code)

	var got ExportResponse
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Equal(t, "exports/2024/05/registrations-20240501T120000Z.csv", got.Key)
	assert.Equal(t, 2, got.Rows)
	assert.True(t, strings.HasPrefix(got.DownloadURL, "https://exports.example/"))
	assert.Equal(t, stamp.Add(10*time.Minute), got.ExpiresAt)

	csvBody := exp.uploaded["exports/"+got.Key]
	lines := strings.Split(strings.TrimSpace(csvBody), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "member_id,display_name,full_name,handle,created_at,updated_at", lines[0])
	assert.Equal(t, `m2,mo,"Mo, Jr",mo,2024-05-01T12:00:00Z,2024-05-01T12:00:00Z`, lines[2])
}

func TestExportUploadFailure(t *testing.T) {
	exp := &fakeExporter{bucket: "exports", uploaded: map[string]string{}, upErr: errors.New("denied")}
	w, _ := do(t, router(NewHandler(&fakeReader{list: sampleRegs()}, exp, nil)), http.MethodPost, "/registrations/export")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWriteCSVNeutralisesFormulas(t *testing.T) {
	body, err := WriteCSV([]models.Registration{
		{MemberID: "m1", DisplayName: "+eve", FullName: "=HYPERLINK(\"http://x\")", Handle: "@eve", CreatedAt: stamp, UpdatedAt: stamp},
		{MemberID: "m2", DisplayName: "-", FullName: "Jane Doe", Handle: "janedoe", CreatedAt: stamp, UpdatedAt: stamp},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `m1,'+eve,"'=HYPERLINK(""http://x"")",'@eve,2024-05-01T12:00:00Z,2024-05-01T12:00:00Z`, lines[1])
	assert.Equal(t, `m2,'-,Jane Doe,janedoe,2024-05-01T12:00:00Z,2024-05-01T12:00:00Z`, lines[2])
}
