package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/calin/convohist/internal/config"
	"github.com/calin/convohist/internal/crm"
	"github.com/calin/convohist/internal/domain"
	"github.com/calin/convohist/internal/logger"
	"github.com/calin/convohist/internal/repository"
	"github.com/calin/convohist/internal/service"
	"github.com/calin/convohist/internal/storage"
	"github.com/gin-gonic/gin"
)

type stubHistory struct {
	messages []domain.Message
}

func (s *stubHistory) FetchContactHistory(ctx context.Context, locationID, contactID string, observer crm.ProgressFunc) ([]domain.Message, error) {
	return s.messages, nil
}

type stubRenderer struct{}

func (stubRenderer) Render(w io.Writer, contact domain.Contact, messages []domain.Message, exportedAt time.Time) error {
	_, err := w.Write([]byte("%PDF-1.4 stub"))
	return err
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}

	history := &stubHistory{messages: []domain.Message{
		{ID: "m1", Type: domain.TypeSMS, DateAdded: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), Body: "hi"},
	}}
	exports := service.NewExportService(
		service.NewRegistry(), history, stubRenderer{}, store, nil,
		logger.NewDefault(), &service.ExportServiceConfig{},
	)

	r := gin.New()
	h := NewExportHandler(exports, nil)
	r.POST("/api/v1/exports", h.StartExport)
	r.GET("/api/v1/exports/history", h.History)
	r.GET("/api/v1/exports/history/:jobId", h.HistoryByJob)
	r.GET("/api/v1/exports/:id", h.GetStatus)
	r.GET("/api/v1/exports/:id/download", h.Download)
	return r
}

func startExport(t *testing.T, r *gin.Engine, body string) string {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/exports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("StartExport status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.JobID == "" {
		t.Fatalf("bad start response: %s (%v)", w.Body.String(), err)
	}
	return resp.JobID
}

func pollComplete(t *testing.T, r *gin.Engine, jobID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/exports/"+jobID, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("GetStatus status = %d", w.Code)
		}
		var status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		json.Unmarshal(w.Body.Bytes(), &status)
		switch status.Status {
		case string(domain.JobStatusComplete):
			return
		case string(domain.JobStatusFailed):
			t.Fatalf("job failed: %s", status.Error)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never completed")
}

func TestExportEndpointsLifecycle(t *testing.T) {
	r := newTestRouter(t)

	jobID := startExport(t, r, `{"contactId":"c1","locationId":"loc1","contact":{"name":"Jane Doe"}}`)
	pollComplete(t, r, jobID)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/exports/"+jobID+"/download", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Download status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q, want application/pdf", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "conversation-history-jane-doe-") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.HasPrefix(w.Body.String(), "%PDF") {
		t.Errorf("download body = %q", w.Body.String())
	}
}

func TestExportEndpointsValidation(t *testing.T) {
	r := newTestRouter(t)

	// Missing required fields
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/exports", strings.NewReader(`{"contactId":"c1"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing locationId status = %d, want 400", w.Code)
	}

	// Unknown job
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/exports/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", w.Code)
	}

	// Download before completion is a conflict
	jobID := startExport(t, r, `{"contactId":"c1","locationId":"loc1"}`)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/exports/"+jobID+"/download", nil))
	if w.Code != http.StatusConflict && w.Code != http.StatusOK {
		t.Errorf("early download status = %d, want 409 or 200", w.Code)
	}

	// History without an audit store
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/exports/history?locationId=loc1", nil))
	if w.Code != http.StatusNotImplemented {
		t.Errorf("history without audit status = %d, want 501", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/exports/history/job1", nil))
	if w.Code != http.StatusNotImplemented {
		t.Errorf("history by job without audit status = %d, want 501", w.Code)
	}
}

func TestExportHistoryByJob(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	audit := repository.NewExportHistoryRepository(db)
	record := &domain.ExportHistory{
		JobID:        "job1",
		LocationID:   "loc1",
		ContactID:    "c1",
		ContactName:  "Jane Doe",
		Status:       domain.JobStatusComplete,
		MessageCount: 8,
	}
	if err := audit.Create(context.Background(), record); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	r := gin.New()
	h := NewExportHandler(nil, audit)
	r.GET("/api/v1/exports/history/:jobId", h.HistoryByJob)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/exports/history/job1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("HistoryByJob status = %d, body = %s", w.Code, w.Body.String())
	}
	var got domain.ExportHistory
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad response: %s (%v)", w.Body.String(), err)
	}
	if got.JobID != "job1" || got.ContactName != "Jane Doe" || got.MessageCount != 8 {
		t.Errorf("record = %+v", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/exports/history/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing record status = %d, want 404", w.Code)
	}
}
