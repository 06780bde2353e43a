package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/calin/convohist/internal/crm"
	"github.com/calin/convohist/internal/domain"
	"github.com/calin/convohist/internal/logger"
	"github.com/calin/convohist/internal/storage"
)

// fakeHistory returns canned messages, optionally blocking until released.
type fakeHistory struct {
	messages []domain.Message
	err      error
	release  chan struct{}
}

func (f *fakeHistory) FetchContactHistory(ctx context.Context, locationID, contactID string, observer crm.ProgressFunc) ([]domain.Message, error) {
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	if observer != nil {
		observer(domain.ExportProgress{Phase: domain.PhaseConversations, ConversationCount: 1})
	}
	return f.messages, nil
}

// fakeRenderer writes a marker and captures the messages it was given.
type fakeRenderer struct {
	mu       sync.Mutex
	rendered []domain.Message
	err      error
}

func (f *fakeRenderer) Render(w io.Writer, contact domain.Contact, messages []domain.Message, exportedAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.rendered = append([]domain.Message(nil), messages...)
	f.mu.Unlock()
	_, err := w.Write([]byte("%PDF-1.4 fake document"))
	return err
}

func newTestExportService(t *testing.T, history *fakeHistory, renderer *fakeRenderer) (*ExportService, *Registry, storage.ObjectStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	registry := NewRegistry()
	svc := NewExportService(registry, history, renderer, store, nil, logger.NewDefault(), &ExportServiceConfig{
		Retention:    time.Hour,
		ReapInterval: time.Hour,
	})
	return svc, registry, store
}

func waitForTerminal(t *testing.T, svc *ExportService, jobID string) *StatusResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := svc.GetStatus(jobID)
		if err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		if status.Status != domain.JobStatusProcessing {
			return status
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal status")
	return nil
}

func testMessages() []domain.Message {
	return []domain.Message{
		{ID: "m1", Type: domain.TypeSMS, DateAdded: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), Body: "one"},
		{ID: "m2", Type: domain.TypeSMS, DateAdded: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), Body: "two"},
		{ID: "m3", Type: domain.TypeEmail, DateAdded: time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC), Body: "three"},
	}
}

func TestStartExportCompletes(t *testing.T) {
	renderer := &fakeRenderer{}
	svc, _, store := newTestExportService(t, &fakeHistory{messages: testMessages()}, renderer)

	jobID, err := svc.StartExport(context.Background(), &StartExportRequest{
		ContactID:  "c1",
		LocationID: "loc1",
		Contact:    domain.Contact{Name: "Jane O'Doe"},
	})
	if err != nil {
		t.Fatalf("StartExport() error = %v", err)
	}

	status := waitForTerminal(t, svc, jobID)
	if status.Status != domain.JobStatusComplete {
		t.Fatalf("status = %s (%s), want complete", status.Status, status.Error)
	}
	if status.Progress.Phase != domain.PhaseComplete {
		t.Errorf("final phase = %s, want %s", status.Progress.Phase, domain.PhaseComplete)
	}

	wantPrefix := "conversation-history-jane-o-doe-"
	if !strings.HasPrefix(status.FileName, wantPrefix) || !strings.HasSuffix(status.FileName, ".pdf") {
		t.Errorf("FileName = %q, want %q prefix and .pdf suffix", status.FileName, wantPrefix)
	}

	exists, err := store.Exists(context.Background(), status.FileName)
	if err != nil || !exists {
		t.Errorf("artifact missing from storage: exists=%v err=%v", exists, err)
	}

	rc, fileName, err := svc.OpenArtifact(context.Background(), jobID)
	if err != nil {
		t.Fatalf("OpenArtifact() error = %v", err)
	}
	defer rc.Close()
	if fileName != status.FileName {
		t.Errorf("OpenArtifact file name = %q, want %q", fileName, status.FileName)
	}
	data, _ := io.ReadAll(rc)
	if !strings.HasPrefix(string(data), "%PDF") {
		t.Errorf("artifact content = %q", data)
	}
}

func TestStartExportAppliesDateRange(t *testing.T) {
	renderer := &fakeRenderer{}
	svc, _, _ := newTestExportService(t, &fakeHistory{messages: testMessages()}, renderer)

	jobID, err := svc.StartExport(context.Background(), &StartExportRequest{
		ContactID:  "c1",
		LocationID: "loc1",
		Contact:    domain.Contact{Name: "Jane"},
		DateRange:  &domain.DateRange{StartDate: "2024-03-04", EndDate: "2024-03-06"},
	})
	if err != nil {
		t.Fatalf("StartExport() error = %v", err)
	}

	status := waitForTerminal(t, svc, jobID)
	if status.Status != domain.JobStatusComplete {
		t.Fatalf("status = %s (%s), want complete", status.Status, status.Error)
	}

	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	if len(renderer.rendered) != 1 || renderer.rendered[0].ID != "m2" {
		t.Errorf("rendered messages = %+v, want only m2", renderer.rendered)
	}
}

func TestStartExportValidation(t *testing.T) {
	svc, _, _ := newTestExportService(t, &fakeHistory{}, &fakeRenderer{})

	if _, err := svc.StartExport(context.Background(), &StartExportRequest{LocationID: "loc1"}); err == nil {
		t.Error("expected error for missing contact id")
	}
	if _, err := svc.StartExport(context.Background(), &StartExportRequest{ContactID: "c1"}); err == nil {
		t.Error("expected error for missing location id")
	}
}

func TestStartExportHistoryFailure(t *testing.T) {
	svc, _, _ := newTestExportService(t, &fakeHistory{err: fmt.Errorf("upstream exploded")}, &fakeRenderer{})

	jobID, err := svc.StartExport(context.Background(), &StartExportRequest{
		ContactID:  "c1",
		LocationID: "loc1",
	})
	if err != nil {
		t.Fatalf("StartExport() error = %v", err)
	}

	status := waitForTerminal(t, svc, jobID)
	if status.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", status.Status)
	}
	if !strings.Contains(status.Error, "upstream exploded") {
		t.Errorf("Error = %q, want cause preserved", status.Error)
	}
}

func TestOpenArtifactNotReady(t *testing.T) {
	release := make(chan struct{})
	svc, _, _ := newTestExportService(t, &fakeHistory{release: release, messages: testMessages()}, &fakeRenderer{})

	jobID, err := svc.StartExport(context.Background(), &StartExportRequest{
		ContactID:  "c1",
		LocationID: "loc1",
	})
	if err != nil {
		t.Fatalf("StartExport() error = %v", err)
	}

	if _, _, err := svc.OpenArtifact(context.Background(), jobID); !errors.Is(err, ErrJobNotReady) {
		t.Errorf("OpenArtifact() error = %v, want ErrJobNotReady", err)
	}

	close(release)
	waitForTerminal(t, svc, jobID)
}

func TestOpenArtifactUnknownJob(t *testing.T) {
	svc, _, _ := newTestExportService(t, &fakeHistory{}, &fakeRenderer{})

	if _, err := svc.GetStatus("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetStatus() error = %v, want ErrJobNotFound", err)
	}
	if _, _, err := svc.OpenArtifact(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("OpenArtifact() error = %v, want ErrJobNotFound", err)
	}
}

func TestReapOnce(t *testing.T) {
	svc, registry, store := newTestExportService(t, &fakeHistory{}, &fakeRenderer{})
	ctx := context.Background()

	// Expired complete job with an artifact on disk
	if err := store.Upload(ctx, "old.pdf", strings.NewReader("stale"), 5, "application/pdf"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	registry.Put(&domain.ExportJob{
		ID:         "old",
		Status:     domain.JobStatusComplete,
		StorageKey: "old.pdf",
		FileName:   "old.pdf",
		CreatedAt:  time.Now().Add(-2 * time.Hour),
	})

	// Fresh job that must survive the sweep
	registry.Put(&domain.ExportJob{
		ID:        "fresh",
		Status:    domain.JobStatusProcessing,
		CreatedAt: time.Now(),
	})

	svc.reapOnce(ctx)

	if _, ok := registry.Get("old"); ok {
		t.Error("expired job still registered after reap")
	}
	if _, ok := registry.Get("fresh"); !ok {
		t.Error("fresh job was reaped")
	}
	exists, err := store.Exists(ctx, "old.pdf")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("expired artifact still in storage after reap")
	}

	// Workers for a reaped job observe the missing entry
	if ok := registry.Update("old", func(job *domain.ExportJob) {}); ok {
		t.Error("Update() on reaped job returned true")
	}
}

func TestArtifactFileName(t *testing.T) {
	tests := []struct {
		contactName string
		jobID       string
		want        string
	}{
		{"Jane Doe", "abcdef1234567890", "conversation-history-jane-doe-abcdef12.pdf"},
		{"  Ünïcode!! Näme  ", "short", "conversation-history-n-code-n-me-short.pdf"},
		{"", "abcdef1234567890", "conversation-history-contact-abcdef12.pdf"},
		{"!!!", "abcdef1234567890", "conversation-history-contact-abcdef12.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.contactName, func(t *testing.T) {
			if got := artifactFileName(tt.contactName, tt.jobID); got != tt.want {
				t.Errorf("artifactFileName(%q, %q) = %q, want %q", tt.contactName, tt.jobID, got, tt.want)
			}
		})
	}
}
