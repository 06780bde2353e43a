package domain

import "time"

// JobStatus represents the lifecycle status of an export job.
// Values include JobStatusProcessing, JobStatusComplete, and JobStatusFailed.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
)

// Progress phases emitted by the history aggregator and the export worker.
// Consumers must treat unrecognized phases as opaque progress.
const (
	PhaseStarting         = "starting"
	PhaseConversations    = "conversations"
	PhaseFetchingMessages = "fetching_messages"
	PhaseTranscriptions   = "transcriptions"
	PhaseGeneratingPDF    = "generating_pdf"
	PhaseComplete         = "complete"
)

// ExportProgress is a tagged progress snapshot. Phase is the discriminant;
// only the counters relevant to the phase are set.
type ExportProgress struct {
	Phase                   string `json:"phase"`
	ConversationCount       int    `json:"conversationCount,omitempty"`
	TotalConversations      int    `json:"totalConversations,omitempty"`
	CompletedConversations  int    `json:"completedConversations,omitempty"`
	TotalMessages           int    `json:"totalMessages,omitempty"`
	TotalTranscriptions     int    `json:"totalTranscriptions,omitempty"`
	CompletedTranscriptions int    `json:"completedTranscriptions,omitempty"`
}

// ExportJob represents one asynchronous export request and its progress
// metadata. Only the owning worker and the reaper mutate a job; status
// polls read snapshots.
type ExportJob struct {
	ID         string         `json:"id"`
	ContactID  string         `json:"contact_id"`
	LocationID string         `json:"location_id"`
	Contact    Contact        `json:"contact"`
	Status     JobStatus      `json:"status"`
	Progress   ExportProgress `json:"progress"`
	CreatedAt  time.Time      `json:"created_at"`
	FileName   string         `json:"file_name,omitempty"`
	StorageKey string         `json:"-"`
	Error      string         `json:"error,omitempty"`
}

// DateRange narrows an export to an inclusive day-level window. Dates use
// the "2006-01-02" form; either bound may be empty.
type DateRange struct {
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}
