package domain

import "time"

// BatchMode selects how a batch reacts to a failing record.
type BatchMode string

const (
	// ModeFailFast aborts the whole batch on the first failing record.
	ModeFailFast BatchMode = "fail-fast"

	// ModeBestEffort classifies every record and marks failures per record.
	ModeBestEffort BatchMode = "best-effort"
)

// ParseBatchMode maps a user supplied mode to a BatchMode. The empty string
// selects fail-fast.
func ParseBatchMode(s string) (BatchMode, bool) {
	switch BatchMode(s) {
	case "", ModeFailFast:
		return ModeFailFast, true
	case ModeBestEffort:
		return ModeBestEffort, true
	default:
		return "", false
	}
}

// BatchItem is the outcome for one record of a best-effort batch.
// Exactly one of Result and Error is set.
type BatchItem struct {
	Index     int                   `json:"index"`
	BookingID string                `json:"bookingId"`
	Result    *ClassificationResult `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// Failed reports whether the record could not be classified.
func (i BatchItem) Failed() bool {
	return i.Result == nil
}

// ReasonCount is how often a reason label occurred across a batch.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// BatchSummary aggregates a batch for dashboards.
type BatchSummary struct {
	Total        int           `json:"total"`
	Hazardous    int           `json:"hazardous"`
	NonHazardous int           `json:"nonHazardous"`
	Failed       int           `json:"failed"`
	HazardRate   float64       `json:"hazardRate"`
	TopReasons   []ReasonCount `json:"topReasons,omitempty"`
}

// Batch job statuses.
const (
	JobPending   = "pending"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// BatchJob tracks an asynchronous batch classification.
type BatchJob struct {
	ID             string        `json:"id"`
	Status         string        `json:"status"`
	Mode           BatchMode     `json:"mode"`
	Total          int           `json:"total"`
	LexiconVersion string        `json:"lexiconVersion,omitempty"`
	Items          []BatchItem   `json:"items,omitempty"`
	Summary        *BatchSummary `json:"summary,omitempty"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
}

// BatchRequest is the message published for asynchronous processing.
type BatchRequest struct {
	JobID    string    `json:"jobId"`
	TraceID  string    `json:"traceId,omitempty"`
	Mode     BatchMode `json:"mode"`
	Bookings []Booking `json:"bookings"`
}
