package core

import "github.com/printflow/printflow/internal/db"

const (
	EventJobCreated                 = "job.created"
	EventJobStatusChanged           = "job.status_changed"
	EventQueuePositionChanged       = "queue.position_changed"
	EventJobDeleted                 = "job.deleted"
	EventServiceAvailabilityChanged = "service.availability_changed"
)

type Event struct {
	Name string      `json:"event"`
	Data interface{} `json:"data"`
}

// Publisher fans events out to connected clients. Delivery is best-effort
// and must never block a job mutation.
type Publisher interface {
	Publish(event Event)
}

type JobCreatedData struct {
	Job *db.PrintJob `json:"job"`
}

type JobStatusChangedData struct {
	JobID      string `json:"job_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

type QueuePositionChangedData struct {
	VendorID string `json:"vendor_id"`
	JobID    string `json:"job_id"`
	Position int    `json:"position"`
}

type JobDeletedData struct {
	JobID string `json:"job_id"`
}

type ServiceAvailabilityChangedData struct {
	VendorID string `json:"vendor_id"`
	IsOpen   bool   `json:"is_open"`
}

// PickupNotification is handed to the Notifier when a job completes.
// Sending is best-effort; failure never affects the job's status.
type PickupNotification struct {
	Phone       string
	StudentName string
	TokenNumber int64
	VendorName  string
}

type Notifier interface {
	NotifyPickup(n PickupNotification)
}
