package db

import (
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type Vendor struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	IsOpen    bool      `json:"is_open"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PrintJob struct {
	ID               string    `json:"id"`
	TokenNumber      int64     `json:"token_number"`
	StudentID        string    `json:"student_id"`
	VendorID         string    `json:"vendor_id"`
	BatchID          string    `json:"batch_id"`
	FileRef          string    `json:"file_ref"`
	FileName         string    `json:"file_name"`
	ContentType      string    `json:"content_type"`
	PageCount        int       `json:"page_count"`
	PageRange        string    `json:"page_range,omitempty"`
	ColorMode        string    `json:"color_mode"`
	Copies           int       `json:"copies"`
	Duplex           string    `json:"duplex"`
	PaperSize        string    `json:"paper_size"`
	Orientation      string    `json:"orientation"`
	PagesPerSheet    int       `json:"pages_per_sheet"`
	Amount           int64     `json:"amount"`
	PaymentVerified  bool      `json:"payment_verified"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AuditLog struct {
	ID          int64     `json:"id"`
	Action      string    `json:"action"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	DetailsJSON string    `json:"details_json"`
	IPAddress   string    `json:"ip_address"`
	CreatedAt   time.Time `json:"created_at"`
}

type JobFilter struct {
	StudentID string
	VendorID  string
	BatchID   string
	Status    string
	Limit     int
	Offset    int
}
