package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type UserOperations struct{}

func (o *UserOperations) CreateUser(ctx context.Context, u *User) error {
	_, err := GetDB().ExecContext(ctx, InsertUser,
		u.ID, u.Name, u.Email, u.Phone, u.PasswordHash, u.Role)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (o *UserOperations) GetUserByID(ctx context.Context, id string) (*User, error) {
	u := &User{}
	err := GetDB().QueryRowContext(ctx, GetUserByID, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (o *UserOperations) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	err := GetDB().QueryRowContext(ctx, GetUserByEmail, email).Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

type VendorOperations struct{}

func (o *VendorOperations) CreateVendor(ctx context.Context, v *Vendor) error {
	_, err := GetDB().ExecContext(ctx, InsertVendor, v.ID, v.UserID, v.Name, v.IsOpen)
	if err != nil {
		return fmt.Errorf("failed to create vendor: %w", err)
	}
	return nil
}

func (o *VendorOperations) GetVendorByID(ctx context.Context, id string) (*Vendor, error) {
	v := &Vendor{}
	err := GetDB().QueryRowContext(ctx, GetVendorByID, id).Scan(
		&v.ID, &v.UserID, &v.Name, &v.IsOpen, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}
	return v, nil
}

func (o *VendorOperations) GetVendorByUserID(ctx context.Context, userID string) (*Vendor, error) {
	v := &Vendor{}
	err := GetDB().QueryRowContext(ctx, GetVendorByUserID, userID).Scan(
		&v.ID, &v.UserID, &v.Name, &v.IsOpen, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get vendor by user: %w", err)
	}
	return v, nil
}

func (o *VendorOperations) ListVendors(ctx context.Context) ([]*Vendor, error) {
	rows, err := GetDB().QueryContext(ctx, ListVendors)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}
	defer rows.Close()

	var vendors []*Vendor
	for rows.Next() {
		v := &Vendor{}
		if err := rows.Scan(&v.ID, &v.UserID, &v.Name, &v.IsOpen, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

func (o *VendorOperations) SetAvailability(ctx context.Context, id string, open bool) error {
	result, err := GetDB().ExecContext(ctx, UpdateVendorAvailability, open, id)
	if err != nil {
		return fmt.Errorf("failed to update vendor availability: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (o *VendorOperations) CountVendors(ctx context.Context) (int64, error) {
	var count int64
	err := GetDB().QueryRowContext(ctx, CountVendors).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count vendors: %w", err)
	}
	return count, nil
}

type JobOperations struct{}

func (o *JobOperations) GetJobByID(ctx context.Context, id string) (*PrintJob, error) {
	j := &PrintJob{}
	err := scanJob(GetDB().QueryRowContext(ctx, GetJobByID, id), j)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

func (o *JobOperations) GetJobsByBatch(ctx context.Context, batchID string) ([]*PrintJob, error) {
	rows, err := GetDB().QueryContext(ctx, GetJobsByBatch, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListLiveByVendor returns the vendor's admitted queue in FIFO order.
func (o *JobOperations) ListLiveByVendor(ctx context.Context, vendorID string) ([]*PrintJob, error) {
	rows, err := GetDB().QueryContext(ctx, ListLiveJobsByVendor, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list live jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (o *JobOperations) ListJobs(ctx context.Context, filter JobFilter) ([]*PrintJob, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, "student_id = ?")
		args = append(args, filter.StudentID)
	}
	if filter.VendorID != "" {
		conditions = append(conditions, "vendor_id = ?")
		args = append(args, filter.VendorID)
	}
	if filter.BatchID != "" {
		conditions = append(conditions, "batch_id = ?")
		args = append(args, filter.BatchID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	query := "SELECT " + jobColumns + " FROM print_jobs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, token_number DESC"

	limit := 100
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (o *JobOperations) GetLatestByStudent(ctx context.Context, studentID string) (*PrintJob, error) {
	query := "SELECT " + jobColumns + " FROM print_jobs WHERE student_id = ? ORDER BY created_at DESC, token_number DESC LIMIT 1"
	j := &PrintJob{}
	err := scanJob(GetDB().QueryRowContext(ctx, query, studentID), j)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get latest job: %w", err)
	}
	return j, nil
}

func (o *JobOperations) CountLiveAhead(ctx context.Context, job *PrintJob) (int, error) {
	var count int
	err := GetDB().QueryRowContext(ctx, CountLiveJobsAhead,
		job.VendorID, job.CreatedAt, job.CreatedAt, job.TokenNumber).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count live jobs ahead: %w", err)
	}
	return count, nil
}

func (o *JobOperations) DeleteJob(ctx context.Context, id string) error {
	_, err := GetDB().ExecContext(ctx, DeleteJob, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (o *JobOperations) DeleteDoneByStudent(ctx context.Context, studentID string) ([]*PrintJob, error) {
	rows, err := GetDB().QueryContext(ctx, GetDoneJobsByStudent, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get done jobs: %w", err)
	}
	jobs, err := scanJobs(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if _, err := GetDB().ExecContext(ctx, DeleteDoneJobsByStudent, studentID); err != nil {
		return nil, fmt.Errorf("failed to delete done jobs: %w", err)
	}
	return jobs, nil
}

func (o *JobOperations) DeleteDoneByVendor(ctx context.Context, vendorID string) ([]*PrintJob, error) {
	rows, err := GetDB().QueryContext(ctx, GetDoneJobsByVendor, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get done jobs: %w", err)
	}
	jobs, err := scanJobs(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if _, err := GetDB().ExecContext(ctx, DeleteDoneJobsByVendor, vendorID); err != nil {
		return nil, fmt.Errorf("failed to delete done jobs: %w", err)
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner, j *PrintJob) error {
	return row.Scan(
		&j.ID, &j.TokenNumber, &j.StudentID, &j.VendorID, &j.BatchID, &j.FileRef, &j.FileName, &j.ContentType,
		&j.PageCount, &j.PageRange, &j.ColorMode, &j.Copies, &j.Duplex, &j.PaperSize, &j.Orientation, &j.PagesPerSheet,
		&j.Amount, &j.PaymentVerified, &j.PaymentReference, &j.Status, &j.CreatedAt, &j.UpdatedAt)
}

func scanJobs(rows *sql.Rows) ([]*PrintJob, error) {
	var jobs []*PrintJob
	for rows.Next() {
		j := &PrintJob{}
		if err := scanJob(rows, j); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type SettingsOperations struct{}

func (o *SettingsOperations) GetSetting(ctx context.Context, key string) (*Setting, error) {
	s := &Setting{Key: key}
	err := GetDB().QueryRowContext(ctx, GetSetting, key).Scan(&s.Value, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return s, nil
}

func (o *SettingsOperations) SetSetting(ctx context.Context, key, value string) error {
	_, err := GetDB().ExecContext(ctx, SetSetting, key, value, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (o *SettingsOperations) DeleteSetting(ctx context.Context, key string) error {
	_, err := GetDB().ExecContext(ctx, DeleteSetting, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}

type AuditOperations struct{}

func (o *AuditOperations) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	result, err := GetDB().ExecContext(ctx, InsertAuditLog,
		log.Action, log.EntityType, log.EntityID, log.DetailsJSON, log.IPAddress)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit log id: %w", err)
	}
	log.ID = id
	return nil
}

func (o *AuditOperations) ListAuditLogs(ctx context.Context, limit, offset int) ([]*AuditLog, error) {
	rows, err := GetDB().QueryContext(ctx, ListAuditLog, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*AuditLog
	for rows.Next() {
		log := &AuditLog{}
		if err := rows.Scan(
			&log.ID, &log.Action, &log.EntityType, &log.EntityID,
			&log.DetailsJSON, &log.IPAddress, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

var (
	Users    = &UserOperations{}
	Vendors  = &VendorOperations{}
	Jobs     = &JobOperations{}
	Settings = &SettingsOperations{}
	Audit    = &AuditOperations{}
)
