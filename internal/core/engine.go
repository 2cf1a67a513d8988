package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/printflow/printflow/internal/db"
)

// Token numbers are human-facing queue tickets and start at 1000.
const tokenNumberBase = 999

// Engine owns the job lifecycle: batch creation, payment admission, the
// waiting -> printing -> done transitions and queue-position fan-out. Every
// mutation is a single transaction against the job repository; events are
// published only after commit.
type Engine struct {
	db             *sql.DB
	clock          clockwork.Clock
	publisher      Publisher
	notifier       Notifier
	requirePayment bool
}

type EngineOptions struct {
	RequirePaymentBeforeQueue bool
	Clock                     clockwork.Clock
}

func NewEngine(database *sql.DB, publisher Publisher, notifier Notifier, opts EngineOptions) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		db:             database,
		clock:          clock,
		publisher:      publisher,
		notifier:       notifier,
		requirePayment: opts.RequirePaymentBeforeQueue,
	}
}

// FileUpload is one file of a batch, already validated and stored in the
// blob store by the caller.
type FileUpload struct {
	FileName    string
	ContentType string
	FileRef     string
	Spec        PrintSpec
}

// CreateBatch creates one job per uploaded file, all sharing a batch id.
// Jobs start pending unless the payment gate is disabled, in which case they
// are admitted straight to waiting. The whole batch is created atomically:
// either every file becomes a job or none does.
func (e *Engine) CreateBatch(ctx context.Context, studentID, vendorID string, files []FileUpload) ([]*db.PrintJob, error) {
	if len(files) == 0 {
		return nil, validationErrorf("batch contains no files")
	}

	vendor, err := db.Vendors.GetVendorByID(ctx, vendorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVendorNotFound
		}
		return nil, err
	}
	if !vendor.IsOpen {
		return nil, ErrServiceClosed
	}

	for i := range files {
		files[i].Spec.ApplyDefaults()
		if err := files[i].Spec.Validate(); err != nil {
			return nil, fmt.Errorf("file %q: %w", files[i].FileName, err)
		}
	}

	batchID := uuid.NewString()
	now := e.clock.Now().UTC()

	status := JobStatusPending
	verified := false
	if !e.requirePayment {
		status = JobStatusWaiting
		verified = true
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	jobs := make([]*db.PrintJob, 0, len(files))
	for _, f := range files {
		result, err := tx.ExecContext(ctx, db.NextTokenNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate token number: %w", err)
		}
		seq, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read token number: %w", err)
		}

		job := &db.PrintJob{
			ID:              uuid.NewString(),
			TokenNumber:     tokenNumberBase + seq,
			StudentID:       studentID,
			VendorID:        vendorID,
			BatchID:         batchID,
			FileRef:         f.FileRef,
			FileName:        f.FileName,
			ContentType:     f.ContentType,
			PageCount:       f.Spec.PageCount,
			PageRange:       f.Spec.PageRange,
			ColorMode:       string(f.Spec.ColorMode),
			Copies:          f.Spec.Copies,
			Duplex:          f.Spec.Duplex,
			PaperSize:       f.Spec.PaperSize,
			Orientation:     f.Spec.Orientation,
			PagesPerSheet:   f.Spec.PagesPerSheet,
			Amount:          f.Spec.Amount(),
			PaymentVerified: verified,
			Status:          string(status),
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if _, err := tx.ExecContext(ctx, db.InsertJob,
			job.ID, job.TokenNumber, job.StudentID, job.VendorID, job.BatchID,
			job.FileRef, job.FileName, job.ContentType,
			job.PageCount, job.PageRange, job.ColorMode, job.Copies,
			job.Duplex, job.PaperSize, job.Orientation, job.PagesPerSheet,
			job.Amount, job.PaymentVerified, job.PaymentReference, job.Status,
			job.CreatedAt, job.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to insert job: %w", err)
		}

		jobs = append(jobs, job)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}

	for _, job := range jobs {
		e.publish(Event{Name: EventJobCreated, Data: JobCreatedData{Job: job}})
	}
	if status == JobStatusWaiting {
		e.broadcastPositions(ctx, vendorID)
	}

	return jobs, nil
}

// VerifyPayment admits a whole batch: it records the payment reference
// (failing on reuse), checks the amount against the batch total and flips
// every pending job to waiting, all in one transaction. A batch is never
// observable partially admitted.
func (e *Engine) VerifyPayment(ctx context.Context, batchID, reference string, amount int64) ([]*db.PrintJob, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, validationErrorf("payment reference is required")
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var total int64
	var count int
	if err := tx.QueryRowContext(ctx, db.SumBatchAmount, batchID).Scan(&total, &count); err != nil {
		return nil, fmt.Errorf("failed to sum batch amount: %w", err)
	}
	if count == 0 {
		return nil, ErrBatchNotFound
	}
	if amount != total {
		return nil, ErrAmountMismatch
	}

	if _, err := tx.ExecContext(ctx, db.InsertPaymentReference, reference, batchID); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("failed to record payment reference: %w", err)
	}

	now := e.clock.Now().UTC()
	result, err := tx.ExecContext(ctx, db.AdmitBatch, reference, now, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to admit batch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected != int64(count) {
		// Some job in the batch already left pending: reject the whole
		// verification rather than admit a partial batch.
		current, lookupErr := e.batchStatus(ctx, tx, batchID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		return nil, &StateConflictError{JobID: batchID, Current: current, Attempted: JobStatusWaiting}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit verification: %w", err)
	}

	jobs, err := db.Jobs.GetJobsByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	for _, job := range jobs {
		e.publish(Event{Name: EventJobStatusChanged, Data: JobStatusChangedData{
			JobID:      job.ID,
			FromStatus: string(JobStatusPending),
			ToStatus:   string(JobStatusWaiting),
		}})
	}
	if len(jobs) > 0 {
		e.broadcastPositions(ctx, jobs[0].VendorID)
	}

	return jobs, nil
}

// VerifyPaymentForJob resolves a single job to its batch and verifies the
// batch as a whole.
func (e *Engine) VerifyPaymentForJob(ctx context.Context, jobID, reference string, amount int64) ([]*db.PrintJob, error) {
	job, err := e.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return e.VerifyPayment(ctx, job.BatchID, reference, amount)
}

// Approve moves a waiting job to printing. Only the owning vendor may
// approve, and only from waiting with payment verified.
func (e *Engine) Approve(ctx context.Context, jobID, actingVendorID string) (*db.PrintJob, error) {
	return e.advance(ctx, jobID, actingVendorID, db.ApproveJob, JobStatusPrinting)
}

// Complete moves a printing job to done and fires the best-effort pickup
// notification. Notification failure never rolls the transition back.
func (e *Engine) Complete(ctx context.Context, jobID, actingVendorID string) (*db.PrintJob, error) {
	job, err := e.advance(ctx, jobID, actingVendorID, db.CompleteJob, JobStatusDone)
	if err != nil {
		return nil, err
	}

	e.sendPickupNotification(ctx, job)
	return job, nil
}

func (e *Engine) advance(ctx context.Context, jobID, actingVendorID string, query string, to JobStatus) (*db.PrintJob, error) {
	job, err := e.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.VendorID != actingVendorID {
		return nil, ErrNotAuthorized
	}

	from := JobStatus(job.Status)
	now := e.clock.Now().UTC()

	result, err := e.db.ExecContext(ctx, query, now, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to advance job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		// Re-read so the conflict reports the status that actually blocked us.
		current, err := e.getJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return nil, &StateConflictError{JobID: jobID, Current: JobStatus(current.Status), Attempted: to}
	}

	job.Status = string(to)
	job.UpdatedAt = now

	e.publish(Event{Name: EventJobStatusChanged, Data: JobStatusChangedData{
		JobID:      job.ID,
		FromStatus: string(from),
		ToStatus:   string(to),
	}})
	e.broadcastPositions(ctx, job.VendorID)

	return job, nil
}

// Delete removes a job in any status. The caller owns blob cleanup; the
// deleted record is returned so its file ref can be released.
func (e *Engine) Delete(ctx context.Context, jobID, actingVendorID string) (*db.PrintJob, error) {
	job, err := e.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.VendorID != actingVendorID {
		return nil, ErrNotAuthorized
	}

	if err := db.Jobs.DeleteJob(ctx, jobID); err != nil {
		return nil, err
	}

	e.publish(Event{Name: EventJobDeleted, Data: JobDeletedData{JobID: jobID}})
	if job.PaymentVerified && (job.Status == string(JobStatusWaiting) || job.Status == string(JobStatusPrinting)) {
		e.broadcastPositions(ctx, job.VendorID)
	}

	return job, nil
}

// ClearStudentHistory bulk-deletes the student's own done jobs and returns
// them for blob cleanup. Live jobs are never touched.
func (e *Engine) ClearStudentHistory(ctx context.Context, studentID string) ([]*db.PrintJob, error) {
	jobs, err := db.Jobs.DeleteDoneByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		e.publish(Event{Name: EventJobDeleted, Data: JobDeletedData{JobID: job.ID}})
	}
	return jobs, nil
}

// ClearVendorHistory bulk-deletes the vendor's done jobs.
func (e *Engine) ClearVendorHistory(ctx context.Context, vendorID string) ([]*db.PrintJob, error) {
	jobs, err := db.Jobs.DeleteDoneByVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		e.publish(Event{Name: EventJobDeleted, Data: JobDeletedData{JobID: job.ID}})
	}
	return jobs, nil
}

// QueuePosition is the 1-based FIFO rank among the vendor's admitted live
// jobs, by creation time. Jobs outside the live queue report 0.
func (e *Engine) QueuePosition(ctx context.Context, jobID string) (int, error) {
	job, err := e.getJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	return e.positionOf(ctx, job)
}

func (e *Engine) positionOf(ctx context.Context, job *db.PrintJob) (int, error) {
	if !job.PaymentVerified {
		return 0, nil
	}
	if job.Status != string(JobStatusWaiting) && job.Status != string(JobStatusPrinting) {
		return 0, nil
	}
	ahead, err := db.Jobs.CountLiveAhead(ctx, job)
	if err != nil {
		return 0, err
	}
	return ahead + 1, nil
}

// ListLive returns the vendor's admitted queue in FIFO order.
func (e *Engine) ListLive(ctx context.Context, vendorID string) ([]*db.PrintJob, error) {
	return db.Jobs.ListLiveByVendor(ctx, vendorID)
}

// ListHistory returns the student's done jobs, newest first.
func (e *Engine) ListHistory(ctx context.Context, studentID string) ([]*db.PrintJob, error) {
	return db.Jobs.ListJobs(ctx, db.JobFilter{StudentID: studentID, Status: string(JobStatusDone)})
}

// SetVendorAvailability flips the upload admission gate for a vendor.
func (e *Engine) SetVendorAvailability(ctx context.Context, vendorID string, open bool) error {
	if err := db.Vendors.SetAvailability(ctx, vendorID, open); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrVendorNotFound
		}
		return err
	}
	e.publish(Event{Name: EventServiceAvailabilityChanged, Data: ServiceAvailabilityChangedData{
		VendorID: vendorID,
		IsOpen:   open,
	}})
	return nil
}

func (e *Engine) getJob(ctx context.Context, jobID string) (*db.PrintJob, error) {
	job, err := db.Jobs.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (e *Engine) batchStatus(ctx context.Context, tx *sql.Tx, batchID string) (JobStatus, error) {
	var status string
	err := tx.QueryRowContext(ctx,
		"SELECT status FROM print_jobs WHERE batch_id = ? AND status != 'pending' LIMIT 1", batchID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return JobStatusPending, nil
		}
		return "", fmt.Errorf("failed to read batch status: %w", err)
	}
	return JobStatus(status), nil
}

// broadcastPositions recomputes the whole live queue for a vendor and
// re-emits a position for every member, not just the job that moved. Full
// recomputation keeps positions consistent with FIFO order by construction.
func (e *Engine) broadcastPositions(ctx context.Context, vendorID string) {
	if e.publisher == nil {
		return
	}
	jobs, err := db.Jobs.ListLiveByVendor(ctx, vendorID)
	if err != nil {
		log.Printf("[engine] failed to recompute queue for vendor %s: %v", vendorID, err)
		return
	}
	for i, job := range jobs {
		e.publish(Event{Name: EventQueuePositionChanged, Data: QueuePositionChangedData{
			VendorID: vendorID,
			JobID:    job.ID,
			Position: i + 1,
		}})
	}
}

func (e *Engine) sendPickupNotification(ctx context.Context, job *db.PrintJob) {
	if e.notifier == nil {
		return
	}
	student, err := db.Users.GetUserByID(ctx, job.StudentID)
	if err != nil {
		log.Printf("[engine] cannot notify pickup for job %s: %v", job.ID, err)
		return
	}
	if student.Phone == "" {
		return
	}

	vendorName := ""
	if vendor, err := db.Vendors.GetVendorByID(ctx, job.VendorID); err == nil {
		vendorName = vendor.Name
	}

	e.notifier.NotifyPickup(PickupNotification{
		Phone:       student.Phone,
		StudentName: student.Name,
		TokenNumber: job.TokenNumber,
		VendorName:  vendorName,
	})
}

func (e *Engine) publish(event Event) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(event)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
