package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printflow/printflow/internal/db"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "printflow-core-test")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := db.Init(db.Config{Path: filepath.Join(dir, "test.db")}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	code := m.Run()

	db.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) named(name string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type recordingNotifier struct {
	mu      sync.Mutex
	pickups []PickupNotification
}

func (n *recordingNotifier) NotifyPickup(p PickupNotification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pickups = append(n.pickups, p)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pickups)
}

type testEnv struct {
	engine    *Engine
	clock     *clockwork.FakeClock
	publisher *recordingPublisher
	notifier  *recordingNotifier
	vendorID  string
	studentID string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	student := &db.User{
		ID:    uuid.NewString(),
		Name:  "Test Student",
		Email: uuid.NewString() + "@campus.test",
		Phone: "9876543210",
		Role:  "student",
	}
	require.NoError(t, db.Users.CreateUser(ctx, student))

	owner := &db.User{
		ID:    uuid.NewString(),
		Name:  "Shop Owner",
		Email: uuid.NewString() + "@shop.test",
		Role:  "vendor",
	}
	require.NoError(t, db.Users.CreateUser(ctx, owner))

	vendor := &db.Vendor{
		ID:     uuid.NewString(),
		UserID: owner.ID,
		Name:   "Test Print Shop",
		IsOpen: true,
	}
	require.NoError(t, db.Vendors.CreateVendor(ctx, vendor))

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	publisher := &recordingPublisher{}
	notifier := &recordingNotifier{}

	engine := NewEngine(db.GetDB(), publisher, notifier, EngineOptions{
		RequirePaymentBeforeQueue: true,
		Clock:                     clock,
	})

	return &testEnv{
		engine:    engine,
		clock:     clock,
		publisher: publisher,
		notifier:  notifier,
		vendorID:  vendor.ID,
		studentID: student.ID,
	}
}

func bwFile(pages, copies int) FileUpload {
	return FileUpload{
		FileName:    "notes.pdf",
		ContentType: "application/pdf",
		FileRef:     uuid.NewString(),
		Spec: PrintSpec{
			PageCount: pages,
			ColorMode: ColorModeBlackWhite,
			Copies:    copies,
		},
	}
}

func (e *testEnv) createBatch(t *testing.T, files ...FileUpload) []*db.PrintJob {
	t.Helper()
	jobs, err := e.engine.CreateBatch(context.Background(), e.studentID, e.vendorID, files)
	require.NoError(t, err)
	return jobs
}

func (e *testEnv) admit(t *testing.T, jobs []*db.PrintJob) []*db.PrintJob {
	t.Helper()
	var total int64
	for _, j := range jobs {
		total += j.Amount
	}
	admitted, err := e.engine.VerifyPayment(context.Background(), jobs[0].BatchID, uuid.NewString(), total)
	require.NoError(t, err)
	return admitted
}

func TestCreateBatchAssignsUniqueMonotonicTokens(t *testing.T) {
	env := newTestEnv(t)

	jobs := env.createBatch(t, bwFile(3, 1), bwFile(5, 2), bwFile(1, 1))
	require.Len(t, jobs, 3)

	seen := map[int64]bool{}
	for _, job := range jobs {
		assert.GreaterOrEqual(t, job.TokenNumber, int64(1000))
		assert.False(t, seen[job.TokenNumber], "token %d assigned twice", job.TokenNumber)
		seen[job.TokenNumber] = true
		assert.Equal(t, string(JobStatusPending), job.Status)
		assert.False(t, job.PaymentVerified)
		assert.Equal(t, jobs[0].BatchID, job.BatchID)
	}

	assert.Less(t, jobs[0].TokenNumber, jobs[1].TokenNumber)
	assert.Less(t, jobs[1].TokenNumber, jobs[2].TokenNumber)
}

func TestCreateBatchComputesAmount(t *testing.T) {
	env := newTestEnv(t)

	color := FileUpload{
		FileName:    "slides.pdf",
		ContentType: "application/pdf",
		FileRef:     uuid.NewString(),
		Spec: PrintSpec{
			PageCount: 4,
			ColorMode: ColorModeColor,
			Copies:    3,
		},
	}

	jobs := env.createBatch(t, bwFile(10, 2), color)

	// 10 pages x 2/page x 2 copies, then 4 pages x 5/page x 3 copies.
	assert.Equal(t, int64(40), jobs[0].Amount)
	assert.Equal(t, int64(60), jobs[1].Amount)
}

func TestCreateBatchRejectsClosedVendor(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.engine.SetVendorAvailability(context.Background(), env.vendorID, false))

	_, err := env.engine.CreateBatch(context.Background(), env.studentID, env.vendorID, []FileUpload{bwFile(1, 1)})
	assert.ErrorIs(t, err, ErrServiceClosed)
}

func TestCreateBatchRejectsUnknownVendor(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.CreateBatch(context.Background(), env.studentID, uuid.NewString(), []FileUpload{bwFile(1, 1)})
	assert.ErrorIs(t, err, ErrVendorNotFound)
}

func TestCreateBatchIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)

	bad := bwFile(2, 1)
	bad.Spec.Copies = MaxCopies + 1

	_, err := env.engine.CreateBatch(context.Background(), env.studentID, env.vendorID, []FileUpload{bwFile(1, 1), bad})
	assert.ErrorIs(t, err, ErrValidation)

	jobs, listErr := db.Jobs.ListJobs(context.Background(), db.JobFilter{StudentID: env.studentID})
	require.NoError(t, listErr)
	assert.Empty(t, jobs, "a failed batch must not leave partial jobs behind")
}

func TestVerifyPaymentAdmitsWholeBatch(t *testing.T) {
	env := newTestEnv(t)
	jobs := env.createBatch(t, bwFile(2, 1), bwFile(3, 1))

	reference := uuid.NewString()
	admitted, err := env.engine.VerifyPayment(context.Background(), jobs[0].BatchID, reference, 10)
	require.NoError(t, err)
	require.Len(t, admitted, 2)

	for _, job := range admitted {
		assert.Equal(t, string(JobStatusWaiting), job.Status)
		assert.True(t, job.PaymentVerified)
		assert.Equal(t, reference, job.PaymentReference)
	}
}

func TestVerifyPaymentRejectsWrongAmount(t *testing.T) {
	env := newTestEnv(t)
	jobs := env.createBatch(t, bwFile(2, 1))

	_, err := env.engine.VerifyPayment(context.Background(), jobs[0].BatchID, uuid.NewString(), 3)
	assert.ErrorIs(t, err, ErrAmountMismatch)

	job, getErr := db.Jobs.GetJobByID(context.Background(), jobs[0].ID)
	require.NoError(t, getErr)
	assert.Equal(t, string(JobStatusPending), job.Status)
	assert.False(t, job.PaymentVerified)
}

func TestVerifyPaymentRejectsUnknownBatch(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.VerifyPayment(context.Background(), uuid.NewString(), uuid.NewString(), 4)
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestVerifyPaymentRejectsEmptyReference(t *testing.T) {
	env := newTestEnv(t)
	jobs := env.createBatch(t, bwFile(2, 1))

	_, err := env.engine.VerifyPayment(context.Background(), jobs[0].BatchID, "   ", 4)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestVerifyPaymentRejectsReusedReference(t *testing.T) {
	env := newTestEnv(t)
	first := env.createBatch(t, bwFile(2, 1))
	second := env.createBatch(t, bwFile(3, 1))

	reference := uuid.NewString()
	_, err := env.engine.VerifyPayment(context.Background(), first[0].BatchID, reference, 4)
	require.NoError(t, err)

	_, err = env.engine.VerifyPayment(context.Background(), second[0].BatchID, reference, 6)
	assert.ErrorIs(t, err, ErrDuplicateReference)

	job, getErr := db.Jobs.GetJobByID(context.Background(), second[0].ID)
	require.NoError(t, getErr)
	assert.Equal(t, string(JobStatusPending), job.Status, "rejected verification must not admit the batch")
}

func TestVerifyPaymentRejectsAlreadyAdmittedBatch(t *testing.T) {
	env := newTestEnv(t)
	jobs := env.createBatch(t, bwFile(2, 1))
	env.admit(t, jobs)

	_, err := env.engine.VerifyPayment(context.Background(), jobs[0].BatchID, uuid.NewString(), 4)

	var conflict *StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, JobStatusWaiting, conflict.Current)
}

func TestConcurrentVerifyWithSameReference(t *testing.T) {
	env := newTestEnv(t)
	first := env.createBatch(t, bwFile(2, 1))
	second := env.createBatch(t, bwFile(2, 1))

	reference := uuid.NewString()
	errs := make(chan error, 2)

	var wg sync.WaitGroup
	for _, batchID := range []string{first[0].BatchID, second[0].BatchID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.engine.VerifyPayment(context.Background(), id, reference, 4)
			errs <- err
		}(batchID)
	}
	wg.Wait()
	close(errs)

	var successes, duplicates int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrDuplicateReference):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes, "exactly one verification may claim a reference")
	assert.Equal(t, 1, duplicates)
}

func TestApproveAndCompleteFlow(t *testing.T) {
	env := newTestEnv(t)
	jobs := env.admit(t, env.createBatch(t, bwFile(2, 1)))

	printing, err := env.engine.Approve(context.Background(), jobs[0].ID, env.vendorID)
	require.NoError(t, err)
	assert.Equal(t, string(JobStatusPrinting), printing.Status)

	done, err := env.engine.Complete(context.Background(), jobs[0].ID, env.vendorID)
	require.NoError(t, err)
	assert.Equal(t, string(JobStatusDone), done.Status)

	assert.Equal(t, 1, env.notifier.count(), "completion should fire a pickup notification")
}

func TestApproveRequiresAdmission(t *testing.T) {
	env := newTestEnv(t)
	jobs := env.createBatch(t, bwFile(2, 1))

	_, err := env.engine.Approve(context.Background(), jobs[0].ID, env.vendorID)

	var conflict *StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, JobStatusPending, conflict.Current)
	assert.Equal(t, JobStatusPrinting, conflict.Attempted)

	job, getErr := db.Jobs.GetJobByID(context.Background(), jobs[0].ID)
	require.NoError(t, getErr)
	assert.Equal(t, string(JobStatusPending), job.Status, "a rejected transition must leave the record untouched")
}

func TestCompleteRequiresPrinting(t *testing.T) {
	env := newTestEnv(t)
	jobs := env.admit(t, env.createBatch(t, bwFile(2, 1)))

	_, err := env.engine.Complete(context.Background(), jobs[0].ID, env.vendorID)

	var conflict *StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, JobStatusWaiting, conflict.Current)
	assert.Equal(t, 0, env.notifier.count())
}

func TestApproveByWrongVendor(t *testing.T) {
	env := newTestEnv(t)
	other := newTestEnv(t)
	jobs := env.admit(t, env.createBatch(t, bwFile(2, 1)))

	_, err := env.engine.Approve(context.Background(), jobs[0].ID, other.vendorID)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestApproveUnknownJob(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Approve(context.Background(), uuid.NewString(), env.vendorID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestQueuePositionsFollowCreationOrder(t *testing.T) {
	env := newTestEnv(t)

	first := env.admit(t, env.createBatch(t, bwFile(1, 1)))
	env.clock.Advance(time.Minute)
	second := env.admit(t, env.createBatch(t, bwFile(1, 1), bwFile(2, 1)))

	positions := func() []int {
		var out []int
		for _, job := range append(first, second...) {
			pos, err := env.engine.QueuePosition(context.Background(), job.ID)
			require.NoError(t, err)
			out = append(out, pos)
		}
		return out
	}

	assert.Equal(t, []int{1, 2, 3}, positions())

	// Finishing the head of the queue moves everyone else up.
	_, err := env.engine.Approve(context.Background(), first[0].ID, env.vendorID)
	require.NoError(t, err)
	_, err = env.engine.Complete(context.Background(), first[0].ID, env.vendorID)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, positions())
}

func TestPendingJobHasNoQueuePosition(t *testing.T) {
	env := newTestEnv(t)
	jobs := env.createBatch(t, bwFile(1, 1))

	pos, err := env.engine.QueuePosition(context.Background(), jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, pos, "unadmitted jobs hold no queue position")
}

func TestPrintingJobKeepsItsPosition(t *testing.T) {
	env := newTestEnv(t)

	first := env.admit(t, env.createBatch(t, bwFile(1, 1)))
	env.clock.Advance(time.Minute)
	second := env.admit(t, env.createBatch(t, bwFile(1, 1)))

	_, err := env.engine.Approve(context.Background(), first[0].ID, env.vendorID)
	require.NoError(t, err)

	pos, err := env.engine.QueuePosition(context.Background(), first[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = env.engine.QueuePosition(context.Background(), second[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
}

func TestDeleteFreesQueuePosition(t *testing.T) {
	env := newTestEnv(t)

	first := env.admit(t, env.createBatch(t, bwFile(1, 1)))
	env.clock.Advance(time.Minute)
	second := env.admit(t, env.createBatch(t, bwFile(1, 1)))

	deleted, err := env.engine.Delete(context.Background(), first[0].ID, env.vendorID)
	require.NoError(t, err)
	assert.Equal(t, first[0].FileRef, deleted.FileRef)

	pos, err := env.engine.QueuePosition(context.Background(), second[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	_, err = db.Jobs.GetJobByID(context.Background(), first[0].ID)
	assert.Error(t, err)
}

func TestTokenNumberNeverReused(t *testing.T) {
	env := newTestEnv(t)

	first := env.createBatch(t, bwFile(1, 1))
	token := first[0].TokenNumber

	_, err := env.engine.Delete(context.Background(), first[0].ID, env.vendorID)
	require.NoError(t, err)

	second := env.createBatch(t, bwFile(1, 1))
	assert.Greater(t, second[0].TokenNumber, token)
}

func TestDisabledPaymentGateAdmitsImmediately(t *testing.T) {
	env := newTestEnv(t)
	engine := NewEngine(db.GetDB(), env.publisher, env.notifier, EngineOptions{
		RequirePaymentBeforeQueue: false,
		Clock:                     env.clock,
	})

	jobs, err := engine.CreateBatch(context.Background(), env.studentID, env.vendorID, []FileUpload{bwFile(1, 1)})
	require.NoError(t, err)
	assert.Equal(t, string(JobStatusWaiting), jobs[0].Status)
	assert.True(t, jobs[0].PaymentVerified)

	pos, err := engine.QueuePosition(context.Background(), jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestClearStudentHistoryKeepsLiveJobs(t *testing.T) {
	env := newTestEnv(t)

	doneJobs := env.admit(t, env.createBatch(t, bwFile(1, 1)))
	env.clock.Advance(time.Minute)
	liveJobs := env.admit(t, env.createBatch(t, bwFile(1, 1)))

	_, err := env.engine.Approve(context.Background(), doneJobs[0].ID, env.vendorID)
	require.NoError(t, err)
	_, err = env.engine.Complete(context.Background(), doneJobs[0].ID, env.vendorID)
	require.NoError(t, err)

	cleared, err := env.engine.ClearStudentHistory(context.Background(), env.studentID)
	require.NoError(t, err)
	require.Len(t, cleared, 1)
	assert.Equal(t, doneJobs[0].ID, cleared[0].ID)

	job, err := db.Jobs.GetJobByID(context.Background(), liveJobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, string(JobStatusWaiting), job.Status)
}

func TestSetVendorAvailabilityPublishesEvent(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.engine.SetVendorAvailability(context.Background(), env.vendorID, false))

	events := env.publisher.named(EventServiceAvailabilityChanged)
	require.Len(t, events, 1)
	data := events[0].Data.(ServiceAvailabilityChangedData)
	assert.Equal(t, env.vendorID, data.VendorID)
	assert.False(t, data.IsOpen)

	assert.ErrorIs(t,
		env.engine.SetVendorAvailability(context.Background(), uuid.NewString(), true),
		ErrVendorNotFound)
}

func TestStatusChangeEventsArePublished(t *testing.T) {
	env := newTestEnv(t)
	jobs := env.admit(t, env.createBatch(t, bwFile(1, 1)))

	_, err := env.engine.Approve(context.Background(), jobs[0].ID, env.vendorID)
	require.NoError(t, err)

	events := env.publisher.named(EventJobStatusChanged)
	require.NotEmpty(t, events)

	last := events[len(events)-1].Data.(JobStatusChangedData)
	assert.Equal(t, jobs[0].ID, last.JobID)
	assert.Equal(t, string(JobStatusWaiting), last.FromStatus)
	assert.Equal(t, string(JobStatusPrinting), last.ToStatus)
}
