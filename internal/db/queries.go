package db

const (
	InsertUser = `
		INSERT INTO users (id, name, email, phone, password_hash, role)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	GetUserByID = `
		SELECT id, name, email, phone, password_hash, role, created_at
		FROM users WHERE id = ?
	`

	GetUserByEmail = `
		SELECT id, name, email, phone, password_hash, role, created_at
		FROM users WHERE email = ?
	`
)

const (
	InsertVendor = `
		INSERT INTO vendors (id, user_id, name, is_open)
		VALUES (?, ?, ?, ?)
	`

	GetVendorByID = `
		SELECT id, user_id, name, is_open, created_at, updated_at
		FROM vendors WHERE id = ?
	`

	GetVendorByUserID = `
		SELECT id, user_id, name, is_open, created_at, updated_at
		FROM vendors WHERE user_id = ?
	`

	ListVendors = `
		SELECT id, user_id, name, is_open, created_at, updated_at
		FROM vendors ORDER BY name ASC
	`

	UpdateVendorAvailability = `
		UPDATE vendors SET is_open = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`

	CountVendors = `SELECT COUNT(*) FROM vendors`
)

const (
	jobColumns = `id, token_number, student_id, vendor_id, batch_id, file_ref, file_name, content_type,
		page_count, page_range, color_mode, copies, duplex, paper_size, orientation, pages_per_sheet,
		amount, payment_verified, payment_reference, status, created_at, updated_at`

	InsertJob = `
		INSERT INTO print_jobs (id, token_number, student_id, vendor_id, batch_id, file_ref, file_name, content_type,
			page_count, page_range, color_mode, copies, duplex, paper_size, orientation, pages_per_sheet,
			amount, payment_verified, payment_reference, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	NextTokenNumber = `INSERT INTO token_sequence DEFAULT VALUES`

	GetJobByID = `
		SELECT ` + jobColumns + `
		FROM print_jobs WHERE id = ?
	`

	GetJobsByBatch = `
		SELECT ` + jobColumns + `
		FROM print_jobs WHERE batch_id = ? ORDER BY token_number ASC
	`

	ListLiveJobsByVendor = `
		SELECT ` + jobColumns + `
		FROM print_jobs
		WHERE vendor_id = ? AND status IN ('waiting', 'printing') AND payment_verified = 1
		ORDER BY created_at ASC, token_number ASC
	`

	CountLiveJobsAhead = `
		SELECT COUNT(*)
		FROM print_jobs
		WHERE vendor_id = ? AND status IN ('waiting', 'printing') AND payment_verified = 1
		AND (created_at < ? OR (created_at = ? AND token_number < ?))
	`

	ApproveJob = `
		UPDATE print_jobs SET status = 'printing', updated_at = ?
		WHERE id = ? AND status = 'waiting' AND payment_verified = 1
	`

	CompleteJob = `
		UPDATE print_jobs SET status = 'done', updated_at = ?
		WHERE id = ? AND status = 'printing'
	`

	AdmitBatch = `
		UPDATE print_jobs
		SET status = 'waiting', payment_verified = 1, payment_reference = ?, updated_at = ?
		WHERE batch_id = ? AND status = 'pending' AND payment_verified = 0
	`

	InsertPaymentReference = `
		INSERT INTO payment_references (reference, batch_id) VALUES (?, ?)
	`

	SumBatchAmount = `
		SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM print_jobs WHERE batch_id = ?
	`

	DeleteJob = `DELETE FROM print_jobs WHERE id = ?`

	GetDoneJobsByStudent = `
		SELECT ` + jobColumns + `
		FROM print_jobs WHERE student_id = ? AND status = 'done'
	`

	DeleteDoneJobsByStudent = `
		DELETE FROM print_jobs WHERE student_id = ? AND status = 'done'
	`

	GetDoneJobsByVendor = `
		SELECT ` + jobColumns + `
		FROM print_jobs WHERE vendor_id = ? AND status = 'done'
	`

	DeleteDoneJobsByVendor = `
		DELETE FROM print_jobs WHERE vendor_id = ? AND status = 'done'
	`
)

const (
	GetSetting = `SELECT value, updated_at FROM settings WHERE key = ?`

	SetSetting = `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = CURRENT_TIMESTAMP
	`

	DeleteSetting = `DELETE FROM settings WHERE key = ?`
)

const (
	InsertAuditLog = `
		INSERT INTO audit_log (action, entity_type, entity_id, details_json, ip_address)
		VALUES (?, ?, ?, ?, ?)
	`

	ListAuditLog = `
		SELECT id, action, entity_type, entity_id, details_json, ip_address, created_at
		FROM audit_log ORDER BY created_at DESC LIMIT ? OFFSET ?
	`
)
