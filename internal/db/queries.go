package db

const printerColumns = `id, name, online, capabilities_json, last_seen_at, created_at, updated_at`

const (
	InsertPrinter = `
		INSERT INTO printers (id, name, online, capabilities_json)
		VALUES (?, ?, ?, ?)
	`

	UpsertPrinter = `
		INSERT INTO printers (id, name, online, capabilities_json, last_seen_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			online = excluded.online,
			capabilities_json = excluded.capabilities_json,
			last_seen_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
	`

	GetPrinterByID = `SELECT ` + printerColumns + ` FROM printers WHERE id = ?`

	ListPrinters = `SELECT ` + printerColumns + ` FROM printers ORDER BY name ASC`

	UpdatePrinter = `
		UPDATE printers SET
			name = ?, capabilities_json = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	UpdatePrinterStatus = `
		UPDATE printers SET online = ?, last_seen_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`

	DeletePrinter = `DELETE FROM printers WHERE id = ?`
)

const submissionColumns = `id, reference, parent_reference, printer_id, content_type, source, title, qty, copies,
	options_json, status, response_status, response_body, error_message, submitted_by, created_at`

const (
	InsertSubmission = `
		INSERT INTO submissions (reference, parent_reference, printer_id, content_type, source, title, qty, copies,
			options_json, status, response_status, response_body, error_message, submitted_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	GetSubmissionByReference = `SELECT ` + submissionColumns + ` FROM submissions WHERE reference = ?`

	CountSubmissionsByStatus = `SELECT COUNT(*) FROM submissions WHERE status = ?`
)

const (
	InsertWebhook = `
		INSERT INTO webhooks (name, url, secret, events_json, enabled)
		VALUES (?, ?, ?, ?, ?)
	`

	GetWebhookByID = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks WHERE id = ?
	`

	ListWebhooks = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks ORDER BY name ASC
	`

	ListWebhooksForEvent = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks WHERE enabled = 1 AND events_json LIKE ?
	`

	UpdateWebhook = `
		UPDATE webhooks SET name = ?, url = ?, secret = ?, events_json = ?, enabled = ? WHERE id = ?
	`

	DeleteWebhook = `DELETE FROM webhooks WHERE id = ?`
)

const (
	GetSetting = `SELECT value, encrypted FROM settings WHERE key = ?`

	SetSetting = `
		INSERT INTO settings (key, value, encrypted, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, encrypted = ?, updated_at = CURRENT_TIMESTAMP
	`

	DeleteSetting = `DELETE FROM settings WHERE key = ?`
)
