package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// ScanPrinter reads one row selected with the printer column list.
func ScanPrinter(row RowScanner) (*Printer, error) {
	p := &Printer{}
	if err := row.Scan(
		&p.ID, &p.Name, &p.Online, &p.CapabilitiesJSON,
		&p.LastSeenAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

type PrinterOperations struct{}

func (o *PrinterOperations) CreatePrinter(ctx context.Context, p *Printer) error {
	_, err := GetDB().ExecContext(ctx, InsertPrinter,
		p.ID, p.Name, p.Online, p.CapabilitiesJSON)
	if err != nil {
		return fmt.Errorf("failed to create printer: %w", err)
	}
	return nil
}

func (o *PrinterOperations) GetPrinterByID(ctx context.Context, id int64) (*Printer, error) {
	p, err := ScanPrinter(GetDB().QueryRowContext(ctx, GetPrinterByID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get printer: %w", err)
	}
	return p, nil
}

func (o *PrinterOperations) ListPrinters(ctx context.Context) ([]*Printer, error) {
	rows, err := GetDB().QueryContext(ctx, ListPrinters)
	if err != nil {
		return nil, fmt.Errorf("failed to list printers: %w", err)
	}
	defer rows.Close()

	var printers []*Printer
	for rows.Next() {
		p, err := ScanPrinter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan printer: %w", err)
		}
		printers = append(printers, p)
	}
	return printers, rows.Err()
}

func (o *PrinterOperations) UpdatePrinter(ctx context.Context, p *Printer) error {
	_, err := GetDB().ExecContext(ctx, UpdatePrinter,
		p.Name, p.CapabilitiesJSON, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update printer: %w", err)
	}
	return nil
}

func (o *PrinterOperations) UpdatePrinterStatus(ctx context.Context, id int64, online bool) error {
	_, err := GetDB().ExecContext(ctx, UpdatePrinterStatus, online, id)
	if err != nil {
		return fmt.Errorf("failed to update printer status: %w", err)
	}
	return nil
}

func (o *PrinterOperations) DeletePrinter(ctx context.Context, id int64) error {
	_, err := GetDB().ExecContext(ctx, DeletePrinter, id)
	if err != nil {
		return fmt.Errorf("failed to delete printer: %w", err)
	}
	return nil
}

type SubmissionOperations struct{}

func (o *SubmissionOperations) CreateSubmission(ctx context.Context, s *Submission) error {
	result, err := GetDB().ExecContext(ctx, InsertSubmission,
		s.Reference, s.ParentReference, s.PrinterID, s.ContentType, s.Source, s.Title,
		s.Qty, s.Copies, s.OptionsJSON, s.Status, s.ResponseStatus, s.ResponseBody,
		s.ErrorMessage, s.SubmittedBy)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get submission id: %w", err)
	}
	s.ID = id
	return nil
}

func (o *SubmissionOperations) GetSubmissionByReference(ctx context.Context, ref string) (*Submission, error) {
	s, err := scanSubmission(GetDB().QueryRowContext(ctx, GetSubmissionByReference, ref))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return s, nil
}

func (o *SubmissionOperations) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]*Submission, error) {
	var conditions []string
	var args []any

	if filter.PrinterID > 0 {
		conditions = append(conditions, "printer_id = ?")
		args = append(args, filter.PrinterID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.ParentReference != "" {
		conditions = append(conditions, "parent_reference = ?")
		args = append(args, filter.ParentReference)
	}
	if filter.FromDate != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.FromDate)
	}
	if filter.ToDate != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, filter.ToDate)
	}

	query := "SELECT " + submissionColumns + " FROM submissions"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"

	limit := 100
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	args = append(args, limit, filter.Offset)

	rows, err := GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var submissions []*Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		submissions = append(submissions, s)
	}
	return submissions, rows.Err()
}

func (o *SubmissionOperations) CountSubmissionsByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	if err := GetDB().QueryRowContext(ctx, CountSubmissionsByStatus, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count submissions by status: %w", err)
	}
	return count, nil
}

func scanSubmission(row RowScanner) (*Submission, error) {
	s := &Submission{}
	if err := row.Scan(
		&s.ID, &s.Reference, &s.ParentReference, &s.PrinterID, &s.ContentType, &s.Source,
		&s.Title, &s.Qty, &s.Copies, &s.OptionsJSON, &s.Status, &s.ResponseStatus,
		&s.ResponseBody, &s.ErrorMessage, &s.SubmittedBy, &s.CreatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

type WebhookOperations struct{}

func (o *WebhookOperations) CreateWebhook(ctx context.Context, w *Webhook) error {
	result, err := GetDB().ExecContext(ctx, InsertWebhook,
		w.Name, w.URL, w.Secret, w.EventsJSON, w.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get webhook id: %w", err)
	}
	w.ID = id
	return nil
}

func (o *WebhookOperations) GetWebhookByID(ctx context.Context, id int64) (*Webhook, error) {
	w, err := scanWebhook(GetDB().QueryRowContext(ctx, GetWebhookByID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return w, nil
}

func (o *WebhookOperations) ListWebhooks(ctx context.Context) ([]*Webhook, error) {
	return o.list(ctx, ListWebhooks)
}

// ListActiveWebhooksForEvent returns enabled webhooks whose event list
// contains event.
func (o *WebhookOperations) ListActiveWebhooksForEvent(ctx context.Context, event string) ([]*Webhook, error) {
	return o.list(ctx, ListWebhooksForEvent, "%\""+event+"\"%")
}

func (o *WebhookOperations) list(ctx context.Context, query string, args ...any) ([]*Webhook, error) {
	rows, err := GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []*Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

func (o *WebhookOperations) UpdateWebhook(ctx context.Context, w *Webhook) error {
	_, err := GetDB().ExecContext(ctx, UpdateWebhook,
		w.Name, w.URL, w.Secret, w.EventsJSON, w.Enabled, w.ID)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	return nil
}

func (o *WebhookOperations) DeleteWebhook(ctx context.Context, id int64) error {
	_, err := GetDB().ExecContext(ctx, DeleteWebhook, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

func scanWebhook(row RowScanner) (*Webhook, error) {
	w := &Webhook{}
	if err := row.Scan(&w.ID, &w.Name, &w.URL, &w.Secret, &w.EventsJSON, &w.Enabled, &w.CreatedAt); err != nil {
		return nil, err
	}
	return w, nil
}

type SettingsOperations struct{}

func (o *SettingsOperations) GetSetting(ctx context.Context, key string) (*Setting, error) {
	s := &Setting{Key: key}
	err := GetDB().QueryRowContext(ctx, GetSetting, key).Scan(&s.Value, &s.Encrypted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return s, nil
}

func (o *SettingsOperations) SetSetting(ctx context.Context, key, value string, encrypted bool) error {
	_, err := GetDB().ExecContext(ctx, SetSetting, key, value, encrypted, value, encrypted)
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

var (
	Printers    = &PrinterOperations{}
	Submissions = &SubmissionOperations{}
	Webhooks    = &WebhookOperations{}
	Settings    = &SettingsOperations{}
)
