package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "remoteprint-db")
	if err != nil {
		panic(err)
	}

	if err := Init(Config{Path: filepath.Join(dir, "test.db")}); err != nil {
		panic(err)
	}

	code := m.Run()
	Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

func TestMigrate_Idempotent(t *testing.T) {
	require.NoError(t, Migrate(GetDB()))

	var count int
	require.NoError(t, GetDB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestPrinterOperations(t *testing.T) {
	ctx := context.Background()

	p := &Printer{ID: 7001, Name: "front-desk", Online: true, CapabilitiesJSON: `{"copies":7}`}
	require.NoError(t, Printers.CreatePrinter(ctx, p))

	got, err := Printers.GetPrinterByID(ctx, 7001)
	require.NoError(t, err)
	assert.Equal(t, "front-desk", got.Name)
	assert.True(t, got.Online)
	assert.JSONEq(t, `{"copies":7}`, got.CapabilitiesJSON)
	assert.Nil(t, got.LastSeenAt)

	require.NoError(t, Printers.UpdatePrinterStatus(ctx, 7001, false))
	got, err = Printers.GetPrinterByID(ctx, 7001)
	require.NoError(t, err)
	assert.False(t, got.Online)
	assert.NotNil(t, got.LastSeenAt)

	got.CapabilitiesJSON = `{"copies":3}`
	require.NoError(t, Printers.UpdatePrinter(ctx, got))

	list, err := Printers.ListPrinters(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, list)

	require.NoError(t, Printers.DeletePrinter(ctx, 7001))
	_, err = Printers.GetPrinterByID(ctx, 7001)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUpsertPrinter(t *testing.T) {
	_, err := GetDB().Exec(UpsertPrinter, 7100, "warehouse", true, `{}`)
	require.NoError(t, err)
	_, err = GetDB().Exec(UpsertPrinter, 7100, "warehouse-2", false, `{"color":true}`)
	require.NoError(t, err)

	got, err := Printers.GetPrinterByID(context.Background(), 7100)
	require.NoError(t, err)
	assert.Equal(t, "warehouse-2", got.Name)
	assert.False(t, got.Online)
}

func TestSubmissionOperations(t *testing.T) {
	ctx := context.Background()

	parent := &Submission{
		Reference:   "sub-parent",
		PrinterID:   42,
		ContentType: "pdf_uri",
		Source:      "remoteprint",
		Qty:         2,
		Copies:      7,
		OptionsJSON: `{"copies":7}`,
		Status:      SubmissionSubmitted,
	}
	require.NoError(t, Submissions.CreateSubmission(ctx, parent))
	assert.NotZero(t, parent.ID)

	overflow := &Submission{
		Reference:       "sub-overflow",
		ParentReference: "sub-parent",
		PrinterID:       42,
		ContentType:     "pdf_uri",
		Qty:             1,
		Copies:          1,
		OptionsJSON:     `{"copies":1}`,
		Status:          SubmissionFailed,
		ErrorMessage:    "backend unavailable",
	}
	require.NoError(t, Submissions.CreateSubmission(ctx, overflow))

	got, err := Submissions.GetSubmissionByReference(ctx, "sub-overflow")
	require.NoError(t, err)
	assert.Equal(t, "sub-parent", got.ParentReference)
	assert.Equal(t, "backend unavailable", got.ErrorMessage)

	children, err := Submissions.ListSubmissions(ctx, SubmissionFilter{ParentReference: "sub-parent"})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "sub-overflow", children[0].Reference)

	byPrinter, err := Submissions.ListSubmissions(ctx, SubmissionFilter{PrinterID: 42, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, byPrinter, 2)
	assert.Equal(t, "sub-overflow", byPrinter[0].Reference)

	failed, err := Submissions.CountSubmissionsByStatus(ctx, SubmissionFailed)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, failed, int64(1))

	_, err = Submissions.GetSubmissionByReference(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWebhookOperations(t *testing.T) {
	ctx := context.Background()

	w := &Webhook{Name: "ops", URL: "http://example.test/hook", EventsJSON: `["job_submitted"]`, Enabled: true}
	require.NoError(t, Webhooks.CreateWebhook(ctx, w))

	active, err := Webhooks.ListActiveWebhooksForEvent(ctx, "job_submitted")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "ops", active[0].Name)

	none, err := Webhooks.ListActiveWebhooksForEvent(ctx, "printer_status_changed")
	require.NoError(t, err)
	assert.Empty(t, none)

	w.Enabled = false
	require.NoError(t, Webhooks.UpdateWebhook(ctx, w))
	active, err = Webhooks.ListActiveWebhooksForEvent(ctx, "job_submitted")
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, Webhooks.DeleteWebhook(ctx, w.ID))
	_, err = Webhooks.GetWebhookByID(ctx, w.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSettingsOperations(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, Settings.SetSetting(ctx, "jwt_secret", "abc", true))
	require.NoError(t, Settings.SetSetting(ctx, "jwt_secret", "def", true))

	s, err := Settings.GetSetting(ctx, "jwt_secret")
	require.NoError(t, err)
	assert.Equal(t, "def", s.Value)
	assert.True(t, s.Encrypted)

	require.NoError(t, Settings.DeleteSetting(ctx, "jwt_secret"))
	_, err = Settings.GetSetting(ctx, "jwt_secret")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
