package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/orrn/remoteprint/internal/db"
	"github.com/orrn/remoteprint/internal/logger"
)

func pdfBase64() string {
	return base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))
}

func TestCreateJob_SplitsCopiesAndHoldsOverflow(t *testing.T) {
	env := newTestEnv(t)
	env.addPrinter(t, 101, true, officeCaps())

	w := env.do(http.MethodPost, "/api/jobs", CreateJobRequest{
		PrinterID:     101,
		ContentType:   "pdf",
		ContentBase64: pdfBase64(),
		Qty:           intPtr(4),
		Copies:        intPtr(3),
		Title:         "invoices",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[CreateJobResponse](t, w)
	assert.Equal(t, 2, resp.Qty)
	assert.Equal(t, 5, resp.Copies)
	require.NotNil(t, resp.Response)
	assert.Equal(t, http.StatusCreated, resp.Response.StatusCode)
	assert.JSONEq(t, "4242", string(resp.Response.Body))

	require.NotNil(t, resp.Overflow)
	assert.Equal(t, 1, resp.Overflow.Qty)
	assert.Equal(t, 2, resp.Overflow.Copies)
	assert.False(t, resp.Overflow.Submitted)
	assert.Nil(t, resp.Overflow.Submission)

	posts := env.service.received()
	require.Len(t, posts, 1, "the overflow is not printed unless asked for")
	assert.Equal(t, float64(101), posts[0]["printerId"])
	assert.Equal(t, "pdf_base64", posts[0]["contentType"])
	assert.Equal(t, "handlers-test", posts[0]["source"])
	assert.Equal(t, float64(2), posts[0]["qty"])
	assert.Equal(t, map[string]any{"copies": float64(5)}, posts[0]["options"])

	require.Len(t, env.notifier.submitted, 1)
	assert.Equal(t, resp.Reference, env.notifier.submitted[0].Reference)
	require.Len(t, env.notifier.overflows, 1)
	assert.Equal(t, 2, env.notifier.overflows[0].OverflowCopies)
	assert.False(t, env.notifier.overflows[0].Submitted)

	w = env.do(http.MethodGet, "/api/jobs/"+resp.Reference, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stored := decode[SubmissionResponse](t, w)
	assert.Equal(t, db.SubmissionSubmitted, stored.Status)
	assert.Equal(t, "invoices", stored.Title)
	assert.Equal(t, 2, stored.Qty)
	assert.Equal(t, 5, stored.Copies)
	assert.Equal(t, "admin", stored.SubmittedBy)
	assert.JSONEq(t, "4242", string(stored.ResponseBody))
}

func TestCreateJob_SubmitsOverflowOnRequest(t *testing.T) {
	env := newTestEnv(t)
	env.addPrinter(t, 102, true, officeCaps())

	w := env.do(http.MethodPost, "/api/jobs", CreateJobRequest{
		PrinterID:      102,
		ContentType:    "pdf",
		ContentBase64:  pdfBase64(),
		Qty:            intPtr(4),
		Copies:         intPtr(3),
		SubmitOverflow: true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[CreateJobResponse](t, w)
	require.NotNil(t, resp.Overflow)
	assert.True(t, resp.Overflow.Submitted)
	require.NotNil(t, resp.Overflow.Submission)
	assert.Equal(t, 1, resp.Overflow.Submission.Qty)
	assert.Equal(t, 2, resp.Overflow.Submission.Copies)

	posts := env.service.received()
	require.Len(t, posts, 2)
	assert.Equal(t, float64(1), posts[1]["qty"])
	assert.Equal(t, map[string]any{"copies": float64(2)}, posts[1]["options"])

	w = env.do(http.MethodGet, "/api/jobs?parent_reference="+resp.Reference, nil)
	require.Equal(t, http.StatusOK, w.Code)
	children := decode[[]SubmissionResponse](t, w)
	require.Len(t, children, 1)
	assert.Equal(t, resp.Overflow.Submission.Reference, children[0].Reference)
	assert.Equal(t, 2, children[0].Copies)

	assert.Len(t, env.notifier.submitted, 2)
	require.Len(t, env.notifier.overflows, 1)
	assert.True(t, env.notifier.overflows[0].Submitted)
}

func TestCreateJob_NoSplitWhenCopiesReachMaximum(t *testing.T) {
	env := newTestEnv(t)
	env.addPrinter(t, 103, true, officeCaps())

	w := env.do(http.MethodPost, "/api/jobs", CreateJobRequest{
		PrinterID:     103,
		ContentType:   "raw",
		ContentBase64: pdfBase64(),
		Qty:           intPtr(2),
		Copies:        intPtr(8),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[CreateJobResponse](t, w)
	assert.Equal(t, 2, resp.Qty)
	assert.Equal(t, 8, resp.Copies)
	assert.Nil(t, resp.Overflow)

	posts := env.service.received()
	require.Len(t, posts, 1)
	assert.Equal(t, "raw_base64", posts[0]["contentType"])
}

func TestCreateJob_ReadsContentFromDisk(t *testing.T) {
	env := newTestEnv(t)
	env.addPrinter(t, 104, true, officeCaps())
	require.NoError(t, os.WriteFile(filepath.Join(env.files, "label.pdf"), []byte("%PDF-label"), 0o644))

	w := env.do(http.MethodPost, "/api/jobs", CreateJobRequest{
		PrinterID:   104,
		ContentType: "pdf",
		File:        &FileRef{Disk: "local", Path: "label.pdf"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	posts := env.service.received()
	require.Len(t, posts, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-label")), posts[0]["content"])

	w = env.do(http.MethodPost, "/api/jobs", CreateJobRequest{
		PrinterID:   104,
		ContentType: "pdf",
		File:        &FileRef{Disk: "local", Path: "missing.pdf"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "content_not_found", decode[ErrorResponse](t, w).Error)
}

func TestCreateJob_URIWithCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.addPrinter(t, 105, true, officeCaps())

	w := env.do(http.MethodPost, "/api/jobs", CreateJobRequest{
		PrinterID:   105,
		ContentType: "pdf",
		URI:         "https://files.example.com/a.pdf",
		Credentials: map[string]string{"username": "u", "password": "p"},
		Digest:      true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	posts := env.service.received()
	require.Len(t, posts, 1)
	assert.Equal(t, "pdf_uri", posts[0]["contentType"])
	auth, ok := posts[0]["authentication"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "DigestAuth", auth["type"])

	w = env.do(http.MethodPost, "/api/jobs", CreateJobRequest{
		PrinterID:   105,
		ContentType: "pdf",
		URI:         "https://files.example.com/a.pdf",
		Credentials: map[string]string{"username": "u"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_credentials", decode[ErrorResponse](t, w).Error)
}

func TestCreateJob_RequestValidation(t *testing.T) {
	env := newTestEnv(t)
	env.addPrinter(t, 106, true, officeCaps())

	cases := []struct {
		name string
		req  CreateJobRequest
	}{
		{"no content", CreateJobRequest{PrinterID: 106, ContentType: "pdf"}},
		{"two sources", CreateJobRequest{PrinterID: 106, ContentType: "pdf", ContentBase64: pdfBase64(), URI: "https://x/a.pdf"}},
		{"credentials without uri", CreateJobRequest{PrinterID: 106, ContentType: "pdf", ContentBase64: pdfBase64(), Credentials: map[string]string{"username": "u", "password": "p"}}},
		{"bad base64", CreateJobRequest{PrinterID: 106, ContentType: "pdf", ContentBase64: "%%%"}},
		{"unknown content type", CreateJobRequest{PrinterID: 106, ContentType: "png", ContentBase64: pdfBase64()}},
		{"bad copies option", CreateJobRequest{PrinterID: 106, ContentType: "pdf", ContentBase64: pdfBase64(), Options: map[string]any{"copies": "many"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/jobs", tc.req)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	assert.Empty(t, env.service.received())
}

func TestCreateJob_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	env.addPrinter(t, 107, false, officeCaps())
	env.addPrinter(t, 108, true, officeCaps())

	cases := []struct {
		name    string
		req     CreateJobRequest
		status  int
		errCode string
	}{
		{
			name:    "unknown printer",
			req:     CreateJobRequest{PrinterID: 9107, ContentType: "pdf", ContentBase64: pdfBase64()},
			status:  http.StatusNotFound,
			errCode: "printer_not_found",
		},
		{
			name:    "offline printer",
			req:     CreateJobRequest{PrinterID: 107, ContentType: "pdf", ContentBase64: pdfBase64()},
			status:  http.StatusConflict,
			errCode: "printer_offline",
		},
		{
			name:    "unsupported paper",
			req:     CreateJobRequest{PrinterID: 108, ContentType: "pdf", ContentBase64: pdfBase64(), Options: map[string]any{"paper": "A3"}},
			status:  http.StatusUnprocessableEntity,
			errCode: "unsupported_option",
		},
		{
			name:    "unsupported dpi",
			req:     CreateJobRequest{PrinterID: 108, ContentType: "pdf", ContentBase64: pdfBase64(), Options: map[string]any{"dpi": "1200x1200"}},
			status:  http.StatusUnprocessableEntity,
			errCode: "unsupported_option",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/jobs", tc.req)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.errCode, decode[ErrorResponse](t, w).Error)
		})
	}

	assert.Empty(t, env.service.received())
	assert.Empty(t, env.notifier.submitted)
	assert.Empty(t, env.notifier.failed, "rejected jobs are not announced")

	w := env.do(http.MethodGet, fmt.Sprintf("/api/jobs?printer_id=%d&status=%s", 107, db.SubmissionRejected), nil)
	require.Equal(t, http.StatusOK, w.Code)
	rejected := decode[[]SubmissionResponse](t, w)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].ErrorMessage, "offline")
}

func TestCreateJob_PrintServiceFailure(t *testing.T) {
	env := newTestEnv(t)
	env.addPrinter(t, 109, true, officeCaps())
	env.service.status = http.StatusInternalServerError
	env.service.reply = `{"message":"printer jammed"}`

	w := env.do(http.MethodPost, "/api/jobs", CreateJobRequest{
		PrinterID:     109,
		ContentType:   "pdf",
		ContentBase64: pdfBase64(),
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "backend_error", decode[ErrorResponse](t, w).Error)

	require.Len(t, env.notifier.failed, 1)
	assert.Equal(t, http.StatusInternalServerError, env.notifier.failed[0].StatusCode)

	w = env.do(http.MethodGet, fmt.Sprintf("/api/jobs?printer_id=%d", 109), nil)
	require.Equal(t, http.StatusOK, w.Code)
	failed := decode[[]SubmissionResponse](t, w)
	require.Len(t, failed, 1)
	assert.Equal(t, db.SubmissionFailed, failed[0].Status)
	assert.Equal(t, http.StatusInternalServerError, failed[0].ResponseStatus)
	assert.JSONEq(t, `{"message":"printer jammed"}`, string(failed[0].ResponseBody))
}

func TestListJobs_BadQuery(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []string{"printer_id=abc", "limit=0", "offset=-1"} {
		w := env.do(http.MethodGet, "/api/jobs?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/jobs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetJob_UnreadableOptionsAreLogged(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, db.Submissions.CreateSubmission(context.Background(), &db.Submission{
		Reference:   "corrupt-options",
		PrinterID:   110,
		ContentType: "pdf_base64",
		Qty:         1,
		OptionsJSON: "{not json",
		Status:      db.SubmissionSubmitted,
	}))

	obs, logs := observer.New(zapcore.WarnLevel)
	logged := env.router.Group("/logged", logger.GinMiddleware(zap.New(obs)))
	NewJobHandler(nil, env.notifier).RegisterRoutes(logged)

	w := env.do(http.MethodGet, "/logged/jobs/corrupt-options", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[SubmissionResponse](t, w)
	assert.Equal(t, "corrupt-options", resp.Reference)
	assert.Empty(t, resp.Options)

	entries := logs.FilterMessage("stored submission options are unreadable").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "corrupt-options", entries[0].ContextMap()["reference"])
}
