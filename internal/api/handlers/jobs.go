package handlers

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orrn/remoteprint/internal/api/middleware"
	"github.com/orrn/remoteprint/internal/backend"
	"github.com/orrn/remoteprint/internal/core"
	"github.com/orrn/remoteprint/internal/db"
	"github.com/orrn/remoteprint/internal/directory"
	"github.com/orrn/remoteprint/internal/logger"
	"github.com/orrn/remoteprint/internal/storage"
	"github.com/orrn/remoteprint/internal/webhook"
)

// JobNotifier announces submission outcomes, usually through webhooks.
type JobNotifier interface {
	SendJobSubmitted(ctx context.Context, data webhook.JobEventData)
	SendJobFailed(ctx context.Context, data webhook.JobEventData)
	SendOverflowCreated(ctx context.Context, data webhook.OverflowEventData)
}

type FileRef struct {
	Disk string `json:"disk" binding:"required"`
	Path string `json:"path" binding:"required"`
}

type CreateJobRequest struct {
	PrinterID      int64             `json:"printer_id" binding:"required"`
	ContentType    string            `json:"content_type" binding:"required,oneof=pdf raw"`
	ContentBase64  string            `json:"content_base64"`
	URI            string            `json:"uri"`
	File           *FileRef          `json:"file"`
	Credentials    map[string]string `json:"credentials"`
	Digest         bool              `json:"digest"`
	Qty            *int              `json:"qty"`
	Copies         *int              `json:"copies"`
	Options        map[string]any    `json:"options"`
	Source         string            `json:"source"`
	Title          string            `json:"title"`
	ExpireAfter    *int              `json:"expire_after"`
	SubmitOverflow bool              `json:"submit_overflow"`
}

type SubmissionResult struct {
	Reference string         `json:"reference"`
	PrinterID int64          `json:"printer_id"`
	Qty       int            `json:"qty"`
	Copies    int            `json:"copies"`
	Response  *core.Response `json:"response"`
}

type OverflowResult struct {
	Qty        int               `json:"qty"`
	Copies     int               `json:"copies"`
	Attributes core.Attributes   `json:"attributes"`
	Submitted  bool              `json:"submitted"`
	Submission *SubmissionResult `json:"submission,omitempty"`
	Error      string            `json:"error,omitempty"`
}

type CreateJobResponse struct {
	SubmissionResult
	Overflow *OverflowResult `json:"overflow,omitempty"`
}

type SubmissionResponse struct {
	ID              int64           `json:"id"`
	Reference       string          `json:"reference"`
	ParentReference string          `json:"parent_reference,omitempty"`
	PrinterID       int64           `json:"printer_id"`
	ContentType     string          `json:"content_type"`
	Source          string          `json:"source"`
	Title           string          `json:"title,omitempty"`
	Qty             int             `json:"qty"`
	Copies          int             `json:"copies"`
	Options         map[string]any  `json:"options"`
	Status          string          `json:"status"`
	ResponseStatus  int             `json:"response_status,omitempty"`
	ResponseBody    json.RawMessage `json:"response_body,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	SubmittedBy     string          `json:"submitted_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type JobHandler struct {
	service  *core.Service
	notifier JobNotifier
}

func NewJobHandler(service *core.Service, notifier JobNotifier) *JobHandler {
	return &JobHandler{
		service:  service,
		notifier: notifier,
	}
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	log := logger.FromGin(c)

	job, err := h.buildJob(ctx, &req)
	if err != nil {
		writeJobError(c, err)
		return
	}

	reference := uuid.NewString()
	resp, err := job.PrintTo(ctx, core.PrinterID(req.PrinterID))
	h.record(c, reference, "", req.PrinterID, job, resp, err)
	if err != nil {
		log.Warn("print job not submitted", zap.Int64("printer_id", req.PrinterID), zap.Error(err))
		writeJobError(c, err)
		return
	}

	result := CreateJobResponse{
		SubmissionResult: submissionResult(reference, req.PrinterID, job, resp),
	}

	if overflow := job.Overflow(); overflow != nil {
		result.Overflow = h.handleOverflow(c, reference, req.PrinterID, overflow, req.SubmitOverflow)
	}

	c.JSON(http.StatusCreated, result)
}

func (h *JobHandler) buildJob(ctx context.Context, req *CreateJobRequest) (*core.Job, error) {
	sources := 0
	for _, set := range []bool{req.ContentBase64 != "", req.URI != "", req.File != nil} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return nil, errBadRequest("exactly one of content_base64, uri or file is required")
	}
	if req.Credentials != nil && req.URI == "" {
		return nil, errBadRequest("credentials are only accepted with uri content")
	}

	opts, err := core.OptionsFromMap(req.Options)
	if err != nil {
		return nil, errBadRequest(err.Error())
	}

	job := h.service.NewJob().SetOptions(opts)
	if req.Qty != nil {
		job.SetQuantity(*req.Qty)
	}
	if req.Copies != nil {
		job.SetCopies(*req.Copies)
	}
	if req.Source != "" {
		job.SetSource(req.Source)
	}
	if req.Title != "" {
		job.SetTitle(req.Title)
	}
	if req.ExpireAfter != nil {
		job.SetExpireAfter(*req.ExpireAfter)
	}

	raw := req.ContentType == "raw"
	switch {
	case req.ContentBase64 != "":
		data, err := base64.StdEncoding.DecodeString(req.ContentBase64)
		if err != nil {
			return nil, errBadRequest("content_base64 is not valid base64")
		}
		job.SetContentBytes(data, raw)
	case req.URI != "":
		if _, err := job.SetContentURI(req.URI, raw, req.Credentials, !req.Digest); err != nil {
			return nil, err
		}
	default:
		if _, err := job.SetContentFile(ctx, req.File.Disk, req.File.Path, raw); err != nil {
			return nil, err
		}
	}
	return job, nil
}

// handleOverflow reports the overflow job and prints it only on request.
func (h *JobHandler) handleOverflow(c *gin.Context, parent string, printerID int64, overflow *core.Job, submit bool) *OverflowResult {
	ctx := c.Request.Context()
	result := &OverflowResult{
		Qty:        overflow.Quantity(),
		Copies:     copiesOf(overflow),
		Attributes: overflow.Attributes(),
	}

	if submit {
		reference := uuid.NewString()
		resp, err := overflow.Print(ctx)
		h.record(c, reference, parent, printerID, overflow, resp, err)
		if err != nil {
			logger.FromGin(c).Warn("overflow job not submitted",
				zap.String("parent_reference", parent), zap.Error(err))
			result.Error = err.Error()
		} else {
			result.Submitted = true
			sub := submissionResult(reference, printerID, overflow, resp)
			result.Submission = &sub
		}
	}

	if h.notifier != nil {
		h.notifier.SendOverflowCreated(ctx, webhook.OverflowEventData{
			Reference:      parent,
			PrinterID:      printerID,
			OverflowCopies: result.Copies,
			Submitted:      result.Submitted,
		})
	}
	return result
}

// record stores the outcome of one submission attempt and announces it.
func (h *JobHandler) record(c *gin.Context, reference, parent string, printerID int64, job *core.Job, resp *core.Response, printErr error) {
	ctx := c.Request.Context()
	attrs := job.Attributes()

	optionsJSON, err := json.Marshal(attrs.Options)
	if err != nil {
		optionsJSON = []byte("{}")
	}

	s := &db.Submission{
		Reference:       reference,
		ParentReference: parent,
		PrinterID:       printerID,
		ContentType:     string(attrs.ContentType),
		Source:          attrs.Source,
		Title:           attrs.Title,
		Qty:             attrs.Qty,
		Copies:          copiesOf(job),
		OptionsJSON:     string(optionsJSON),
		Status:          db.SubmissionSubmitted,
		SubmittedBy:     c.GetString(middleware.ContextKeySubject),
	}

	var httpErr *backend.HTTPError
	switch {
	case printErr == nil:
		if resp != nil {
			s.ResponseStatus = resp.StatusCode
			s.ResponseBody = string(resp.Body)
		}
	case errors.As(printErr, &httpErr):
		s.Status = db.SubmissionFailed
		s.ResponseStatus = httpErr.StatusCode
		s.ResponseBody = httpErr.Body
		s.ErrorMessage = printErr.Error()
	case isRejection(printErr):
		s.Status = db.SubmissionRejected
		s.ErrorMessage = printErr.Error()
	default:
		s.Status = db.SubmissionFailed
		s.ErrorMessage = printErr.Error()
	}

	if err := db.Submissions.CreateSubmission(ctx, s); err != nil {
		logger.FromGin(c).Error("failed to record submission", zap.String("reference", reference), zap.Error(err))
	}

	if h.notifier == nil || s.Status == db.SubmissionRejected {
		return
	}
	data := webhook.JobEventData{
		Reference:    reference,
		PrinterID:    printerID,
		Qty:          s.Qty,
		Copies:       s.Copies,
		StatusCode:   s.ResponseStatus,
		ErrorMessage: s.ErrorMessage,
	}
	if s.Status == db.SubmissionSubmitted {
		h.notifier.SendJobSubmitted(ctx, data)
	} else {
		h.notifier.SendJobFailed(ctx, data)
	}
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	filter := db.SubmissionFilter{
		Status:          c.Query("status"),
		ParentReference: c.Query("parent_reference"),
	}
	if v := c.Query("printer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_printer_id", Message: "Invalid printer ID"})
			return
		}
		filter.PrinterID = id
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_limit", Message: "Invalid limit"})
			return
		}
		filter.Limit = limit
	}
	if v := c.Query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_offset", Message: "Invalid offset"})
			return
		}
		filter.Offset = offset
	}

	submissions, err := db.Submissions.ListSubmissions(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve jobs",
		})
		return
	}

	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, s := range submissions {
		responses = append(responses, submissionToResponse(c, s))
	}
	c.JSON(http.StatusOK, responses)
}

func (h *JobHandler) GetJob(c *gin.Context) {
	s, err := db.Submissions.GetSubmissionByReference(c.Request.Context(), c.Param("ref"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Job not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve job",
		})
		return
	}
	c.JSON(http.StatusOK, submissionToResponse(c, s))
}

func (h *JobHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/jobs", h.ListJobs)
	r.POST("/jobs", h.CreateJob)
	r.GET("/jobs/:ref", h.GetJob)
}

type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func errBadRequest(msg string) error {
	return &badRequestError{msg: msg}
}

func isRejection(err error) bool {
	var bad *badRequestError
	return errors.As(err, &bad) ||
		core.IsValidationError(err) ||
		errors.Is(err, directory.ErrPrinterNotFound)
}

// writeJobError maps job errors onto HTTP statuses.
func writeJobError(c *gin.Context, err error) {
	var bad *badRequestError
	switch {
	case errors.As(err, &bad):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: bad.msg})
	case errors.Is(err, directory.ErrPrinterNotFound), errors.Is(err, core.ErrPrinterNotDefined):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "printer_not_found", Message: err.Error()})
	case errors.Is(err, core.ErrPrinterOffline):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "printer_offline", Message: err.Error()})
	case errors.Is(err, core.ErrContentNotFound), errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "content_not_found", Message: err.Error()})
	case errors.Is(err, core.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_credentials", Message: err.Error()})
	case errors.Is(err, core.ErrUnsupportedPaper),
		errors.Is(err, core.ErrUnsupportedMedia),
		errors.Is(err, core.ErrUnsupportedDPI):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "unsupported_option", Message: err.Error()})
	case errors.Is(err, core.ErrBackendNotConfigured):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "backend_unavailable", Message: err.Error()})
	default:
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "backend_error", Message: err.Error()})
	}
}

func copiesOf(job *core.Job) int {
	if opts := job.Options(); opts.Copies != nil {
		return *opts.Copies
	}
	return 0
}

func submissionResult(reference string, printerID int64, job *core.Job, resp *core.Response) SubmissionResult {
	return SubmissionResult{
		Reference: reference,
		PrinterID: printerID,
		Qty:       job.Quantity(),
		Copies:    copiesOf(job),
		Response:  resp,
	}
}

func submissionToResponse(c *gin.Context, s *db.Submission) SubmissionResponse {
	var options map[string]any
	if s.OptionsJSON != "" {
		if err := json.Unmarshal([]byte(s.OptionsJSON), &options); err != nil {
			logger.FromGin(c).Warn("stored submission options are unreadable",
				zap.String("reference", s.Reference), zap.Error(err))
			options = nil
		}
	}
	if options == nil {
		options = map[string]any{}
	}

	resp := SubmissionResponse{
		ID:              s.ID,
		Reference:       s.Reference,
		ParentReference: s.ParentReference,
		PrinterID:       s.PrinterID,
		ContentType:     s.ContentType,
		Source:          s.Source,
		Title:           s.Title,
		Qty:             s.Qty,
		Copies:          s.Copies,
		Options:         options,
		Status:          s.Status,
		ResponseStatus:  s.ResponseStatus,
		ErrorMessage:    s.ErrorMessage,
		SubmittedBy:     s.SubmittedBy,
		CreatedAt:       s.CreatedAt,
	}
	if s.ResponseBody != "" && json.Valid([]byte(s.ResponseBody)) {
		resp.ResponseBody = json.RawMessage(s.ResponseBody)
	}
	return resp
}
