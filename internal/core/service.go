package core

import (
	"context"

	"go.uber.org/zap"
)

const DefaultJobPath = "printjobs"

// Service builds jobs wired to the printer directory, content storage and the
// print service client.
type Service struct {
	directory PrinterDirectory
	storage   ContentStore
	backend   Submitter
	defaults  Options
	source    string
	jobPath   string
	logger    *zap.Logger
}

type ServiceOption func(*Service)

func WithDefaultOptions(opts Options) ServiceOption {
	return func(s *Service) {
		s.defaults = opts.Clone()
	}
}

func WithDefaultSource(source string) ServiceOption {
	return func(s *Service) {
		s.source = source
	}
}

func WithJobPath(path string) ServiceOption {
	return func(s *Service) {
		if path != "" {
			s.jobPath = path
		}
	}
}

func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(directory PrinterDirectory, storage ContentStore, backend Submitter, opts ...ServiceOption) *Service {
	s := &Service{
		directory: directory,
		storage:   storage,
		backend:   backend,
		jobPath:   DefaultJobPath,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewJob returns an empty job with quantity 1 and the default options.
func (s *Service) NewJob() *Job {
	return &Job{
		svc: s,
		attrs: Attributes{
			Qty:     1,
			Source:  s.source,
			Options: s.defaults.Clone(),
		},
	}
}

// Print validates the job against its bound printer and posts it. The overflow
// job, if validation produced one, is left for the caller to submit.
func (j *Job) Print(ctx context.Context) (*Response, error) {
	if j.printer == nil {
		return nil, ErrPrinterNotDefined
	}
	if j.svc == nil || j.svc.backend == nil {
		return nil, ErrBackendNotConfigured
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}

	logger := j.logger().With(
		zap.Int64("printer_id", j.attrs.PrinterID),
		zap.Int("qty", j.attrs.Qty),
	)
	if j.attrs.Options.Copies != nil {
		logger = logger.With(zap.Int("copies", *j.attrs.Options.Copies))
	}
	if j.overflow != nil {
		logger.Info("overflow job created",
			zap.Int("overflow_copies", *j.overflow.attrs.Options.Copies))
	}

	resp, err := j.svc.backend.Post(ctx, j.svc.jobPath, j.attrs)
	if err != nil {
		logger.Warn("print job submission failed", zap.Error(err))
		return nil, err
	}
	logger.Info("print job submitted", zap.Int("status", resp.StatusCode))
	return resp, nil
}

// PrintTo rebinds the job to ref and prints it.
func (j *Job) PrintTo(ctx context.Context, ref PrinterRef) (*Response, error) {
	if _, err := j.SetPrinter(ctx, ref); err != nil {
		return nil, err
	}
	return j.Print(ctx)
}

func (j *Job) logger() *zap.Logger {
	if j.svc == nil || j.svc.logger == nil {
		return zap.NewNop()
	}
	return j.svc.logger
}
