package core

import "errors"

var (
	ErrPrinterNotDefined  = errors.New("printer not defined")
	ErrPrinterOffline     = errors.New("printer is offline")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnsupportedPaper   = errors.New("paper not supported by printer")
	ErrUnsupportedMedia   = errors.New("media not supported by printer")
	ErrUnsupportedDPI     = errors.New("dpi not supported by printer")
	ErrContentNotFound    = errors.New("content not found")

	ErrBackendNotConfigured = errors.New("print service client not configured")
)

// IsValidationError reports whether err is one of the precondition failures
// raised while configuring or validating a job, as opposed to a transport error.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrPrinterNotDefined,
		ErrPrinterOffline,
		ErrInvalidCredentials,
		ErrUnsupportedPaper,
		ErrUnsupportedMedia,
		ErrUnsupportedDPI,
		ErrContentNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
