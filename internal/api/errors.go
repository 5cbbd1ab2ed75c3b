package api

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// UploadErrorCode classifies an upload failure for the caller. The uploader
// never returns a bare transport error; every failure carries a code.
type UploadErrorCode string

const (
	UploadTooLarge        UploadErrorCode = "too_large"
	UploadUnsupportedType UploadErrorCode = "unsupported_type"
	UploadRateLimited     UploadErrorCode = "rate_limited"
	UploadServerError     UploadErrorCode = "server_error"
	UploadTimeout         UploadErrorCode = "timeout"
	UploadNetworkError    UploadErrorCode = "network_error"
	UploadUnknown         UploadErrorCode = "unknown"
)

// UploadError is the tagged failure returned by the uploader.
type UploadError struct {
	Code UploadErrorCode
	Err  error
}

func (e *UploadError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// StartError wraps a failure to start a transcription job.
type StartError struct {
	Err error
}

func (e *StartError) Error() string { return fmt.Sprintf("start transcription: %v", e.Err) }
func (e *StartError) Unwrap() error { return e.Err }

// StatusError wraps a failure to fetch job status. Polling logs it and
// retries on the next tick.
type StatusError struct {
	JobID string
	Err   error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch status for job %s: %v", e.JobID, e.Err)
}
func (e *StatusError) Unwrap() error { return e.Err }

// uploadCodeForStatus maps an HTTP status to an upload error code. The
// backend answers 400 as well as 413 for oversized bodies.
func uploadCodeForStatus(status int) UploadErrorCode {
	switch {
	case status == 400 || status == 413:
		return UploadTooLarge
	case status == 415:
		return UploadUnsupportedType
	case status == 429:
		return UploadRateLimited
	case status >= 500:
		return UploadServerError
	default:
		return UploadUnknown
	}
}

// uploadCodeForErr maps a transport-level error to an upload error code.
func uploadCodeForErr(err error) UploadErrorCode {
	if errors.Is(err, context.DeadlineExceeded) {
		return UploadTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return UploadTimeout
		}
		return UploadNetworkError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return UploadNetworkError
	}
	return UploadUnknown
}

func uploadFailure(code UploadErrorCode, err error) *UploadError {
	return &UploadError{Code: code, Err: err}
}
