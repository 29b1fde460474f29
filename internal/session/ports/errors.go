package ports

import "errors"

// Collaborator failures are surfaced to the user as recoverable errors
// with a retry affordance; they must never silently advance the lifecycle.
var (
	// ErrPermissionDenied signals a denied camera/microphone/screen capture.
	ErrPermissionDenied = errors.New("media permission denied")

	// ErrPaymentDeclined signals a failed external payment execution.
	ErrPaymentDeclined = errors.New("payment declined")

	// ErrUploadFailed signals a failed deliverable upload.
	ErrUploadFailed = errors.New("file upload failed")

	// ErrDownloadFailed signals a failed deliverable download.
	ErrDownloadFailed = errors.New("file download failed")
)
