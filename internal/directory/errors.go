package directory

import (
	"fmt"

	dErrors "cdcam/pkg/domain-errors"
)

// APIError is a non-zero error code returned by the directory API.
type APIError struct {
	ErrorCode int
	Message   string
	Details   string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("directory error %d: %s (%s)", e.ErrorCode, e.Message, e.Details)
	}
	return fmt.Sprintf("directory error %d: %s", e.ErrorCode, e.Message)
}

func upstreamError(err error) error {
	return dErrors.Wrap(err, dErrors.CodeUpstream, "directory request failed")
}
