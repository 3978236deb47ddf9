package validation

import (
	"fmt"

	dErrors "compliance/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	MaxBodySize = 64 * 1024
)

// String element length limits
const (
	MaxSubjectLength     = 200
	MaxDescriptionLength = 10000
	MaxCommentLength     = 4000
	MaxReasonLength      = 1000
	MaxDestinationLength = 255
	MaxPurposeCodeLength = 64
)

// CheckStringLength validates that a string does not exceed the maximum length (in bytes).
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}
