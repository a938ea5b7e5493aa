package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
	ErrUploadFailed      = errors.New("upload failed")
	ErrDownstreamCall    = errors.New("downstream call failed")
	ErrInconsistent      = errors.New("inconsistent state")
	ErrValidation        = errors.New("validation error")
	ErrConfiguration     = errors.New("configuration error")
)

// ErrorKind is a short, log-friendly classification of a marker.
type ErrorKind string

const (
	KindStoreUnavailable  ErrorKind = "store_unavailable"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindNotFound          ErrorKind = "not_found"
	KindUploadFailed      ErrorKind = "upload_failed"
	KindDownstreamCall    ErrorKind = "downstream_call_failed"
	KindInconsistent      ErrorKind = "inconsistent"
	KindValidation        ErrorKind = "validation"
	KindConfiguration     ErrorKind = "configuration"
	KindUnknown           ErrorKind = "unknown"
)

var markerKinds = []struct {
	marker error
	kind   ErrorKind
}{
	{ErrStoreUnavailable, KindStoreUnavailable},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrNotFound, KindNotFound},
	{ErrUploadFailed, KindUploadFailed},
	{ErrDownstreamCall, KindDownstreamCall},
	{ErrInconsistent, KindInconsistent},
	{ErrValidation, KindValidation},
	{ErrConfiguration, KindConfiguration},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrStoreUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether the poll loop should simply try again on the next
// tick. Logical errors are surfaced instead of retried.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// KindOf returns the classification of the first marker found in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, mk := range markerKinds {
		if errors.Is(err, mk.marker) {
			return mk.kind
		}
	}
	return KindUnknown
}

// ErrorDetails carries the structured pieces of a wrapped error for logging.
type ErrorDetails struct {
	Kind      ErrorKind
	Operation string
	Message   string
	Hint      string
	Cause     error
}

// Details extracts log attributes from an error produced by Wrap. Errors built
// elsewhere still yield a kind and message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{
		Kind:    KindOf(err),
		Message: strings.TrimSpace(err.Error()),
		Hint:    hintFor(KindOf(err)),
	}
	// Wrap produces "marker: stage: operation: message: cause".
	parts := strings.SplitN(details.Message, ": ", 4)
	if len(parts) >= 3 {
		details.Operation = parts[2]
	}
	if unwrapped, ok := err.(interface{ Unwrap() []error }); ok {
		errs := unwrapped.Unwrap()
		if len(errs) > 1 {
			details.Cause = errs[len(errs)-1]
		}
	}
	return details
}

func hintFor(kind ErrorKind) string {
	switch kind {
	case KindStoreUnavailable:
		return "check database connectivity; the poll loop retries automatically"
	case KindInvalidTransition:
		return "meeting status changed concurrently or the caller used the wrong operation"
	case KindNotFound:
		return "verify the meeting id and referenced files"
	case KindUploadFailed:
		return "check blob store credentials and bucket"
	case KindDownstreamCall:
		return "check downstream service availability; meeting moved to a failed status"
	case KindInconsistent:
		return "transition log disagrees with meeting status; inspect history"
	case KindConfiguration:
		return "review the configuration file"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
