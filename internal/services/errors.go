package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrToolUnavailable     = errors.New("external tool unavailable")
	ErrNetwork             = errors.New("network error")
	ErrCorruptArchive      = errors.New("corrupt archive")
	ErrMissingManifest     = errors.New("missing manifest file")
	ErrMissingAuxiliary    = errors.New("missing auxiliary file")
	ErrMissingExpectedFile = errors.New("missing expected file")
	ErrChecksumMismatch    = errors.New("checksum mismatch")
	ErrConfiguration       = errors.New("configuration error")
	ErrExternalTool        = errors.New("external tool error")
)

// Error is a classified acquisition failure. Marker is one of the sentinel
// errors above; Err is the underlying cause, if any.
type Error struct {
	Marker    error
	Dataset   string
	Operation string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Dataset, e.Operation, e.Message)
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Marker, detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Marker, detail)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Err}
}

// Wrap builds an error message that includes dataset and step context while
// tagging it with the provided marker for later classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, dataset, operation, message string, err error) error {
	if marker == nil {
		marker = ErrExternalTool
	}
	return &Error{
		Marker:    marker,
		Dataset:   strings.TrimSpace(dataset),
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// DatasetOf returns the first dataset named by a wrapped Error in err's chain,
// or "" when none names one.
func DatasetOf(err error) string {
	var e *Error
	for err != nil && errors.As(err, &e) {
		if e.Dataset != "" {
			return e.Dataset
		}
		err = e.Err
	}
	return ""
}

// Kind maps an error to the short label persisted in the run ledger.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingManifest):
		return "missing_manifest"
	case errors.Is(err, ErrMissingAuxiliary):
		return "missing_auxiliary"
	case errors.Is(err, ErrMissingExpectedFile):
		return "missing_expected_file"
	case errors.Is(err, ErrCorruptArchive):
		return "corrupt_archive"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrToolUnavailable):
		return "tool_unavailable"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum_mismatch"
	default:
		return "internal"
	}
}

// Advisory reports whether err only warrants a warning and must not abort a job.
func Advisory(err error) bool {
	return err != nil && errors.Is(err, ErrChecksumMismatch)
}

func buildDetail(dataset, operation, message string) string {
	parts := make([]string, 0, 3)
	if dataset = strings.TrimSpace(dataset); dataset != "" {
		parts = append(parts, dataset)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "acquisition failure"
	}
	return strings.Join(parts, ": ")
}
