package gstpipe

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory classifies pipeline errors for telemetry.
type ErrorCategory int

const (
	// ErrCategoryNetwork covers network sources (connection, timeout, DNS).
	ErrCategoryNetwork ErrorCategory = iota
	// ErrCategoryFormat covers negotiation and decoding failures.
	ErrCategoryFormat
	// ErrCategoryResource covers missing files, busy devices, permissions.
	ErrCategoryResource
	// ErrCategoryUnknown covers everything else.
	ErrCategoryUnknown
)

// String returns the category name.
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryFormat:
		return "format"
	case ErrCategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Retryable reports whether restarting the pipeline may help.
func (e ErrorCategory) Retryable() bool {
	return e == ErrCategoryNetwork || e == ErrCategoryUnknown
}

var (
	// Checked first; "could not open resource for reading" is more specific
	// than the network keywords.
	resourceKeywords = []string{
		"no such file",
		"not found",
		"could not open",
		"permission denied",
		"busy",
		"no space",
		"resource",
		"device",
	}
	formatKeywords = []string{
		"not-negotiated",
		"not negotiated",
		"negotiation",
		"caps",
		"format",
		"decode",
		"codec",
		"missing plugin",
		"no decoder",
		"stream type",
	}
	networkKeywords = []string{
		"connection",
		"timeout",
		"timed out",
		"unreachable",
		"network",
		"dns",
		"resolve",
		"socket",
		"tcp",
		"udp",
		"rtsp",
		"http",
	}
)

// ClassifyGStreamerError categorizes a bus error. go-gst does not expose the
// GError domain, so classification is by message keywords.
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return ClassifyMessage(gerr.Error(), gerr.DebugString())
}

// ClassifyMessage categorizes an error message and its debug string.
func ClassifyMessage(errMsg, debug string) ErrorCategory {
	combined := strings.ToLower(errMsg + " " + debug)

	switch {
	case containsAny(combined, resourceKeywords):
		return ErrCategoryResource
	case containsAny(combined, formatKeywords):
		return ErrCategoryFormat
	case containsAny(combined, networkKeywords):
		return ErrCategoryNetwork
	default:
		return ErrCategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
