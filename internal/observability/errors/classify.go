// Package errors derives low-cardinality labels from errors for metrics and logs.
package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/target/mmk-analysis-api/internal/errors"
)

// Classify returns a normalized label for err. Tagged processing failures
// use their kind (for example "network_error"); anything else is labelled by
// the innermost concrete error type.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if pe, ok := apperrors.AsProcessingError(err); ok {
		return strings.ToLower(string(pe.Kind))
	}
	var de *apperrors.DeliveryError
	if goerrors.As(err, &de) {
		if de.Cause == nil {
			return "http_status"
		}
	}

	// Unwrap to the innermost error for better signal.
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
