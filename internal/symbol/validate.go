package symbol

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Rejection reasons reported by Validate.
const (
	ReasonEmptyName    = "empty_name"
	ReasonEmptyTarget  = "empty_target"
	ReasonControlChars = "control_chars"
	ReasonEmptyKey     = "empty_key"
)

// ValidationError holds the per-field problems of a rejected record.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, reason := range e.Reasons() {
		parts = append(parts, fmt.Sprintf("%s:%s", reason, e.Fields[reason]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrMalformedRecord
}

// Reasons returns the rejection reasons in sorted order.
func (e *ValidationError) Reasons() []string {
	reasons := make([]string, 0, len(e.Fields))
	for reason := range e.Fields {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	return reasons
}

// Validate checks a record against the upstream contract. The returned error
// wraps ErrMalformedRecord.
func Validate(rec Record) error {
	errs := make(map[string]string)

	name := strings.TrimSpace(rec.Name)
	switch {
	case name == "":
		errs[ReasonEmptyName] = "display name is required"
	case strings.IndexFunc(rec.Name, unicode.IsControl) >= 0:
		errs[ReasonControlChars] = "display name contains control characters"
	case NormalizeKey(rec.Name) == "":
		errs[ReasonEmptyKey] = fmt.Sprintf("display name %q has no searchable text", rec.Name)
	}
	if strings.TrimSpace(rec.Target) == "" {
		errs[ReasonEmptyTarget] = "target url is required"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
