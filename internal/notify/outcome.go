package notify

import "strings"

// Status is the explicit result of a best-effort side effect, so callers and
// tests can assert which branch ran instead of inferring it from silence.
type Status string

const (
	StatusOk      Status = "ok"
	StatusWarning Status = "warning"
	StatusSkipped Status = "skipped"
)

// Outcome carries the status plus the reason for non-ok branches.
type Outcome struct {
	Status Status
	Reason string
}

// Ok is the success outcome.
func Ok() Outcome { return Outcome{Status: StatusOk} }

// Warning records a failed side effect that did not block the primary action.
func Warning(reason string) Outcome {
	return Outcome{Status: StatusWarning, Reason: strings.TrimSpace(reason)}
}

// Skipped records an expected no-op, e.g. a tenant with no guild linked.
func Skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Reason: strings.TrimSpace(reason)}
}

// IsOk reports whether the side effect fully succeeded.
func (o Outcome) IsOk() bool { return o.Status == StatusOk }
