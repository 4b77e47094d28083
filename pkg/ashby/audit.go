package ashby

import "github.com/google/uuid"

// AuditContext correlates an upstream call with the relay action that
// triggered it. It is carried on every request and echoed in logs and
// write-gate blocks; it is never persisted.
type AuditContext struct {
	// RequestID identifies one relay request (HTTP request or CLI run).
	RequestID string

	// Route is the relay surface that initiated the call
	// (e.g. "api/v1/upload", "cli/index refresh").
	Route string

	// RunID groups every upstream call made by one orchestration run.
	RunID string

	// ActionID names the orchestration step (e.g. "create_application").
	ActionID string
}

// NewAudit returns an audit context for a route with fresh correlation ids.
func NewAudit(route string) AuditContext {
	return AuditContext{
		RequestID: uuid.NewString(),
		Route:     route,
		RunID:     uuid.NewString(),
	}
}

// WithAction returns a copy tagged with the given orchestration step.
func (a AuditContext) WithAction(action string) AuditContext {
	a.ActionID = action
	return a
}
