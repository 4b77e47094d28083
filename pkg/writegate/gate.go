// Package writegate is the hard stop in front of every state-mutating call
// to the upstream ATS. It exists to make unintended mutation of production
// recruiting data impossible: writes are off by default, allowlisted by
// exact method name, and optionally confirmed per call. A block is terminal
// and is never retried.
package writegate

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/atsrelay/pkg/ashby"
)

// DefaultConfirmation is the expected confirmation token when confirmation
// is required but no token is configured.
const DefaultConfirmation = "i-know-what-i-am-doing"

// BlockReason identifies why a mutating call was refused.
type BlockReason string

const (
	ReasonWriteDisabled        BlockReason = "write_disabled"
	ReasonMethodNotAllowlisted BlockReason = "method_not_allowlisted"
	ReasonMissingConfirmation  BlockReason = "missing_confirmation"
	ReasonInvalidConfirmation  BlockReason = "invalid_confirmation"
	ReasonInvalidPayload       BlockReason = "invalid_payload"
)

// mutatingVerbs classify a method as state-mutating when any of them appears
// in the portion after the first dot (case-insensitive substring).
var mutatingVerbs = []string{
	"add", "anonymize", "archive", "cancel", "change", "create", "delete",
	"remove", "restore", "set", "submit", "transfer", "update", "upload",
}

// BlockError is the error raised for every gate block.
type BlockError struct {
	Method string
	Reason BlockReason
	Detail string
}

// Error implements the error interface.
func (e *BlockError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("write blocked (%s): %s: %s", e.Reason, e.Method, e.Detail)
	}
	return fmt.Sprintf("write blocked (%s): %s", e.Reason, e.Method)
}

// Policy is the write-safety configuration, frozen at process start.
type Policy struct {
	// Enabled is the global mutation switch.
	Enabled bool

	// AllowedMethods is the exact-name allowlist.
	AllowedMethods []string

	// RequireConfirmation demands a per-call confirmation token.
	RequireConfirmation bool

	// ConfirmationToken is the expected token; empty means
	// DefaultConfirmation.
	ConfirmationToken string
}

// CheckOptions carries the caller-supplied confirmation.
type CheckOptions struct {
	Confirmation string
}

// Gate evaluates the policy. Safe for concurrent use; immutable after New.
type Gate struct {
	policy  Policy
	allowed map[string]struct{}
	log     *zap.Logger
}

// New builds a gate from a policy.
func New(policy Policy, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(policy.AllowedMethods))
	for _, m := range policy.AllowedMethods {
		allowed[ashby.NormalizeMethod(m)] = struct{}{}
	}
	return &Gate{policy: policy, allowed: allowed, log: log}
}

// Allows reports whether a method is on the allowlist. It does not imply a
// call would pass Check; callers use it to skip optional mutations entirely
// instead of tripping a block.
func (g *Gate) Allows(method string) bool {
	_, ok := g.allowed[ashby.NormalizeMethod(method)]
	return ok
}

// IsMutating classifies a method name. The verb match runs against the
// portion after the first dot, or the whole name if there is none.
func IsMutating(method string) bool {
	name := ashby.NormalizeMethod(method)
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ToLower(name)
	for _, verb := range mutatingVerbs {
		if strings.Contains(name, verb) {
			return true
		}
	}
	return false
}

// Check allows non-mutating methods unconditionally and applies the ordered
// policy checks to mutating ones. The returned error is always a
// *BlockError; each block is logged with its reason for audit.
func (g *Gate) Check(method string, payload map[string]any, audit ashby.AuditContext, opts *CheckOptions) error {
	method = ashby.NormalizeMethod(method)
	if !IsMutating(method) {
		return nil
	}

	block := func(reason BlockReason, detail string) error {
		err := &BlockError{Method: method, Reason: reason, Detail: detail}
		g.log.Warn("mutating call blocked",
			zap.String("method", method),
			zap.String("reason", string(reason)),
			zap.String("request_id", audit.RequestID),
			zap.String("route", audit.Route),
			zap.String("run_id", audit.RunID),
			zap.String("action_id", audit.ActionID))
		return err
	}

	if !g.policy.Enabled {
		return block(ReasonWriteDisabled, "writes are disabled by configuration")
	}

	if _, ok := g.allowed[method]; !ok {
		return block(ReasonMethodNotAllowlisted, "method is not in the configured allowlist")
	}

	if g.policy.RequireConfirmation {
		supplied := ""
		if opts != nil {
			supplied = opts.Confirmation
		}
		if supplied == "" {
			return block(ReasonMissingConfirmation, "confirmation token required")
		}
		expected := g.policy.ConfirmationToken
		if expected == "" {
			expected = DefaultConfirmation
		}
		if supplied != expected {
			return block(ReasonInvalidConfirmation, "confirmation token mismatch")
		}
	}

	// Payload shape check is unconditional: a mutating call with nothing to
	// mutate is always a caller bug.
	if len(payload) == 0 {
		return block(ReasonInvalidPayload, "mutating call requires a non-empty payload object")
	}

	return nil
}
