package domain

import (
	"errors"
	"fmt"
)

// Category sentinels, wrapped by NewDomainError with operation context.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrRateLimit    = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid  = fmt.Errorf("authentication failed")
)

// Sentinel errors for the orchestrator domain.
var (
	ErrUnclassified     = fmt.Errorf("query matched no agent above the relevance threshold")
	ErrAgentNotFound    = fmt.Errorf("agent: %w", ErrNotFound)
	ErrAgentUnreachable = fmt.Errorf("agent unreachable")
	ErrAgentDuplicate   = fmt.Errorf("agent: %w", ErrDuplicate)
	ErrDispatchFailed   = fmt.Errorf("agent dispatch failed")
	ErrDispatchTimeout  = fmt.Errorf("dispatch: %w", ErrTimeout)
	ErrCircuitOpen      = fmt.Errorf("agent circuit open")
	ErrSessionNotFound  = fmt.Errorf("session: %w", ErrNotFound)
	ErrWorkflowNotFound = fmt.Errorf("workflow: %w", ErrNotFound)
	ErrStoreUnavailable = fmt.Errorf("state store unavailable")
	ErrDependencyFailed = fmt.Errorf("dependency step did not complete")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrDecryption       = fmt.Errorf("decryption failed")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Register")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"
	CodeUnclassified     ErrorCode = "QUERY_UNCLASSIFIED"
	CodeAgentNotFound    ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentUnreachable ErrorCode = "AGENT_UNREACHABLE"
	CodeAgentDuplicate   ErrorCode = "AGENT_DUPLICATE"
	CodeDispatchFailed   ErrorCode = "DISPATCH_FAILED"
	CodeDispatchTimeout  ErrorCode = "DISPATCH_TIMEOUT"
	CodeCircuitOpen      ErrorCode = "CIRCUIT_OPEN"
	CodeSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	CodeWorkflowNotFound ErrorCode = "WORKFLOW_NOT_FOUND"
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	CodeDependencyFailed ErrorCode = "DEPENDENCY_FAILED"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeDecryption       ErrorCode = "DECRYPTION"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
// Specific sentinels come before the category sentinels they wrap so the
// ordered walk in ErrorCodeOf resolves the most specific code first.
var errorCodeOrder = []struct {
	err  error
	code ErrorCode
}{
	{ErrUnclassified, CodeUnclassified},
	{ErrAgentNotFound, CodeAgentNotFound},
	{ErrAgentUnreachable, CodeAgentUnreachable},
	{ErrAgentDuplicate, CodeAgentDuplicate},
	{ErrDispatchTimeout, CodeDispatchTimeout},
	{ErrDispatchFailed, CodeDispatchFailed},
	{ErrCircuitOpen, CodeCircuitOpen},
	{ErrSessionNotFound, CodeSessionNotFound},
	{ErrWorkflowNotFound, CodeWorkflowNotFound},
	{ErrStoreUnavailable, CodeStoreUnavailable},
	{ErrDependencyFailed, CodeDependencyFailed},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrDecryption, CodeDecryption},
	{ErrNotFound, CodeNotFound},
	{ErrDuplicate, CodeDuplicate},
	{ErrTimeout, CodeTimeout},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrRateLimit, CodeRateLimit},
	{ErrAuthInvalid, CodeAuthInvalid},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It walks the error chain with errors.Is, most specific sentinel first.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, entry := range errorCodeOrder {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeUnknown
}
