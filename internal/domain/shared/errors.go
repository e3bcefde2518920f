package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")

	// ErrInvalidPrincipal indicates an upstream misconfiguration: admission was
	// asked about a principal the identity layer never resolved. Callers must
	// fail fast instead of defaulting to allow or deny.
	ErrInvalidPrincipal = NewDomainError("INVALID_PRINCIPAL", "Principal is missing or malformed")

	// ErrStorageUnavailable indicates every configured storage tier failed.
	// A single unreachable tier is recovered internally and never carries
	// this error to callers.
	ErrStorageUnavailable = NewDomainError("STORAGE_UNAVAILABLE", "No storage tier is reachable")
)
