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
	ErrNotFound                = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists           = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput            = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict     = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrDuplicateActiveMeter    = NewDomainError("DUPLICATE_ACTIVE_METER", "Site already has an active meter of this type")
	ErrOutOfOrderRead          = NewDomainError("OUT_OF_ORDER_READ", "Reading is earlier than the meter's latest recorded read")
	ErrNoRatePlanFound         = NewDomainError("NO_RATE_PLAN_FOUND", "No rate plan is effective for this meter type at the given instant")
	ErrRatePlanInactive        = NewDomainError("RATE_PLAN_INACTIVE", "Rate plan is not effective at the given instant")
	ErrInsufficientReadHistory = NewDomainError("INSUFFICIENT_READ_HISTORY", "Meter needs at least two reads before it can be billed")
)
