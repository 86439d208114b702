package domain

import "errors"

var (
	// Token errors
	ErrTokenNotFound = errors.New("token not found")

	// Price errors
	ErrInvalidPrice = errors.New("price must be positive")
	ErrZeroCEXPrice = errors.New("cex price is zero, spread is undefined")

	// Price source errors
	ErrSourceUnavailable = errors.New("price source unavailable")
	ErrRateLimited       = errors.New("rate limited by price source")
	ErrInvalidResponse   = errors.New("invalid response from price source")
	ErrNoPairs           = errors.New("no trading pairs found")
	ErrNoQualifyingPairs = errors.New("no trading pairs pass liquidity and volume thresholds")

	// Shared store errors
	ErrStoreUnavailable = errors.New("shared store unavailable")

	// Run errors
	ErrRunFailure        = errors.New("refresh run failed")
	ErrPersistentFailure = errors.New("refresh run failed permanently")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternal       = errors.New("internal server error")
)

// DomainError wraps domain errors with additional context
type DomainError struct {
	Err     error
	Message string
	Code    string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error with context
func NewDomainError(err error, message, code string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// IsDomainError checks if the error is a domain error
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}
