package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNavigation represents page loads that failed or timed out
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeParsing represents text that held no usable number
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeStructure represents pages missing an expected element or label
	ErrorTypeStructure ErrorType = "structure"
	// ErrorTypeNotFound represents pages the server says do not exist
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeStorage represents workbook and state store errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// CrawlerError represents a job-specific error
type CrawlerError struct {
	Type     ErrorType
	Provider string
	Message  string
	Err      error
	Time     time.Time
}

// Error implements the error interface
func (e *CrawlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Provider, e.Message)
}

// Unwrap returns the underlying error
func (e *CrawlerError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the operation may succeed on another attempt.
func (e *CrawlerError) IsRetryable() bool {
	return e.Type == ErrorTypeNavigation
}

// IsFatal reports whether the error must abort the whole run.
func (e *CrawlerError) IsFatal() bool {
	switch e.Type {
	case ErrorTypeStructure, ErrorTypeStorage, ErrorTypeConfiguration:
		return true
	default:
		return false
	}
}

// New creates a new CrawlerError
func New(errType ErrorType, provider, message string, err error) *CrawlerError {
	return &CrawlerError{
		Type:     errType,
		Provider: provider,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewNavigation creates a new navigation error
func NewNavigation(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeNavigation, provider, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeParsing, provider, message, err)
}

// NewStructure creates a new structure error
func NewStructure(provider, message string) *CrawlerError {
	return New(ErrorTypeStructure, provider, message, nil)
}

// NewNotFound creates a new not found error
func NewNotFound(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeNotFound, provider, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(provider string, duration time.Duration) *CrawlerError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, provider, message, nil)
}

// NewStorage creates a new storage error
func NewStorage(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeStorage, provider, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(provider, message string, err error) *CrawlerError {
	return New(ErrorTypePublisher, provider, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CrawlerError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// TypeOf returns the type of the first CrawlerError in the chain, or "".
func TypeOf(err error) ErrorType {
	var ce *CrawlerError
	if stderrors.As(err, &ce) {
		return ce.Type
	}
	return ""
}

// IsFatal reports whether err carries a fatal CrawlerError.
func IsFatal(err error) bool {
	var ce *CrawlerError
	return stderrors.As(err, &ce) && ce.IsFatal()
}

// IsRetryable reports whether err carries a retryable CrawlerError.
func IsRetryable(err error) bool {
	var ce *CrawlerError
	return stderrors.As(err, &ce) && ce.IsRetryable()
}
