package errdefs

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrTransport     = errors.New("transport error")
	ErrSubprocess    = errors.New("subprocess error")
	ErrSizeLimit     = errors.New("size limit exceeded")
	ErrPersistence   = errors.New("persistence error")
)

// ValidationError reports invalid user input (empty text, no session selected).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ErrValidation.Error()
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s (%s): %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConfigurationError reports missing or invalid provider settings.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ErrConfiguration.Error()
	}
	if e.Provider == "" {
		return fmt.Sprintf("%s: %s", ErrConfiguration, e.Reason)
	}
	return fmt.Sprintf("%s for %s: %s", ErrConfiguration, e.Provider, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// TransportError reports a failed provider call: network failure or a non-2xx
// response. StatusCode is 0 when no response was received.
type TransportError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ErrTransport.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("API request failed: %s returned status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("API request failed: %s: %v", e.Provider, e.Err)
}

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func (e *TransportError) Unwrap() error { return e.Err }

// SubprocessError reports a failure of the local inference process.
type SubprocessError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *SubprocessError) Error() string {
	if e == nil {
		return ErrSubprocess.Error()
	}
	if e.Stderr != "" {
		return fmt.Sprintf("%s error: %s", e.Command, e.Stderr)
	}
	return fmt.Sprintf("%s error: %v", e.Command, e.Err)
}

func (e *SubprocessError) Is(target error) bool { return target == ErrSubprocess }

func (e *SubprocessError) Unwrap() error { return e.Err }

// SizeLimitError reports an attachment larger than the allowed limit.
type SizeLimitError struct {
	Path  string
	Size  int64
	Limit int64
}

func (e *SizeLimitError) Error() string {
	if e == nil {
		return ErrSizeLimit.Error()
	}
	return fmt.Sprintf("file %s is %d bytes, exceeds the %d byte limit", e.Path, e.Size, e.Limit)
}

func (e *SizeLimitError) Is(target error) bool { return target == ErrSizeLimit }

// PersistenceError reports an unreadable, corrupt or unwritable record.
type PersistenceError struct {
	Name string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e == nil {
		return ErrPersistence.Error()
	}
	return fmt.Sprintf("%s: %s %s: %v", ErrPersistence, e.Op, e.Name, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err carries an HTTP 429 from a provider.
func IsRateLimited(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode == http.StatusTooManyRequests
	}
	return false
}
