package frigate

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL marks a malformed base or request URL. Fatal to the
	// call, never retried.
	ErrInvalidURL = errors.New("invalid server url")

	// ErrInvalidResponse marks a body without the expected structure,
	// e.g. a version probe that exhausted every strategy.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrUnsupportedVersion is reserved for a resolved version outside the
	// supported range. The resolver currently always degrades to the
	// fallback instead of raising this.
	ErrUnsupportedVersion = errors.New("unsupported server version")
)

// NetworkError covers transport failures and non-200 statuses.
type NetworkError struct {
	Status int // 0 when the transport itself failed
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("network error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("network error: status %d", e.Status)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodingError means no parsing strategy matched. ByteLen carries the size
// of the offending body for diagnostics.
type DecodingError struct {
	ByteLen int
	Err     error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decoding failed for %d byte body: %v", e.ByteLen, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }
