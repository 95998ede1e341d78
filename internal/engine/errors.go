package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDomain matches every *InvalidDomainError.
	ErrInvalidDomain = errors.New("invalid domain")
	// ErrEmptyWordlist is returned when no wordlist entry yields a candidate.
	ErrEmptyWordlist = errors.New("empty wordlist")

	errCancelled   = errors.New("cancelled")
	errScanTimeout = errors.New("scan timeout")
)

// InvalidDomainError is returned by StartScan before any network activity when
// the target domain fails syntax validation.
type InvalidDomainError struct {
	Domain string
	Reason string
}

func (e *InvalidDomainError) Error() string {
	return fmt.Sprintf("invalid domain %q: %s", e.Domain, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidDomain) match.
func (e *InvalidDomainError) Is(target error) bool {
	return target == ErrInvalidDomain
}

// ScanInProgressError is returned when a scan is started while another one is
// still running on the same coordinator.
type ScanInProgressError struct {
	ID string
}

func (e *ScanInProgressError) Error() string {
	return fmt.Sprintf("scan already in progress: %s", e.ID)
}
