package source

import "errors"

// Error taxonomy shared by all source kinds. Producers wrap these with
// context via fmt.Errorf and %w; callers classify with errors.Is.
var (
	// ErrSourceOpen: the file, window or monitor was unavailable when the
	// session was created. Fatal to that session only.
	ErrSourceOpen = errors.New("source unavailable")

	// ErrExhaustedRetries: too many consecutive production failures; the
	// source halts. Reported exactly once per halt.
	ErrExhaustedRetries = errors.New("too many consecutive production failures")

	// ErrTargetLost: the capture target no longer exists. Fatal, no retry.
	ErrTargetLost = errors.New("capture target no longer exists")

	// ErrResourceAcquisition: a native capture resource failed to allocate
	// mid-attempt. Counted as one transient production failure.
	ErrResourceAcquisition = errors.New("capture resource acquisition failed")
)
