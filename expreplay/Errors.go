package expreplay

import "errors"

// ExpReplayError implements errors unique to an experience replay
// buffer
type ExpReplayError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *ExpReplayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *ExpReplayError) Unwrap() error {
	return e.Err
}

var (
	// ErrEmpty is returned when sampling a buffer holding no
	// transitions
	ErrEmpty = errors.New("buffer empty")

	// ErrInsufficientSamples is returned when sampling a buffer holding
	// fewer transitions than its minimum capacity
	ErrInsufficientSamples = errors.New("minimum capacity not yet reached")
)

// IsInsufficientSamples returns whether or not an error reports that
// there are insufficient samples in the buffer to sample from the
// buffer.
//
// A buffer has too few samples to sample if its current capacity is
// less than its minimum capacity.
func IsInsufficientSamples(err error) bool {
	return errors.Is(err, ErrInsufficientSamples)
}

// IsEmptyBuffer returns whether or not an error reports that a
// replay buffer is empty.
func IsEmptyBuffer(err error) bool {
	return errors.Is(err, ErrEmpty)
}
