package queue

import "errors"

var (
	// ErrBrokerNotRunning is returned when enqueuing into a stopped inline broker
	ErrBrokerNotRunning = errors.New("queue: broker is not running")

	// ErrQueueFull is returned when the inline buffer has no room
	ErrQueueFull = errors.New("queue: job queue is full")

	// ErrInvalidPayload is returned for a task whose payload is not a job
	ErrInvalidPayload = errors.New("queue: invalid job payload")

	// ErrJobPanicked is reported for a job whose handler panicked
	ErrJobPanicked = errors.New("queue: job handler panicked")
)
