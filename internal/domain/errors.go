package domain

import "errors"

var (
	// ErrTaskNotFound is returned when no task exists for a given key or id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrDuplicateTask is returned when a task with the same task_key already
	// exists. Admission treats it as "already queued", not as a failure.
	ErrDuplicateTask = errors.New("task already exists")

	// ErrTaskAlreadyClaimed is returned when a PENDING->EXECUTING claim loses
	// the race against another claimer.
	ErrTaskAlreadyClaimed = errors.New("task already claimed or not in PENDING status")

	// ErrInvalidPayload is returned when a task payload cannot be decoded.
	ErrInvalidPayload = errors.New("invalid task payload")

	// ErrInvalidStatus is returned for a status value outside the four known ones.
	ErrInvalidStatus = errors.New("invalid task status")
)
