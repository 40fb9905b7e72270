package domain

import "errors"

var (
	// ErrInvalidSchedule reports a malformed interval, cron expression or date.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrDuplicateTask reports an attempt to schedule a key that is already
	// registered in a non-deleted state.
	ErrDuplicateTask = errors.New("duplicate task")

	// ErrTaskNotFound reports a pause/resume/resend against an unknown key.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskRunning reports a resend against a key with an in-flight firing.
	ErrTaskRunning = errors.New("task is currently running")

	// ErrEmptyRecipients rejects a notification request with no recipients.
	ErrEmptyRecipients = errors.New("recipients must not be empty")

	// ErrMissingTemplate rejects a notification request without a template.
	ErrMissingTemplate = errors.New("template must not be blank")
)
