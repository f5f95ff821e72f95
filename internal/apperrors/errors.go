package apperrors

import "errors"

var (
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrLedgerUnavailable     = errors.New("ledger storage unavailable")
	ErrNoEligibleAttachments = errors.New("message has no eligible attachments")
	ErrEmptyDocument         = errors.New("document rendered to empty text")
	ErrAttachmentNotFound    = errors.New("attachment not found")
	ErrMessageNotFound       = errors.New("message not found")
	ErrRunNotFound           = errors.New("run not found")
	ErrQueueClosed           = errors.New("queue is closed")
)
