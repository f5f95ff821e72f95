package domain

import "time"

// Sentinel values written when a field could not be recovered. They are
// distinct from the empty string.
const (
	Unidentified = "unidentified"
	NotSpecified = "not specified"
)

// SubjectFields holds what could be recovered from a subject line.
// Amount is a cleaned numeric string without thousands separators.
// Either field may be empty.
type SubjectFields struct {
	Amount string
	City   string
}

// Record is one ledger row. MessageID is stored in a hidden column and is the
// only key used for deduplication.
type Record struct {
	ReceivedDateShort string // e.g. "24-jun"
	Issuer            string
	City              string
	Amount            string
	Link              string
	MessageID         string

	// ReceivedAt is kept for machine columns and ordering. It is not displayed.
	ReceivedAt time.Time
}
