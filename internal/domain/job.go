package domain

// JobKind enumerates supported generation job categories.
type JobKind string

const (
	JobKindImage JobKind = "image"
	JobKindVideo JobKind = "video"
)
