package polza

import (
	"strings"
	"time"

	"genbot/internal/domain"
)

// Policy bounds how long a job is polled and how long its asset download may
// take. IsFailure decides which provider status strings end polling early.
// PollTimeout caps a single status call; zero derives it from Interval.
type Policy struct {
	Interval        time.Duration
	MaxAttempts     int
	PollTimeout     time.Duration
	DownloadTimeout time.Duration
	IsFailure       func(status string) bool
}

const minPollTimeout = time.Second

// PollTimeoutFor is the per-call cap used when a policy leaves PollTimeout
// zero: the interval, kept within [1s, 60s].
func PollTimeoutFor(interval time.Duration) time.Duration {
	switch {
	case interval < minPollTimeout:
		return minPollTimeout
	case interval > apiCallTimeout:
		return apiCallTimeout
	}
	return interval
}

// Budget is the wall-clock limit for polling: every interval plus one poll
// call of slack. Slow status calls eat into it instead of extending it.
func (p Policy) Budget() time.Duration {
	return time.Duration(p.MaxAttempts)*p.Interval + p.PollTimeout
}

// Window is the longest a job can take end to end, download included.
func (p Policy) Window() time.Duration {
	return p.Budget() + p.DownloadTimeout
}

// DefaultFailureStatus treats "error" and "failed" as terminal.
func DefaultFailureStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "error", "failed":
		return true
	}
	return false
}

func ImagePolicy() Policy {
	return Policy{Interval: 4 * time.Second, MaxAttempts: 60, DownloadTimeout: 120 * time.Second, IsFailure: DefaultFailureStatus}
}

func VideoPolicy() Policy {
	return Policy{Interval: 5 * time.Second, MaxAttempts: 240, DownloadTimeout: 300 * time.Second, IsFailure: DefaultFailureStatus}
}

// withDefaults fills zero fields from the kind's default policy.
func (p Policy) withDefaults(kind domain.JobKind) Policy {
	def := ImagePolicy()
	if kind == domain.JobKindVideo {
		def = VideoPolicy()
	}
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.PollTimeout <= 0 {
		p.PollTimeout = PollTimeoutFor(p.Interval)
	}
	if p.DownloadTimeout <= 0 {
		p.DownloadTimeout = def.DownloadTimeout
	}
	if p.IsFailure == nil {
		p.IsFailure = def.IsFailure
	}
	return p
}
