package proxy

import (
	"context"
	"errors"
	"net/http"
)

// Outcome is the decision taken after one upstream attempt.
type Outcome int

const (
	// Deliver relays the attempt's response to the client.
	Deliver Outcome = iota
	// Retry repeats the attempt against the same upstream.
	Retry
	// Fallback moves on to the next upstream of the chain.
	Fallback
	// Abort stops forwarding because the client went away.
	Abort
	// Exhausted ends the chain without a deliverable success.
	Exhausted
)

// String returns the lower-case outcome name recorded in the attempt trail.
func (o Outcome) String() string {
	switch o {
	case Deliver:
		return "deliver"
	case Retry:
		return "retry"
	case Fallback:
		return "fallback"
	case Abort:
		return "abort"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// FallbackPolicy decides which upstream statuses move on to the next
// upstream instead of being delivered.
type FallbackPolicy struct {
	// FallbackOn429 makes 429 Too Many Requests a fallback status.
	FallbackOn429 bool
}

// ShouldFallback reports whether status triggers a fallback. Every 5xx does;
// 429 only when enabled.
func (p FallbackPolicy) ShouldFallback(status int) bool {
	if status >= http.StatusInternalServerError {
		return true
	}
	return status == http.StatusTooManyRequests && p.FallbackOn429
}

// attemptState is everything decide needs to know about one attempt.
type attemptState struct {
	// Status is the upstream status, zero when no response arrived.
	Status int
	// Err is the transport error, nil when a response arrived.
	Err error
	// Attempt is the 1-based attempt number on the current upstream.
	Attempt     int
	MaxAttempts int
	// HasNext reports whether another upstream follows in the chain.
	HasNext bool
	// Canceled reports whether the client context is done.
	Canceled bool
}

// decide maps an attempt to its outcome. It is pure.
func decide(s attemptState, policy FallbackPolicy) Outcome {
	if s.Canceled || errors.Is(s.Err, context.Canceled) {
		return Abort
	}
	if s.Err != nil {
		if IsTransient(s.Err) && s.Attempt < s.MaxAttempts {
			return Retry
		}
		return next(s)
	}
	if policy.ShouldFallback(s.Status) {
		return next(s)
	}
	return Deliver
}

func next(s attemptState) Outcome {
	if s.HasNext {
		return Fallback
	}
	return Exhausted
}
