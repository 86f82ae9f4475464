package api

import (
	"golang.org/x/time/rate"
)

// TriggerLimiter bounds how often alarm deliveries may start an invocation.
// SNS retries and alarm flapping produce bursts of identical triggers.
type TriggerLimiter struct {
	limiter *rate.Limiter
}

// NewTriggerLimiter allows perSecond triggers with the given burst.
// perSecond <= 0 disables limiting.
func NewTriggerLimiter(perSecond float64, burst int) *TriggerLimiter {
	if perSecond <= 0 {
		return &TriggerLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &TriggerLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether a trigger may proceed now
func (tl *TriggerLimiter) Allow() bool {
	return tl.limiter.Allow()
}
