package backoff

import (
	"math/rand"
	"time"
)

// Strategy defines the interface for backoff calculation algorithms.
type Strategy interface {
	// Calculate returns the backoff duration for the given attempt number and parameters.
	Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration
}

// FullJitterStrategy implements the AWS "full jitter" scheme: the delay is
// drawn uniformly from [0, min(cap, base * multiplier^attempt)). The jitter
// parameter is ignored; the whole window is randomized.
type FullJitterStrategy struct{}

// Calculate implements the Strategy interface for full jitter.
func (s FullJitterStrategy) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, _ float64) time.Duration {
	ceiling := exponentialCeiling(attempt, initialBackoff, maxBackoff, multiplier)
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * float64(ceiling))
}

// EqualJitterStrategy implements the AWS "equal jitter" scheme: half the
// exponential window is kept, the other half is randomized. Guarantees a
// minimum delay of ceiling/2, at the cost of more synchronized retries than
// full jitter.
type EqualJitterStrategy struct{}

// Calculate implements the Strategy interface for equal jitter.
func (s EqualJitterStrategy) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, _ float64) time.Duration {
	ceiling := exponentialCeiling(attempt, initialBackoff, maxBackoff, multiplier)
	half := ceiling / 2
	return half + time.Duration(rand.Float64()*float64(half))
}

// ExponentialJitterStrategy implements plain exponential backoff with a
// proportional uniform jitter on top: delay = exp + rand(0, exp*jitter).
type ExponentialJitterStrategy struct{}

// Calculate implements the Strategy interface for exponential backoff with jitter.
func (s ExponentialJitterStrategy) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration {
	backoff := exponentialCeiling(attempt, initialBackoff, maxBackoff, multiplier)

	jitter = clampJitter(jitter)
	if jitter > 0 {
		jitterAmount := time.Duration(float64(backoff) * jitter * rand.Float64())
		if backoff+jitterAmount > maxBackoff {
			backoff = maxBackoff
		} else {
			backoff += jitterAmount
		}
	}
	return backoff
}

// exponentialCeiling computes min(maxBackoff, initialBackoff * multiplier^attempt)
// guarding against overflow.
func exponentialCeiling(attempt int, initialBackoff, maxBackoff time.Duration, multiplier float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Prevent overflow by limiting attempt
	if attempt > 30 {
		attempt = 30
	}

	backoff := time.Duration(float64(initialBackoff) * pow(multiplier, attempt))
	if backoff < 0 || backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

// clampJitter ensures jitter is within valid bounds [0, 1].
func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// pow calculates base^exponent using integer exponentiation.
func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}

// Pow exposes pow for callers that share the backoff math.
func Pow(base float64, exponent int) float64 {
	return pow(base, exponent)
}
