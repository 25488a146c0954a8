package backoff

import (
	"time"
)

// Calculator provides backoff calculation using a configurable strategy.
// It centralizes backoff math shared by the retry policy and the rate
// limiter's throttle backoff.
type Calculator struct {
	strategy Strategy
}

// NewCalculator creates a new backoff calculator with the specified strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{
		strategy: strategy,
	}
}

// Calculate computes the backoff duration for the given attempt and parameters.
// It delegates to the configured strategy for the actual calculation.
func (c *Calculator) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration {
	return c.strategy.Calculate(attempt, initialBackoff, maxBackoff, multiplier, jitter)
}

// SetStrategy updates the backoff strategy used by this calculator.
func (c *Calculator) SetStrategy(strategy Strategy) {
	c.strategy = strategy
}

// GetStrategy returns the current strategy being used by this calculator.
func (c *Calculator) GetStrategy() Strategy {
	return c.strategy
}

// GetFullJitterCalculator returns a calculator configured with full jitter.
// This is the pipeline default.
func GetFullJitterCalculator() *Calculator {
	return NewCalculator(FullJitterStrategy{})
}

// GetEqualJitterCalculator returns a calculator configured with equal jitter.
func GetEqualJitterCalculator() *Calculator {
	return NewCalculator(EqualJitterStrategy{})
}

// GetExponentialJitterCalculator returns a calculator configured with
// exponential backoff plus proportional jitter.
func GetExponentialJitterCalculator() *Calculator {
	return NewCalculator(ExponentialJitterStrategy{})
}
