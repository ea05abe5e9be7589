package resilience

// FromFailureLimit returns a latching breaker config named for its
// collaborator. A non-positive limit keeps the default threshold.
func FromFailureLimit(name string, failureLimit int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	cfg.Name = name
	if failureLimit > 0 {
		cfg.FailureThreshold = failureLimit
	}
	return cfg
}
