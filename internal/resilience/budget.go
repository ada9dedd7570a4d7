package resilience

// RetryBudget decides when work that keeps failing across runs is parked
// instead of being retried on the next run.
type RetryBudget struct {
	MaxAttempts int
}

// Exhausted reports whether attempts failures have used up the budget.
// A non-positive MaxAttempts never exhausts.
func (b RetryBudget) Exhausted(attempts int) bool {
	return b.MaxAttempts > 0 && attempts >= b.MaxAttempts
}

// Remaining returns how many more failures are tolerated.
func (b RetryBudget) Remaining(attempts int) int {
	if b.MaxAttempts <= 0 {
		return -1
	}
	return max(b.MaxAttempts-attempts, 0)
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
