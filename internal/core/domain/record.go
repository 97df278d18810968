package domain

// ResultRecord is the latest known outcome for one item.
type ResultRecord struct {
	Item       Item
	Outcome    Outcome
	Retried    bool
	RetryRound int
}

// Failed reports whether the record still counts as a failure.
func (r ResultRecord) Failed() bool {
	return !r.Outcome.Category.Succeeded()
}
