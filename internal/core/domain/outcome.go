package domain

// Category is the closed set of outcome kinds for one sign-in attempt.
type Category string

const (
	CategorySuccess          Category = "success"
	CategoryAlreadyDone      Category = "already_done"
	CategoryRateLimited      Category = "rate_limited"
	CategoryPermanentFailure Category = "permanent_failure"
	CategoryTransientFailure Category = "transient_failure"
	CategoryError            Category = "error"
)

// Succeeded reports whether the category is terminal and not a failure.
// Everything else is eligible for retry rounds.
func (c Category) Succeeded() bool {
	return c == CategorySuccess || c == CategoryAlreadyDone
}

// Outcome is the classified result of one attempt. Treat it as immutable:
// a new attempt produces a new Outcome.
type Outcome struct {
	Category Category
	Reason   string
	// Code is the remote error code, when one was reported.
	Code    int
	HasCode bool
	Extra   OutcomeExtra
}

// OutcomeExtra carries opaque counters reported alongside a result.
type OutcomeExtra struct {
	Rank       int
	Streak     int
	RawPayload string
}

// Reasons used by the built-in outcomes.
const (
	ReasonSigned        = "signed in"
	ReasonAlreadySigned = "already signed in"
	ReasonEmptyResponse = "empty response"
	ReasonRateLimited   = "rate limited"
)

func Success(rank, streak int) Outcome {
	return Outcome{
		Category: CategorySuccess,
		Reason:   ReasonSigned,
		Extra:    OutcomeExtra{Rank: rank, Streak: streak},
	}
}

func AlreadyDone() Outcome {
	return Outcome{Category: CategoryAlreadyDone, Reason: ReasonAlreadySigned}
}

func RateLimited() Outcome {
	return Outcome{Category: CategoryRateLimited, Reason: ReasonRateLimited}
}

func PermanentFailure(code int, reason string) Outcome {
	return Outcome{Category: CategoryPermanentFailure, Reason: reason, Code: code, HasCode: true}
}

func TransientFailure(reason string) Outcome {
	return Outcome{Category: CategoryTransientFailure, Reason: reason}
}

// Error builds an unclassified outcome. A negative code means none was reported.
func Error(message string, code int, payload string) Outcome {
	return Outcome{
		Category: CategoryError,
		Reason:   message,
		Code:     code,
		HasCode:  code >= 0,
		Extra:    OutcomeExtra{RawPayload: payload},
	}
}
