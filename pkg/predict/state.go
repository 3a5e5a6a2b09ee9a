package predict

// State is the position of a session in the request cycle.
type State uint8

const (
	Idle State = iota
	Submitting
	Succeeded
	Failed
	ExplainSubmitting
	ExplainSucceeded
	ExplainFailed
)

var stateNames = [...]string{
	Idle:              "idle",
	Submitting:        "submitting",
	Succeeded:         "succeeded",
	Failed:            "failed",
	ExplainSubmitting: "explain_submitting",
	ExplainSucceeded:  "explain_succeeded",
	ExplainFailed:     "explain_failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// InFlight reports whether a request is outstanding.
func (s State) InFlight() bool {
	return s == Submitting || s == ExplainSubmitting
}
