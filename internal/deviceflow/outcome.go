package deviceflow

// Phase is the position of a flow in its state machine. Phases only move forward.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseRequested
	PhasePolling
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseRequested:
		return "requested"
	case PhasePolling:
		return "polling"
	case PhaseTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// OutcomeKind classifies the result of a poll
type OutcomeKind int

const (
	// OutcomePending means the user has not finished yet; polling continues
	OutcomePending OutcomeKind = iota
	OutcomeSuccess
	OutcomeDenied
	OutcomeCancelled
	OutcomeExpired
	OutcomeTimedOut
	// OutcomeTransientError is a provider hiccup after which polling continues
	OutcomeTransientError
	OutcomeFatalError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	case OutcomeDenied:
		return "denied"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeExpired:
		return "expired"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeTransientError:
		return "transient_error"
	case OutcomeFatalError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the result of a poll. Token is only set on success and Message
// only on errors.
type Outcome struct {
	Kind    OutcomeKind
	Token   *TokenResponse
	Message string
}

// Terminal reports whether no further polling can change this outcome
func (o Outcome) Terminal() bool {
	switch o.Kind {
	case OutcomePending, OutcomeTransientError:
		return false
	default:
		return true
	}
}

// Observer receives engine events
type Observer interface {
	ObservePoll(result string)
	ObserveOutcome(kind string)
}

type nopObserver struct{}

func (nopObserver) ObservePoll(string)    {}
func (nopObserver) ObserveOutcome(string) {}
