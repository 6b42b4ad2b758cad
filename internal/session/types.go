package session

// Role identifies the speaker of a turn.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
)

type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// State is a step of the interview lifecycle.
type State string

const (
	StateAwaitingConnect       State = "AWAITING_CONNECT"
	StateGreetingSent          State = "GREETING_SENT"
	StateAwaitingCandidateTurn State = "AWAITING_CANDIDATE_TURN"
	StateGeneratingFollowUp    State = "GENERATING_FOLLOWUP"
	StateFinished              State = "FINISHED"
)

var transitions = map[State][]State{
	StateAwaitingConnect:       {StateGreetingSent},
	StateGreetingSent:          {StateAwaitingCandidateTurn},
	StateAwaitingCandidateTurn: {StateGeneratingFollowUp},
	StateGeneratingFollowUp:    {StateAwaitingCandidateTurn},
}

// CanTransition reports whether from -> to is allowed. Any state other
// than FINISHED may move to FINISHED.
func CanTransition(from, to State) bool {
	if from == StateFinished {
		return false
	}
	if to == StateFinished {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
