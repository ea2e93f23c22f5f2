package campaign

import "strings"

// State is the legislative stage of a campaign.
type State string

const (
	StatePre   State = "PRE_EVT"
	StateIntro State = "INTRO_EVT"
	StateComm  State = "COMM_EVT"
	StateFloor State = "FLOOR_EVT"
	StateFinal State = "FINAL_EVT"
	StateImpl  State = "IMPL_EVT"
)

var stateOrder = []State{
	StatePre,
	StateIntro,
	StateComm,
	StateFloor,
	StateFinal,
	StateImpl,
}

var stateIndex = func() map[State]int {
	idx := make(map[State]int, len(stateOrder))
	for i, s := range stateOrder {
		idx[s] = i
	}
	return idx
}()

// States returns the fixed legislative sequence in order.
func States() []State {
	cp := make([]State, len(stateOrder))
	copy(cp, stateOrder)
	return cp
}

// ParseState converts a string into a known State. Matching is
// case-insensitive and tolerates the short form without the _EVT suffix.
func ParseState(value string) (State, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	if normalized == "" {
		return "", false
	}
	if !strings.HasSuffix(normalized, "_EVT") {
		normalized += "_EVT"
	}
	state := State(normalized)
	_, ok := stateIndex[state]
	return state, ok
}

// Index reports the position of s in the fixed sequence, or -1 when unknown.
func (s State) Index() int {
	if i, ok := stateIndex[s]; ok {
		return i
	}
	return -1
}

// Valid reports whether s is part of the legislative sequence.
func (s State) Valid() bool {
	return s.Index() >= 0
}

func (s State) String() string {
	return string(s)
}

// OrchestratorState is the operational health of the automation, independent
// of legislative progress.
type OrchestratorState string

const (
	OrchestratorIdle   OrchestratorState = "IDLE"
	OrchestratorActive OrchestratorState = "ACTIVE"
	OrchestratorPaused OrchestratorState = "PAUSED"
	OrchestratorError  OrchestratorState = "ERROR"
)

// ParseOrchestratorState converts a string into a known OrchestratorState.
func ParseOrchestratorState(value string) (OrchestratorState, bool) {
	switch s := OrchestratorState(strings.ToUpper(strings.TrimSpace(value))); s {
	case OrchestratorIdle, OrchestratorActive, OrchestratorPaused, OrchestratorError:
		return s, true
	default:
		return "", false
	}
}

// GateState is the aggregate status of a review gate.
type GateState string

const (
	GatePending  GateState = "PENDING"
	GateApproved GateState = "APPROVED"
	GateRejected GateState = "REJECTED"
)

// ParseGateState converts a string into a known GateState.
func ParseGateState(value string) (GateState, bool) {
	switch s := GateState(strings.ToUpper(strings.TrimSpace(value))); s {
	case GatePending, GateApproved, GateRejected:
		return s, true
	default:
		return "", false
	}
}

// Decision is a reviewer's verdict on an artifact.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// ParseDecision converts a string into a known Decision. The past-tense
// spellings written by older approval scripts are accepted.
func ParseDecision(value string) (Decision, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "APPROVE", "APPROVED":
		return DecisionApprove, true
	case "REJECT", "REJECTED":
		return DecisionReject, true
	default:
		return "", false
	}
}
