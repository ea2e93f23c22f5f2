// Package invariants holds the static, versioned rules for legislative
// progress: the order of states, which transitions are legal, which states
// are terminal, which artifacts and review gates must be satisfied to leave
// each state, which external confirmations a transition needs, and which
// roles may approve each gate.
//
// The table is pure data. Validation logic lives in the validator package and
// reads the table through the accessors below; nothing here performs I/O.
package invariants

import (
	"fmt"
	"slices"
	"strings"

	"gavel/internal/campaign"
)

// Version identifies the rule set. Bump it whenever a requirement changes so
// diagnostics and audit entries can be traced to the rules that produced them.
const Version = "2026.10"

// Gate identifiers.
const (
	GatePre     = "HR_PRE"
	GateLang    = "HR_LANG"
	GateMsg     = "HR_MSG"
	GateRelease = "HR_RELEASE"
)

// ArtifactRequirement names an artifact that must exist before leaving a
// state, and the gate that must approve it (empty when no review is needed).
type ArtifactRequirement struct {
	Name string
	Gate string
}

// StateRule lists everything required to leave a state.
type StateRule struct {
	State        campaign.State
	Next         []campaign.State
	Terminal     bool
	Artifacts    []ArtifactRequirement
	Confirmation string
}

// Table is an immutable rule set.
type Table struct {
	version string
	rules   map[campaign.State]StateRule
	roles   map[string][]string
}

var defaultRules = []StateRule{
	{
		State: campaign.StatePre,
		Next:  []campaign.State{campaign.StateIntro},
		Artifacts: []ArtifactRequirement{
			{Name: "PRE_CONTEXT_SNAPSHOT"},
			{Name: "PRE_STAKEHOLDER_MAP"},
		},
		Confirmation: "bill_introduced",
	},
	{
		State: campaign.StateIntro,
		Next:  []campaign.State{campaign.StateComm},
		Artifacts: []ArtifactRequirement{
			{Name: "INTRO_CONCEPT_MEMO", Gate: GatePre},
		},
		Confirmation: "committee_referral",
	},
	{
		State: campaign.StateComm,
		Next:  []campaign.State{campaign.StateFloor},
		Artifacts: []ArtifactRequirement{
			{Name: "COMM_LEGISLATIVE_LANGUAGE", Gate: GateLang},
		},
		Confirmation: "committee_vote",
	},
	{
		State: campaign.StateFloor,
		Next:  []campaign.State{campaign.StateFinal},
		Artifacts: []ArtifactRequirement{
			{Name: "FLOOR_MESSAGING_PLAN", Gate: GateMsg},
		},
		Confirmation: "floor_vote",
	},
	{
		State: campaign.StateFinal,
		Next:  []campaign.State{campaign.StateImpl},
		Artifacts: []ArtifactRequirement{
			{Name: "FINAL_RELEASE_PACKAGE", Gate: GateRelease},
		},
		Confirmation: "enactment",
	},
	{
		State:    campaign.StateImpl,
		Terminal: true,
	},
}

var defaultRoles = map[string][]string{
	GatePre:     {"Campaign Director", "Policy Director"},
	GateLang:    {"Legal Reviewer", "Policy Director"},
	GateMsg:     {"Communications Director", "Campaign Director"},
	GateRelease: {"Executive Director", "Legal Reviewer"},
}

// Default returns the built-in rule set.
func Default() *Table {
	return build(Version, defaultRules, defaultRoles)
}

// WithRoles returns a copy of t whose gate role requirements are replaced by
// overrides for every gate present in overrides. An explicitly empty slice
// removes the requirement for that gate.
func (t *Table) WithRoles(overrides map[string][]string) *Table {
	if len(overrides) == 0 {
		return t
	}
	roles := make(map[string][]string, len(t.roles)+len(overrides))
	for gate, list := range t.roles {
		roles[gate] = list
	}
	for gate, list := range overrides {
		roles[NormalizeGateID(gate)] = list
	}
	rules := make([]StateRule, 0, len(t.rules))
	for _, state := range campaign.States() {
		if rule, ok := t.rules[state]; ok {
			rules = append(rules, rule)
		}
	}
	return build(t.version, rules, roles)
}

func build(version string, rules []StateRule, roles map[string][]string) *Table {
	t := &Table{
		version: version,
		rules:   make(map[campaign.State]StateRule, len(rules)),
		roles:   make(map[string][]string, len(roles)),
	}
	for _, rule := range rules {
		rule.Next = slices.Clone(rule.Next)
		rule.Artifacts = slices.Clone(rule.Artifacts)
		t.rules[rule.State] = rule
	}
	for gate, list := range roles {
		cleaned := make([]string, 0, len(list))
		for _, role := range list {
			if role = strings.TrimSpace(role); role != "" {
				cleaned = append(cleaned, role)
			}
		}
		t.roles[gate] = cleaned
	}
	return t
}

// Version reports the rule set version.
func (t *Table) Version() string {
	return t.version
}

// Rule returns the rule for state.
func (t *Table) Rule(state campaign.State) (StateRule, bool) {
	rule, ok := t.rules[state]
	if !ok {
		return StateRule{}, false
	}
	rule.Next = slices.Clone(rule.Next)
	rule.Artifacts = slices.Clone(rule.Artifacts)
	return rule, true
}

// Next returns the legal next states from state. Terminal and unknown states
// have none.
func (t *Table) Next(state campaign.State) []campaign.State {
	rule, ok := t.rules[state]
	if !ok {
		return nil
	}
	return slices.Clone(rule.Next)
}

// IsTerminal reports whether no transition may leave state.
func (t *Table) IsTerminal(state campaign.State) bool {
	rule, ok := t.rules[state]
	return ok && rule.Terminal
}

// Allowed reports whether from -> to is a legal transition.
func (t *Table) Allowed(from, to campaign.State) bool {
	rule, ok := t.rules[from]
	if !ok || rule.Terminal {
		return false
	}
	return slices.Contains(rule.Next, to)
}

// Requirements lists the artifacts required to leave state.
func (t *Table) Requirements(state campaign.State) []ArtifactRequirement {
	rule, ok := t.rules[state]
	if !ok {
		return nil
	}
	return slices.Clone(rule.Artifacts)
}

// RequiresConfirmation returns the external confirmation event type needed for
// from -> to, if any.
func (t *Table) RequiresConfirmation(from, to campaign.State) (string, bool) {
	if !t.Allowed(from, to) {
		return "", false
	}
	rule := t.rules[from]
	if rule.Confirmation == "" {
		return "", false
	}
	return rule.Confirmation, true
}

// GateRoles returns the roles permitted to approve gate. The boolean is false
// when the gate has no configured requirement.
func (t *Table) GateRoles(gate string) ([]string, bool) {
	roles, ok := t.roles[NormalizeGateID(gate)]
	if !ok || len(roles) == 0 {
		return nil, false
	}
	return slices.Clone(roles), true
}

// Gates lists every gate named by the table, sorted.
func (t *Table) Gates() []string {
	seen := make(map[string]struct{})
	for gate := range t.roles {
		seen[gate] = struct{}{}
	}
	for _, rule := range t.rules {
		for _, req := range rule.Artifacts {
			if req.Gate != "" {
				seen[req.Gate] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for gate := range seen {
		out = append(out, gate)
	}
	slices.Sort(out)
	return out
}

// NormalizeGateID canonicalizes user-supplied gate identifiers ("hr_pre",
// " HR-PRE ") to the table's form.
func NormalizeGateID(gate string) string {
	gate = strings.ToUpper(strings.TrimSpace(gate))
	return strings.ReplaceAll(gate, "-", "_")
}

// Check reports structural problems with the table: unknown states, forward
// edges that skip or regress, and terminal states with outgoing edges.
func (t *Table) Check() error {
	for _, state := range campaign.States() {
		rule, ok := t.rules[state]
		if !ok {
			return fmt.Errorf("invariants %s: no rule for %s", t.version, state)
		}
		if rule.Terminal {
			if len(rule.Next) > 0 {
				return fmt.Errorf("invariants %s: terminal state %s has next states", t.version, state)
			}
			continue
		}
		if len(rule.Next) == 0 {
			return fmt.Errorf("invariants %s: non-terminal state %s has no next state", t.version, state)
		}
		for _, next := range rule.Next {
			if next.Index() != state.Index()+1 {
				return fmt.Errorf("invariants %s: %s -> %s is not a single forward step", t.version, state, next)
			}
		}
	}
	return nil
}
