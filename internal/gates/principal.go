package gates

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Kind distinguishes people from automation.
type Kind string

const (
	KindHuman  Kind = "human"
	KindAgent  Kind = "agent"
	KindSystem Kind = "system"
)

// Principal is whoever made a decision.
type Principal struct {
	Kind Kind
	Role string
}

// ParsePrincipal accepts "human:<role>", "agent:<name>", "system:<name>", or
// a bare role, which is taken to be human.
func ParsePrincipal(value string) (Principal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Principal{}, fmt.Errorf("principal is empty")
	}
	kind, rest, found := strings.Cut(value, ":")
	if !found {
		return Principal{Kind: KindHuman, Role: collapseSpace(value)}, nil
	}
	role := collapseSpace(rest)
	if role == "" {
		return Principal{}, fmt.Errorf("principal %q has no role", value)
	}
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindHuman:
		return Principal{Kind: KindHuman, Role: role}, nil
	case KindAgent:
		return Principal{Kind: KindAgent, Role: role}, nil
	case KindSystem:
		return Principal{Kind: KindSystem, Role: role}, nil
	default:
		return Principal{}, fmt.Errorf("principal %q has unknown kind %q", value, kind)
	}
}

// String renders the principal in its canonical "kind:role" form.
func (p Principal) String() string {
	if p.Kind == "" {
		return p.Role
	}
	return string(p.Kind) + ":" + p.Role
}

// IsHuman reports whether the principal is a person.
func (p Principal) IsHuman() bool {
	return p.Kind == KindHuman
}

// NormalizeRole folds case and treats runs of whitespace, '_' and '-' as a
// single space, so "legal_reviewer" and "Legal  Reviewer" compare equal.
func NormalizeRole(role string) string {
	folded := cases.Fold().String(role)
	folded = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return r
	}, folded)
	return collapseSpace(folded)
}

// RoleMatches reports whether role equals any of required after
// normalization. Substrings never match.
func RoleMatches(role string, required []string) bool {
	want := NormalizeRole(role)
	if want == "" {
		return false
	}
	for _, candidate := range required {
		if NormalizeRole(candidate) == want {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
