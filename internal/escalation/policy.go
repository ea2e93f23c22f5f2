package escalation

import (
	"math"
	"strings"
)

// Severity ranks how urgently a human must look at an escalation.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity converts a string into a known Severity.
func ParseSeverity(value string) (Severity, bool) {
	switch s := Severity(strings.ToUpper(strings.TrimSpace(value))); s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return s, true
	default:
		return "", false
	}
}

// Trigger names a condition that caused an escalation.
type Trigger string

const (
	TriggerLowConfidence       Trigger = "LOW_CONFIDENCE"
	TriggerHighAssumptionDrift Trigger = "HIGH_ASSUMPTION_DRIFT"
	TriggerGateBypass          Trigger = "GATE_BYPASS"
	TriggerViolation           Trigger = "VIOLATION"
	TriggerExplicit            Trigger = "EXPLICIT_ESCALATION"
)

// Default thresholds.
const (
	DefaultConfidenceThreshold      = 0.70
	DefaultAssumptionDriftThreshold = 0.20
)

// Thresholds parameterize the numeric triggers.
type Thresholds struct {
	Confidence      float64
	AssumptionDrift float64
}

// DefaultThresholds returns the built-in trigger thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Confidence:      DefaultConfidenceThreshold,
		AssumptionDrift: DefaultAssumptionDriftThreshold,
	}
}

// LowConfidence reports whether confidence is strictly below the threshold.
// NaN is treated as low: a score that cannot be compared is not trusted.
func (t Thresholds) LowConfidence(confidence float64) bool {
	return math.IsNaN(confidence) || confidence < t.Confidence
}

// HighDrift reports whether drift is strictly above the threshold. NaN is
// treated as high.
func (t Thresholds) HighDrift(drift float64) bool {
	return math.IsNaN(drift) || drift > t.AssumptionDrift
}

// CheckConfidenceThreshold reports whether confidence warrants escalation
// under the default threshold.
func CheckConfidenceThreshold(confidence float64) bool {
	return DefaultThresholds().LowConfidence(confidence)
}

// CheckAssumptionDrift reports whether drift warrants escalation under the
// default threshold.
func CheckAssumptionDrift(drift float64) bool {
	return DefaultThresholds().HighDrift(drift)
}

// DeriveTriggers evaluates every trigger independently and returns all that
// apply, in a fixed order. EXPLICIT_ESCALATION is returned only when nothing
// else matched.
func DeriveTriggers(reason string, confidence, drift *float64, th Thresholds) []Trigger {
	var out []Trigger
	if confidence != nil && th.LowConfidence(*confidence) {
		out = append(out, TriggerLowConfidence)
	}
	if drift != nil && th.HighDrift(*drift) {
		out = append(out, TriggerHighAssumptionDrift)
	}
	lowered := strings.ToLower(reason)
	if strings.Contains(lowered, "bypass") || strings.Contains(lowered, "gate") {
		out = append(out, TriggerGateBypass)
	}
	if strings.Contains(lowered, "violation") {
		out = append(out, TriggerViolation)
	}
	if len(out) == 0 {
		out = append(out, TriggerExplicit)
	}
	return out
}
