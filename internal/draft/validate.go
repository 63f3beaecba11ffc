package draft

import (
	"strings"

	"shift_report/internal/report"
)

// Reasons reported by Validate.
const (
	ReasonMissingHeader = "missing header fields."
	ReasonMissingTeam   = "missing team member."
)

// Result is the outcome of Validate. Reason is empty when OK.
type Result struct {
	OK     bool
	Reason string
}

// Err converts a failed result into a *ValidationError, or nil.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return &ValidationError{Reason: r.Reason}
}

// ValidationError blocks a submission before it reaches the gateway.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid report: " + e.Reason
}

// Validate checks that a draft can be submitted. The header rule is checked
// before the team rule; free-text sections are optional.
func Validate(d Draft) Result {
	if blank(d.area) || blank(string(d.jornada)) || blank(d.supervisor) {
		return Result{Reason: ReasonMissingHeader}
	}
	if len(d.team.NonEmpty()) == 0 {
		return Result{Reason: ReasonMissingTeam}
	}
	return Result{OK: true}
}

// ValidateSubmission applies the same rules to a decoded submission. The
// server uses it on incoming requests.
func ValidateSubmission(s report.Submission) Result {
	if blank(s.Area) || blank(s.Jornada) || blank(s.Supervisor) {
		return Result{Reason: ReasonMissingHeader}
	}
	for _, m := range s.Team {
		if m != (report.Member{}) {
			return Result{OK: true}
		}
	}
	return Result{Reason: ReasonMissingTeam}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
