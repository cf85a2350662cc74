// Package fetch turns arbitrary article URLs into clean article text. It
// composes a static HTTP client, a heuristic content extractor, a headless
// rendering fallback, an institutional-proxy access planner, and a PDF
// extractor behind one orchestrated fetch operation.
package fetch

import "fmt"

// Class is the machine-readable failure taxonomy surfaced to callers.
// Classes are used verbatim in logs and for bulk failure triage.
type Class string

// Outcome classes. An empty class means success.
const (
	ClassNone             Class = ""
	ClassAuthRequired     Class = "auth-required"
	ClassNotFound         Class = "not-found"
	ClassRateLimited      Class = "rate-limited"
	ClassTransientServer  Class = "transient-server"
	ClassTimeout          Class = "timeout"
	ClassConnection       Class = "connection-error"
	ClassParseError       Class = "parse-error"
	ClassTooShort         Class = "content-too-short"
	ClassNoContent        Class = "no-content"
	ClassAccessDenied     Class = "access-denied"
	ClassNoCredentials    Class = "no-credentials"
	ClassSkippedPDF       Class = "skipped-pdf"
	ClassSkippedDuplicate Class = "skipped-duplicate"
)

// Outcome is the uniform result of every extraction strategy and of the
// orchestrator itself. Reason is always populated, success included, so a
// batch log explains where each article's text came from.
type Outcome struct {
	OK      bool
	Content string
	Reason  string
	Class   Class
}

// Success builds a successful outcome carrying the extracted content and a
// reason describing which strategy produced it.
func Success(content, reason string) Outcome {
	return Outcome{OK: true, Content: content, Reason: reason}
}

// Failure builds a failed outcome for the given class.
func Failure(class Class, reason string) Outcome {
	return Outcome{Class: class, Reason: reason}
}

// Failuref builds a failed outcome with a formatted reason.
func Failuref(class Class, format string, args ...any) Outcome {
	return Outcome{Class: class, Reason: fmt.Sprintf(format, args...)}
}

// specificity ranks failure classes so the orchestrator can keep the most
// actionable reason when several attempts fail differently. Higher wins.
var specificity = map[Class]int{
	ClassNoContent:        1,
	ClassTransientServer:  2,
	ClassParseError:       3,
	ClassTooShort:         4,
	ClassConnection:       5,
	ClassTimeout:          6,
	ClassRateLimited:      7,
	ClassNotFound:         8,
	ClassNoCredentials:    9,
	ClassAccessDenied:     10,
	ClassAuthRequired:     11,
	ClassSkippedPDF:       12,
	ClassSkippedDuplicate: 12,
}

// moreSpecific returns the failure outcome with the more actionable class.
func moreSpecific(current, candidate Outcome) Outcome {
	if current.Reason == "" {
		return candidate
	}
	if specificity[candidate.Class] > specificity[current.Class] {
		return candidate
	}
	return current
}
