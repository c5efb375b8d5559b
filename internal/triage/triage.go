// Package triage validates community reports, assigns their initial urgency and guards their state machine.
package triage

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/abelzeko/aguasur/internal/config"
	"github.com/abelzeko/aguasur/internal/entities"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Classification is the outcome of triaging a new report.
type Classification struct {
	Report          entities.Report   `json:"report"`
	BaselineUrgency entities.Severity `json:"baseline_urgency"`
	MatchedKeywords []string          `json:"matched_keywords,omitempty"`
}

// baselines is the minimum urgency implied by each report type.
var baselines = map[entities.ReportType]entities.Severity{
	entities.ReportRunningOut:     entities.SeverityMedium,
	entities.ReportContaminated:   entities.SeverityHigh,
	entities.ReportInfrastructure: entities.SeverityLow,
	entities.ReportOther:          entities.SeverityLow,
}

// next lists the only state each status may move to.
var next = map[entities.ReportStatus]entities.ReportStatus{
	entities.ReportPending:    entities.ReportInProgress,
	entities.ReportInProgress: entities.ReportResolved,
}

// Classify prepares a new report: it must start pending and gets urgency from its type, the reporter's
// declared urgency (SeverityNone when undeclared) and the configured urgent keywords.
func Classify(cfg config.Engine, draft entities.Report, now time.Time) (Classification, error) {
	r := draft
	r.Description = strings.TrimSpace(r.Description)

	base, ok := baselines[r.Type]
	if !ok {
		return Classification{}, fmt.Errorf("%w: unknown report type %q", entities.ErrInvalidInput, r.Type)
	}
	if !r.Urgency.Valid() {
		return Classification{}, fmt.Errorf("%w: declared urgency %d out of range", entities.ErrInvalidInput, int(r.Urgency))
	}
	if r.Status != "" && r.Status != entities.ReportPending {
		return Classification{}, fmt.Errorf("%w: new reports start pending, got %s", entities.ErrInvalidInput, r.Status)
	}
	if r.ResolvedAt != nil {
		return Classification{}, fmt.Errorf("%w: new report already carries a resolution time", entities.ErrInvalidInput)
	}

	matched := MatchKeywords(cfg.UrgentKeywords, r.Description)
	urgency := r.Urgency.AtLeast(base)
	if len(matched) > 0 {
		urgency = urgency.Raise()
	}

	r.Urgency = urgency
	r.Status = entities.ReportPending
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.Version = 1

	if err := entities.ValidateReport(r); err != nil {
		return Classification{}, err
	}
	return Classification{Report: r, BaselineUrgency: base, MatchedKeywords: matched}, nil
}

// MatchKeywords returns the keywords found in text as whole words, ignoring case and accents. A keyword
// of several words matches the same words in sequence, and the last word may carry a plural ending.
func MatchKeywords(keywords []string, text string) []string {
	tokens := tokenize(text)
	var matched []string
	for _, kw := range keywords {
		k := tokenize(kw)
		if len(k) > 0 && containsSequence(tokens, k) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func tokenize(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsSequence(tokens, kw []string) bool {
	for i := 0; i+len(kw) <= len(tokens); i++ {
		ok := true
		for j, k := range kw {
			if j == len(kw)-1 {
				ok = ok && sameWord(tokens[i+j], k)
			} else {
				ok = ok && tokens[i+j] == k
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// sameWord accepts the keyword itself or its Spanish plural ("enfermo" -> "enfermos", "hospital" -> "hospitales").
func sameWord(token, kw string) bool {
	if token == kw || token == kw+"s" {
		return true
	}
	return strings.ContainsRune("lnrdzj", rune(kw[len(kw)-1])) && token == kw+"es"
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// CanTransition reports whether a report in state from may move to state to.
func CanTransition(from, to entities.ReportStatus) bool {
	n, ok := next[from]
	return ok && n == to
}

// Transition moves r to the next state. Out-of-order moves, moves out of resolved, and resolutions dated
// before the report was created fail with ErrInvalidTransition and leave r untouched.
func Transition(r entities.Report, to entities.ReportStatus, at time.Time, notes string) (entities.Report, error) {
	if err := entities.ValidateReport(r); err != nil {
		return r, err
	}
	if r.IsResolved() {
		return r, fmt.Errorf("%w: report %s is already resolved", entities.ErrInvalidTransition, r.ID)
	}
	if !CanTransition(r.Status, to) {
		return r, fmt.Errorf("%w: report %s cannot move from %s to %s", entities.ErrInvalidTransition, r.ID, r.Status, to)
	}

	out := r
	out.Status = to
	if to == entities.ReportResolved {
		if at.IsZero() {
			return r, fmt.Errorf("%w: resolution time is required", entities.ErrInvalidInput)
		}
		if at.Before(r.CreatedAt) {
			return r, fmt.Errorf("%w: report %s resolved at %s before creation at %s",
				entities.ErrInvalidTransition, r.ID, at.Format(time.RFC3339), r.CreatedAt.Format(time.RFC3339))
		}
		resolvedAt := at
		out.ResolvedAt = &resolvedAt
		out.ResolutionNotes = strings.TrimSpace(notes)
	}
	out.Version++
	return out, nil
}

// Escalate raises the urgency of an open report. Lowering goes through Override.
func Escalate(r entities.Report, to entities.Severity) (entities.Report, error) {
	if to < entities.SeverityLow || to > entities.SeverityCritical {
		return r, fmt.Errorf("%w: urgency %s is not assignable", entities.ErrInvalidInput, to)
	}
	if r.IsResolved() {
		return r, fmt.Errorf("%w: report %s is already resolved", entities.ErrInvalidTransition, r.ID)
	}
	if to < r.Urgency {
		return r, fmt.Errorf("%w: report %s urgency cannot drop from %s to %s without an override reason",
			entities.ErrInvalidTransition, r.ID, r.Urgency, to)
	}
	if to == r.Urgency {
		return r, nil
	}
	out := r
	out.Urgency = to
	out.Version++
	return out, nil
}

// Override sets the urgency of an open report to any tier, recording why.
func Override(r entities.Report, to entities.Severity, reason string) (entities.Report, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return r, fmt.Errorf("%w: an override reason is required", entities.ErrInvalidInput)
	}
	if to < entities.SeverityLow || to > entities.SeverityCritical {
		return r, fmt.Errorf("%w: urgency %s is not assignable", entities.ErrInvalidInput, to)
	}
	if r.IsResolved() {
		return r, fmt.Errorf("%w: report %s is already resolved", entities.ErrInvalidTransition, r.ID)
	}
	out := r
	out.Urgency = to
	out.UrgencyOverrideReason = reason
	out.Version++
	return out, nil
}
