package domain

import (
	"slices"
	"time"
)

// Outcome is the per-event result of a run.
type Outcome string

const (
	OutcomeRendered            Outcome = "rendered"
	OutcomeDispatched          Outcome = "dispatched"
	OutcomeSkippedExisting     Outcome = "skipped-existing"
	OutcomeRejected            Outcome = "rejected"
	OutcomeUnassociated        Outcome = "unassociated"
	OutcomeAmbiguousUnresolved Outcome = "ambiguous-unresolved"
	OutcomeAssociationFailed   Outcome = "failed-association"
	OutcomeRenderFailed        Outcome = "failed-render"
	OutcomeDispatchFailed      Outcome = "failed-dispatch"
	OutcomeAborted             Outcome = "aborted"
)

// Failed reports whether the outcome represents an error rather than a decision.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeRejected, OutcomeAssociationFailed, OutcomeRenderFailed, OutcomeDispatchFailed:
		return true
	default:
		return false
	}
}

// Report records what happened to one event during a run.
type Report struct {
	RunID          string      `json:"run_id"`
	EventID        string      `json:"event_id"`
	ProductType    ProductType `json:"product_type"`
	Outcome        Outcome     `json:"outcome"`
	Reason         string      `json:"reason,omitempty"`
	Document       string      `json:"document,omitempty"`
	Version        string      `json:"version,omitempty"`
	TriggerID      string      `json:"trigger_id,omitempty"`
	Candidates     int         `json:"candidates"`
	Siblings       []string    `json:"siblings,omitempty"`
	DispatchOutput string      `json:"dispatch_output,omitempty"`
	ProcessedAt    time.Time   `json:"processed_at"`
}

// Summary aggregates the reports of one run.
type Summary struct {
	RunID     string          `json:"run_id"`
	Total     int             `json:"total"`
	Failed    int             `json:"failed"`
	ByOutcome map[Outcome]int `json:"by_outcome"`
	Started   time.Time       `json:"started"`
	Finished  time.Time       `json:"finished"`
}

// Summarize counts reports by outcome.
func Summarize(runID string, started time.Time, reports []Report) Summary {
	s := Summary{
		RunID:     runID,
		Total:     len(reports),
		ByOutcome: make(map[Outcome]int),
		Started:   started,
		Finished:  Now(),
	}
	for _, r := range reports {
		s.ByOutcome[r.Outcome]++
		if r.Outcome.Failed() {
			s.Failed++
		}
	}
	return s
}

// Outcomes returns the outcomes present in the summary in a stable order.
func (s Summary) Outcomes() []Outcome {
	out := make([]Outcome, 0, len(s.ByOutcome))
	for o := range s.ByOutcome {
		out = append(out, o)
	}
	slices.Sort(out)
	return out
}
