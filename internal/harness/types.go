package harness

import (
	"time"

	"github.com/roach88/bylines/internal/engine"
)

// TraceEvent is one per-record outcome observed during a run.
type TraceEvent struct {
	Run      int    `json:"run"`
	Event    string `json:"event"` // attached, present, skipped, failed
	RecordID int64  `json:"record_id"`
	Term     string `json:"term,omitempty"`
}

// RunOutcome is what one run step produced.
type RunOutcome struct {
	Name    string         `json:"name"`
	Summary engine.Summary `json:"summary"`
	Error   string         `json:"error,omitempty"` // error class
	Pauses  int            `json:"pauses"`
}

// TermState is a term as stored after the last run.
type TermState struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	RecordCount int64  `json:"record_count"`
	Description string `json:"description"`
}

// RelationState is one record-to-term relation, by slug.
type RelationState struct {
	RecordID int64  `json:"record_id"`
	Term     string `json:"term"`
}

// MarkerState is one skip marker.
type MarkerState struct {
	RecordID  int64     `json:"record_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the deterministic record of a scenario execution compared
// against golden files.
type Snapshot struct {
	Scenario    string          `json:"scenario"`
	Runs        []RunOutcome    `json:"runs"`
	Trace       []TraceEvent    `json:"trace"`
	Terms       []TermState     `json:"terms"`
	Relations   []RelationState `json:"relations"`
	SkipMarkers []MarkerState   `json:"skip_markers"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	Snapshot Snapshot `json:"snapshot"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult(name string) *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		Snapshot: Snapshot{
			Scenario:    name,
			Runs:        []RunOutcome{},
			Trace:       []TraceEvent{},
			Terms:       []TermState{},
			Relations:   []RelationState{},
			SkipMarkers: []MarkerState{},
		},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
