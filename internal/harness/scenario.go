package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bylines/internal/engine"
	"github.com/roach88/bylines/internal/fixture"
	"github.com/roach88/bylines/internal/ir"
)

// Scenario defines one end-to-end backfill test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID is the fixed run id. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Taxonomy defaults to "author"; SlugPrefix to "cap-".
	Taxonomy   string `yaml:"taxonomy,omitempty"`
	SlugPrefix string `yaml:"slug_prefix,omitempty"`

	// Throttle overrides the pause cadence.
	Throttle *Throttle `yaml:"throttle,omitempty"`

	// Fixture is the dataset loaded before the first run.
	Fixture fixture.Dataset `yaml:"fixture"`

	// Runs execute in order against the same store.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

type Throttle struct {
	Every int           `yaml:"every"`
	Pause time.Duration `yaml:"pause"`
}

// RunStep is one engine run.
type RunStep struct {
	Name string `yaml:"name"`

	// Before is applied to the store ahead of this run, modelling writes
	// that happen between runs.
	Before *fixture.Dataset `yaml:"before,omitempty"`

	// ClearSkips removes every skip marker ahead of this run.
	ClearSkips bool `yaml:"clear_skips,omitempty"`

	Params RunParams `yaml:"params"`

	// Expect is checked against the run's summary.
	Expect *Expect `yaml:"expect,omitempty"`
}

// RunParams mirrors engine.Params in YAML.
type RunParams struct {
	RecordTypes     []string      `yaml:"record_types"`
	RecordStatuses  []string      `yaml:"record_statuses"`
	Batched         bool          `yaml:"batched,omitempty"`
	RecordsPerBatch int           `yaml:"records_per_batch,omitempty"`
	IDs             []ir.RecordID `yaml:"ids,omitempty"`
	AboveID         *int64        `yaml:"above_id,omitempty"`
	BelowID         *int64        `yaml:"below_id,omitempty"`
}

func (p RunParams) engineParams() engine.Params {
	return engine.Params{
		RecordTypes:     p.RecordTypes,
		RecordStatuses:  p.RecordStatuses,
		Batched:         p.Batched,
		RecordsPerBatch: p.RecordsPerBatch,
		ExplicitIDs:     p.IDs,
		AboveID:         p.AboveID,
		BelowID:         p.BelowID,
	}
}

// Expect is a subset match on a run summary. Nil fields are not checked.
type Expect struct {
	Total     *int `yaml:"total,omitempty"`
	Processed *int `yaml:"processed,omitempty"`
	Affected  *int `yaml:"affected,omitempty"`
	Skipped   *int `yaml:"skipped,omitempty"`
	Failed    *int `yaml:"failed,omitempty"`
	Pages     *int `yaml:"pages,omitempty"`
	Throttles *int `yaml:"throttles,omitempty"`

	// Error is the expected error class: "config", "interrupted", "store" or
	// empty for success.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Record ir.RecordID `yaml:"record,omitempty"`

	// Term is a term slug.
	Term string `yaml:"term,omitempty"`

	Reason      string `yaml:"reason,omitempty"`
	RecordCount *int64 `yaml:"record_count,omitempty"`
	Count       *int   `yaml:"count,omitempty"`

	// RecordTypes and RecordStatuses scope a matching assertion; they
	// default to post/publish.
	RecordTypes    []string `yaml:"record_types,omitempty"`
	RecordStatuses []string `yaml:"record_statuses,omitempty"`
}

// Assertion type constants.
const (
	AssertRelation   = "relation"
	AssertNoRelation = "no_relation"
	AssertSkipMarker = "skip_marker"
	AssertNoMarker   = "no_skip_marker"
	AssertTerm       = "term"
	AssertTermCount  = "term_count"
	AssertMatching   = "matching"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}

	if err := s.Fixture.Validate(); err != nil {
		return fmt.Errorf("fixture: %w", err)
	}

	for i, run := range s.Runs {
		if run.Name == "" {
			return fmt.Errorf("runs[%d]: name is required", i)
		}
		if run.Before != nil {
			if err := run.Before.Validate(); err != nil {
				return fmt.Errorf("runs[%d].before: %w", i, err)
			}
		}
		if run.Expect != nil {
			switch run.Expect.Error {
			case "", errClassConfig, errClassInterrupted, errClassStore:
			default:
				return fmt.Errorf("runs[%d].expect: unknown error class %q", i, run.Expect.Error)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertRelation:
		if a.Record == 0 || a.Term == "" {
			return fmt.Errorf("assertions[%d]: record and term are required for relation", index)
		}
	case AssertNoRelation, AssertNoMarker:
		if a.Record == 0 {
			return fmt.Errorf("assertions[%d]: record is required for %s", index, a.Type)
		}
	case AssertSkipMarker:
		if a.Record == 0 {
			return fmt.Errorf("assertions[%d]: record is required for skip_marker", index)
		}
	case AssertTerm:
		if a.Term == "" {
			return fmt.Errorf("assertions[%d]: term is required for term", index)
		}
	case AssertTermCount, AssertMatching:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
