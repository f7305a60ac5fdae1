package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/bylines/internal/engine"
	"github.com/roach88/bylines/internal/fixture"
	"github.com/roach88/bylines/internal/logger"
	"github.com/roach88/bylines/internal/skipmark"
	"github.com/roach88/bylines/internal/store"
	"github.com/roach88/bylines/internal/testutil"
)

// Defaults applied when a scenario leaves them unset.
const (
	DefaultTaxonomy   = "author"
	DefaultSlugPrefix = "cap-"
)

// Epoch is the first instant of the deterministic clock. Each reading
// advances it by one second.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	errClassConfig      = "config"
	errClassInterrupted = "interrupted"
	errClassStore       = "store"
)

// traced maps engine log messages to trace event names.
var traced = map[string]string{
	"relation attached":                       "attached",
	"relation already present":                "present",
	"author not found, record skipped":        "skipped",
	"author not found and skip marker failed": "failed",
	"author lookup failed":                    "failed",
	"term resolution failed":                  "failed",
	"attach failed":                           "failed",
}

// Harness holds the collaborators shared by every run of a scenario.
type Harness struct {
	store    *store.Store
	driver   *engine.Driver
	clock    *testutil.DeterministicClock
	sleeper  *testutil.RecordingSleeper
	logs     logger.Logs
	scenario *Scenario
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
//  1. Create fresh in-memory database
//  2. Apply the fixture
//  3. Execute runs in order, checking each summary against its expectation
//  4. Evaluate assertions and capture the final state
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := newHarness(st, scenario)

	if _, err := scenario.Fixture.Apply(ctx, st, h.fixtureOptions()); err != nil {
		return nil, fmt.Errorf("apply fixture: %w", err)
	}

	result := NewResult(scenario.Name)

	for i, step := range scenario.Runs {
		if err := h.executeRun(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("run %q: %w", step.Name, err)
		}
	}

	for i, assertion := range scenario.Assertions {
		if err := evaluateAssertion(ctx, st, h.taxonomy(), assertion); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	if err := captureState(ctx, st, h.taxonomy(), &result.Snapshot); err != nil {
		return nil, fmt.Errorf("capture state: %w", err)
	}

	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) *Harness {
	log, logs := logger.NewObserverLogger("debug")
	h := &Harness{
		store:    st,
		clock:    testutil.NewDeterministicClock(Epoch, time.Second),
		sleeper:  &testutil.RecordingSleeper{},
		logs:     logs,
		scenario: scenario,
	}

	every, pause := engine.DefaultThrottleEvery, engine.DefaultThrottlePause
	if scenario.Throttle != nil {
		every, pause = scenario.Throttle.Every, scenario.Throttle.Pause
	}

	h.driver = engine.New(st,
		engine.WithTaxonomy(h.taxonomy()),
		engine.WithSlugPrefix(h.slugPrefix()),
		engine.WithSkipMetaKey(skipmark.DefaultKey),
		engine.WithThrottle(every, pause),
		engine.WithLogger(log),
		engine.WithSleeper(h.sleeper),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		engine.WithClock(h.clock.Now),
	)
	return h
}

func (h *Harness) taxonomy() string {
	if h.scenario.Taxonomy != "" {
		return h.scenario.Taxonomy
	}
	return DefaultTaxonomy
}

func (h *Harness) slugPrefix() string {
	if h.scenario.SlugPrefix != "" {
		return h.scenario.SlugPrefix
	}
	return DefaultSlugPrefix
}

func (h *Harness) fixtureOptions() fixture.Options {
	return fixture.Options{
		Taxonomy:    h.taxonomy(),
		SlugPrefix:  h.slugPrefix(),
		SkipMetaKey: skipmark.DefaultKey,
		Now:         h.clock.Now,
	}
}

// executeRun performs one run step. Only harness failures are returned;
// engine errors are classified and compared with the expectation.
func (h *Harness) executeRun(ctx context.Context, index int, step RunStep, result *Result) error {
	if step.Before != nil {
		if _, err := step.Before.Apply(ctx, h.store, h.fixtureOptions()); err != nil {
			return fmt.Errorf("apply before: %w", err)
		}
	}

	if step.ClearSkips {
		if _, err := h.store.DeleteMeta(ctx, skipmark.DefaultKey); err != nil {
			return fmt.Errorf("clear skips: %w", err)
		}
	}

	pausesBefore := h.sleeper.Count()
	summary, runErr := h.driver.Run(ctx, step.Params.engineParams())

	outcome := RunOutcome{
		Name:    step.Name,
		Summary: summary,
		Error:   classifyError(runErr),
		Pauses:  h.sleeper.Count() - pausesBefore,
	}
	result.Snapshot.Runs = append(result.Snapshot.Runs, outcome)
	result.Snapshot.Trace = append(result.Snapshot.Trace, traceEvents(index, h.logs.TakeAll())...)

	if step.Expect != nil {
		for _, msg := range checkExpect(*step.Expect, outcome) {
			result.AddError(fmt.Sprintf("runs[%d] %s: %s", index, step.Name, msg))
		}
	} else if runErr != nil {
		result.AddError(fmt.Sprintf("runs[%d] %s: unexpected error: %v", index, step.Name, runErr))
	}

	return nil
}

func classifyError(err error) string {
	var rtErr *engine.RuntimeError
	switch {
	case err == nil:
		return ""
	case engine.IsConfigError(err):
		return errClassConfig
	case engine.IsInterrupted(err):
		return errClassInterrupted
	case errors.As(err, &rtErr):
		return errClassStore
	default:
		return err.Error()
	}
}

func traceEvents(run int, entries []observer.LoggedEntry) []TraceEvent {
	events := []TraceEvent{}
	for _, e := range entries {
		name, ok := traced[e.Message]
		if !ok || e.Level < zapcore.InfoLevel {
			continue
		}
		fields := e.ContextMap()
		ev := TraceEvent{Run: run, Event: name}
		if id, ok := fields["record_id"].(int64); ok {
			ev.RecordID = id
		}
		if term, ok := fields["term"].(string); ok {
			ev.Term = term
		}
		events = append(events, ev)
	}
	return events
}

func checkExpect(want Expect, got RunOutcome) []string {
	var msgs []string
	check := func(field string, expected *int, actual int) {
		if expected != nil && *expected != actual {
			msgs = append(msgs, fmt.Sprintf("%s: expected %d, got %d", field, *expected, actual))
		}
	}

	s := got.Summary
	check("total", want.Total, s.Total)
	check("processed", want.Processed, s.Processed)
	check("affected", want.Affected, s.Affected)
	check("skipped", want.Skipped, s.Skipped)
	check("failed", want.Failed, s.Failed)
	check("pages", want.Pages, s.Pages)
	check("throttles", want.Throttles, s.Throttles)

	if want.Error != got.Error {
		msgs = append(msgs, fmt.Sprintf("error: expected %q, got %q", want.Error, got.Error))
	}
	return msgs
}
