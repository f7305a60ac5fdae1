package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
run_id: run-1
taxonomy: authors
throttle:
  every: 2
  pause: 250ms
fixture:
  authors:
    - {id: 1, login: ursula}
  records:
    - {id: 1, author: 1, type: post, status: publish}
runs:
  - name: first
    params:
      record_types: [post]
      record_statuses: [publish]
      batched: true
      records_per_batch: 10
      above_id: 0
    expect:
      total: 1
      affected: 1
assertions:
  - {type: relation, record: 1, term: cap-ursula}
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "run-1", scenario.RunID)
	assert.Equal(t, "authors", scenario.Taxonomy)
	require.NotNil(t, scenario.Throttle)
	assert.Equal(t, 2, scenario.Throttle.Every)
	assert.Equal(t, 250*time.Millisecond, scenario.Throttle.Pause)
	assert.Len(t, scenario.Fixture.Records, 1)
	require.Len(t, scenario.Runs, 1)

	params := scenario.Runs[0].Params.engineParams()
	assert.True(t, params.Batched)
	assert.Equal(t, 10, params.RecordsPerBatch)
	require.NotNil(t, params.AboveID)
	assert.Equal(t, int64(0), *params.AboveID)
	assert.Nil(t, params.BelowID)

	require.NotNil(t, scenario.Runs[0].Expect)
	assert.Equal(t, 1, *scenario.Runs[0].Expect.Total)
	assert.Nil(t, scenario.Runs[0].Expect.Skipped)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: d
runz: []
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nruns: [{name: r}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nruns: [{name: r}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no runs",
			yaml:    "name: n\ndescription: d\n",
			wantErr: "runs list is required",
		},
		{
			name:    "unnamed run",
			yaml:    "name: n\ndescription: d\nruns: [{params: {}}]\n",
			wantErr: "runs[0]: name is required",
		},
		{
			name:    "unknown error class",
			yaml:    "name: n\ndescription: d\nruns: [{name: r, expect: {error: boom}}]\n",
			wantErr: "unknown error class",
		},
		{
			name:    "bad fixture",
			yaml:    "name: n\ndescription: d\nfixture: {records: [{id: 1, author: 1}]}\nruns: [{name: r}]\n",
			wantErr: "fixture:",
		},
		{
			name:    "bad before dataset",
			yaml:    "name: n\ndescription: d\nruns: [{name: r, before: {authors: [{id: 0, login: x}]}}]\n",
			wantErr: "runs[0].before",
		},
		{
			name:    "assertion without type",
			yaml:    "name: n\ndescription: d\nruns: [{name: r}]\nassertions: [{record: 1}]\n",
			wantErr: "type is required",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\nruns: [{name: r}]\nassertions: [{type: vibes}]\n",
			wantErr: "unknown assertion type",
		},
		{
			name:    "relation without term",
			yaml:    "name: n\ndescription: d\nruns: [{name: r}]\nassertions: [{type: relation, record: 1}]\n",
			wantErr: "record and term are required",
		},
		{
			name:    "skip marker without record",
			yaml:    "name: n\ndescription: d\nruns: [{name: r}]\nassertions: [{type: skip_marker}]\n",
			wantErr: "record is required",
		},
		{
			name:    "term without slug",
			yaml:    "name: n\ndescription: d\nruns: [{name: r}]\nassertions: [{type: term}]\n",
			wantErr: "term is required",
		},
		{
			name:    "matching without count",
			yaml:    "name: n\ndescription: d\nruns: [{name: r}]\nassertions: [{type: matching}]\n",
			wantErr: "non-negative count is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_AllTestdataScenariosParse(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			require.NoError(t, err)
		})
	}
}
