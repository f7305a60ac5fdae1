// Package harness runs backfill scenarios end to end.
//
// A scenario is a YAML file holding a fixture dataset, an ordered list of
// runs with their parameters and expected summaries, and assertions on the
// final store state. Each scenario runs against a fresh in-memory store with
// a fixed run id, a deterministic clock and a sleeper that records pauses
// instead of sleeping, so two executions produce byte-identical snapshots.
//
// Snapshots (runs, trace, terms, relations, skip markers) are compared with
// golden files in testdata/golden. To regenerate them:
//
//	go test ./internal/harness -update
package harness
